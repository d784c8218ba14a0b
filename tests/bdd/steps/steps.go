// Package steps implements godog step definitions that drive the database
// façade directly through Command values. These helpers parse the small
// subset of statement shapes exercised by the feature files into Command
// trees; they are test scaffolding, not the engine's (explicitly out of
// scope) SQL surface.
package steps

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cucumber/godog"

	"github.com/skepadb/skepadb/internal/command"
	"github.com/skepadb/skepadb/internal/db"
	"github.com/skepadb/skepadb/internal/value"
)

// TestContext holds one scenario's open database and its last statement's
// outcome.
type TestContext struct {
	DB        *db.DB
	LastOut   string
	LastErr   error
}

func NewTestContext(database *db.DB) *TestContext {
	return &TestContext{DB: database}
}

// Reset points the context at a freshly opened database, clearing any
// outcome left over from a prior scenario.
func (tc *TestContext) Reset(database *db.DB) {
	tc.DB = database
	tc.LastOut = ""
	tc.LastErr = nil
}

func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	ctx.Step(`^I execute "([^"]*)"$`, tc.execute)
	ctx.Step(`^I run:$`, tc.executeLines)
	ctx.Step(`^the result should be "([^"]*)"$`, tc.resultShouldBe)
	ctx.Step(`^the error should contain "([^"]*)"$`, tc.errorShouldContain)
	ctx.Step(`^there should be no error$`, tc.noError)
}

func (tc *TestContext) execute(stmt string) error {
	c, err := parseStatement(stmt)
	if err != nil {
		return fmt.Errorf("parse %q: %w", stmt, err)
	}
	out, err := tc.DB.Execute(c)
	tc.LastOut, tc.LastErr = out, err
	return nil
}

func (tc *TestContext) executeLines(doc *godog.DocString) error {
	for _, line := range strings.Split(doc.Content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := tc.execute(line); err != nil {
			return err
		}
		if tc.LastErr != nil {
			return nil
		}
	}
	return nil
}

func (tc *TestContext) resultShouldBe(expected string) error {
	expected = strings.ReplaceAll(expected, "\\n", "\n")
	expected = strings.ReplaceAll(expected, "\\t", "\t")
	if tc.LastErr != nil {
		return fmt.Errorf("expected result %q, got error %q", expected, tc.LastErr.Error())
	}
	if tc.LastOut != expected {
		return fmt.Errorf("expected result %q, got %q", expected, tc.LastOut)
	}
	return nil
}

func (tc *TestContext) errorShouldContain(substr string) error {
	if tc.LastErr == nil {
		return fmt.Errorf("expected an error containing %q, got none (result %q)", substr, tc.LastOut)
	}
	if !strings.Contains(tc.LastErr.Error(), substr) {
		return fmt.Errorf("expected error containing %q, got %q", substr, tc.LastErr.Error())
	}
	return nil
}

func (tc *TestContext) noError() error {
	if tc.LastErr != nil {
		return fmt.Errorf("expected no error, got %q", tc.LastErr.Error())
	}
	return nil
}

var (
	reBegin      = regexp.MustCompile(`(?i)^begin$`)
	reCommit     = regexp.MustCompile(`(?i)^commit$`)
	reRollback   = regexp.MustCompile(`(?i)^rollback$`)
	reCreate     = regexp.MustCompile(`(?i)^create table (\w+) \((.*)\)$`)
	reInsert     = regexp.MustCompile(`(?i)^insert into (\w+) values \((.*)\)$`)
	reDeleteFrom = regexp.MustCompile(`(?i)^delete from (\w+) where (\w+)\s*=\s*(.+)$`)
	reUpdateSet  = regexp.MustCompile(`(?i)^update (\w+) set (\w+)\s*=\s*(.+?) where (\w+)\s*=\s*(.+)$`)
	reSelectAll  = regexp.MustCompile(`(?i)^select \* from (\w+)$`)
	reSelectJoin = regexp.MustCompile(`(?i)^select (.+) from (\w+) (left join|join) (\w+) on (\w+)\.(\w+)\s*=\s*(\w+)\.(\w+)(?: order by (\w+)\.(\w+) (asc|desc))?$`)
)

// parseStatement turns one test-script line into a Command. It supports
// exactly the handful of shapes used by the feature files in this
// package: BEGIN/COMMIT/ROLLBACK, a restricted CREATE TABLE, INSERT ...
// VALUES, single-predicate UPDATE/DELETE, SELECT *, and a two-table JOIN.
func parseStatement(stmt string) (command.Command, error) {
	stmt = strings.TrimSpace(strings.TrimSuffix(stmt, ";"))

	switch {
	case reBegin.MatchString(stmt):
		return command.Command{Kind: command.KindBegin}, nil
	case reCommit.MatchString(stmt):
		return command.Command{Kind: command.KindCommit}, nil
	case reRollback.MatchString(stmt):
		return command.Command{Kind: command.KindRollback}, nil
	}

	if m := reCreate.FindStringSubmatch(stmt); m != nil {
		return parseCreateTable(m[1], m[2])
	}
	if m := reInsert.FindStringSubmatch(stmt); m != nil {
		return parseInsert(m[1], m[2])
	}
	if m := reDeleteFrom.FindStringSubmatch(stmt); m != nil {
		return command.Command{
			Kind: command.KindDelete,
			Delete: command.Delete{
				Table: m[1],
				Where: command.Predicate(m[2], command.OpEq, command.ScalarOperand(unquote(m[3]))),
			},
		}, nil
	}
	if m := reUpdateSet.FindStringSubmatch(stmt); m != nil {
		return command.Command{
			Kind: command.KindUpdate,
			Update: command.Update{
				Table:       m[1],
				Assignments: []command.Assignment{{Column: m[2], Value: unquote(m[3])}},
				Where:       command.Predicate(m[4], command.OpEq, command.ScalarOperand(unquote(m[5]))),
			},
		}, nil
	}
	if m := reSelectAll.FindStringSubmatch(stmt); m != nil {
		return command.Command{Kind: command.KindSelect, Select: command.Select{Table: m[1]}}, nil
	}
	if m := reSelectJoin.FindStringSubmatch(stmt); m != nil {
		return parseSelectJoin(m)
	}

	return command.Command{}, fmt.Errorf("unsupported test statement shape: %q", stmt)
}

func parseCreateTable(table, body string) (command.Command, error) {
	ct := command.CreateTable{Table: table}
	for _, rawCol := range splitTopLevel(body) {
		col := strings.TrimSpace(rawCol)
		lower := strings.ToLower(col)
		if strings.HasPrefix(lower, "foreign key") {
			fk, err := parseForeignKey(col)
			if err != nil {
				return command.Command{}, err
			}
			ct.ForeignKeys = append(ct.ForeignKeys, fk)
			continue
		}

		fields := strings.Fields(col)
		if len(fields) < 2 {
			return command.Command{}, fmt.Errorf("malformed column definition %q", col)
		}
		dt, err := value.ParseDataType(fields[1])
		if err != nil {
			return command.Command{}, err
		}
		cd := command.ColumnDef{Name: fields[0], Type: dt}
		rest := strings.ToLower(strings.Join(fields[2:], " "))
		if strings.Contains(rest, "primary key") {
			cd.PrimaryKey = true
			ct.PrimaryKey = append(ct.PrimaryKey, cd.Name)
		}
		if strings.Contains(rest, "not null") {
			cd.NotNull = true
		}
		if strings.Contains(rest, "unique") {
			cd.Unique = true
		}
		ct.Columns = append(ct.Columns, cd)
	}
	return command.Command{Kind: command.KindCreateTable, CreateTable: ct}, nil
}

var reForeignKey = regexp.MustCompile(`(?i)^foreign key\((\w+)\) references (\w+)\((\w+)\)(.*)$`)

func parseForeignKey(def string) (command.ForeignKeyDef, error) {
	m := reForeignKey.FindStringSubmatch(def)
	if m == nil {
		return command.ForeignKeyDef{}, fmt.Errorf("malformed foreign key clause %q", def)
	}
	fk := command.ForeignKeyDef{
		Columns:    []string{m[1]},
		RefTable:   m[2],
		RefColumns: []string{m[3]},
	}
	tail := strings.ToLower(m[4])
	if strings.Contains(tail, "on delete cascade") {
		fk.OnDelete = command.ActionCascade
	} else if strings.Contains(tail, "on delete set null") {
		fk.OnDelete = command.ActionSetNull
	} else if strings.Contains(tail, "on delete no action") {
		fk.OnDelete = command.ActionNoAction
	} else {
		fk.OnDelete = command.ActionRestrict
	}
	if strings.Contains(tail, "on update cascade") {
		fk.OnUpdate = command.ActionCascade
	} else if strings.Contains(tail, "on update set null") {
		fk.OnUpdate = command.ActionSetNull
	} else if strings.Contains(tail, "on update no action") {
		fk.OnUpdate = command.ActionNoAction
	} else {
		fk.OnUpdate = command.ActionRestrict
	}
	return fk, nil
}

func parseInsert(table, body string) (command.Command, error) {
	var values []string
	for _, raw := range splitTopLevel(body) {
		values = append(values, unquote(strings.TrimSpace(raw)))
	}
	return command.Command{
		Kind:   command.KindInsert,
		Insert: command.Insert{Table: table, Values: values},
	}, nil
}

func parseSelectJoin(m []string) (command.Command, error) {
	items := parseSelectItems(m[1])
	joinType := command.JoinInner
	if strings.EqualFold(m[3], "left join") {
		joinType = command.JoinLeft
	}
	sel := command.Select{
		Table:   m[2],
		Columns: items,
		Join: &command.JoinClause{
			Table:       m[4],
			Type:        joinType,
			LeftColumn:  m[5] + "." + m[6],
			RightColumn: m[7] + "." + m[8],
		},
	}
	if m[9] != "" {
		sel.OrderBy = []command.OrderByItem{{Column: m[9] + "." + m[10], Asc: strings.EqualFold(m[11], "asc")}}
	}
	return command.Command{Kind: command.KindSelect, Select: sel}, nil
}

func parseSelectItems(s string) []command.SelectItem {
	var items []command.SelectItem
	for _, part := range strings.Split(s, ",") {
		items = append(items, command.SelectItem{Column: strings.TrimSpace(part)})
	}
	return items
}

// splitTopLevel splits on commas that are not inside parentheses or single
// quotes. Statements given as a double-quoted Gherkin step argument use
// single-quoted literals; double-quoted literals (as in doc-string steps)
// are not tracked, so a comma inside one splits the value.
func splitTopLevel(s string) []string {
	var out []string
	depth := 0
	inQuote := false
	start := 0
	for i, r := range s {
		switch r {
		case '\'':
			inQuote = !inQuote
		case '(':
			if !inQuote {
				depth++
			}
		case ')':
			if !inQuote {
				depth--
			}
		case ',':
			if depth == 0 && !inQuote {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
