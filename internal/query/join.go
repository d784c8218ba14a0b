package query

import (
	"fmt"
	"strings"

	"github.com/skepadb/skepadb/internal/catalog"
	"github.com/skepadb/skepadb/internal/command"
	"github.com/skepadb/skepadb/internal/storage"
	"github.com/skepadb/skepadb/internal/value"
)

// rowset is a lightweight projection-agnostic row set used internally by
// the SELECT pipeline: a column-name list plus matching rows. After a join,
// every column name is qualified as "table.col" regardless of whether it
// collides with the other side, mirroring how join output has always been
// addressed.
type rowset struct {
	columns []string
	rows    []storage.Row
}

func singleTableRowset(table string, schema catalog.Schema, rows []storage.Row) rowset {
	return rowset{columns: schema.ColumnNames(), rows: rows}
}

// resolveColumnIndex resolves a (possibly unqualified) column name against
// a rowset's column list. An unqualified name may suffix-match a qualified
// "table.col" entry, but must do so unambiguously.
func resolveColumnIndex(rs rowset, name string) (int, error) {
	for i, c := range rs.columns {
		if c == name {
			return i, nil
		}
	}
	if !strings.Contains(name, ".") {
		var found []int
		for i, c := range rs.columns {
			if strings.HasSuffix(c, "."+name) {
				found = append(found, i)
			}
		}
		if len(found) == 1 {
			return found[0], nil
		}
		if len(found) > 1 {
			return -1, fmt.Errorf("Ambiguous column '%s'", name)
		}
	}
	return -1, fmt.Errorf("Unknown column '%s'", name)
}

// resolveJoinOperand resolves one side of an ON clause's equality against
// either the left or right table's own (unqualified) schema.
func resolveJoinOperand(token string, leftSchema, rightSchema catalog.Schema, leftTable, rightTable string) (side int, idx int, err error) {
	if table, col, ok := strings.Cut(token, "."); ok {
		switch table {
		case leftTable:
			if i := leftSchema.ColumnIndex(col); i >= 0 {
				return 0, i, nil
			}
			return 0, 0, fmt.Errorf("%w: '%s'", catalog.ErrNoSuchColumn, token)
		case rightTable:
			if i := rightSchema.ColumnIndex(col); i >= 0 {
				return 1, i, nil
			}
			return 0, 0, fmt.Errorf("%w: '%s'", catalog.ErrNoSuchColumn, token)
		default:
			return 0, 0, fmt.Errorf("unknown table '%s'", table)
		}
	}
	li := leftSchema.ColumnIndex(token)
	ri := rightSchema.ColumnIndex(token)
	if li >= 0 && ri >= 0 {
		return 0, 0, fmt.Errorf("Ambiguous column '%s' (try %s.%s or %s.%s)", token, leftTable, token, rightTable, token)
	}
	if li >= 0 {
		return 0, li, nil
	}
	if ri >= 0 {
		return 1, ri, nil
	}
	return 0, 0, fmt.Errorf("%w: '%s'", catalog.ErrNoSuchColumn, token)
}

// buildJoinRows evaluates a single equality join between the left table's
// rows and the right table, producing a row set whose columns are every
// left column followed by every right column, each qualified "table.col".
func buildJoinRows(leftTable string, leftSchema catalog.Schema, leftRows []storage.Row, join *command.JoinClause, rightSchema catalog.Schema, rightRows []storage.Row) (rowset, error) {
	leftSide, leftIdx, err := resolveJoinOperand(join.LeftColumn, leftSchema, rightSchema, leftTable, join.Table)
	if err != nil {
		return rowset{}, err
	}
	rightSide, rightIdx, err := resolveJoinOperand(join.RightColumn, leftSchema, rightSchema, leftTable, join.Table)
	if err != nil {
		return rowset{}, err
	}
	// Normalize so leftKeyIdx always reads from leftRows and rightKeyIdx
	// always reads from rightRows, regardless of which operand named which
	// side in the ON clause.
	var leftKeyIdx, rightKeyIdx int
	if leftSide == 0 {
		leftKeyIdx = leftIdx
	} else {
		leftKeyIdx = rightIdx
	}
	if rightSide == 1 {
		rightKeyIdx = rightIdx
	} else {
		rightKeyIdx = leftIdx
	}

	columns := make([]string, 0, len(leftSchema.Columns)+len(rightSchema.Columns))
	for _, c := range leftSchema.Columns {
		columns = append(columns, leftTable+"."+c.Name)
	}
	for _, c := range rightSchema.Columns {
		columns = append(columns, join.Table+"."+c.Name)
	}

	index := make(map[string][]storage.Row)
	for _, r := range rightRows {
		k := r.Values[rightKeyIdx]
		if k.Null {
			continue
		}
		key := storage.EncodeKeyParts([]value.Value{k})
		index[key] = append(index[key], r)
	}

	var out []storage.Row
	nullRight := make([]value.Value, len(rightSchema.Columns))
	for i, c := range rightSchema.Columns {
		nullRight[i] = value.NullValue(c.Type.Kind)
	}

	for _, lr := range leftRows {
		k := lr.Values[leftKeyIdx]
		var matches []storage.Row
		if !k.Null {
			key := storage.EncodeKeyParts([]value.Value{k})
			matches = index[key]
		}
		if len(matches) == 0 {
			if join.Type == command.JoinLeft {
				combined := append(append([]value.Value(nil), lr.Values...), nullRight...)
				out = append(out, storage.Row{ID: lr.ID, Values: combined})
			}
			continue
		}
		for _, rr := range matches {
			combined := append(append([]value.Value(nil), lr.Values...), rr.Values...)
			out = append(out, storage.Row{ID: lr.ID, Values: combined})
		}
	}

	return rowset{columns: columns, rows: out}, nil
}
