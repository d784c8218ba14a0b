package query

import (
	"strings"
	"testing"

	"github.com/skepadb/skepadb/internal/command"
	"github.com/skepadb/skepadb/internal/value"
)

func TestExecuteRoutesCreateTableInsertAndSelect(t *testing.T) {
	cat, eng := newEnv(t)

	if _, err := Execute(cat, eng, command.Command{
		Kind: command.KindCreateTable,
		CreateTable: command.CreateTable{
			Table:      "users",
			Columns:    []command.ColumnDef{{Name: "id", Type: value.Int()}, {Name: "name", Type: value.Text()}},
			PrimaryKey: []string{"id"},
		},
	}); err != nil {
		t.Fatalf("Execute CreateTable: %v", err)
	}

	if _, err := Execute(cat, eng, command.Command{
		Kind:   command.KindInsert,
		Insert: command.Insert{Table: "users", Values: []string{"1", "ram"}},
	}); err != nil {
		t.Fatalf("Execute Insert: %v", err)
	}

	res, err := Execute(cat, eng, command.Command{
		Kind:   command.KindSelect,
		Select: command.Select{Table: "users"},
	})
	if err != nil {
		t.Fatalf("Execute Select: %v", err)
	}
	if !strings.Contains(res.Format(), "ram") {
		t.Errorf("expected select result to contain the inserted row, got %q", res.Format())
	}
}

func TestExecuteRejectsTransactionControlKinds(t *testing.T) {
	cat, eng := newEnv(t)
	for _, kind := range []command.Kind{command.KindBegin, command.KindCommit, command.KindRollback} {
		_, err := Execute(cat, eng, command.Command{Kind: kind})
		if err == nil {
			t.Errorf("expected kind %v to be rejected by the executor", kind)
		}
	}
}

func TestExecuteRejectsUnknownKind(t *testing.T) {
	cat, eng := newEnv(t)
	_, err := Execute(cat, eng, command.Command{Kind: command.Kind(999)})
	if err == nil {
		t.Error("expected an unknown command kind to error")
	}
}
