package query

import (
	"strings"
	"testing"

	"github.com/skepadb/skepadb/internal/catalog"
	"github.com/skepadb/skepadb/internal/command"
	"github.com/skepadb/skepadb/internal/storage"
	"github.com/skepadb/skepadb/internal/value"
)

func createParentChildWithFK(t *testing.T, onDelete, onUpdate command.ForeignKeyAction) (*catalog.Catalog, storage.Engine) {
	t.Helper()
	cat, eng := newEnv(t)

	parent := command.CreateTable{
		Table:      "p",
		Columns:    []command.ColumnDef{{Name: "id", Type: value.Int(), PrimaryKey: true}},
		PrimaryKey: []string{"id"},
	}
	if _, err := handleCreateTable(cat, eng, parent); err != nil {
		t.Fatalf("create p: %v", err)
	}
	child := command.CreateTable{
		Table: "c",
		Columns: []command.ColumnDef{
			{Name: "id", Type: value.Int(), PrimaryKey: true},
			{Name: "pid", Type: value.Int()},
		},
		PrimaryKey: []string{"id"},
		ForeignKeys: []command.ForeignKeyDef{
			{Columns: []string{"pid"}, RefTable: "p", RefColumns: []string{"id"}, OnDelete: onDelete, OnUpdate: onUpdate},
		},
	}
	if _, err := handleCreateTable(cat, eng, child); err != nil {
		t.Fatalf("create c: %v", err)
	}
	if _, err := handleCreateIndex(cat, eng, command.CreateIndex{Table: "c", Columns: []string{"pid"}}); err != nil {
		t.Fatalf("create index on c.pid: %v", err)
	}

	if _, err := handleInsert(cat, eng, command.Insert{Table: "p", Values: []string{"1"}}); err != nil {
		t.Fatalf("insert p: %v", err)
	}
	if _, err := handleInsert(cat, eng, command.Insert{Table: "c", Values: []string{"10", "1"}}); err != nil {
		t.Fatalf("insert c: %v", err)
	}
	return cat, eng
}

func eqWhere(col, val string) *command.WhereClause {
	return command.Predicate(col, command.OpEq, command.ScalarOperand(val))
}

func TestHandleInsertFillsUnsetColumnsWithNull(t *testing.T) {
	cat, eng := newEnv(t)
	createUsersTable(t, cat, eng)

	res, err := handleInsert(cat, eng, command.Insert{Table: "users", Columns: []string{"id"}, Values: []string{"1"}})
	if err != nil {
		t.Fatalf("handleInsert: %v", err)
	}
	if !strings.Contains(res.Message, "inserted 1 row") {
		t.Errorf("unexpected message: %q", res.Message)
	}

	rows, _ := eng.Scan("users")
	if len(rows) != 1 || !rows[0].Values[1].Null {
		t.Fatalf("expected email column to default to NULL, got %+v", rows)
	}
}

func TestHandleInsertRejectsNullInPrimaryKey(t *testing.T) {
	cat, eng := newEnv(t)
	createUsersTable(t, cat, eng)

	_, err := handleInsert(cat, eng, command.Insert{Table: "users", Columns: []string{"email"}, Values: []string{"a@x.com"}})
	if err == nil {
		t.Fatal("expected NULL primary key to be rejected")
	}
}

func TestHandleInsertRejectsDuplicatePrimaryKey(t *testing.T) {
	cat, eng := newEnv(t)
	createUsersTable(t, cat, eng)

	if _, err := handleInsert(cat, eng, command.Insert{Table: "users", Values: []string{"1", "a@x.com"}}); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	_, err := handleInsert(cat, eng, command.Insert{Table: "users", Values: []string{"1", "b@x.com"}})
	if err == nil {
		t.Fatal("expected duplicate primary key to be rejected")
	}
	if !strings.Contains(err.Error(), "PRIMARY KEY") {
		t.Errorf("expected error to mention PRIMARY KEY, got %q", err.Error())
	}
}

func TestHandleInsertRejectsDanglingForeignKey(t *testing.T) {
	cat, eng := createParentChildWithFK(t, command.ActionRestrict, command.ActionRestrict)

	_, err := handleInsert(cat, eng, command.Insert{Table: "c", Values: []string{"20", "404"}})
	if err == nil {
		t.Fatal("expected insert referencing a missing parent to fail")
	}
}

func TestSelectedRowPositionsIndexPushdownMatchesFullScan(t *testing.T) {
	cat, eng := newEnv(t)
	createUsersTable(t, cat, eng)
	if _, err := handleInsert(cat, eng, command.Insert{Table: "users", Values: []string{"1", "a@x.com"}}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := handleInsert(cat, eng, command.Insert{Table: "users", Values: []string{"2", "b@x.com"}}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	schema, _ := cat.Schema("users")
	rows, _ := eng.Scan("users")

	// Primary key pushdown.
	positions, err := selectedRowPositions(eng, cat, "users", schema, rows, eqWhere("id", "2"))
	if err != nil {
		t.Fatalf("selectedRowPositions (pk): %v", err)
	}
	if len(positions) != 1 || rows[positions[0]].Values[0].IntVal != 2 {
		t.Fatalf("expected pk pushdown to find row id=2, got %+v", positions)
	}

	// Full scan fallback via a non-eq predicate.
	positions, err = selectedRowPositions(eng, cat, "users", schema, rows, command.Predicate("id", command.OpGt, command.ScalarOperand("1")))
	if err != nil {
		t.Fatalf("selectedRowPositions (scan): %v", err)
	}
	if len(positions) != 1 || rows[positions[0]].Values[0].IntVal != 2 {
		t.Fatalf("expected scan fallback to find row id=2, got %+v", positions)
	}
}

func TestHandleUpdateAppliesAssignmentsAndRevalidates(t *testing.T) {
	cat, eng := newEnv(t)
	createUsersTable(t, cat, eng)
	if _, err := handleInsert(cat, eng, command.Insert{Table: "users", Values: []string{"1", "a@x.com"}}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	res, err := handleUpdate(cat, eng, command.Update{
		Table:       "users",
		Assignments: []command.Assignment{{Column: "email", Value: "new@x.com"}},
		Where:       eqWhere("id", "1"),
	})
	if err != nil {
		t.Fatalf("handleUpdate: %v", err)
	}
	if !strings.Contains(res.Message, "updated 1 rows") {
		t.Errorf("unexpected message: %q", res.Message)
	}
	rows, _ := eng.Scan("users")
	if rows[0].Values[1].Str != "new@x.com" {
		t.Fatalf("expected email to be updated, got %+v", rows[0])
	}
}

func TestHandleUpdateNoMatchIsNoop(t *testing.T) {
	cat, eng := newEnv(t)
	createUsersTable(t, cat, eng)

	res, err := handleUpdate(cat, eng, command.Update{
		Table:       "users",
		Assignments: []command.Assignment{{Column: "email", Value: "x@x.com"}},
		Where:       eqWhere("id", "404"),
	})
	if err != nil {
		t.Fatalf("handleUpdate: %v", err)
	}
	if !strings.Contains(res.Message, "updated 0 rows") {
		t.Errorf("unexpected message: %q", res.Message)
	}
}

func TestHandleUpdateCascadesToChildren(t *testing.T) {
	cat, eng := createParentChildWithFK(t, command.ActionRestrict, command.ActionCascade)

	_, err := handleUpdate(cat, eng, command.Update{
		Table:       "p",
		Assignments: []command.Assignment{{Column: "id", Value: "2"}},
		Where:       eqWhere("id", "1"),
	})
	if err != nil {
		t.Fatalf("handleUpdate: %v", err)
	}
	rows, _ := eng.Scan("c")
	if len(rows) != 1 || rows[0].Values[1].IntVal != 2 {
		t.Fatalf("expected child pid to follow cascading update, got %+v", rows)
	}
}

func TestHandleDeleteRemovesMatchedRows(t *testing.T) {
	cat, eng := newEnv(t)
	createUsersTable(t, cat, eng)
	if _, err := handleInsert(cat, eng, command.Insert{Table: "users", Values: []string{"1", "a@x.com"}}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	res, err := handleDelete(cat, eng, command.Delete{Table: "users", Where: eqWhere("id", "1")})
	if err != nil {
		t.Fatalf("handleDelete: %v", err)
	}
	if !strings.Contains(res.Message, "deleted 1 rows") {
		t.Errorf("unexpected message: %q", res.Message)
	}
	rows, _ := eng.Scan("users")
	if len(rows) != 0 {
		t.Errorf("expected row to be removed, got %d remaining", len(rows))
	}
}

func TestHandleDeleteBlockedByRestrict(t *testing.T) {
	cat, eng := createParentChildWithFK(t, command.ActionRestrict, command.ActionRestrict)

	_, err := handleDelete(cat, eng, command.Delete{Table: "p", Where: eqWhere("id", "1")})
	if err == nil {
		t.Fatal("expected RESTRICT to block deleting a referenced parent")
	}
}

func TestHandleDeleteCascadesToChildren(t *testing.T) {
	cat, eng := createParentChildWithFK(t, command.ActionCascade, command.ActionRestrict)

	if _, err := handleDelete(cat, eng, command.Delete{Table: "p", Where: eqWhere("id", "1")}); err != nil {
		t.Fatalf("handleDelete: %v", err)
	}
	rows, _ := eng.Scan("c")
	if len(rows) != 0 {
		t.Errorf("expected cascading delete to remove the child row, got %d remaining", len(rows))
	}
}
