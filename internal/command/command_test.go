package command

import (
	"testing"

	"github.com/skepadb/skepadb/internal/value"
)

func TestTableName(t *testing.T) {
	cases := []struct {
		c    Command
		want string
	}{
		{Command{Kind: KindCreateTable, CreateTable: CreateTable{Table: "t"}}, "t"},
		{Command{Kind: KindInsert, Insert: Insert{Table: "users"}}, "users"},
		{Command{Kind: KindUpdate, Update: Update{Table: "users"}}, "users"},
		{Command{Kind: KindDelete, Delete: Delete{Table: "users"}}, "users"},
		{Command{Kind: KindSelect, Select: Select{Table: "users"}}, "users"},
		{Command{Kind: KindBegin}, ""},
	}
	for _, tc := range cases {
		if got := tc.c.TableName(); got != tc.want {
			t.Errorf("TableName() = %q, want %q", got, tc.want)
		}
	}
}

func TestIsDDL(t *testing.T) {
	if !(Command{Kind: KindCreateTable}).IsDDL() {
		t.Error("expected CreateTable to be DDL")
	}
	if (Command{Kind: KindInsert}).IsDDL() {
		t.Error("expected Insert not to be DDL")
	}
}

func TestIsWrite(t *testing.T) {
	for _, k := range []Kind{KindInsert, KindUpdate, KindDelete} {
		if !(Command{Kind: k}).IsWrite() {
			t.Errorf("expected kind %v to be a write", k)
		}
	}
	if (Command{Kind: KindSelect}).IsWrite() {
		t.Error("expected Select not to be a write")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	orig := Command{
		Kind: KindCreateTable,
		CreateTable: CreateTable{
			Table: "users",
			Columns: []ColumnDef{
				{Name: "id", Type: value.Int(), PrimaryKey: true},
				{Name: "name", Type: value.Text(), NotNull: true},
			},
			PrimaryKey: []string{"id"},
			ForeignKeys: []ForeignKeyDef{
				{Columns: []string{"dept_id"}, RefTable: "departments", RefColumns: []string{"id"}, OnDelete: ActionCascade},
			},
		},
	}

	data, err := Encode(orig)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Kind != orig.Kind || got.CreateTable.Table != orig.CreateTable.Table {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, orig)
	}
	if len(got.CreateTable.Columns) != 2 || got.CreateTable.Columns[0].Name != "id" {
		t.Fatalf("unexpected columns after round trip: %+v", got.CreateTable.Columns)
	}
	if got.CreateTable.ForeignKeys[0].OnDelete != ActionCascade {
		t.Fatalf("expected OnDelete to survive round trip, got %v", got.CreateTable.ForeignKeys[0].OnDelete)
	}
}

func TestWhereClauseConstructors(t *testing.T) {
	leaf := Predicate("id", OpEq, ScalarOperand("1"))
	if leaf.Kind != WhereLeaf || leaf.Column != "id" {
		t.Fatalf("unexpected leaf: %+v", leaf)
	}
	and := Binary(leaf, BoolAnd, Predicate("name", OpEq, ScalarOperand("ram")))
	if and.Kind != WhereBinary || and.BoolOp != BoolAnd {
		t.Fatalf("unexpected binary node: %+v", and)
	}
}
