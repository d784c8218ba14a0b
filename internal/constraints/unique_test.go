package constraints

import (
	"errors"
	"strings"
	"testing"

	"github.com/skepadb/skepadb/internal/catalog"
	"github.com/skepadb/skepadb/internal/storage"
	"github.com/skepadb/skepadb/internal/value"
)

func schemaWithUnique() catalog.Schema {
	return catalog.Schema{
		Columns: []catalog.Column{
			{Name: "id", Type: value.Int(), PrimaryKey: true},
			{Name: "email", Type: value.Text(), Unique: true},
		},
		PrimaryKey: []string{"id"},
	}
}

func TestUniqueConstraintGroupsDeduplicates(t *testing.T) {
	schema := schemaWithUnique()
	schema.UniqueConstraints = [][]string{{"email"}}
	groups := UniqueConstraintGroups(schema)
	if len(groups) != 2 {
		t.Fatalf("expected pk group + deduplicated email group, got %d: %+v", len(groups), groups)
	}
}

func TestValidateUniqueConstraintsRejectsDuplicate(t *testing.T) {
	schema := schemaWithUnique()
	rows := []storage.Row{
		{ID: 1, Values: []value.Value{value.IntValue(1), value.TextValue("a@x.com")}},
	}
	candidate := storage.Row{ID: 2, Values: []value.Value{value.IntValue(2), value.TextValue("a@x.com")}}

	err := ValidateUniqueConstraints(schema, rows, candidate, -1)
	if !errors.Is(err, ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation, got %v", err)
	}
}

func TestValidateUniqueConstraintsRejectsDuplicatePrimaryKey(t *testing.T) {
	schema := schemaWithUnique()
	rows := []storage.Row{
		{ID: 1, Values: []value.Value{value.IntValue(1), value.TextValue("a@x.com")}},
	}
	candidate := storage.Row{ID: 2, Values: []value.Value{value.IntValue(1), value.TextValue("b@x.com")}}

	err := ValidateUniqueConstraints(schema, rows, candidate, -1)
	if !errors.Is(err, ErrPrimaryKeyViolation) {
		t.Fatalf("expected ErrPrimaryKeyViolation, got %v", err)
	}
	if !strings.Contains(err.Error(), "PRIMARY KEY") {
		t.Errorf("expected error text to mention PRIMARY KEY, got %q", err.Error())
	}
}

func TestValidateUniqueConstraintsAllowsMultipleNulls(t *testing.T) {
	schema := schemaWithUnique()
	rows := []storage.Row{
		{ID: 1, Values: []value.Value{value.IntValue(1), value.NullValue(value.KindText)}},
	}
	candidate := storage.Row{ID: 2, Values: []value.Value{value.IntValue(2), value.NullValue(value.KindText)}}

	if err := ValidateUniqueConstraints(schema, rows, candidate, -1); err != nil {
		t.Errorf("expected multiple NULLs to be exempt from uniqueness, got %v", err)
	}
}

func TestValidateUniqueConstraintsSkipsOwnIndex(t *testing.T) {
	schema := schemaWithUnique()
	rows := []storage.Row{
		{ID: 1, Values: []value.Value{value.IntValue(1), value.TextValue("a@x.com")}},
	}
	candidate := rows[0]

	if err := ValidateUniqueConstraints(schema, rows, candidate, 0); err != nil {
		t.Errorf("expected re-validating a row in place to skip itself, got %v", err)
	}
}

func TestValidateNotNullColumns(t *testing.T) {
	schema := schemaWithUnique()
	schema.Columns[1].NotNull = true

	ok := []storage.Row{{ID: 1, Values: []value.Value{value.IntValue(1), value.TextValue("a@x.com")}}}
	if err := ValidateNotNullColumns(schema, ok); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	bad := []storage.Row{{ID: 1, Values: []value.Value{value.IntValue(1), value.NullValue(value.KindText)}}}
	if err := ValidateNotNullColumns(schema, bad); !errors.Is(err, ErrNotNullViolation) {
		t.Errorf("expected ErrNotNullViolation, got %v", err)
	}
}

func TestValidateNotNullColumnsEnforcesPrimaryKey(t *testing.T) {
	schema := schemaWithUnique()
	bad := []storage.Row{{ID: 1, Values: []value.Value{value.NullValue(value.KindInt), value.TextValue("a@x.com")}}}
	if err := ValidateNotNullColumns(schema, bad); !errors.Is(err, ErrNotNullViolation) {
		t.Errorf("expected primary key column to be implicitly NOT NULL, got %v", err)
	}
}
