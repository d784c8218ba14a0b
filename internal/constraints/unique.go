package constraints

import (
	"fmt"
	"strings"

	"github.com/skepadb/skepadb/internal/catalog"
	"github.com/skepadb/skepadb/internal/storage"
)

var (
	ErrNotNullViolation  = fmt.Errorf("NOT NULL violation")
	ErrUniqueViolation   = fmt.Errorf("UNIQUE violation")
	ErrPrimaryKeyViolation = fmt.Errorf("PRIMARY KEY violation")
)

// UniqueConstraintGroups returns every distinct column-group that must be
// unique: the primary key, every UNIQUE(...) table constraint, and every
// column-level UNIQUE flag, deduplicated so a column declared unique both
// ways is only checked once.
func UniqueConstraintGroups(schema catalog.Schema) [][]string {
	seen := make(map[string]bool)
	var groups [][]string
	add := func(cols []string) {
		key := strings.Join(cols, ",")
		if seen[key] {
			return
		}
		seen[key] = true
		groups = append(groups, cols)
	}
	if len(schema.PrimaryKey) > 0 {
		add(schema.PrimaryKey)
	}
	for _, g := range schema.UniqueConstraints {
		add(g)
	}
	for _, col := range schema.Columns {
		if col.Unique {
			add([]string{col.Name})
		}
	}
	return groups
}

func resolveCols(schema catalog.Schema, cols []string) []int {
	idxs := make([]int, len(cols))
	for i, c := range cols {
		idxs[i] = schema.ColumnIndex(c)
	}
	return idxs
}

// ValidateUniqueConstraints checks a candidate row against every unique
// group over the table's existing rows, skipping the row at skipIdx (used
// when re-validating a row being updated in place). A group where any
// member column is NULL is exempt, matching standard SQL NULL semantics for
// uniqueness.
func ValidateUniqueConstraints(schema catalog.Schema, rows []storage.Row, candidate storage.Row, skipIdx int) error {
	pkKey := strings.Join(schema.PrimaryKey, ",")
	for _, group := range UniqueConstraintGroups(schema) {
		sentinel := ErrUniqueViolation
		if len(schema.PrimaryKey) > 0 && strings.Join(group, ",") == pkKey {
			sentinel = ErrPrimaryKeyViolation
		}
		idxs := resolveCols(schema, group)
		anyNull := false
		for _, idx := range idxs {
			if candidate.Values[idx].Null {
				anyNull = true
				break
			}
		}
		if anyNull {
			continue
		}
		key := storage.EncodeKey(candidate, idxs)
		for i, row := range rows {
			if i == skipIdx {
				continue
			}
			rowAnyNull := false
			for _, idx := range idxs {
				if row.Values[idx].Null {
					rowAnyNull = true
					break
				}
			}
			if rowAnyNull {
				continue
			}
			if storage.EncodeKey(row, idxs) == key {
				return fmt.Errorf("%w: (%s) on table", sentinel, strings.Join(group, ","))
			}
		}
	}
	return nil
}

// ValidateAllUniqueConstraints re-checks every row in rows against every
// unique group, used after an ALTER ADD UNIQUE or a bulk UPDATE.
func ValidateAllUniqueConstraints(schema catalog.Schema, rows []storage.Row) error {
	for i, row := range rows {
		if err := ValidateUniqueConstraints(schema, rows, row, i); err != nil {
			return err
		}
	}
	return nil
}

// ValidateNotNullColumns checks that no row has a NULL in a NOT NULL
// column, used both on INSERT/UPDATE and after ALTER ... SET NOT NULL.
func ValidateNotNullColumns(schema catalog.Schema, rows []storage.Row) error {
	for _, col := range schema.Columns {
		if !col.NotNull && !col.PrimaryKey {
			continue
		}
		idx := schema.ColumnIndex(col.Name)
		for _, row := range rows {
			if row.Values[idx].Null {
				return fmt.Errorf("%w: column '%s'", ErrNotNullViolation, col.Name)
			}
		}
	}
	return nil
}
