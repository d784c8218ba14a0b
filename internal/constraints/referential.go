package constraints

import (
	"fmt"

	"github.com/skepadb/skepadb/internal/catalog"
	"github.com/skepadb/skepadb/internal/command"
	"github.com/skepadb/skepadb/internal/storage"
	"github.com/skepadb/skepadb/internal/value"
)

var ErrForeignKeyViolation = fmt.Errorf("FOREIGN KEY violation")

func tupleEq(a, b []value.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !value.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// incomingFK pairs a child table with the specific foreign key on it that
// references the parent table being queried.
type incomingFK struct {
	ChildTable string
	FK         catalog.ForeignKeyDef
}

// IncomingForeignKeys returns every foreign key in the catalog that
// references table.
func IncomingForeignKeys(cat *catalog.Catalog, table string) []incomingFK {
	var out []incomingFK
	for _, name := range cat.TableNames() {
		schema, err := cat.Schema(name)
		if err != nil {
			continue
		}
		for _, fk := range schema.ForeignKeys {
			if fk.RefTable == table {
				out = append(out, incomingFK{ChildTable: name, FK: fk})
			}
		}
	}
	return out
}

// fkParentExists reports whether a parent row matching fkVals exists in
// ref table. It takes the PK fast path when the FK is single-column and the
// referenced columns are the parent's primary key or a unique constraint,
// falling back to a full scan otherwise.
func fkParentExists(eng storage.Engine, refSchema catalog.Schema, refTable string, refCols []string, fkVals []value.Value) (bool, error) {
	if len(refCols) == 1 {
		key := storage.EncodeKeyParts(fkVals)
		if equalCols(refSchema.PrimaryKey, refCols) {
			_, ok, err := eng.LookupPKRowIndex(refTable, refSchema, padToSchema(refSchema, refCols, fkVals))
			if err == nil && ok {
				return true, nil
			}
		}
		for _, g := range refSchema.UniqueConstraints {
			if equalCols(g, refCols) {
				_, ok, err := eng.LookupUniqueRowIndex(refTable, g, key)
				if err != nil {
					return false, err
				}
				if ok {
					return true, nil
				}
			}
		}
	}
	rows, err := eng.Scan(refTable)
	if err != nil {
		return false, err
	}
	idxs := resolveCols(refSchema, refCols)
	for _, row := range rows {
		rowVals := make([]value.Value, len(idxs))
		for i, idx := range idxs {
			rowVals[i] = row.Values[idx]
		}
		if tupleEq(rowVals, fkVals) {
			return true, nil
		}
	}
	return false, nil
}

func padToSchema(schema catalog.Schema, cols []string, vals []value.Value) []value.Value {
	out := make([]value.Value, len(schema.Columns))
	for i, c := range cols {
		idx := schema.ColumnIndex(c)
		out[idx] = vals[i]
	}
	return out
}

func equalCols(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ValidateOutgoingForeignKeys checks that a candidate row's foreign key
// columns reference an existing parent row, unless any FK column is NULL.
func ValidateOutgoingForeignKeys(cat *catalog.Catalog, eng storage.Engine, schema catalog.Schema, row storage.Row) error {
	for _, fk := range schema.ForeignKeys {
		idxs := resolveCols(schema, fk.Columns)
		anyNull := false
		vals := make([]value.Value, len(idxs))
		for i, idx := range idxs {
			vals[i] = row.Values[idx]
			if vals[i].Null {
				anyNull = true
			}
		}
		if anyNull {
			continue
		}
		refSchema, err := cat.Schema(fk.RefTable)
		if err != nil {
			return err
		}
		exists, err := fkParentExists(eng, refSchema, fk.RefTable, fk.RefColumns, vals)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: '%s' references missing row in '%s'", ErrForeignKeyViolation, schema.ColumnNames(), fk.RefTable)
		}
	}
	return nil
}

// ValidateAllForeignKeys re-validates every row's outgoing foreign keys,
// used after ALTER ... ADD FOREIGN KEY.
func ValidateAllForeignKeys(cat *catalog.Catalog, eng storage.Engine, schema catalog.Schema, rows []storage.Row) error {
	for _, row := range rows {
		if err := ValidateOutgoingForeignKeys(cat, eng, schema, row); err != nil {
			return err
		}
	}
	return nil
}

// fkChildReferencesParent reports whether any row in childTable references
// parentVals through fk.
func fkChildReferencesParent(eng storage.Engine, childSchema catalog.Schema, childTable string, fk catalog.ForeignKeyDef, parentVals []value.Value) ([]int, error) {
	idxs := resolveCols(childSchema, fk.Columns)
	if len(fk.Columns) == 1 {
		key := storage.EncodeKeyParts(parentVals)
		if positions, ok, err := eng.LookupSecondaryRowIndices(childTable, fk.Columns, key); err == nil && ok {
			return positions, nil
		}
		if equalCols(childSchema.PrimaryKey, fk.Columns) {
			if pos, ok, err := eng.LookupPKRowIndex(childTable, childSchema, padToSchema(childSchema, fk.Columns, parentVals)); err == nil && ok {
				return []int{pos}, nil
			}
		}
		for _, g := range childSchema.UniqueConstraints {
			if equalCols(g, fk.Columns) {
				if pos, ok, err := eng.LookupUniqueRowIndex(childTable, g, key); err == nil && ok {
					return []int{pos}, nil
				}
			}
		}
	}
	rows, err := eng.Scan(childTable)
	if err != nil {
		return nil, err
	}
	var matches []int
	for i, row := range rows {
		anyNull := false
		vals := make([]value.Value, len(idxs))
		for j, idx := range idxs {
			vals[j] = row.Values[idx]
			if vals[j].Null {
				anyNull = true
			}
		}
		if anyNull {
			continue
		}
		if tupleEq(vals, parentVals) {
			matches = append(matches, i)
		}
	}
	return matches, nil
}

func refKeyVals(schema catalog.Schema, row storage.Row, cols []string) []value.Value {
	idxs := resolveCols(schema, cols)
	vals := make([]value.Value, len(idxs))
	for i, idx := range idxs {
		vals[i] = row.Values[idx]
	}
	return vals
}

// ValidateRestrictOnParentDelete errors if deleting parentRow would orphan
// a child row under a RESTRICT (or the restrict side of a mixed policy)
// foreign key.
func ValidateRestrictOnParentDelete(cat *catalog.Catalog, eng storage.Engine, parentSchema catalog.Schema, parentTable string, parentRow storage.Row) error {
	for _, inc := range IncomingForeignKeys(cat, parentTable) {
		if inc.FK.OnDelete != command.ActionRestrict {
			continue
		}
		childSchema, err := cat.Schema(inc.ChildTable)
		if err != nil {
			return err
		}
		parentVals := refKeyVals(parentSchema, parentRow, inc.FK.RefColumns)
		matches, err := fkChildReferencesParent(eng, childSchema, inc.ChildTable, inc.FK, parentVals)
		if err != nil {
			return err
		}
		if len(matches) > 0 {
			return fmt.Errorf("%w: '%s' is referenced by '%s'", ErrForeignKeyViolation, parentTable, inc.ChildTable)
		}
	}
	return nil
}

// ValidateRestrictOnParentUpdate errors if updating a parent row's
// referenced columns would orphan a RESTRICT-protected child, but only for
// rows whose referenced tuple actually changed.
func ValidateRestrictOnParentUpdate(cat *catalog.Catalog, eng storage.Engine, parentSchema catalog.Schema, parentTable string, oldRow, newRow storage.Row) error {
	for _, inc := range IncomingForeignKeys(cat, parentTable) {
		if inc.FK.OnUpdate != command.ActionRestrict {
			continue
		}
		oldVals := refKeyVals(parentSchema, oldRow, inc.FK.RefColumns)
		newVals := refKeyVals(parentSchema, newRow, inc.FK.RefColumns)
		if tupleEq(oldVals, newVals) {
			continue
		}
		childSchema, err := cat.Schema(inc.ChildTable)
		if err != nil {
			return err
		}
		matches, err := fkChildReferencesParent(eng, childSchema, inc.ChildTable, inc.FK, oldVals)
		if err != nil {
			return err
		}
		if len(matches) > 0 {
			return fmt.Errorf("%w: '%s' is referenced by '%s'", ErrForeignKeyViolation, parentTable, inc.ChildTable)
		}
	}
	return nil
}

// applySetNullTo nulls out a child row's FK columns in place.
func applySetNullTo(childSchema catalog.Schema, row *storage.Row, fk catalog.ForeignKeyDef) {
	for _, col := range fk.Columns {
		idx := childSchema.ColumnIndex(col)
		row.Values[idx] = value.NullValue(row.Values[idx].Kind)
	}
}

// ApplyOnDeleteCascade recursively applies every incoming foreign key's
// ON DELETE action for a deleted parent row: SET NULL is applied to all
// affected children before CASCADE is recursed into, so a row targeted by
// both policies via different keys is nulled before being removed.
func ApplyOnDeleteCascade(cat *catalog.Catalog, eng storage.Engine, parentSchema catalog.Schema, parentTable string, parentRow storage.Row) error {
	incoming := IncomingForeignKeys(cat, parentTable)

	for _, inc := range incoming {
		if inc.FK.OnDelete != command.ActionSetNull {
			continue
		}
		if err := applyChildMutation(eng, cat, inc, parentSchema, parentRow, true, func(childSchema catalog.Schema, row *storage.Row) bool {
			applySetNullTo(childSchema, row, inc.FK)
			return true
		}); err != nil {
			return err
		}
	}

	for _, inc := range incoming {
		if inc.FK.OnDelete != command.ActionCascade {
			continue
		}
		childSchema, err := cat.Schema(inc.ChildTable)
		if err != nil {
			return err
		}
		parentVals := refKeyVals(parentSchema, parentRow, inc.FK.RefColumns)
		matches, err := fkChildReferencesParent(eng, childSchema, inc.ChildTable, inc.FK, parentVals)
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			continue
		}
		rows, err := eng.Scan(inc.ChildTable)
		if err != nil {
			return err
		}
		toDelete := make(map[int]bool, len(matches))
		for _, m := range matches {
			toDelete[m] = true
		}
		var kept []storage.Row
		var oldIdx []int
		for i, row := range rows {
			if toDelete[i] {
				if err := ValidateRestrictOnParentDelete(cat, eng, childSchema, inc.ChildTable, row); err != nil {
					return err
				}
				if err := ApplyOnDeleteCascade(cat, eng, childSchema, inc.ChildTable, row); err != nil {
					return err
				}
				continue
			}
			kept = append(kept, row)
			oldIdx = append(oldIdx, i)
		}
		if err := eng.ReplaceRowsWithAlignment(inc.ChildTable, kept, oldIdx); err != nil {
			return err
		}
	}
	return nil
}

// applyChildMutation finds every child row referencing parentRow through
// inc.FK and rewrites it with mutate, persisting the change. When validate
// is set (the SET NULL paths), the mutated rows are re-checked against the
// child table's own unique constraints and outgoing foreign keys before
// they are persisted, since nulling a foreign key column can surface a
// unique collision or leave another of the row's outgoing foreign keys
// dangling.
func applyChildMutation(eng storage.Engine, cat *catalog.Catalog, inc incomingFK, parentSchema catalog.Schema, parentRow storage.Row, validate bool, mutate func(catalog.Schema, *storage.Row) bool) error {
	childSchema, err := cat.Schema(inc.ChildTable)
	if err != nil {
		return err
	}
	parentVals := refKeyVals(parentSchema, parentRow, inc.FK.RefColumns)
	matches, err := fkChildReferencesParent(eng, childSchema, inc.ChildTable, inc.FK, parentVals)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return nil
	}
	rows, err := eng.Scan(inc.ChildTable)
	if err != nil {
		return err
	}
	matchSet := make(map[int]bool, len(matches))
	for _, m := range matches {
		matchSet[m] = true
	}
	oldIdx := make([]int, len(rows))
	for i, row := range rows {
		oldIdx[i] = i
		if matchSet[i] {
			mutate(childSchema, &rows[i])
		}
	}
	if validate {
		if err := ValidateAllUniqueConstraints(childSchema, rows); err != nil {
			return err
		}
		if err := ValidateAllForeignKeys(cat, eng, childSchema, rows); err != nil {
			return err
		}
	}
	return eng.ReplaceRowsWithAlignment(inc.ChildTable, rows, oldIdx)
}

// ApplyOnUpdateCascade applies every incoming foreign key's ON UPDATE
// action when a parent row's referenced columns change from oldRow to
// newRow, again applying SET NULL before recursing into CASCADE updates.
func ApplyOnUpdateCascade(cat *catalog.Catalog, eng storage.Engine, parentSchema catalog.Schema, parentTable string, oldRow, newRow storage.Row) error {
	incoming := IncomingForeignKeys(cat, parentTable)

	for _, inc := range incoming {
		oldVals := refKeyVals(parentSchema, oldRow, inc.FK.RefColumns)
		newVals := refKeyVals(parentSchema, newRow, inc.FK.RefColumns)
		if tupleEq(oldVals, newVals) {
			continue
		}
		if inc.FK.OnUpdate != command.ActionSetNull {
			continue
		}
		if err := applyChildMutation(eng, cat, inc, parentSchema, oldRow, true, func(childSchema catalog.Schema, row *storage.Row) bool {
			applySetNullTo(childSchema, row, inc.FK)
			return true
		}); err != nil {
			return err
		}
	}

	for _, inc := range incoming {
		oldVals := refKeyVals(parentSchema, oldRow, inc.FK.RefColumns)
		newVals := refKeyVals(parentSchema, newRow, inc.FK.RefColumns)
		if tupleEq(oldVals, newVals) {
			continue
		}
		if inc.FK.OnUpdate != command.ActionCascade {
			continue
		}
		childSchema, err := cat.Schema(inc.ChildTable)
		if err != nil {
			return err
		}
		matches, err := fkChildReferencesParent(eng, childSchema, inc.ChildTable, inc.FK, oldVals)
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			continue
		}
		rows, err := eng.Scan(inc.ChildTable)
		if err != nil {
			return err
		}
		matchSet := make(map[int]bool, len(matches))
		for _, m := range matches {
			matchSet[m] = true
		}
		idxs := resolveCols(childSchema, inc.FK.Columns)
		oldIdx := make([]int, len(rows))
		type changedChildRow struct {
			old storage.Row
			new storage.Row
		}
		var changed []changedChildRow
		for i := range rows {
			oldIdx[i] = i
			if !matchSet[i] {
				continue
			}
			before := rows[i]
			before.Values = append([]value.Value(nil), rows[i].Values...)
			for j, idx := range idxs {
				rows[i].Values[idx] = newVals[j]
			}
			changed = append(changed, changedChildRow{old: before, new: rows[i]})
		}
		if err := eng.ReplaceRowsWithAlignment(inc.ChildTable, rows, oldIdx); err != nil {
			return err
		}
		for _, pair := range changed {
			if err := ApplyOnUpdateCascade(cat, eng, childSchema, inc.ChildTable, pair.old, pair.new); err != nil {
				return err
			}
		}
	}
	return nil
}

// ValidateNoActionConstraints scans the full catalog for foreign keys whose
// DELETE or UPDATE action is NO ACTION, checked at commit time rather than
// at the moment of each individual mutation.
func ValidateNoActionConstraints(cat *catalog.Catalog, eng storage.Engine) error {
	for _, name := range cat.TableNames() {
		schema, err := cat.Schema(name)
		if err != nil {
			return err
		}
		for _, fk := range schema.ForeignKeys {
			if fk.OnDelete != command.ActionNoAction && fk.OnUpdate != command.ActionNoAction {
				continue
			}
			refSchema, err := cat.Schema(fk.RefTable)
			if err != nil {
				return err
			}
			rows, err := eng.Scan(name)
			if err != nil {
				return err
			}
			idxs := resolveCols(schema, fk.Columns)
			for _, row := range rows {
				anyNull := false
				vals := make([]value.Value, len(idxs))
				for i, idx := range idxs {
					vals[i] = row.Values[idx]
					if vals[i].Null {
						anyNull = true
					}
				}
				if anyNull {
					continue
				}
				exists, err := fkParentExists(eng, refSchema, fk.RefTable, fk.RefColumns, vals)
				if err != nil {
					return err
				}
				if !exists {
					return fmt.Errorf("FOREIGN KEY NO ACTION violation: '%s' references '%s'", name, fk.RefTable)
				}
			}
		}
	}
	return nil
}
