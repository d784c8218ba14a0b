package query

import (
	"fmt"

	"github.com/skepadb/skepadb/internal/catalog"
	"github.com/skepadb/skepadb/internal/command"
	"github.com/skepadb/skepadb/internal/constraints"
	"github.com/skepadb/skepadb/internal/storage"
	"github.com/skepadb/skepadb/internal/value"
)

func handleInsert(cat *catalog.Catalog, eng storage.Engine, c command.Insert) (Result, error) {
	schema, err := cat.Schema(c.Table)
	if err != nil {
		return Result{}, err
	}

	targetCols := c.Columns
	if len(targetCols) == 0 {
		targetCols = schema.ColumnNames()
	}
	if len(targetCols) != len(c.Values) {
		return Result{}, fmt.Errorf("expected %d values, got %d", len(targetCols), len(c.Values))
	}

	row := storage.Row{Values: make([]value.Value, len(schema.Columns))}
	set := make([]bool, len(schema.Columns))
	for i, colName := range targetCols {
		idx := schema.ColumnIndex(colName)
		if idx < 0 {
			return Result{}, fmt.Errorf("%w: '%s'", catalog.ErrNoSuchColumn, colName)
		}
		v, err := value.ParseValue(schema.Columns[idx].Type, c.Values[i])
		if err != nil {
			return Result{}, err
		}
		row.Values[idx] = v
		set[idx] = true
	}
	for i, col := range schema.Columns {
		if !set[i] {
			row.Values[i] = value.NullValue(col.Type.Kind)
		}
		if row.Values[i].Null && (col.NotNull || col.PrimaryKey) {
			return Result{}, fmt.Errorf("%w: column '%s'", constraints.ErrNotNullViolation, col.Name)
		}
	}

	rows, err := eng.Scan(c.Table)
	if err != nil {
		return Result{}, err
	}
	if err := constraints.ValidateUniqueConstraints(schema, rows, row, -1); err != nil {
		return Result{}, err
	}
	if err := constraints.ValidateOutgoingForeignKeys(cat, eng, schema, row); err != nil {
		return Result{}, err
	}

	if _, err := eng.InsertRow(c.Table, row.Values); err != nil {
		return Result{}, err
	}
	return Result{Message: fmt.Sprintf("inserted 1 row into %s", c.Table)}, nil
}

// selectedRowPositions resolves the row positions a WHERE clause matches,
// taking the PK/unique/secondary index pushdown path for a bare top-level
// equality predicate and falling back to a full scan otherwise.
func selectedRowPositions(eng storage.Engine, cat *catalog.Catalog, table string, schema catalog.Schema, rows []storage.Row, where *command.WhereClause) ([]int, error) {
	if col, valStr, ok := constraints.SimpleEqFilter(where); ok {
		if v, err := value.ParseValue(mustColType(schema, col), valStr); err == nil {
			key := storage.EncodeKeyParts([]value.Value{v})
			if equalSingle(schema.PrimaryKey, col) {
				pos, found, err := eng.LookupPKRowIndex(table, schema, padSingle(schema, col, v))
				if err == nil && found {
					return []int{pos}, nil
				}
				if err == nil && !found {
					return nil, nil
				}
			}
			for _, g := range schema.UniqueConstraints {
				if equalSingle(g, col) {
					pos, found, err := eng.LookupUniqueRowIndex(table, g, key)
					if err == nil {
						if found {
							return []int{pos}, nil
						}
						return nil, nil
					}
				}
			}
			for _, g := range schema.SecondaryIndexes {
				if equalSingle(g, col) {
					positions, found, err := eng.LookupSecondaryRowIndices(table, g, key)
					if err == nil {
						if found {
							return positions, nil
						}
						return nil, nil
					}
				}
			}
		}
	}

	var out []int
	for i, row := range rows {
		ok, err := constraints.MatchesWhere(where, row, schema)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, i)
		}
	}
	return out, nil
}

func mustColType(schema catalog.Schema, col string) value.DataType {
	c, _ := schema.Column(col)
	return c.Type
}

func equalSingle(group []string, col string) bool {
	return len(group) == 1 && group[0] == col
}

func padSingle(schema catalog.Schema, col string, v value.Value) []value.Value {
	out := make([]value.Value, len(schema.Columns))
	out[schema.ColumnIndex(col)] = v
	return out
}

func handleUpdate(cat *catalog.Catalog, eng storage.Engine, c command.Update) (Result, error) {
	schema, err := cat.Schema(c.Table)
	if err != nil {
		return Result{}, err
	}
	if err := constraints.ValidateWhereColumns(c.Where, schema); err != nil {
		return Result{}, err
	}

	rows, err := eng.Scan(c.Table)
	if err != nil {
		return Result{}, err
	}
	positions, err := selectedRowPositions(eng, cat, c.Table, schema, rows, c.Where)
	if err != nil {
		return Result{}, err
	}
	if len(positions) == 0 {
		return Result{Message: fmt.Sprintf("updated 0 rows in %s", c.Table)}, nil
	}

	newRows := make([]storage.Row, len(rows))
	copy(newRows, rows)
	matchSet := make(map[int]bool, len(positions))
	for _, p := range positions {
		matchSet[p] = true
	}

	type change struct {
		idx    int
		oldRow storage.Row
		newRow storage.Row
	}
	var changes []change

	for _, p := range positions {
		oldRow := rows[p]
		updated := oldRow
		updated.Values = append([]value.Value(nil), oldRow.Values...)
		for _, a := range c.Assignments {
			idx := schema.ColumnIndex(a.Column)
			if idx < 0 {
				return Result{}, fmt.Errorf("%w: '%s'", catalog.ErrNoSuchColumn, a.Column)
			}
			v, err := value.ParseValue(schema.Columns[idx].Type, a.Value)
			if err != nil {
				return Result{}, err
			}
			if v.Null && (schema.Columns[idx].NotNull || schema.Columns[idx].PrimaryKey) {
				return Result{}, fmt.Errorf("%w: column '%s'", constraints.ErrNotNullViolation, a.Column)
			}
			updated.Values[idx] = v
		}
		newRows[p] = updated
		changes = append(changes, change{idx: p, oldRow: oldRow, newRow: updated})
	}

	for _, ch := range changes {
		if err := constraints.ValidateUniqueConstraints(schema, newRows, ch.newRow, ch.idx); err != nil {
			return Result{}, err
		}
		if err := constraints.ValidateOutgoingForeignKeys(cat, eng, schema, ch.newRow); err != nil {
			return Result{}, err
		}
		if err := constraints.ValidateRestrictOnParentUpdate(cat, eng, schema, c.Table, ch.oldRow, ch.newRow); err != nil {
			return Result{}, err
		}
	}

	oldIdx := make([]int, len(newRows))
	for i := range newRows {
		oldIdx[i] = i
	}
	if err := eng.ReplaceRowsWithAlignment(c.Table, newRows, oldIdx); err != nil {
		return Result{}, err
	}

	for _, ch := range changes {
		if err := constraints.ApplyOnUpdateCascade(cat, eng, schema, c.Table, ch.oldRow, ch.newRow); err != nil {
			return Result{}, err
		}
	}

	newSchema, _ := cat.Schema(c.Table)
	if err := eng.RebuildIndexes(c.Table, newSchema); err != nil {
		return Result{}, err
	}

	return Result{Message: fmt.Sprintf("updated %d rows in %s", len(positions), c.Table)}, nil
}

func handleDelete(cat *catalog.Catalog, eng storage.Engine, c command.Delete) (Result, error) {
	schema, err := cat.Schema(c.Table)
	if err != nil {
		return Result{}, err
	}
	if err := constraints.ValidateWhereColumns(c.Where, schema); err != nil {
		return Result{}, err
	}

	rows, err := eng.Scan(c.Table)
	if err != nil {
		return Result{}, err
	}
	positions, err := selectedRowPositions(eng, cat, c.Table, schema, rows, c.Where)
	if err != nil {
		return Result{}, err
	}
	if len(positions) == 0 {
		return Result{Message: fmt.Sprintf("deleted 0 rows from %s", c.Table)}, nil
	}
	toDelete := make(map[int]bool, len(positions))
	for _, p := range positions {
		toDelete[p] = true
	}

	for _, p := range positions {
		if err := constraints.ValidateRestrictOnParentDelete(cat, eng, schema, c.Table, rows[p]); err != nil {
			return Result{}, err
		}
	}

	var kept []storage.Row
	var oldIdx []int
	for i, row := range rows {
		if toDelete[i] {
			continue
		}
		kept = append(kept, row)
		oldIdx = append(oldIdx, i)
	}
	if err := eng.ReplaceRowsWithAlignment(c.Table, kept, oldIdx); err != nil {
		return Result{}, err
	}

	for _, p := range positions {
		if err := constraints.ApplyOnDeleteCascade(cat, eng, schema, c.Table, rows[p]); err != nil {
			return Result{}, err
		}
	}

	newSchema, _ := cat.Schema(c.Table)
	if err := eng.RebuildIndexes(c.Table, newSchema); err != nil {
		return Result{}, err
	}

	return Result{Message: fmt.Sprintf("deleted %d rows from %s", len(positions), c.Table)}, nil
}
