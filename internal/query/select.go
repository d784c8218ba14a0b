package query

import (
	"fmt"
	"strings"

	"github.com/skepadb/skepadb/internal/catalog"
	"github.com/skepadb/skepadb/internal/command"
	"github.com/skepadb/skepadb/internal/constraints"
	"github.com/skepadb/skepadb/internal/storage"
	"github.com/skepadb/skepadb/internal/value"
)

func handleSelect(cat *catalog.Catalog, eng storage.Engine, c command.Select) (Result, error) {
	schema, err := cat.Schema(c.Table)
	if err != nil {
		return Result{}, err
	}
	rows, err := eng.Scan(c.Table)
	if err != nil {
		return Result{}, err
	}

	var rs rowset

	if c.Join != nil {
		rightSchema, err := cat.Schema(c.Join.Table)
		if err != nil {
			return Result{}, err
		}
		rightRows, err := eng.Scan(c.Join.Table)
		if err != nil {
			return Result{}, err
		}
		rs, err = buildJoinRows(c.Table, schema, rows, c.Join, rightSchema, rightRows)
		if err != nil {
			return Result{}, err
		}
		if c.Where != nil {
			var filtered []storage.Row
			for _, row := range rs.rows {
				ok, err := matchesWhereRowset(c.Where, rs, row)
				if err != nil {
					return Result{}, err
				}
				if ok {
					filtered = append(filtered, row)
				}
			}
			rs.rows = filtered
		}
	} else {
		if err := constraints.ValidateWhereColumns(c.Where, schema); err != nil {
			return Result{}, err
		}
		positions, err := selectedRowPositions(eng, cat, c.Table, schema, rows, c.Where)
		if err != nil {
			return Result{}, err
		}
		filtered := make([]storage.Row, len(positions))
		for i, p := range positions {
			filtered[i] = rows[p]
		}
		rs = rowset{columns: schema.ColumnNames(), rows: filtered}
	}

	if len(c.GroupBy) > 0 || hasAggregate(c.Columns) {
		return evaluateGroupedSelect(rs, c)
	}
	if c.Having != nil {
		return Result{}, fmt.Errorf("HAVING requires GROUP BY or an aggregate")
	}
	return evaluateProjectedSelect(rs, c)
}

func hasAggregate(items []command.SelectItem) bool {
	for _, it := range items {
		if it.Aggregate != command.AggNone {
			return true
		}
	}
	return false
}

// matchesWhereRowset evaluates a WHERE/HAVING tree against a row drawn from
// a column-name-only rowset, inferring each operand's kind from the row's
// own typed value rather than from a catalog schema.
func matchesWhereRowset(where *command.WhereClause, rs rowset, row storage.Row) (bool, error) {
	if where == nil {
		return true, nil
	}
	if where.Kind == command.WhereBinary {
		left, err := matchesWhereRowset(where.Left, rs, row)
		if err != nil {
			return false, err
		}
		if where.BoolOp == command.BoolAnd && !left {
			return false, nil
		}
		if where.BoolOp == command.BoolOr && left {
			return true, nil
		}
		return matchesWhereRowset(where.Right, rs, row)
	}

	idx, err := resolveColumnIndex(rs, where.Column)
	if err != nil {
		return false, err
	}
	actual := row.Values[idx]

	switch where.Op {
	case command.OpIsNull:
		return actual.Null, nil
	case command.OpIsNotNull:
		return !actual.Null, nil
	}
	if actual.Null {
		return false, nil
	}

	switch where.Op {
	case command.OpEq:
		v, err := value.ParseScalarForKind(actual.Kind, where.Value.Scalar)
		if err != nil {
			return false, err
		}
		return value.Equal(actual, v), nil
	case command.OpIn:
		for _, token := range where.Value.List {
			v, err := value.ParseScalarForKind(actual.Kind, token)
			if err != nil {
				return false, err
			}
			if value.Equal(actual, v) {
				return true, nil
			}
		}
		return false, nil
	case command.OpLike:
		return false, fmt.Errorf("LIKE is only valid for text|varchar columns")
	case command.OpGt, command.OpLt, command.OpGte, command.OpLte:
		v, err := value.ParseScalarForKind(actual.Kind, where.Value.Scalar)
		if err != nil {
			return false, err
		}
		cmp, err := value.CompareOrder(actual, v)
		if err != nil {
			return false, err
		}
		switch where.Op {
		case command.OpGt:
			return cmp > 0, nil
		case command.OpLt:
			return cmp < 0, nil
		case command.OpGte:
			return cmp >= 0, nil
		default:
			return cmp <= 0, nil
		}
	default:
		return false, fmt.Errorf("unsupported operator")
	}
}

// projectionColumns resolves the final output labels and source indices for
// a non-aggregated SELECT: SELECT * (or an empty column list) passes the
// whole rowset through; otherwise each item is a plain column, optionally
// aliased.
func projectionColumns(rs rowset, items []command.SelectItem) (labels []string, idxs []int, err error) {
	if len(items) == 0 {
		labels = append([]string(nil), rs.columns...)
		idxs = make([]int, len(rs.columns))
		for i := range idxs {
			idxs[i] = i
		}
		return labels, idxs, nil
	}
	for _, it := range items {
		idx, err := resolveColumnIndex(rs, it.Column)
		if err != nil {
			return nil, nil, err
		}
		label := it.Column
		if it.Alias != "" {
			label = it.Alias
		}
		labels = append(labels, label)
		idxs = append(idxs, idx)
	}
	return labels, idxs, nil
}

func evaluateProjectedSelect(rs rowset, c command.Select) (Result, error) {
	labels, idxs, err := projectionColumns(rs, c.Columns)
	if err != nil {
		return Result{}, err
	}

	outRows := make([][]value.Value, len(rs.rows))
	for i, row := range rs.rows {
		vals := make([]value.Value, len(idxs))
		for j, idx := range idxs {
			vals[j] = row.Values[idx]
		}
		outRows[i] = vals
	}

	if c.Distinct {
		outRows = dedupeRows(outRows)
	}

	if len(c.OrderBy) > 0 {
		if err := sortRows(outRows, labels, c.Columns, c.OrderBy); err != nil {
			return Result{}, err
		}
	}

	outRows = applyOffsetLimit(outRows, c.Offset, c.Limit)

	return Result{Header: labels, Rows: renderRows(outRows)}, nil
}

func renderRows(rows [][]value.Value) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = value.ValueToString(v)
		}
		out[i] = cells
	}
	return out
}

func dedupeRows(rows [][]value.Value) [][]value.Value {
	seen := make(map[string]bool, len(rows))
	var out [][]value.Value
	for _, row := range rows {
		key := encodeTuple(row)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, row)
	}
	return out
}

func encodeTuple(vals []value.Value) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = value.ValueToString(v)
	}
	return strings.Join(parts, "\x1f")
}

// sortRows sorts in place, resolving each ORDER BY column either against the
// output labels directly or, failing that, against an alias map built from
// the SELECT list (so "ORDER BY total" resolves against "count(*) as total").
func sortRows(rows [][]value.Value, labels []string, items []command.SelectItem, orderBy []command.OrderByItem) error {
	aliasIdx := make(map[string]int)
	for i, it := range items {
		if it.Alias != "" {
			aliasIdx[it.Alias] = i
		}
	}
	resolved := make([]struct {
		idx int
		asc bool
	}, len(orderBy))
	for i, ob := range orderBy {
		idx := -1
		for j, l := range labels {
			if l == ob.Column {
				idx = j
				break
			}
		}
		if idx < 0 {
			if j, ok := aliasIdx[ob.Column]; ok {
				idx = j
			}
		}
		if idx < 0 {
			return fmt.Errorf("Unknown column '%s'", ob.Column)
		}
		resolved[i] = struct {
			idx int
			asc bool
		}{idx, ob.Asc}
	}

	stableSort(rows, func(a, b []value.Value) int {
		for _, r := range resolved {
			c := value.CompareForOrder(a[r.idx], b[r.idx], r.asc)
			if c != 0 {
				return c
			}
		}
		return 0
	})
	return nil
}

// stableSort is a tiny insertion-based stable sort; result sets here are
// small enough that O(n^2) is an acceptable, dependency-free choice.
func stableSort(rows [][]value.Value, cmp func(a, b []value.Value) int) {
	for i := 1; i < len(rows); i++ {
		for j := i; j > 0 && cmp(rows[j-1], rows[j]) > 0; j-- {
			rows[j-1], rows[j] = rows[j], rows[j-1]
		}
	}
}

func applyOffsetLimit(rows [][]value.Value, offset, limit *int) [][]value.Value {
	if offset != nil {
		n := *offset
		if n >= len(rows) {
			return nil
		}
		if n > 0 {
			rows = rows[n:]
		}
	}
	if limit != nil {
		n := *limit
		if n < len(rows) {
			rows = rows[:n]
		}
	}
	return rows
}
