package query

import (
	"fmt"
	"math/big"

	"github.com/skepadb/skepadb/internal/command"
	"github.com/skepadb/skepadb/internal/storage"
	"github.com/skepadb/skepadb/internal/value"
)

const allGroupKey = "__all__"

func evaluateGroupedSelect(rs rowset, c command.Select) (Result, error) {
	if len(c.Columns) == 0 {
		return Result{}, fmt.Errorf("GROUP BY or aggregates require explicit SELECT columns")
	}

	groupIdxs := make([]int, len(c.GroupBy))
	for i, col := range c.GroupBy {
		idx, err := resolveColumnIndex(rs, col)
		if err != nil {
			return Result{}, err
		}
		groupIdxs[i] = idx
	}
	inGroup := make(map[int]bool, len(groupIdxs))
	for _, idx := range groupIdxs {
		inGroup[idx] = true
	}

	type itemPlan struct {
		isAgg   bool
		colIdx  int // plain column, or aggregate arg index (-1 for count(*))
		label   string
		fn      command.AggregateFn
		distinct bool
	}
	plans := make([]itemPlan, len(c.Columns))
	for i, it := range c.Columns {
		label := it.Alias
		if it.Aggregate != command.AggNone {
			argIdx := -1
			if it.Arg != "*" {
				idx, err := resolveColumnIndex(rs, it.Arg)
				if err != nil {
					return Result{}, err
				}
				argIdx = idx
			}
			if label == "" {
				label = aggregateLabel(it)
			}
			plans[i] = itemPlan{isAgg: true, colIdx: argIdx, label: label, fn: it.Aggregate, distinct: it.Distinct}
			continue
		}
		idx, err := resolveColumnIndex(rs, it.Column)
		if err != nil {
			return Result{}, err
		}
		if !inGroup[idx] {
			return Result{}, fmt.Errorf("Column '%s' must appear in GROUP BY or be used in an aggregate function", it.Column)
		}
		if label == "" {
			label = it.Column
		}
		plans[i] = itemPlan{isAgg: false, colIdx: idx, label: label}
	}

	order := []string{}
	buckets := map[string][]int{} // group key -> row indices into rs.rows

	for i, row := range rs.rows {
		key := allGroupKey
		if len(groupIdxs) > 0 {
			vals := make([]value.Value, len(groupIdxs))
			for j, idx := range groupIdxs {
				vals[j] = row.Values[idx]
			}
			key = encodeTuple(vals)
		}
		if _, ok := buckets[key]; !ok {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], i)
	}

	if len(buckets) == 0 {
		allAgg := true
		for _, p := range plans {
			if !p.isAgg {
				allAgg = false
				break
			}
		}
		if len(groupIdxs) == 0 && allAgg {
			order = []string{allGroupKey}
			buckets[allGroupKey] = nil
		}
	}

	var outRows [][]value.Value
	for _, key := range order {
		indices := buckets[key]
		vals := make([]value.Value, len(plans))
		for i, p := range plans {
			if !p.isAgg {
				vals[i] = rs.rows[indices[0]].Values[p.colIdx]
				continue
			}
			v, err := evaluateSingleAggregate(p.fn, rs, indices, p.colIdx, p.distinct)
			if err != nil {
				return Result{}, err
			}
			vals[i] = v
		}
		outRows = append(outRows, vals)
	}

	labels := make([]string, len(plans))
	for i, p := range plans {
		labels[i] = p.label
	}

	if c.Having != nil {
		var filtered [][]value.Value
		havingRS := rowset{columns: labels}
		for _, row := range outRows {
			ok, err := matchesWhereRowset(c.Having, havingRS, storageRowOf(row))
			if err != nil {
				return Result{}, err
			}
			if ok {
				filtered = append(filtered, row)
			}
		}
		outRows = filtered
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

func aggregateLabel(it command.SelectItem) string {
	name := map[command.AggregateFn]string{
		command.AggCount: "count",
		command.AggSum:   "sum",
		command.AggAvg:   "avg",
		command.AggMin:   "min",
		command.AggMax:   "max",
	}[it.Aggregate]
	if it.Distinct {
		return fmt.Sprintf("%s(distinct %s)", name, it.Arg)
	}
	return fmt.Sprintf("%s(%s)", name, it.Arg)
}

func evaluateSingleAggregate(fn command.AggregateFn, rs rowset, indices []int, colIdx int, distinct bool) (value.Value, error) {
	if fn == command.AggCount {
		if colIdx < 0 {
			return value.BigIntValueFromInt64(int64(len(indices))), nil
		}
		seen := make(map[string]bool)
		count := int64(0)
		for _, i := range indices {
			v := rs.rows[i].Values[colIdx]
			if v.Null {
				continue
			}
			if distinct {
				key := value.ValueToString(v)
				if seen[key] {
					continue
				}
				seen[key] = true
			}
			count++
		}
		return value.BigIntValueFromInt64(count), nil
	}

	var nonNull []value.Value
	seen := make(map[string]bool)
	var sourceKind value.Kind = value.KindInt
	for _, i := range indices {
		v := rs.rows[i].Values[colIdx]
		if v.Null {
			continue
		}
		sourceKind = v.Kind
		if distinct {
			key := value.ValueToString(v)
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		nonNull = append(nonNull, v)
	}

	if len(nonNull) == 0 {
		if fn == command.AggSum || fn == command.AggAvg {
			return value.NullValue(value.KindDecimal), nil
		}
		return value.NullValue(sourceKind), nil
	}

	switch fn {
	case command.AggSum:
		return sumValues(sourceKind, nonNull)
	case command.AggAvg:
		return avgValues(sourceKind, nonNull)
	case command.AggMin:
		return minMax(nonNull, true)
	case command.AggMax:
		return minMax(nonNull, false)
	default:
		return value.Value{}, fmt.Errorf("unknown aggregate function")
	}
}

func sumValues(kind value.Kind, vals []value.Value) (value.Value, error) {
	switch kind {
	case value.KindInt:
		var total int64
		for _, v := range vals {
			next := total + v.IntVal
			if (v.IntVal > 0 && next < total) || (v.IntVal < 0 && next > total) {
				return value.Value{}, fmt.Errorf("sum(int) overflow")
			}
			total = next
		}
		return value.IntValue(total), nil
	case value.KindBigInt:
		total := big.NewInt(0)
		for _, v := range vals {
			total.Add(total, v.Big)
		}
		if total.Cmp(value.MinBigInt) < 0 || total.Cmp(value.MaxBigInt) > 0 {
			return value.Value{}, fmt.Errorf("sum(bigint) overflow")
		}
		return value.BigIntValue(total), nil
	case value.KindDecimal:
		total := value.DecZero()
		for _, v := range vals {
			total = total.Add(v.Dec)
		}
		return value.DecimalValue(total), nil
	default:
		return value.Value{}, fmt.Errorf("sum is only valid for int|bigint|decimal columns")
	}
}

func avgValues(kind value.Kind, vals []value.Value) (value.Value, error) {
	var total value.Dec
	var existingScale uint32
	switch kind {
	case value.KindInt:
		total = value.DecZero()
		for _, v := range vals {
			total = total.Add(value.DecFromInt64(v.IntVal))
		}
	case value.KindBigInt:
		total = value.DecZero()
		for _, v := range vals {
			total = total.Add(value.DecFromBigIntScale(v.Big, 0))
		}
	case value.KindDecimal:
		total = value.DecZero()
		for _, v := range vals {
			total = total.Add(v.Dec)
			if v.Dec.Scale > existingScale {
				existingScale = v.Dec.Scale
			}
		}
	default:
		return value.Value{}, fmt.Errorf("avg is only valid for int|bigint|decimal columns")
	}
	minScale := existingScale
	if minScale < 6 {
		minScale = 6
	}
	return value.DecimalValue(total.DivCount(int64(len(vals)), minScale)), nil
}

func minMax(vals []value.Value, wantMin bool) (value.Value, error) {
	best := vals[0]
	for _, v := range vals[1:] {
		cmp, err := value.CompareForMinMax(v, best)
		if err != nil {
			return value.Value{}, err
		}
		if (wantMin && cmp < 0) || (!wantMin && cmp > 0) {
			best = v
		}
	}
	return best, nil
}

func storageRowOf(vals []value.Value) storage.Row {
	return storage.Row{Values: vals}
}
