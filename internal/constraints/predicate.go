// Package constraints implements predicate evaluation, uniqueness/NOT NULL
// validation, and the referential-action engine that enforces and
// propagates foreign key constraints.
package constraints

import (
	"fmt"

	"github.com/skepadb/skepadb/internal/catalog"
	"github.com/skepadb/skepadb/internal/command"
	"github.com/skepadb/skepadb/internal/storage"
	"github.com/skepadb/skepadb/internal/value"
)

// MatchesWhere evaluates a WHERE tree against one row.
func MatchesWhere(where *command.WhereClause, row storage.Row, schema catalog.Schema) (bool, error) {
	if where == nil {
		return true, nil
	}
	switch where.Kind {
	case command.WhereBinary:
		left, err := MatchesWhere(where.Left, row, schema)
		if err != nil {
			return false, err
		}
		if where.BoolOp == command.BoolAnd && !left {
			return false, nil
		}
		if where.BoolOp == command.BoolOr && left {
			return true, nil
		}
		return MatchesWhere(where.Right, row, schema)
	default:
		return matchesPredicate(where, row, schema)
	}
}

func matchesPredicate(where *command.WhereClause, row storage.Row, schema catalog.Schema) (bool, error) {
	idx := schema.ColumnIndex(where.Column)
	if idx < 0 {
		return false, fmt.Errorf("%w: '%s'", catalog.ErrNoSuchColumn, where.Column)
	}
	col := schema.Columns[idx]
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
		v, err := value.ParseValue(col.Type, where.Value.Scalar)
		if err != nil {
			return false, err
		}
		return value.Equal(actual, v), nil
	case command.OpIn:
		for _, token := range where.Value.List {
			v, err := value.ParseValue(col.Type, token)
			if err != nil {
				return false, err
			}
			if value.Equal(actual, v) {
				return true, nil
			}
		}
		return false, nil
	case command.OpLike:
		if col.Type.Kind != value.KindText && col.Type.Kind != value.KindVarChar {
			return false, fmt.Errorf("LIKE is only valid for text|varchar columns")
		}
		return wildcardMatch(value.ValueToString(actual), where.Value.Scalar), nil
	case command.OpGt, command.OpLt, command.OpGte, command.OpLte:
		v, err := value.ParseValue(col.Type, where.Value.Scalar)
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

// ValidateWhereColumns walks a WHERE tree purely to resolve column names
// early, before any row is scanned.
func ValidateWhereColumns(where *command.WhereClause, schema catalog.Schema) error {
	if where == nil {
		return nil
	}
	if where.Kind == command.WhereBinary {
		if err := ValidateWhereColumns(where.Left, schema); err != nil {
			return err
		}
		return ValidateWhereColumns(where.Right, schema)
	}
	if schema.ColumnIndex(where.Column) < 0 {
		return fmt.Errorf("%w: '%s'", catalog.ErrNoSuchColumn, where.Column)
	}
	return nil
}

// SimpleEqFilter reports whether where is a single top-level "col = val"
// predicate eligible for index pushdown. It intentionally does not look
// inside a Binary node: pushdown only fires for a bare equality predicate.
func SimpleEqFilter(where *command.WhereClause) (column, val string, ok bool) {
	if where == nil || where.Kind != command.WhereLeaf || where.Op != command.OpEq {
		return "", "", false
	}
	return where.Column, where.Value.Scalar, true
}

// wildcardMatch implements SQL LIKE with * and ? wildcards via a full
// dynamic-programming boolean table.
func wildcardMatch(s, pattern string) bool {
	n, m := len(s), len(pattern)
	dp := make([][]bool, n+1)
	for i := range dp {
		dp[i] = make([]bool, m+1)
	}
	dp[0][0] = true
	for j := 1; j <= m; j++ {
		if pattern[j-1] == '*' {
			dp[0][j] = dp[0][j-1]
		}
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			switch pattern[j-1] {
			case '*':
				dp[i][j] = dp[i][j-1] || dp[i-1][j]
			case '?':
				dp[i][j] = dp[i-1][j-1]
			default:
				dp[i][j] = dp[i-1][j-1] && s[i-1] == pattern[j-1]
			}
		}
	}
	return dp[n][m]
}
