package translate

import (
	"errors"
	"testing"
	"time"

	"github.com/shibukawa/snapodata"
	"github.com/shibukawa/snapodata/expr"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evaluate(t *testing.T, n expr.Node) *expr.Constant {
	t.Helper()

	evaluator, err := NewPartialEvaluator()
	require.NoError(t, err)

	result, err := evaluator.Evaluate(n, NewRewriteMap())
	require.NoError(t, err)

	c, ok := result.(*expr.Constant)
	require.True(t, ok, "expected a constant, got %s", expr.String(result))

	return c
}

func TestPartialEvaluator_Fold(t *testing.T) {
	created := time.Date(2024, time.March, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		node     expr.Node
		expected any
	}{
		{"integer arithmetic", expr.Add(expr.Const(2), expr.Mul(expr.Const(3), expr.Const(4))), int32(14)},
		{"mixed arithmetic", expr.Add(expr.Const(1), expr.Const(0.5)), 1.5},
		{"long arithmetic", expr.Sub(expr.Const(int64(10)), expr.Const(int64(3))), int64(7)},
		{"modulus", expr.Mod(expr.Const(10), expr.Const(3)), int32(1)},
		{"comparison", expr.Gt(expr.Const(3), expr.Const(2)), true},
		{"logical", expr.And(expr.Const(true), expr.Not(expr.Const(false))), true},
		{"negate", expr.Negate(expr.Const(5)), int32(-5)},
		{"string equality", expr.Eq(expr.Const("a"), expr.Const("a")), true},
		{"toupper", expr.Func("toupper", expr.Const("abc")), "ABC"},
		{"tolower", expr.Func("tolower", expr.Const("ABC")), "abc"},
		{"trim", expr.Func("trim", expr.Const("  a ")), "a"},
		{"length counts characters", expr.Func("length", expr.Const("héllo")), int32(5)},
		{"indexof", expr.Func("indexof", expr.Const("hello"), expr.Const("l")), int32(2)},
		{"contains", expr.Func("contains", expr.Const("hello"), expr.Const("ell")), true},
		{"startswith", expr.Func("startswith", expr.Const("hello"), expr.Const("he")), true},
		{"endswith", expr.Func("endswith", expr.Const("hello"), expr.Const("x")), false},
		{"year", expr.Func("year", expr.Const(created)), int32(2024)},
		{"month", expr.Func("month", expr.Const(created)), int32(3)},
		{"day", expr.Func("day", expr.Const(created)), int32(15)},
		{"in", expr.Func("in", expr.Const(2), expr.Const([]int{1, 2, 3})), true},
		{"captured struct", expr.Prop(expr.Const(struct{ Limit int }{Limit: 30}), "Limit"), 30},
		{"captured map", expr.Prop(expr.Const(map[string]any{"k": "v"}), "k"), "v"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := evaluate(t, tt.node)
			assert.Equal(t, tt.expected, c.Value)
		})
	}
}

func TestPartialEvaluator_Decimal(t *testing.T) {
	c := evaluate(t, expr.Add(expr.Const(decimal.RequireFromString("1.10")), expr.Const(decimal.RequireFromString("2.05"))))

	d, ok := c.Value.(decimal.Decimal)
	require.True(t, ok)
	assert.True(t, d.Equal(decimal.RequireFromString("3.15")), "got %s", d)
	assert.Equal(t, expr.KindDecimal, c.Type().Kind)

	c = evaluate(t, expr.Gt(expr.Const(decimal.RequireFromString("1.5")), expr.Const(1)))
	assert.Equal(t, true, c.Value)
}

func TestPartialEvaluator_NullLifting(t *testing.T) {
	sum := evaluate(t, expr.Add(expr.Null(expr.Int32Type), expr.Const(1)))
	assert.Nil(t, sum.Value)
	assert.True(t, sum.Type().Nullable)

	eq := evaluate(t, expr.Eq(expr.Null(expr.StringType), expr.Const("a")))
	assert.Equal(t, false, eq.Value)

	ne := evaluate(t, expr.Ne(expr.Null(expr.StringType), expr.Const("a")))
	assert.Equal(t, true, ne.Value)

	lower := evaluate(t, expr.Func("tolower", expr.Null(expr.StringType)))
	assert.Nil(t, lower.Value)
}

func TestPartialEvaluator_LeavesOpenExpressions(t *testing.T) {
	evaluator, err := NewPartialEvaluator()
	require.NoError(t, err)

	query := documents().Where(func(x expr.Node) expr.Node {
		return expr.And(
			expr.Gt(expr.Prop(x, "IntProp"), expr.Add(expr.Const(10), expr.Const(5))),
			expr.Func("contains", expr.Prop(x, "Name"), expr.Func("tolower", expr.Const("AB"))),
		)
	}).Node()

	rewrites := NewRewriteMap()

	result, err := evaluator.Evaluate(query, rewrites)
	require.NoError(t, err)
	assert.Equal(t, `Where(Documents, x => ((x.IntProp gt 15) and contains(x.Name, "ab")))`, expr.String(result))
	assert.Equal(t, 2, rewrites.Len())

	for _, entry := range rewrites.Entries() {
		assert.Equal(t, StageEvaluate, entry.Stage)

		resolved, ok := rewrites.Lookup(entry.Original.ID())
		require.True(t, ok)
		assert.Same(t, entry.Replacement, resolved)
	}
}

func TestPartialEvaluator_Unchanged(t *testing.T) {
	evaluator, err := NewPartialEvaluator()
	require.NoError(t, err)

	query := documents().Where(intPropGt(1)).Node()

	result, err := evaluator.Evaluate(query, nil)
	require.NoError(t, err)
	assert.Same(t, query, result)
}

func TestPartialEvaluator_Errors(t *testing.T) {
	tests := []struct {
		name string
		node expr.Node
	}{
		{"integer division by zero", expr.Div(expr.Const(1), expr.Const(0))},
		{"decimal division by zero", expr.Div(expr.Const(decimal.NewFromInt(1)), expr.Const(decimal.Zero))},
		{"missing field", expr.Prop(expr.Const(struct{ A int }{}), "B")},
		{"int32 overflow", expr.Mul(expr.Const(int32(2147483647)), expr.Const(int32(2)))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evaluator, err := NewPartialEvaluator()
			require.NoError(t, err)

			_, err = evaluator.Evaluate(tt.node, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, snapodata.ErrEvaluation))
		})
	}
}

func TestPartialEvaluator_ProgramCache(t *testing.T) {
	evaluator, err := NewPartialEvaluator()
	require.NoError(t, err)

	for i := range 3 {
		_, err := evaluator.Evaluate(expr.Add(expr.Const(i), expr.Const(1)), nil)
		require.NoError(t, err)
	}

	_, err = evaluator.Evaluate(expr.Sub(expr.Const(3), expr.Const(1)), nil)
	require.NoError(t, err)

	assert.Len(t, evaluator.programs, 2)
}
