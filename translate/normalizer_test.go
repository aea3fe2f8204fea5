package translate

import (
	"errors"
	"testing"

	"github.com/shibukawa/snapodata/expr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizer_Rules(t *testing.T) {
	tests := []struct {
		name     string
		query    *expr.Query
		expected string
	}{
		{
			name:     "double negation",
			query:    documents().Where(func(x expr.Node) expr.Node { return expr.Not(expr.Not(expr.Prop(x, "Active"))) }),
			expected: "Where(Documents, x => x.Active)",
		},
		{
			name:     "negated equality",
			query:    documents().Where(func(x expr.Node) expr.Node { return expr.Not(expr.Eq(expr.Prop(x, "Name"), expr.Const("a"))) }),
			expected: `Where(Documents, x => (x.Name ne "a"))`,
		},
		{
			name:     "negated ordering over nullable",
			query:    documents().Where(func(x expr.Node) expr.Node { return expr.Not(expr.Lt(expr.Prop(x, "NullableIntProp"), expr.Const(1))) }),
			expected: "Where(Documents, x => not (x.NullableIntProp lt 1))",
		},
		{
			name:     "redundant conversion",
			query:    documents().Where(func(x expr.Node) expr.Node { return expr.Gt(expr.Convert(expr.Prop(x, "IntProp"), expr.Int32Type), expr.Const(1)) }),
			expected: "Where(Documents, x => (x.IntProp gt 1))",
		},
		{
			name:     "constant moved right",
			query:    documents().Where(func(x expr.Node) expr.Node { return expr.Ge(expr.Const(1), expr.Prop(x, "IntProp")) }),
			expected: "Where(Documents, x => (x.IntProp le 1))",
		},
		{
			name:     "comparison with true",
			query:    documents().Where(func(x expr.Node) expr.Node { return expr.Ne(expr.Prop(x, "Active"), expr.Const(false)) }),
			expected: "Where(Documents, x => x.Active)",
		},
		{
			name:     "comparison with true on the left",
			query:    documents().Where(func(x expr.Node) expr.Node { return expr.Eq(expr.Const(false), expr.Prop(x, "Active")) }),
			expected: "Where(Documents, x => not x.Active)",
		},
		{
			name: "adjacent filters",
			query: documents().Where(intPropGt(1)).Where(func(x expr.Node) expr.Node {
				return expr.Prop(x, "Active")
			}),
			expected: "Where(Documents, x => ((x.IntProp gt 1) and x.Active))",
		},
		{
			name:     "predicate count",
			query:    documents().Where(intPropGt(1)).CountWhere(intPropGt(2)),
			expected: "Count(Where(Documents, x => ((x.IntProp gt 1) and (x.IntProp gt 2))))",
		},
		{
			name:     "predicate first or default",
			query:    documents().FirstOrDefaultWhere(intPropGt(2)),
			expected: "FirstOrDefault(Where(Documents, x => (x.IntProp gt 2)))",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewNormalizer().Normalize(tt.query.Node(), NewRewriteMap())
			assert.Equal(t, tt.expected, expr.String(result))
		})
	}
}

func TestNormalizer_Idempotent(t *testing.T) {
	queries := []*expr.Query{
		documents().Where(func(x expr.Node) expr.Node { return expr.Not(expr.Not(expr.Gt(expr.Const(3), expr.Prop(x, "IntProp")))) }),
		documents().Where(intPropGt(1)).Where(intPropGt(2)).Where(intPropGt(3)),
		documents().SingleOrDefaultWhere(func(x expr.Node) expr.Node { return expr.Eq(expr.Prop(x, "Active"), expr.Const(true)) }),
	}

	normalizer := NewNormalizer()

	for _, q := range queries {
		once := normalizer.Normalize(q.Node(), NewRewriteMap())

		rewrites := NewRewriteMap()
		twice := normalizer.Normalize(once, rewrites)

		assert.True(t, expr.Equal(once, twice))
		assert.Same(t, once, twice)
		assert.Equal(t, 0, rewrites.Len())
	}
}

func TestNormalizer_RecordsRewrites(t *testing.T) {
	inner := expr.Not(expr.Not(expr.Const(true)))
	rewrites := NewRewriteMap()

	result := NewNormalizer().Normalize(inner, rewrites)

	require.Equal(t, 1, rewrites.Len())
	assert.Equal(t, StageNormalize, rewrites.Entries()[0].Stage)
	assert.Same(t, result, rewrites.Resolve(inner))
}

func TestRewriteMap_Resolve(t *testing.T) {
	a := expr.Const(1)
	b := expr.Const(2)
	c := expr.Const(3)

	m := NewRewriteMap()
	m.Record(StageEvaluate, a, b)
	m.Record(StageNormalize, b, c)

	assert.Same(t, c, m.Resolve(a))
	assert.Same(t, c, m.Resolve(b))
	assert.Same(t, c, m.Resolve(c))

	m.Record(StageNormalize, a, c)
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, StageNormalize, m.Entries()[0].Stage)
}

type failingProcessor struct{}

func (failingProcessor) Name() string { return "Failing" }

func (failingProcessor) Process(*TranslationContext) error { return errStop }

var errStop = errors.New("stop")

func TestPipeline_WrapsProcessorErrors(t *testing.T) {
	pipeline := NewPipeline(NewNormalizer())
	pipeline.AddProcessor(failingProcessor{})

	ctx := &TranslationContext{Current: documents().Node(), Rewrites: NewRewriteMap()}

	err := pipeline.Execute(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errStop)
	assert.Contains(t, err.Error(), "processor Failing failed")
}
