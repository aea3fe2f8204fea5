package main

import (
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/shibukawa/snapodata"
	"github.com/shibukawa/snapodata/edm"
	"github.com/shibukawa/snapodata/expr"
	"github.com/shibukawa/snapodata/testhelper"
	"github.com/shibukawa/snapodata/translate"
)

var document = expr.EntityType("Document",
	expr.Property{Name: "Name", Type: expr.StringType},
	expr.Property{Name: "Active", Type: expr.BoolType},
	expr.Property{Name: "IntProp", Type: expr.Int32Type},
	expr.Property{Name: "DoubleProp", Type: expr.DoubleType},
)

func newModel(t *testing.T) *edm.Schema {
	t.Helper()

	schema := edm.NewSchema(snapodata.Version401)
	schema.AddEntityType(document)
	assert.NoError(t, schema.AddEntitySet("Documents", "Document"))
	assert.NoError(t, schema.AddSingleton("Me", "Document"))

	return schema
}

func TestQueryFileBuild(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		expected string
	}{
		{
			name: "bare resource" + testhelper.Caller(t),
			src: `
				resource: Documents
			`,
			expected: "http://x/Documents",
		},
		{
			name: "singleton" + testhelper.Caller(t),
			src: `
				resource: Me
			`,
			expected: "http://x/Me",
		},
		{
			name: "filter ordering and paging" + testhelper.Caller(t),
			src: `
				resource: Documents
				where:
				  - {property: IntProp, op: gt, value: 15}
				  - {property: Name, op: contains, value: ab}
				orderby: [Name, -IntProp]
				skip: 2
				take: 5
				select: [Name, IntProp]
			`,
			expected: "http://x/Documents()?$filter=IntProp gt 15 and contains(Name,'ab')&$orderby=Name,IntProp desc&$skip=2&$top=5&$select=Name,IntProp",
		},
		{
			name: "default operator and null" + testhelper.Caller(t),
			src: `
				resource: Documents
				where:
				  - {property: Name, value: null}
			`,
			expected: "http://x/Documents()?$filter=Name eq null",
		},
		{
			name: "in list" + testhelper.Caller(t),
			src: `
				resource: Documents
				where:
				  - {property: IntProp, op: in, value: [1, 2]}
			`,
			expected: "http://x/Documents()?$filter=IntProp in (1,2)",
		},
		{
			name: "count" + testhelper.Caller(t),
			src: `
				resource: Documents
				where:
				  - {property: IntProp, op: gt, value: 1}
				terminal: count
			`,
			expected: "http://x/Documents()/$count?$filter=IntProp gt 1",
		},
		{
			name: "include count" + testhelper.Caller(t),
			src: `
				resource: Documents
				take: 3
				count: true
			`,
			expected: "http://x/Documents()?$top=3&$count=true",
		},
		{
			name: "sum" + testhelper.Caller(t),
			src: `
				resource: Documents
				terminal: sum
				property: IntProp
			`,
			expected: "http://x/Documents()?$apply=aggregate(IntProp with sum as SumIntProp)",
		},
		{
			name: "count distinct" + testhelper.Caller(t),
			src: `
				resource: Documents
				terminal: count_distinct
				property: Name
			`,
			expected: "http://x/Documents()?$apply=aggregate(Name with countdistinct as CountDistinctName)",
		},
		{
			name: "single" + testhelper.Caller(t),
			src: `
				resource: Documents
				terminal: single
			`,
			expected: "http://x/Documents()?$top=2",
		},
		{
			name: "group by keeps aggregate order" + testhelper.Caller(t),
			src: `
				resource: Documents
				groupby:
				  keys: [Name]
				  aggregate:
				    Total: sum(IntProp)
				    Count: count
			`,
			expected: "http://x/Documents()?$apply=groupby((Name),aggregate(IntProp with sum as Total,$count as Count))",
		},
		{
			name: "group by several keys" + testhelper.Caller(t),
			src: `
				resource: Documents
				where:
				  - {property: IntProp, op: gt, value: 0}
				groupby:
				  keys: [Name, Active]
				  aggregate:
				    Names: countdistinct(IntProp)
			`,
			expected: "http://x/Documents()?$apply=filter(IntProp gt 0)/groupby((Name,Active),aggregate(IntProp with countdistinct as Names))",
		},
		{
			name: "aggregate without keys" + testhelper.Caller(t),
			src: `
				resource: Documents
				groupby:
				  aggregate:
				    MaxDoubleProp: max(DoubleProp)
				    SumIntProp: sum(IntProp)
			`,
			expected: "http://x/Documents()?$apply=aggregate(DoubleProp with max as MaxDoubleProp,IntProp with sum as SumIntProp)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qf, err := ParseQueryFile([]byte(testhelper.TrimIndent(t, tt.src)))
			assert.NoError(t, err)

			model := newModel(t)

			node, err := qf.Build(model)
			assert.NoError(t, err)

			qc, err := translate.NewTranslator("http://x", model).Translate(node)
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, qc.URI)
		})
	}
}

func TestQueryFileErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		err  error
	}{
		{
			name: "missing resource" + testhelper.Caller(t),
			src: `
				take: 1
			`,
			err: ErrInvalidQueryFile,
		},
		{
			name: "unknown resource" + testhelper.Caller(t),
			src: `
				resource: Nope
			`,
			err: ErrUnknownResource,
		},
		{
			name: "unknown operator" + testhelper.Caller(t),
			src: `
				resource: Documents
				where:
				  - {property: IntProp, op: like, value: 1}
			`,
			err: ErrInvalidQueryFile,
		},
		{
			name: "aggregate terminal without property" + testhelper.Caller(t),
			src: `
				resource: Documents
				terminal: max
			`,
			err: ErrInvalidQueryFile,
		},
		{
			name: "unknown terminal" + testhelper.Caller(t),
			src: `
				resource: Documents
				terminal: last
			`,
			err: ErrInvalidQueryFile,
		},
		{
			name: "malformed aggregate" + testhelper.Caller(t),
			src: `
				resource: Documents
				groupby:
				  keys: [Name]
				  aggregate:
				    Total: median(IntProp)
			`,
			err: ErrInvalidQueryFile,
		},
		{
			name: "aggregate list instead of mapping" + testhelper.Caller(t),
			src: `
				resource: Documents
				groupby:
				  aggregate: [sum(IntProp)]
			`,
			err: ErrInvalidQueryFile,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qf, err := ParseQueryFile([]byte(testhelper.TrimIndent(t, tt.src)))
			if err == nil {
				_, err = qf.Build(newModel(t))
			}

			assert.IsError(t, err, tt.err)
		})
	}
}
