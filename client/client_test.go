package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/shibukawa/snapodata"
	"github.com/shibukawa/snapodata/edm"
	"github.com/shibukawa/snapodata/expr"
	"github.com/shibukawa/snapodata/testhelper"
	"github.com/shopspring/decimal"
)

var document = expr.EntityType("Document",
	expr.Property{Name: "Name", Type: expr.StringType},
	expr.Property{Name: "IntProp", Type: expr.Int32Type},
	expr.Property{Name: "NullableIntProp", Type: expr.Int32Type.AsNullable()},
	expr.Property{Name: "DoubleProp", Type: expr.DoubleType},
	expr.Property{Name: "NullableDoubleProp", Type: expr.DoubleType.AsNullable()},
	expr.Property{Name: "DecimalProp", Type: expr.DecimalType},
)

func newModel(t *testing.T) *edm.Schema {
	t.Helper()

	schema := edm.NewSchema(snapodata.Version401)
	schema.AddEntityType(document)
	assert.NoError(t, schema.AddEntitySet("Documents", "Document"))
	assert.NoError(t, schema.AddSingleton("Me", "Document"))

	return schema
}

func documents() *expr.Query {
	return expr.From("Documents", document)
}

func prop(name string) func(expr.Node) expr.Node {
	return func(x expr.Node) expr.Node { return expr.Prop(x, name) }
}

// fakeTransport records requests and answers them with respond.
type fakeTransport struct {
	requests []*Request
	respond  func(req *Request) *Response
}

func (f *fakeTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	f.requests = append(f.requests, req)
	return f.respond(req), nil
}

func respondWith(status int, body string) func(*Request) *Response {
	return func(*Request) *Response {
		return &Response{
			StatusCode: status,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(body)),
		}
	}
}

func newTestClient(t *testing.T, respond func(*Request) *Response, configure ...func(*snapodata.Config)) (*Client, *fakeTransport) {
	t.Helper()

	cfg := snapodata.DefaultConfig()
	cfg.Service.BaseURL = "http://x/"

	for _, f := range configure {
		f(cfg)
	}

	transport := &fakeTransport{respond: respond}

	c, err := New(cfg, newModel(t), transport)
	assert.NoError(t, err)

	return c, transport
}

func TestExecuteScalarAggregateEnvelope(t *testing.T) {
	c, transport := newTestClient(t, respondWith(200, `{"@odata.context":"http://x/$metadata#Documents(SumIntProp)","value":[{"SumIntProp":506}]}`))

	value, err := ScalarAs[int32](context.Background(), c, documents().Sum(prop("IntProp")).Node())
	assert.NoError(t, err)
	assert.Equal(t, int32(506), value)

	assert.Equal(t, 1, len(transport.requests))
	assert.Equal(t, "GET", transport.requests[0].Method)
	assert.Equal(t, "http://x/Documents()?$apply=aggregate(IntProp with sum as SumIntProp)", transport.requests[0].URI)
}

func TestExecuteScalar(t *testing.T) {
	two := int32(2)
	half := 1.5

	tests := []struct {
		name     string
		query    *expr.Query
		body     string
		expected any
	}{
		{
			name:     "count" + testhelper.Caller(t),
			query:    documents().Count(),
			body:     "42",
			expected: int32(42),
		},
		{
			name:     "long count with byte order mark" + testhelper.Caller(t),
			query:    documents().LongCount(),
			body:     "\xef\xbb\xbf7\n",
			expected: int64(7),
		},
		{
			name:     "average of integers is double" + testhelper.Caller(t),
			query:    documents().Average(prop("IntProp")),
			body:     `{"@odata.context":"$metadata#Documents(AverageIntProp)","value":[{"AverageIntProp":2.5}]}`,
			expected: 2.5,
		},
		{
			name:     "numeric string" + testhelper.Caller(t),
			query:    documents().Sum(prop("IntProp")),
			body:     `{"@odata.context":"$metadata#Documents(SumIntProp)","value":[{"SumIntProp":"12"}]}`,
			expected: int32(12),
		},
		{
			name:     "integral decimal text for an integer" + testhelper.Caller(t),
			query:    documents().Max(prop("IntProp")),
			body:     `{"@odata.context":"$metadata#Documents(MaxIntProp)","value":[{"MaxIntProp":12.0}]}`,
			expected: int32(12),
		},
		{
			name:     "nullable result" + testhelper.Caller(t),
			query:    documents().Min(prop("NullableIntProp")),
			body:     `{"@odata.context":"$metadata#Documents(MinNullableIntProp)","value":[{"MinNullableIntProp":2}]}`,
			expected: &two,
		},
		{
			name:     "nullable null" + testhelper.Caller(t),
			query:    documents().Max(prop("NullableDoubleProp")),
			body:     `{"@odata.context":"$metadata#Documents(MaxNullableDoubleProp)","value":[{"MaxNullableDoubleProp":null}]}`,
			expected: (*float64)(nil),
		},
		{
			name:     "nullable empty value array" + testhelper.Caller(t),
			query:    documents().Sum(prop("NullableDoubleProp")),
			body:     `{"@odata.context":"$metadata#Documents(SumNullableDoubleProp)","value":[]}`,
			expected: (*float64)(nil),
		},
		{
			name:     "alias falls back when context has none" + testhelper.Caller(t),
			query:    documents().Max(prop("NullableDoubleProp")),
			body:     `{"value":[{"MaxNullableDoubleProp":1.5}]}`,
			expected: &half,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, respondWith(200, tt.body))

			value, err := c.ExecuteScalar(context.Background(), tt.query.Node())
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, value)
		})
	}
}

func TestExecuteScalarDecimal(t *testing.T) {
	c, _ := newTestClient(t, respondWith(200, `{"@odata.context":"$metadata#Documents(SumDecimalProp)","value":[{"SumDecimalProp":"3.15"}]}`))

	value, err := ScalarAs[decimal.Decimal](context.Background(), c, documents().Sum(prop("DecimalProp")).Node())
	assert.NoError(t, err)
	assert.True(t, value.Equal(decimal.RequireFromString("3.15")))
}

func TestExecuteScalarConversionErrors(t *testing.T) {
	tests := []struct {
		name  string
		query *expr.Query
		body  string
	}{
		{
			name:  "null for non-nullable" + testhelper.Caller(t),
			query: documents().Sum(prop("IntProp")),
			body:  `{"@odata.context":"$metadata#Documents(SumIntProp)","value":[{"SumIntProp":null}]}`,
		},
		{
			name:  "empty value array for non-nullable" + testhelper.Caller(t),
			query: documents().Sum(prop("IntProp")),
			body:  `{"@odata.context":"$metadata#Documents(SumIntProp)","value":[]}`,
		},
		{
			name:  "non numeric count" + testhelper.Caller(t),
			query: documents().Count(),
			body:  "many",
		},
		{
			name:  "fraction for an integer" + testhelper.Caller(t),
			query: documents().Sum(prop("IntProp")),
			body:  `{"@odata.context":"$metadata#Documents(SumIntProp)","value":[{"SumIntProp":1.5}]}`,
		},
		{
			name:  "int32 overflow" + testhelper.Caller(t),
			query: documents().Count(),
			body:  "4294967296",
		},
		{
			name:  "broken envelope" + testhelper.Caller(t),
			query: documents().Sum(prop("IntProp")),
			body:  `{"value":`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, respondWith(200, tt.body))

			_, err := c.ExecuteScalar(context.Background(), tt.query.Node())
			assert.IsError(t, err, snapodata.ErrScalarConversion)

			var conversion *ScalarConversionError

			assert.True(t, errors.As(err, &conversion))
			assert.NotZero(t, conversion.Response)
			assert.Equal(t, 200, conversion.Response.StatusCode)
			assert.Equal(t, tt.body, string(conversion.Body))
		})
	}
}

func TestScalarAsWrongType(t *testing.T) {
	c, _ := newTestClient(t, respondWith(200, "3"))

	_, err := ScalarAs[int64](context.Background(), c, documents().Count().Node())
	assert.IsError(t, err, snapodata.ErrScalarConversion)
}

func TestExecute(t *testing.T) {
	c, transport := newTestClient(t, respondWith(200, `{
		"@odata.context": "http://x/$metadata#Documents",
		"@odata.count": 3,
		"@odata.nextLink": "http://x/Documents?$skiptoken=2",
		"value": [{"Name":"a"},{"Name":"b"}]
	}`))

	feed, err := c.Execute(context.Background(), documents().IncludeCount().Take(2).Node())
	assert.NoError(t, err)

	assert.Equal(t, "http://x/Documents()?$top=2&$count=true", transport.requests[0].URI)
	assert.Equal(t, "http://x/$metadata#Documents", feed.Context)
	assert.Equal(t, int64(3), *feed.Count)
	assert.Equal(t, "http://x/Documents?$skiptoken=2", feed.NextLink)
	assert.Equal(t, []json.RawMessage{json.RawMessage(`{"Name":"a"}`), json.RawMessage(`{"Name":"b"}`)}, feed.Entries)
}

func TestExecuteRejectsNonSequence(t *testing.T) {
	c, transport := newTestClient(t, respondWith(200, "1"))

	_, err := c.Execute(context.Background(), documents().Count().Node())
	assert.IsError(t, err, ErrNotASequence)
	assert.Equal(t, 0, len(transport.requests))

	_, err = c.ExecuteScalar(context.Background(), documents().Node())
	assert.IsError(t, err, snapodata.ErrUnsupportedQueryShape)
}

func TestExecuteSingle(t *testing.T) {
	tests := []struct {
		name     string
		query    *expr.Query
		body     string
		expected string
		err      error
	}{
		{
			name:     "first" + testhelper.Caller(t),
			query:    documents().First(),
			body:     `{"value":[{"Name":"a"}]}`,
			expected: `{"Name":"a"}`,
		},
		{
			name:  "first of nothing" + testhelper.Caller(t),
			query: documents().First(),
			body:  `{"value":[]}`,
			err:   ErrNoElements,
		},
		{
			name:  "first or default of nothing" + testhelper.Caller(t),
			query: documents().FirstOrDefault(),
			body:  `{"value":[]}`,
		},
		{
			name:  "single of two" + testhelper.Caller(t),
			query: documents().Single(),
			body:  `{"value":[{"Name":"a"},{"Name":"b"}]}`,
			err:   ErrMoreThanOneElement,
		},
		{
			name:  "single or default of two" + testhelper.Caller(t),
			query: documents().SingleOrDefault(),
			body:  `{"value":[{"Name":"a"},{"Name":"b"}]}`,
			err:   ErrMoreThanOneElement,
		},
		{
			name:     "singleton" + testhelper.Caller(t),
			query:    expr.FromSingleton("Me", document),
			body:     `{"Name":"me"}`,
			expected: `{"Name":"me"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, respondWith(200, tt.body))

			entry, err := c.ExecuteSingle(context.Background(), tt.query.Node())
			if tt.err != nil {
				assert.IsError(t, err, tt.err)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tt.expected, string(entry))
		})
	}
}

func TestNotFound(t *testing.T) {
	notFound := respondWith(404, `{"error":{"code":"","message":"not found"}}`)

	t.Run("propagated", func(t *testing.T) {
		c, _ := newTestClient(t, notFound)

		_, err := c.Execute(context.Background(), documents().Node())
		assert.IsError(t, err, ErrRequestFailed)
		assert.IsError(t, err, snapodata.ErrResourceNotFound)

		var status *StatusError

		assert.True(t, errors.As(err, &status))
		assert.Equal(t, 404, status.StatusCode)
		assert.Equal(t, "http://x/Documents", status.URI)
		assert.Contains(t, string(status.Body), "not found")
	})

	t.Run("ignored", func(t *testing.T) {
		c, _ := newTestClient(t, notFound, func(cfg *snapodata.Config) {
			cfg.Service.IgnoreResourceNotFound = true
		})

		feed, err := c.Execute(context.Background(), documents().Node())
		assert.NoError(t, err)
		assert.Equal(t, 0, len(feed.Entries))

		entry, err := c.ExecuteSingle(context.Background(), documents().First().Node())
		assert.NoError(t, err)
		assert.Zero(t, entry)
	})

	t.Run("other statuses are not ignored", func(t *testing.T) {
		c, _ := newTestClient(t, respondWith(500, "boom"), func(cfg *snapodata.Config) {
			cfg.Service.IgnoreResourceNotFound = true
		})

		_, err := c.Execute(context.Background(), documents().Node())
		assert.IsError(t, err, ErrRequestFailed)
		assert.False(t, errors.Is(err, snapodata.ErrResourceNotFound))
	})
}

func TestTranslateHonorsConfiguredVersion(t *testing.T) {
	in := documents().Where(func(x expr.Node) expr.Node {
		return expr.Func("in", expr.Prop(x, "IntProp"), expr.Const([]int{1, 2}))
	})

	c, _ := newTestClient(t, respondWith(200, "{}"))

	qc, err := c.Translate(in.Node())
	assert.NoError(t, err)
	assert.Equal(t, snapodata.Version401, qc.Version)

	c, transport := newTestClient(t, respondWith(200, "{}"), func(cfg *snapodata.Config) {
		cfg.Service.MaxProtocolVersion = "4.0"
	})

	_, err = c.Execute(context.Background(), in.Node())
	assert.IsError(t, err, snapodata.ErrProtocolVersion)
	assert.Equal(t, 0, len(transport.requests))
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(nil, nil, &fakeTransport{})
	assert.IsError(t, err, snapodata.ErrConfigValidation)
}

func TestAliasFromContext(t *testing.T) {
	tests := []struct {
		context  string
		expected string
	}{
		{"http://x/$metadata#Documents(SumIntProp)", "SumIntProp"},
		{"$metadata#Sets('a(b)')(Total)", "Total"},
		{"$metadata#Documents", ""},
		{"", ""},
		{"broken)(", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, AliasFromContext(tt.context), tt.context)
	}
}

func TestEscapeQuery(t *testing.T) {
	assert.Equal(t, "$filter=Name%20eq%20'a%22b'", escapeQuery(`$filter=Name eq 'a"b'`))
	assert.Equal(t, "$filter=contains(Name,'100%25')", escapeQuery("$filter=contains(Name,'100%')"))
	assert.Equal(t, "$filter=Name%20eq%20'caf%C3%A9'", escapeQuery("$filter=Name eq 'café'"))
	assert.Equal(t, "a%20b", escapeQuery("a%20b"))
}

func TestBatchRequestRejectsQueriesInChangeset(t *testing.T) {
	b := NewBatchRequest().AddChangeset(BatchOperation{Method: "GET", URI: "Documents"})

	_, err := b.Encode(&bytes.Buffer{}, "")
	assert.IsError(t, err, snapodata.ErrInvalidMethodForChangeset)
}
