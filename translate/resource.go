package translate

import (
	"strings"

	"github.com/shibukawa/snapodata/expr"
)

// Terminal identifies an operator that ends a query and changes its result shape.
type Terminal int

const (
	TerminalNone Terminal = iota
	TerminalCount
	TerminalLongCount
	TerminalFirst
	TerminalFirstOrDefault
	TerminalSingle
	TerminalSingleOrDefault
	TerminalAggregate
)

var terminalNames = [...]string{
	TerminalNone:            "None",
	TerminalCount:           "Count",
	TerminalLongCount:       "LongCount",
	TerminalFirst:           "First",
	TerminalFirstOrDefault:  "FirstOrDefault",
	TerminalSingle:          "Single",
	TerminalSingleOrDefault: "SingleOrDefault",
	TerminalAggregate:       "Aggregate",
}

func (t Terminal) String() string {
	if int(t) < len(terminalNames) {
		return terminalNames[t]
	}

	return "Unknown"
}

// IsScalar reports whether the terminal produces a single number.
func (t Terminal) IsScalar() bool {
	return t == TerminalCount || t == TerminalLongCount || t == TerminalAggregate
}

// IsSingle reports whether the terminal produces at most one entity.
func (t Terminal) IsSingle() bool {
	switch t {
	case TerminalFirst, TerminalFirstOrDefault, TerminalSingle, TerminalSingleOrDefault:
		return true
	default:
		return false
	}
}

// OrDefault reports whether an empty result is allowed.
func (t Terminal) OrDefault() bool {
	return t == TerminalFirstOrDefault || t == TerminalSingleOrDefault
}

// AggregationMethod is the $apply aggregate method.
type AggregationMethod int

const (
	MethodSum AggregationMethod = iota
	MethodAverage
	MethodMin
	MethodMax
	MethodCountDistinct
	// MethodCount aggregates the $count virtual property of a group.
	MethodCount
)

var methodNames = [...]string{
	MethodSum:           "Sum",
	MethodAverage:       "Average",
	MethodMin:           "Min",
	MethodMax:           "Max",
	MethodCountDistinct: "CountDistinct",
	MethodCount:         "Count",
}

func (m AggregationMethod) String() string {
	if int(m) < len(methodNames) {
		return methodNames[m]
	}

	return "Unknown"
}

// Keyword returns the lowercase name used in the URI.
func (m AggregationMethod) Keyword() string {
	return strings.ToLower(m.String())
}

// Aggregation is one entry of an aggregate(...) transformation.
type Aggregation struct {
	Selector *expr.Lambda
	Property string
	Method   AggregationMethod
	Alias    string
	Type     expr.Type
}

// DefaultAlias builds {Method}{Property} with path separators removed.
func DefaultAlias(method AggregationMethod, property string) string {
	return method.String() + strings.ReplaceAll(property, "/", "")
}

// OrderKey is one $orderby entry.
type OrderKey struct {
	Key        *expr.Lambda
	Descending bool
}

// Projection is the Select selector and the property paths it touches.
// Paths is empty for an identity projection.
type Projection struct {
	Selector *expr.Lambda
	Paths    []string
}

// Apply is the $apply model: ordered aggregations and grouping keys.
type Apply struct {
	Aggregations []Aggregation
	GroupBy      []string
}

// ResourceExpression is a query against one resource, restricted to what
// URL query options can express.
type ResourceExpression struct {
	Name         string
	ElementType  expr.Type
	Singleton    bool
	Filter       *expr.Lambda
	OrderBy      []OrderKey
	Projection   *Projection
	Apply        *Apply
	Skip         *int
	Top          *int
	IncludeCount bool
	Terminal     Terminal
	// ResultType is the static type of the whole query.
	ResultType expr.Type
}

// HasOptions reports whether any operator was applied to the resource.
func (r *ResourceExpression) HasOptions() bool {
	return r.Filter != nil || len(r.OrderBy) > 0 || r.Projection != nil || r.Apply != nil ||
		r.Skip != nil || r.Top != nil || r.IncludeCount || r.Terminal != TerminalNone
}

// Alias returns the scalar alias for an aggregate terminal.
func (r *ResourceExpression) Alias() string {
	if r.Terminal != TerminalAggregate || r.Apply == nil || len(r.Apply.Aggregations) != 1 {
		return ""
	}

	return r.Apply.Aggregations[0].Alias
}
