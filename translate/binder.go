package translate

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shibukawa/snapodata"
	"github.com/shibukawa/snapodata/edm"
	"github.com/shibukawa/snapodata/expr"
)

// Binder maps a normalized operator chain onto a ResourceExpression.
type Binder struct {
	model edm.Model
}

func NewBinder(model edm.Model) *Binder {
	return &Binder{model: model}
}

func (b *Binder) Name() string {
	return "ResourceBinder"
}

func (b *Binder) Process(ctx *TranslationContext) error {
	re, err := b.Bind(ctx.Current)
	if err != nil {
		return err
	}

	ctx.Resource = re

	return nil
}

// Bind recognizes the operator chain ending at n.
func (b *Binder) Bind(n expr.Node) (*ResourceExpression, error) {
	root, calls, err := unwindChain(n)
	if err != nil {
		return nil, err
	}

	re, err := b.resolve(root)
	if err != nil {
		return nil, err
	}

	for i := 0; i < len(calls); i++ {
		call := calls[i]

		tag, ok := expr.LookupOperator(call)
		if !ok {
			return nil, newMethodError(call)
		}

		if re.Terminal != TerminalNone {
			return nil, shapeError(call.Method, "cannot follow %s", re.Terminal)
		}

		if re.Apply != nil {
			return nil, shapeError(call.Method, "no operator may follow an aggregation or GroupBy")
		}

		if tag == expr.SeqSelect {
			if selector, ok := tryAnalyzeCountDistinct(calls[i:]); ok {
				if err := bindCountDistinct(re, selector, calls[len(calls)-1]); err != nil {
					return nil, err
				}

				break
			}
		}

		if err := bindOperator(re, tag, call); err != nil {
			return nil, err
		}
	}

	re.ResultType = n.Type()

	return re, nil
}

// unwindChain returns the resource at the bottom of n and the operator
// calls above it, innermost first.
func unwindChain(n expr.Node) (*expr.Resource, []*expr.Call, error) {
	var calls []*expr.Call

	current := n

	for {
		switch c := current.(type) {
		case *expr.Resource:
			slices.Reverse(calls)
			return c, calls, nil
		case *expr.Call:
			if !expr.IsSequenceOperator(c.Method) || len(c.Args) == 0 {
				return nil, nil, newMethodError(c)
			}

			calls = append(calls, c)
			current = c.Args[0]
		default:
			return nil, nil, shapeError("", "query must start at a resource, found %s", expr.String(current))
		}
	}
}

func (b *Binder) resolve(root *expr.Resource) (*ResourceExpression, error) {
	elem := root.Type()
	if !root.Singleton {
		elem = elem.ElemType()
	}

	if b.model != nil {
		res, ok := b.model.Resolve(root.Name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown resource %s", snapodata.ErrUnsupportedQueryShape, root.Name)
		}

		if res.Singleton != root.Singleton {
			return nil, fmt.Errorf("%w: resource %s singleton mismatch", snapodata.ErrUnsupportedQueryShape, root.Name)
		}
	}

	return &ResourceExpression{Name: root.Name, ElementType: elem, Singleton: root.Singleton}, nil
}

// tryAnalyzeCountDistinct matches Count(Distinct(Select(src, sel))) as the
// final three calls of the chain, checking Select, then Distinct, then Count.
func tryAnalyzeCountDistinct(calls []*expr.Call) (*expr.Lambda, bool) {
	if len(calls) != 3 {
		return nil, false
	}

	if tag, ok := expr.LookupOperator(calls[0]); !ok || tag != expr.SeqSelect {
		return nil, false
	}

	if tag, ok := expr.LookupOperator(calls[1]); !ok || tag != expr.SeqDistinct {
		return nil, false
	}

	tag, ok := expr.LookupOperator(calls[2])
	if !ok || (tag != expr.SeqCount && tag != expr.SeqLongCount) {
		return nil, false
	}

	return calls[0].Args[1].(*expr.Lambda), true
}

func bindCountDistinct(re *ResourceExpression, selector *expr.Lambda, count *expr.Call) error {
	if re.Projection != nil {
		return shapeError("Select", "only one projection is supported")
	}

	if re.Skip != nil || re.Top != nil {
		return shapeError(count.Method, "cannot follow Skip or Take")
	}

	path, ok := selectorPath(selector)
	if !ok {
		return shapeError("Select", "count distinct requires a single property selector")
	}

	re.Apply = &Apply{Aggregations: []Aggregation{{
		Selector: selector,
		Property: path,
		Method:   MethodCountDistinct,
		Alias:    DefaultAlias(MethodCountDistinct, path),
		Type:     count.Type(),
	}}}
	re.OrderBy = nil
	re.IncludeCount = false
	re.Terminal = TerminalAggregate

	return nil
}

func bindOperator(re *ResourceExpression, tag expr.OperatorTag, call *expr.Call) error {
	switch tag {
	case expr.SeqWhere:
		return bindWhere(re, call)
	case expr.SeqOrderBy, expr.SeqOrderByDescending, expr.SeqThenBy, expr.SeqThenByDescending:
		return bindOrdering(re, tag, call)
	case expr.SeqSelect:
		return bindSelect(re, call)
	case expr.SeqSkip:
		return bindSkip(re, call)
	case expr.SeqTake:
		return bindTake(re, call)
	case expr.SeqDistinct:
		return shapeError(call.Method, "only supported as Select(...).Distinct().Count()")
	case expr.SeqIncludeCount:
		re.IncludeCount = true
		return nil
	case expr.SeqCount, expr.SeqLongCount:
		return bindCount(re, tag, call)
	case expr.SeqFirst, expr.SeqFirstOrDefault, expr.SeqSingle, expr.SeqSingleOrDefault:
		return bindSingle(re, tag)
	case expr.SeqSum, expr.SeqSumSelector, expr.SeqAverage, expr.SeqAverageSelector,
		expr.SeqMin, expr.SeqMinSelector, expr.SeqMax, expr.SeqMaxSelector:
		return bindAggregate(re, tag, call)
	case expr.SeqGroupBy:
		return bindGroupBy(re, call)
	default:
		// Predicate forms are rewritten by the normalizer.
		return shapeError(call.Method, "predicate form must be normalized before binding")
	}
}

func bindWhere(re *ResourceExpression, call *expr.Call) error {
	switch {
	case re.Projection != nil:
		return shapeError(call.Method, "filter must precede Select")
	case re.Skip != nil || re.Top != nil:
		return shapeError(call.Method, "filter must precede Skip and Take")
	case len(re.OrderBy) > 0:
		return shapeError(call.Method, "filter must precede ordering")
	}

	pred := call.Args[1].(*expr.Lambda)
	if pred.Body.Type().Kind != expr.KindBool {
		return shapeError(call.Method, "predicate must be boolean, got %s", pred.Body.Type())
	}

	if err := validateScalar(pred.Body, pred.Params); err != nil {
		return err
	}

	if re.Filter == nil {
		re.Filter = pred
		return nil
	}

	param := re.Filter.Params[0]
	body := expr.And(re.Filter.Body, expr.Substitute(pred.Body, pred.Params[0], param))
	re.Filter = expr.NewLambda(body, param)

	return nil
}

func bindOrdering(re *ResourceExpression, tag expr.OperatorTag, call *expr.Call) error {
	switch {
	case re.Projection != nil:
		return shapeError(call.Method, "ordering must precede Select")
	case re.Skip != nil || re.Top != nil:
		return shapeError(call.Method, "ordering must precede Skip and Take")
	}

	key := call.Args[1].(*expr.Lambda)
	if err := validateScalar(key.Body, key.Params); err != nil {
		return err
	}

	desc := tag == expr.SeqOrderByDescending || tag == expr.SeqThenByDescending

	if tag == expr.SeqThenBy || tag == expr.SeqThenByDescending {
		if len(re.OrderBy) == 0 {
			return shapeError(call.Method, "requires a preceding OrderBy")
		}

		re.OrderBy = append(re.OrderBy, OrderKey{Key: key, Descending: desc})

		return nil
	}

	re.OrderBy = []OrderKey{{Key: key, Descending: desc}}

	return nil
}

func bindSelect(re *ResourceExpression, call *expr.Call) error {
	if re.Projection != nil {
		return shapeError(call.Method, "only one projection is supported")
	}

	selector := call.Args[1].(*expr.Lambda)
	param := selector.Params[0]

	switch body := selector.Body.(type) {
	case *expr.Parameter:
		if body.ID() != param.ID() {
			return shapeError(call.Method, "selector must be rooted at its parameter")
		}

		re.Projection = &Projection{Selector: selector}

		return nil
	case *expr.New:
		paths := make([]string, 0, len(body.Fields))

		for _, f := range body.Fields {
			segments, ok := expr.MemberPath(f.Value, param)
			if !ok || len(segments) == 0 {
				return shapeError(call.Method, "record field %s must be a property path", f.Name)
			}

			path := strings.Join(segments, "/")
			if !slices.Contains(paths, path) {
				paths = append(paths, path)
			}
		}

		re.Projection = &Projection{Selector: selector, Paths: paths}

		return nil
	default:
		path, ok := selectorPath(selector)
		if !ok {
			return shapeError(call.Method, "projection must be a property path or a record of property paths")
		}

		re.Projection = &Projection{Selector: selector, Paths: []string{path}}

		return nil
	}
}

func bindSkip(re *ResourceExpression, call *expr.Call) error {
	if re.Top != nil {
		return shapeError(call.Method, "Skip after Take is not supported")
	}

	n, err := countArg(call)
	if err != nil {
		return err
	}

	total := n
	if re.Skip != nil {
		total += *re.Skip
	}

	re.Skip = &total

	return nil
}

func bindTake(re *ResourceExpression, call *expr.Call) error {
	n, err := countArg(call)
	if err != nil {
		return err
	}

	setTop(re, n)

	return nil
}

func countArg(call *expr.Call) (int, error) {
	n, _ := expr.IntValue(call.Args[1].(*expr.Constant).Value)
	if n < 0 {
		return 0, shapeError(call.Method, "count must not be negative, got %d", n)
	}

	return int(n), nil
}

// setTop keeps the smaller of the current and requested limits.
func setTop(re *ResourceExpression, n int) {
	if re.Top == nil || n < *re.Top {
		re.Top = &n
	}
}

func bindCount(re *ResourceExpression, tag expr.OperatorTag, call *expr.Call) error {
	if re.Skip != nil || re.Top != nil {
		return shapeError(call.Method, "cannot follow Skip or Take")
	}

	re.Terminal = TerminalCount
	if tag == expr.SeqLongCount {
		re.Terminal = TerminalLongCount
	}

	re.Projection = nil
	re.OrderBy = nil
	re.IncludeCount = false

	return nil
}

func bindSingle(re *ResourceExpression, tag expr.OperatorTag) error {
	switch tag {
	case expr.SeqFirst:
		re.Terminal = TerminalFirst
		setTop(re, 1)
	case expr.SeqFirstOrDefault:
		re.Terminal = TerminalFirstOrDefault
		setTop(re, 1)
	case expr.SeqSingle:
		re.Terminal = TerminalSingle
		setTop(re, 2)
	case expr.SeqSingleOrDefault:
		re.Terminal = TerminalSingleOrDefault
		setTop(re, 2)
	}

	re.IncludeCount = false

	return nil
}

func aggregationMethod(tag expr.OperatorTag) AggregationMethod {
	switch tag {
	case expr.SeqSum, expr.SeqSumSelector:
		return MethodSum
	case expr.SeqAverage, expr.SeqAverageSelector:
		return MethodAverage
	case expr.SeqMin, expr.SeqMinSelector:
		return MethodMin
	default:
		return MethodMax
	}
}

func bindAggregate(re *ResourceExpression, tag expr.OperatorTag, call *expr.Call) error {
	if re.Skip != nil || re.Top != nil {
		return shapeError(call.Method, "aggregation cannot follow Skip or Take")
	}

	var (
		selector *expr.Lambda
		path     string
	)

	if len(call.Args) == 2 {
		selector = call.Args[1].(*expr.Lambda)

		p, ok := selectorPath(selector)
		if !ok {
			return shapeError(call.Method, "selector must be a property path")
		}

		path = p
	} else {
		if re.Projection == nil || len(re.Projection.Paths) != 1 || !isPathSelector(re.Projection.Selector) {
			return shapeError(call.Method, "requires a selector or a single-property Select")
		}

		selector = re.Projection.Selector
		path = re.Projection.Paths[0]
	}

	if !selector.Body.Type().IsNumeric() {
		return shapeError(call.Method, "property %s is not numeric (%s)", path, selector.Body.Type())
	}

	method := aggregationMethod(tag)
	re.Apply = &Apply{Aggregations: []Aggregation{{
		Selector: selector,
		Property: path,
		Method:   method,
		Alias:    DefaultAlias(method, path),
		Type:     call.Type(),
	}}}
	re.Projection = nil
	re.OrderBy = nil
	re.IncludeCount = false
	re.Terminal = TerminalAggregate

	return nil
}

func bindGroupBy(re *ResourceExpression, call *expr.Call) error {
	switch {
	case re.Projection != nil:
		return shapeError(call.Method, "cannot follow Select")
	case re.Skip != nil || re.Top != nil:
		return shapeError(call.Method, "cannot follow Skip or Take")
	case len(re.OrderBy) > 0:
		return shapeError(call.Method, "cannot follow ordering")
	}

	keyLambda := call.Args[1].(*expr.Lambda)
	resultLambda := call.Args[2].(*expr.Lambda)
	keyParam := keyLambda.Params[0]

	var (
		keyPaths  []string
		keyFields = map[string]string{}
		singleKey bool
		constKey  bool
	)

	switch key := keyLambda.Body.(type) {
	case *expr.Constant:
		constKey = true
	case *expr.New:
		for _, f := range key.Fields {
			segments, ok := expr.MemberPath(f.Value, keyParam)
			if !ok || len(segments) == 0 {
				return shapeError(call.Method, "key field %s must be a property path", f.Name)
			}

			path := strings.Join(segments, "/")
			keyFields[f.Name] = path
			keyPaths = append(keyPaths, path)
		}
	default:
		path, ok := selectorPath(keyLambda)
		if !ok {
			return shapeError(call.Method, "key must be a constant, a property path or a record of property paths")
		}

		keyPaths = []string{path}
		singleKey = true
	}

	shape, ok := resultLambda.Body.(*expr.New)
	if !ok {
		return shapeError(call.Method, "result selector must construct a record")
	}

	k, g := resultLambda.Params[0], resultLambda.Params[1]
	apply := &Apply{GroupBy: keyPaths}

	for _, f := range shape.Fields {
		switch v := f.Value.(type) {
		case *expr.Parameter:
			if v.ID() != k.ID() || !singleKey {
				return shapeError(call.Method, "field %s must reference the key or aggregate the group", f.Name)
			}
		case *expr.Member:
			param, isParam := v.Target.(*expr.Parameter)
			if !isParam || param.ID() != k.ID() {
				return shapeError(call.Method, "field %s must reference the key or aggregate the group", f.Name)
			}

			if _, known := keyFields[v.Name]; !known {
				return shapeError(call.Method, "field %s references unknown key member %s", f.Name, v.Name)
			}
		case *expr.Call:
			agg, err := bindGroupAggregate(v, g, f.Name)
			if err != nil {
				return err
			}

			apply.Aggregations = append(apply.Aggregations, agg)
		default:
			return shapeError(call.Method, "field %s must reference the key or aggregate the group", f.Name)
		}
	}

	if constKey && len(apply.Aggregations) == 0 {
		return shapeError(call.Method, "a constant key requires at least one aggregate")
	}

	re.Apply = apply
	re.ElementType = call.Type().ElemType()
	re.IncludeCount = false

	return nil
}

// bindGroupAggregate binds one aggregate over the group parameter g.
func bindGroupAggregate(c *expr.Call, g *expr.Parameter, alias string) (Aggregation, error) {
	tag, ok := expr.LookupOperator(c)
	if !ok {
		return Aggregation{}, newMethodError(c)
	}

	switch tag {
	case expr.SeqCount, expr.SeqLongCount:
		if isParam(c.Args[0], g) {
			return Aggregation{Method: MethodCount, Alias: alias, Type: c.Type()}, nil
		}

		distinct, ok := c.Args[0].(*expr.Call)
		if !ok {
			break
		}

		if t, ok := expr.LookupOperator(distinct); !ok || t != expr.SeqDistinct {
			break
		}

		sel, ok := distinct.Args[0].(*expr.Call)
		if !ok {
			break
		}

		if t, ok := expr.LookupOperator(sel); !ok || t != expr.SeqSelect || !isParam(sel.Args[0], g) {
			break
		}

		selector := sel.Args[1].(*expr.Lambda)

		path, ok := selectorPath(selector)
		if !ok {
			return Aggregation{}, shapeError(sel.Method, "count distinct requires a single property selector")
		}

		return Aggregation{Selector: selector, Property: path, Method: MethodCountDistinct, Alias: alias, Type: c.Type()}, nil
	case expr.SeqSumSelector, expr.SeqAverageSelector, expr.SeqMinSelector, expr.SeqMaxSelector:
		if !isParam(c.Args[0], g) {
			break
		}

		selector := c.Args[1].(*expr.Lambda)

		path, ok := selectorPath(selector)
		if !ok {
			return Aggregation{}, shapeError(c.Method, "selector must be a property path")
		}

		if !selector.Body.Type().IsNumeric() {
			return Aggregation{}, shapeError(c.Method, "property %s is not numeric (%s)", path, selector.Body.Type())
		}

		return Aggregation{Selector: selector, Property: path, Method: aggregationMethod(tag), Alias: alias, Type: c.Type()}, nil
	}

	return Aggregation{}, shapeError(c.Method, "unsupported group aggregate %s", expr.String(c))
}

func isParam(n expr.Node, p *expr.Parameter) bool {
	q, ok := n.(*expr.Parameter)
	return ok && q.ID() == p.ID()
}

// selectorPath returns "A/B" for a lambda whose body is x.A.B.
func selectorPath(l *expr.Lambda) (string, bool) {
	if len(l.Params) != 1 {
		return "", false
	}

	segments, ok := expr.MemberPath(l.Body, l.Params[0])
	if !ok || len(segments) == 0 {
		return "", false
	}

	return strings.Join(segments, "/"), true
}

func isPathSelector(l *expr.Lambda) bool {
	_, ok := selectorPath(l)
	return ok
}

// validateScalar checks that n only uses constructs expressible in a
// $filter or $orderby expression.
func validateScalar(n expr.Node, params []*expr.Parameter) error {
	var err error

	expr.Walk(n, func(c expr.Node) bool {
		if err != nil {
			return false
		}

		switch c := c.(type) {
		case *expr.Parameter:
			if !slices.ContainsFunc(params, func(p *expr.Parameter) bool { return p.ID() == c.ID() }) {
				err = shapeError("", "parameter %s is not in scope", c.Name)
			}
		case *expr.Call:
			if _, ok := expr.LookupFunction(c.Method, len(c.Args)); !ok {
				err = newMethodError(c)
				return false
			}

			if c.Method == "in" {
				if _, ok := c.Args[1].(*expr.Constant); !ok {
					err = shapeError("in", "right operand must be a constant collection")
				}
			}
		case *expr.Lambda, *expr.New, *expr.Resource:
			err = shapeError("", "%s cannot appear in a filter or ordering expression", expr.String(c))
		}

		return true
	})

	return err
}

func newMethodError(c *expr.Call) error {
	return &MethodError{Method: c.Method, Expr: expr.String(c)}
}
