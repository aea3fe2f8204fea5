package expr

// Query is a fluent builder for sequence operator chains.
//
//	q := expr.From("People", person).
//		Where(func(x expr.Node) expr.Node { return expr.Gt(expr.Prop(x, "Age"), expr.Const(30)) }).
//		OrderBy(func(x expr.Node) expr.Node { return expr.Prop(x, "Name") })
type Query struct {
	node Node
}

// From starts a query over an entity set.
func From(name string, elem Type) *Query {
	return &Query{node: NewResource(name, elem, false)}
}

// FromSingleton starts a query over a singleton.
func FromSingleton(name string, elem Type) *Query {
	return &Query{node: NewResource(name, elem, true)}
}

// Over wraps an existing sequence-typed node, such as a group parameter.
func Over(n Node) *Query {
	return &Query{node: n}
}

// Node returns the built expression.
func (q *Query) Node() Node {
	return q.node
}

func (q *Query) elem() Type {
	return q.node.Type().ElemType()
}

func (q *Query) call(method string, typ Type, args ...Node) *Query {
	return &Query{node: NewCall(method, typ, append([]Node{q.node}, args...)...)}
}

func (q *Query) Where(pred func(x Node) Node) *Query {
	return q.call("Where", q.node.Type(), Lambda1(q.elem(), pred))
}

func (q *Query) OrderBy(key func(x Node) Node) *Query {
	return q.call("OrderBy", q.node.Type(), Lambda1(q.elem(), key))
}

func (q *Query) OrderByDescending(key func(x Node) Node) *Query {
	return q.call("OrderByDescending", q.node.Type(), Lambda1(q.elem(), key))
}

func (q *Query) ThenBy(key func(x Node) Node) *Query {
	return q.call("ThenBy", q.node.Type(), Lambda1(q.elem(), key))
}

func (q *Query) ThenByDescending(key func(x Node) Node) *Query {
	return q.call("ThenByDescending", q.node.Type(), Lambda1(q.elem(), key))
}

func (q *Query) Select(selector func(x Node) Node) *Query {
	l := Lambda1(q.elem(), selector)
	return q.call("Select", SequenceOf(l.Body.Type()), l)
}

func (q *Query) Skip(n int) *Query {
	return q.call("Skip", q.node.Type(), Const(n))
}

func (q *Query) Take(n int) *Query {
	return q.call("Take", q.node.Type(), Const(n))
}

func (q *Query) Distinct() *Query {
	return q.call("Distinct", q.node.Type())
}

// IncludeCount requests the total count alongside the results.
func (q *Query) IncludeCount() *Query {
	return q.call("IncludeCount", q.node.Type())
}

func (q *Query) Count() *Query {
	return q.call("Count", Int32Type)
}

func (q *Query) CountWhere(pred func(x Node) Node) *Query {
	return q.call("Count", Int32Type, Lambda1(q.elem(), pred))
}

func (q *Query) LongCount() *Query {
	return q.call("LongCount", Int64Type)
}

func (q *Query) LongCountWhere(pred func(x Node) Node) *Query {
	return q.call("LongCount", Int64Type, Lambda1(q.elem(), pred))
}

func (q *Query) First() *Query {
	return q.call("First", q.elem())
}

func (q *Query) FirstWhere(pred func(x Node) Node) *Query {
	return q.call("First", q.elem(), Lambda1(q.elem(), pred))
}

func (q *Query) FirstOrDefault() *Query {
	return q.call("FirstOrDefault", q.elem().AsNullable())
}

func (q *Query) FirstOrDefaultWhere(pred func(x Node) Node) *Query {
	return q.call("FirstOrDefault", q.elem().AsNullable(), Lambda1(q.elem(), pred))
}

func (q *Query) Single() *Query {
	return q.call("Single", q.elem())
}

func (q *Query) SingleWhere(pred func(x Node) Node) *Query {
	return q.call("Single", q.elem(), Lambda1(q.elem(), pred))
}

func (q *Query) SingleOrDefault() *Query {
	return q.call("SingleOrDefault", q.elem().AsNullable())
}

func (q *Query) SingleOrDefaultWhere(pred func(x Node) Node) *Query {
	return q.call("SingleOrDefault", q.elem().AsNullable(), Lambda1(q.elem(), pred))
}

// Sum aggregates the selector, or the elements themselves when selector is nil.
func (q *Query) Sum(selector func(x Node) Node) *Query {
	return q.aggregate("Sum", selector)
}

// Average aggregates the selector, or the elements themselves when selector is nil.
func (q *Query) Average(selector func(x Node) Node) *Query {
	return q.aggregate("Average", selector)
}

// Min aggregates the selector, or the elements themselves when selector is nil.
func (q *Query) Min(selector func(x Node) Node) *Query {
	return q.aggregate("Min", selector)
}

// Max aggregates the selector, or the elements themselves when selector is nil.
func (q *Query) Max(selector func(x Node) Node) *Query {
	return q.aggregate("Max", selector)
}

func (q *Query) aggregate(method string, selector func(x Node) Node) *Query {
	if selector == nil {
		return q.call(method, AggregateType(method, q.elem()))
	}

	l := Lambda1(q.elem(), selector)

	return q.call(method, AggregateType(method, l.Body.Type()), l)
}

// GroupBy groups by key and shapes each group with result, which receives
// the key and the group sequence.
func (q *Query) GroupBy(key func(x Node) Node, result func(key, group Node) Node) *Query {
	k := Lambda1(q.elem(), key)
	r := Lambda2(k.Body.Type(), q.node.Type(), result)

	return q.call("GroupBy", SequenceOf(r.Body.Type()), k, r)
}

// AggregateType is the result type of an aggregate method over values of t.
func AggregateType(method string, t Type) Type {
	if method == "Average" && t.IsIntegral() {
		return Type{Kind: KindDouble, Nullable: t.Nullable}
	}

	return t
}

// Lambda1 builds a one-parameter lambda whose parameter has type t.
func Lambda1(t Type, body func(x Node) Node) *Lambda {
	p := NewParameter("x", t)
	return NewLambda(body(p), p)
}

// Lambda2 builds a two-parameter lambda.
func Lambda2(t1, t2 Type, body func(a, b Node) Node) *Lambda {
	a := NewParameter("k", t1)
	b := NewParameter("g", t2)

	return NewLambda(body(a, b), a, b)
}

// Prop accesses a property, taking its type from the target's type.
func Prop(target Node, name string) *Member {
	typ := AnyType
	if p, ok := target.Type().Property(name); ok {
		typ = p.Type
	}

	return NewMember(target, name, typ)
}

// Const creates a constant typed from its Go value.
func Const(v any) *Constant {
	return NewConstant(v, TypeOf(v))
}

// Null creates a null constant of type t.
func Null(t Type) *Constant {
	return NewConstant(nil, t.AsNullable())
}

func Eq(l, r Node) *Binary  { return NewBinary(OpEq, l, r) }
func Ne(l, r Node) *Binary  { return NewBinary(OpNe, l, r) }
func Gt(l, r Node) *Binary  { return NewBinary(OpGt, l, r) }
func Ge(l, r Node) *Binary  { return NewBinary(OpGe, l, r) }
func Lt(l, r Node) *Binary  { return NewBinary(OpLt, l, r) }
func Le(l, r Node) *Binary  { return NewBinary(OpLe, l, r) }
func And(l, r Node) *Binary { return NewBinary(OpAnd, l, r) }
func Or(l, r Node) *Binary  { return NewBinary(OpOr, l, r) }
func Add(l, r Node) *Binary { return NewBinary(OpAdd, l, r) }
func Sub(l, r Node) *Binary { return NewBinary(OpSub, l, r) }
func Mul(l, r Node) *Binary { return NewBinary(OpMul, l, r) }
func Div(l, r Node) *Binary { return NewBinary(OpDiv, l, r) }
func Mod(l, r Node) *Binary { return NewBinary(OpMod, l, r) }

func Not(n Node) *Unary    { return NewUnary(OpNot, n) }
func Negate(n Node) *Unary { return NewUnary(OpNegate, n) }

// Convert wraps n in a conversion to t.
func Convert(n Node, t Type) *Unary {
	return NewConvert(n, t)
}

// Func calls a scalar function such as contains or tolower.
func Func(name string, args ...Node) *Call {
	typ := AnyType
	if f, ok := LookupFunction(name, len(args)); ok {
		typ = f.ResultType(args)
	}

	return NewCall(name, typ, args...)
}

// Record creates an anonymous record from name/value pairs.
func Record(fields ...Field) *New {
	return NewRecord(fields...)
}
