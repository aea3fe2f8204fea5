package expr

import (
	"sync/atomic"
)

// NodeID identifies a node for the lifetime of the process.
// IDs are never reused, so they can key rewrite maps.
type NodeID uint64

var nextNodeID atomic.Uint64

func newID() NodeID {
	return NodeID(nextNodeID.Add(1))
}

// Node is an immutable expression tree node.
// The set of implementations is closed; see the variants below.
type Node interface {
	ID() NodeID
	Type() Type
	node()
}

type base struct {
	id  NodeID
	typ Type
}

func newBase(typ Type) base {
	return base{id: newID(), typ: typ}
}

func (b base) ID() NodeID { return b.id }
func (b base) Type() Type { return b.typ }
func (b base) node()      {}

// Constant is a closed value.
type Constant struct {
	base
	Value any
}

// Parameter is a lambda parameter.
type Parameter struct {
	base
	Name string
}

// Member is a property access.
type Member struct {
	base
	Target Node
	Name   string
}

// Lambda is a function literal. Its Type is the type of Body.
type Lambda struct {
	base
	Params []*Parameter
	Body   Node
}

// Call is a sequence operator or scalar function invocation.
// For sequence operators Args[0] is the source.
type Call struct {
	base
	Method string
	Args   []Node
}

// Binary is an infix operation.
type Binary struct {
	base
	Op    BinaryOp
	Left  Node
	Right Node
}

// Unary is a prefix operation or type conversion.
type Unary struct {
	base
	Op      UnaryOp
	Operand Node
}

// Field is one named value of a New record.
type Field struct {
	Name  string
	Value Node
}

// New constructs an anonymous record.
type New struct {
	base
	Fields []Field
}

// Resource is the canonical reference to an entity set or singleton.
type Resource struct {
	base
	Name      string
	Singleton bool
}

// NewConstant creates a constant of the given static type.
func NewConstant(value any, typ Type) *Constant {
	return &Constant{base: newBase(typ), Value: value}
}

// NewParameter creates a lambda parameter.
func NewParameter(name string, typ Type) *Parameter {
	return &Parameter{base: newBase(typ), Name: name}
}

// NewMember creates a property access with an explicit result type.
func NewMember(target Node, name string, typ Type) *Member {
	return &Member{base: newBase(typ), Target: target, Name: name}
}

// NewLambda creates a lambda over params.
func NewLambda(body Node, params ...*Parameter) *Lambda {
	return &Lambda{base: newBase(body.Type()), Params: params, Body: body}
}

// NewCall creates a method call with an explicit result type.
func NewCall(method string, typ Type, args ...Node) *Call {
	return &Call{base: newBase(typ), Method: method, Args: args}
}

// NewBinary creates a binary node, deriving its result type from the operands.
func NewBinary(op BinaryOp, left, right Node) *Binary {
	return &Binary{base: newBase(binaryResultType(op, left.Type(), right.Type())), Op: op, Left: left, Right: right}
}

// NewUnary creates a not or negate node.
func NewUnary(op UnaryOp, operand Node) *Unary {
	typ := operand.Type()
	if op == OpNot {
		typ = Type{Kind: KindBool, Nullable: typ.Nullable}
	}

	return &Unary{base: newBase(typ), Op: op, Operand: operand}
}

// NewConvert creates a conversion of operand to typ.
func NewConvert(operand Node, typ Type) *Unary {
	return &Unary{base: newBase(typ), Op: OpConvert, Operand: operand}
}

// NewRecord creates a New node whose type lists the fields in order.
func NewRecord(fields ...Field) *New {
	props := make([]Property, len(fields))
	for i, f := range fields {
		props[i] = Property{Name: f.Name, Type: f.Value.Type()}
	}

	return &New{base: newBase(RecordType(props...)), Fields: fields}
}

// NewResource creates a resource reference. Sets have a sequence type.
func NewResource(name string, elem Type, singleton bool) *Resource {
	typ := SequenceOf(elem)
	if singleton {
		typ = elem
	}

	return &Resource{base: newBase(typ), Name: name, Singleton: singleton}
}

func binaryResultType(op BinaryOp, left, right Type) Type {
	nullable := left.Nullable || right.Nullable

	if op.IsComparison() || op == OpAnd || op == OpOr {
		return Type{Kind: KindBool, Nullable: nullable && (op == OpAnd || op == OpOr)}
	}

	result := left
	if numericRank(right.Kind) > numericRank(left.Kind) {
		result = right
	}

	result.Nullable = nullable

	return result
}

func numericRank(k Kind) int {
	switch k {
	case KindInt32:
		return 1
	case KindInt64:
		return 2
	case KindSingle:
		return 3
	case KindDouble:
		return 4
	case KindDecimal:
		return 5
	default:
		return 0
	}
}
