package translate

import (
	"github.com/shibukawa/snapodata/expr"
)

// Normalizer rewrites an expression tree into canonical operator form.
// Every substitution is recorded in the rewrite map. Applying it to its
// own output changes nothing.
type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

func (n *Normalizer) Name() string {
	return "Normalizer"
}

func (n *Normalizer) Process(ctx *TranslationContext) error {
	ctx.Current = n.Normalize(ctx.Current, ctx.Rewrites)
	return nil
}

// Normalize returns the canonical form of node.
func (n *Normalizer) Normalize(node expr.Node, rewrites *RewriteMap) expr.Node {
	children := expr.Children(node)
	if len(children) > 0 {
		normalized := make([]expr.Node, len(children))
		changed := false

		for i, c := range children {
			normalized[i] = n.Normalize(c, rewrites)
			if normalized[i] != c {
				changed = true
			}
		}

		if changed {
			node = expr.WithChildren(node, normalized)
		}
	}

	replacement, ok := rewriteNode(node)
	if !ok {
		return node
	}

	if rewrites != nil {
		rewrites.Record(StageNormalize, node, replacement)
	}

	// The replacement may expose further rules, e.g. a Where produced
	// from a predicate Count sitting on top of another Where.
	return n.Normalize(replacement, rewrites)
}

// rewriteNode applies the first matching rule at the root of node.
func rewriteNode(node expr.Node) (expr.Node, bool) {
	switch node := node.(type) {
	case *expr.Unary:
		return rewriteUnary(node)
	case *expr.Binary:
		return rewriteBinary(node)
	case *expr.Call:
		return rewriteCall(node)
	default:
		return nil, false
	}
}

func rewriteUnary(u *expr.Unary) (expr.Node, bool) {
	switch u.Op {
	case expr.OpNot:
		switch operand := u.Operand.(type) {
		case *expr.Unary:
			// not not x
			if operand.Op == expr.OpNot {
				return operand.Operand, true
			}
		case *expr.Binary:
			if !operand.Op.IsComparison() {
				return nil, false
			}

			// Ordering comparisons are only invertible when neither side can be null.
			if operand.Op != expr.OpEq && operand.Op != expr.OpNe &&
				(operand.Left.Type().Nullable || operand.Right.Type().Nullable) {
				return nil, false
			}

			return expr.NewBinary(operand.Op.Inverse(), operand.Left, operand.Right), true
		}
	case expr.OpConvert:
		if u.Operand.Type().Equal(u.Type()) {
			return u.Operand, true
		}
	}

	return nil, false
}

func rewriteBinary(b *expr.Binary) (expr.Node, bool) {
	if !b.Op.IsComparison() {
		return nil, false
	}

	_, leftConst := b.Left.(*expr.Constant)
	_, rightConst := b.Right.(*expr.Constant)

	if leftConst && !rightConst {
		return expr.NewBinary(b.Op.Flip(), b.Right, b.Left), true
	}

	if b.Op != expr.OpEq && b.Op != expr.OpNe {
		return nil, false
	}

	c, ok := b.Right.(*expr.Constant)
	if !ok {
		return nil, false
	}

	value, isBool := c.Value.(bool)
	operand := b.Left.Type()

	if !isBool || operand.Kind != expr.KindBool || operand.Nullable {
		return nil, false
	}

	// x eq true, x ne false => x; x eq false, x ne true => not x
	if value == (b.Op == expr.OpEq) {
		return b.Left, true
	}

	return expr.Not(b.Left), true
}

func rewriteCall(c *expr.Call) (expr.Node, bool) {
	tag, ok := expr.LookupOperator(c)
	if !ok {
		return nil, false
	}

	switch tag {
	case expr.SeqWhere:
		inner, ok := c.Args[0].(*expr.Call)
		if !ok || inner.Method != "Where" {
			return nil, false
		}

		if innerTag, ok := expr.LookupOperator(inner); !ok || innerTag != expr.SeqWhere {
			return nil, false
		}

		return mergeWhere(inner, c), true
	case expr.SeqCountPredicate, expr.SeqLongCountPredicate,
		expr.SeqFirstPredicate, expr.SeqFirstOrDefaultPredicate,
		expr.SeqSinglePredicate, expr.SeqSingleOrDefaultPredicate:
		source := c.Args[0]
		where := expr.NewCall("Where", source.Type(), source, c.Args[1])

		return expr.NewCall(c.Method, c.Type(), where), true
	default:
		return nil, false
	}
}

// mergeWhere combines Where(Where(s, p1), p2) into Where(s, p1 and p2),
// rebinding p2 onto the parameter of p1.
func mergeWhere(inner, outer *expr.Call) expr.Node {
	first := inner.Args[1].(*expr.Lambda)
	second := outer.Args[1].(*expr.Lambda)
	param := first.Params[0]

	body := expr.And(first.Body, expr.Substitute(second.Body, second.Params[0], param))

	return expr.NewCall("Where", inner.Type(), inner.Args[0], expr.NewLambda(body, param))
}
