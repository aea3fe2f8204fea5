package expr

import (
	"fmt"
	"iter"
)

// Children returns the direct child nodes of n in evaluation order.
// Lambda parameters are not children; only the body is.
func Children(n Node) []Node {
	switch n := n.(type) {
	case *Member:
		return []Node{n.Target}
	case *Lambda:
		return []Node{n.Body}
	case *Call:
		return n.Args
	case *Binary:
		return []Node{n.Left, n.Right}
	case *Unary:
		return []Node{n.Operand}
	case *New:
		children := make([]Node, len(n.Fields))
		for i, f := range n.Fields {
			children[i] = f.Value
		}

		return children
	default:
		return nil
	}
}

// Walk visits n and its descendants in pre-order. Returning false from fn
// skips the children of the visited node.
func Walk(n Node, fn func(Node) bool) {
	if !fn(n) {
		return
	}

	for _, c := range Children(n) {
		Walk(c, fn)
	}
}

// All iterates n and every descendant in pre-order.
func All(n Node) iter.Seq[Node] {
	return func(yield func(Node) bool) {
		stop := false

		Walk(n, func(c Node) bool {
			if stop {
				return false
			}

			if !yield(c) {
				stop = true
				return false
			}

			return true
		})
	}
}

// Rewrite rebuilds n bottom-up. fn is called on every node after its
// children have been rewritten; returning the argument keeps it.
// Subtrees that do not change are shared with the input.
func Rewrite(n Node, fn func(Node) Node) Node {
	children := Children(n)
	if len(children) > 0 {
		rewritten := make([]Node, len(children))
		changed := false

		for i, c := range children {
			rewritten[i] = Rewrite(c, fn)
			if rewritten[i] != c {
				changed = true
			}
		}

		if changed {
			n = WithChildren(n, rewritten)
		}
	}

	return fn(n)
}

// WithChildren returns a copy of n with its children replaced. The copy
// gets a fresh NodeID. children must match the shape returned by Children.
func WithChildren(n Node, children []Node) Node {
	switch n := n.(type) {
	case *Member:
		return NewMember(children[0], n.Name, n.Type())
	case *Lambda:
		return NewLambda(children[0], n.Params...)
	case *Call:
		return NewCall(n.Method, n.Type(), children...)
	case *Binary:
		b := NewBinary(n.Op, children[0], children[1])
		b.typ = n.Type()

		return b
	case *Unary:
		u := &Unary{base: newBase(n.Type()), Op: n.Op, Operand: children[0]}
		if n.Op == OpNegate {
			u.typ = children[0].Type()
		}

		return u
	case *New:
		fields := make([]Field, len(n.Fields))
		for i, f := range n.Fields {
			fields[i] = Field{Name: f.Name, Value: children[i]}
		}

		return NewRecord(fields...)
	default:
		panic(fmt.Sprintf("expr: %T has no children", n))
	}
}

// References reports whether p occurs anywhere inside n.
func References(n Node, p *Parameter) bool {
	found := false

	Walk(n, func(c Node) bool {
		if found {
			return false
		}

		if q, ok := c.(*Parameter); ok && q.ID() == p.ID() {
			found = true
		}

		return true
	})

	return found
}

// Substitute replaces every occurrence of parameter from by to.
func Substitute(n Node, from *Parameter, to Node) Node {
	return Rewrite(n, func(c Node) Node {
		if q, ok := c.(*Parameter); ok && q.ID() == from.ID() {
			return to
		}

		return c
	})
}

// MemberPath returns the property path of a member chain rooted at root,
// e.g. x.Address.City yields ["Address", "City"].
func MemberPath(n Node, root *Parameter) ([]string, bool) {
	var path []string

	for {
		switch m := n.(type) {
		case *Member:
			path = append([]string{m.Name}, path...)
			n = m.Target
		case *Parameter:
			if m.ID() != root.ID() {
				return nil, false
			}

			return path, true
		default:
			return nil, false
		}
	}
}
