package expr

import (
	"reflect"

	"github.com/shopspring/decimal"
)

// Equal reports structural equality of two trees, ignoring NodeIDs.
// Lambda parameters are matched by position, not by name.
func Equal(a, b Node) bool {
	return equalNodes(a, b, map[NodeID]NodeID{})
}

func equalNodes(a, b Node, params map[NodeID]NodeID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if !a.Type().Equal(b.Type()) {
		return false
	}

	switch x := a.(type) {
	case *Constant:
		y, ok := b.(*Constant)
		return ok && equalValues(x.Value, y.Value)
	case *Parameter:
		y, ok := b.(*Parameter)
		if !ok {
			return false
		}

		if mapped, bound := params[x.ID()]; bound {
			return mapped == y.ID()
		}

		return x.ID() == y.ID()
	case *Member:
		y, ok := b.(*Member)
		return ok && x.Name == y.Name && equalNodes(x.Target, y.Target, params)
	case *Lambda:
		y, ok := b.(*Lambda)
		if !ok || len(x.Params) != len(y.Params) {
			return false
		}

		for i, p := range x.Params {
			if !p.Type().Equal(y.Params[i].Type()) {
				return false
			}

			params[p.ID()] = y.Params[i].ID()
		}

		return equalNodes(x.Body, y.Body, params)
	case *Call:
		y, ok := b.(*Call)
		if !ok || x.Method != y.Method || len(x.Args) != len(y.Args) {
			return false
		}

		for i := range x.Args {
			if !equalNodes(x.Args[i], y.Args[i], params) {
				return false
			}
		}

		return true
	case *Binary:
		y, ok := b.(*Binary)
		return ok && x.Op == y.Op && equalNodes(x.Left, y.Left, params) && equalNodes(x.Right, y.Right, params)
	case *Unary:
		y, ok := b.(*Unary)
		return ok && x.Op == y.Op && equalNodes(x.Operand, y.Operand, params)
	case *New:
		y, ok := b.(*New)
		if !ok || len(x.Fields) != len(y.Fields) {
			return false
		}

		for i := range x.Fields {
			if x.Fields[i].Name != y.Fields[i].Name || !equalNodes(x.Fields[i].Value, y.Fields[i].Value, params) {
				return false
			}
		}

		return true
	case *Resource:
		y, ok := b.(*Resource)
		return ok && x.Name == y.Name && x.Singleton == y.Singleton
	default:
		return false
	}
}

func equalValues(a, b any) bool {
	if da, ok := a.(decimal.Decimal); ok {
		db, ok := b.(decimal.Decimal)
		return ok && da.Equal(db)
	}

	return reflect.DeepEqual(a, b)
}
