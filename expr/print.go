package expr

import (
	"fmt"
	"strings"
)

// String renders n in a compact, deterministic form used in error
// messages and tests, e.g. Where(People, x => (x.Age gt 30)).
func String(n Node) string {
	var b strings.Builder
	writeNode(&b, n)

	return b.String()
}

func writeNode(b *strings.Builder, n Node) {
	switch n := n.(type) {
	case nil:
		b.WriteString("<nil>")
	case *Constant:
		if s, ok := n.Value.(string); ok {
			fmt.Fprintf(b, "%q", s)
		} else if n.Value == nil {
			b.WriteString("null")
		} else {
			fmt.Fprintf(b, "%v", n.Value)
		}
	case *Parameter:
		b.WriteString(n.Name)
	case *Member:
		writeNode(b, n.Target)
		b.WriteString(".")
		b.WriteString(n.Name)
	case *Lambda:
		if len(n.Params) == 1 {
			b.WriteString(n.Params[0].Name)
		} else {
			b.WriteString("(")

			for i, p := range n.Params {
				if i > 0 {
					b.WriteString(", ")
				}

				b.WriteString(p.Name)
			}

			b.WriteString(")")
		}

		b.WriteString(" => ")
		writeNode(b, n.Body)
	case *Call:
		b.WriteString(n.Method)
		b.WriteString("(")

		for i, a := range n.Args {
			if i > 0 {
				b.WriteString(", ")
			}

			writeNode(b, a)
		}

		b.WriteString(")")
	case *Binary:
		b.WriteString("(")
		writeNode(b, n.Left)
		b.WriteString(" ")
		b.WriteString(n.Op.String())
		b.WriteString(" ")
		writeNode(b, n.Right)
		b.WriteString(")")
	case *Unary:
		switch n.Op {
		case OpConvert:
			fmt.Fprintf(b, "convert<%s>(", n.Type())
			writeNode(b, n.Operand)
			b.WriteString(")")
		case OpNot:
			b.WriteString("not ")
			writeNode(b, n.Operand)
		default:
			b.WriteString("-")
			writeNode(b, n.Operand)
		}
	case *New:
		b.WriteString("new {")

		for i, f := range n.Fields {
			if i > 0 {
				b.WriteString(", ")
			}

			b.WriteString(f.Name)
			b.WriteString(" = ")
			writeNode(b, f.Value)
		}

		b.WriteString("}")
	case *Resource:
		b.WriteString(n.Name)
	default:
		fmt.Fprintf(b, "<%T>", n)
	}
}
