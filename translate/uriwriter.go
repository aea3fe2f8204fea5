package translate

import (
	"fmt"
	"math"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shibukawa/snapodata"
	"github.com/shibukawa/snapodata/edm"
	"github.com/shibukawa/snapodata/expr"
	"github.com/shopspring/decimal"
)

// URIWriter renders a ResourceExpression as a URI and computes the
// protocol version the query needs.
type URIWriter struct {
	baseURL string
	model   edm.Model
}

func NewURIWriter(baseURL string, model edm.Model) *URIWriter {
	return &URIWriter{baseURL: baseURL, model: model}
}

func (w *URIWriter) Name() string {
	return "URIWriter"
}

func (w *URIWriter) Process(ctx *TranslationContext) error {
	if ctx.Resource == nil {
		return fmt.Errorf("%w: no resource expression to write", snapodata.ErrInternal)
	}

	uri, version, err := w.Write(ctx.Resource)
	if err != nil {
		return err
	}

	ctx.URI = uri
	ctx.Version = version

	return nil
}

// Write renders re. Options appear in the order $apply, $filter,
// $orderby, $skip, $top, $select, $count.
func (w *URIWriter) Write(re *ResourceExpression) (string, snapodata.ProtocolVersion, error) {
	ew := &exprWriter{version: snapodata.Version40}

	var options []string

	if re.Apply != nil {
		apply, err := ew.apply(re)
		if err != nil {
			return "", snapodata.VersionUnknown, err
		}

		options = append(options, "$apply="+apply)
	} else if re.Filter != nil {
		filter, err := ew.lambda(re.Filter)
		if err != nil {
			return "", snapodata.VersionUnknown, err
		}

		options = append(options, "$filter="+filter)
	}

	if len(re.OrderBy) > 0 {
		keys := make([]string, len(re.OrderBy))

		for i, k := range re.OrderBy {
			key, err := ew.lambda(k.Key)
			if err != nil {
				return "", snapodata.VersionUnknown, err
			}

			if k.Descending {
				key += " desc"
			}

			keys[i] = key
		}

		options = append(options, "$orderby="+strings.Join(keys, ","))
	}

	if re.Skip != nil {
		options = append(options, "$skip="+strconv.Itoa(*re.Skip))
	}

	if re.Top != nil {
		options = append(options, "$top="+strconv.Itoa(*re.Top))
	}

	if re.Projection != nil && len(re.Projection.Paths) > 0 {
		options = append(options, "$select="+strings.Join(re.Projection.Paths, ","))
	}

	if re.IncludeCount && !re.Terminal.IsScalar() {
		options = append(options, "$count=true")
	}

	uri := ResourceURI(w.baseURL, re.Name)
	if re.HasOptions() {
		uri += "()"
	}

	if re.Terminal == TerminalCount || re.Terminal == TerminalLongCount {
		uri += "/$count"
	}

	if len(options) > 0 {
		uri += "?" + strings.Join(options, "&")
	}

	if w.model != nil && !w.model.MaxProtocolVersion().AtLeast(ew.version) {
		return "", snapodata.VersionUnknown, fmt.Errorf("%w: query needs %s, service supports %s",
			snapodata.ErrProtocolVersion, ew.version, w.model.MaxProtocolVersion())
	}

	return uri, ew.version, nil
}

// ResourceURI joins the service root and a resource name.
func ResourceURI(baseURL, name string) string {
	if baseURL == "" {
		return name
	}

	return strings.TrimRight(baseURL, "/") + "/" + name
}

type exprWriter struct {
	version snapodata.ProtocolVersion
	params  []*expr.Parameter
}

func (w *exprWriter) require(v snapodata.ProtocolVersion) {
	w.version = snapodata.MaxVersion(w.version, v)
}

func (w *exprWriter) apply(re *ResourceExpression) (string, error) {
	var b strings.Builder

	if re.Filter != nil {
		filter, err := w.lambda(re.Filter)
		if err != nil {
			return "", err
		}

		b.WriteString("filter(")
		b.WriteString(filter)
		b.WriteString(")/")
	}

	aggregates := make([]string, len(re.Apply.Aggregations))

	for i, a := range re.Apply.Aggregations {
		if a.Method == MethodCount {
			aggregates[i] = "$count as " + a.Alias
			continue
		}

		aggregates[i] = fmt.Sprintf("%s with %s as %s", a.Property, a.Method.Keyword(), a.Alias)
	}

	aggregate := ""
	if len(aggregates) > 0 {
		aggregate = "aggregate(" + strings.Join(aggregates, ",") + ")"
	}

	if len(re.Apply.GroupBy) == 0 {
		b.WriteString(aggregate)
		return b.String(), nil
	}

	b.WriteString("groupby((")
	b.WriteString(strings.Join(re.Apply.GroupBy, ","))
	b.WriteString(")")

	if aggregate != "" {
		b.WriteString(",")
		b.WriteString(aggregate)
	}

	b.WriteString(")")

	return b.String(), nil
}

func (w *exprWriter) lambda(l *expr.Lambda) (string, error) {
	saved := w.params
	w.params = l.Params

	defer func() { w.params = saved }()

	return w.node(l.Body)
}

func (w *exprWriter) isParam(n expr.Node) bool {
	p, ok := n.(*expr.Parameter)
	if !ok {
		return false
	}

	for _, q := range w.params {
		if q.ID() == p.ID() {
			return true
		}
	}

	return false
}

func (w *exprWriter) node(n expr.Node) (string, error) {
	switch n := n.(type) {
	case *expr.Constant:
		return FormatLiteral(n.Value)
	case *expr.Parameter:
		if w.isParam(n) {
			return "$it", nil
		}

		return "", shapeError("", "parameter %s is not in scope", n.Name)
	case *expr.Member:
		if w.isParam(n.Target) {
			return n.Name, nil
		}

		target, err := w.node(n.Target)
		if err != nil {
			return "", err
		}

		return target + "/" + n.Name, nil
	case *expr.Binary:
		return w.binary(n)
	case *expr.Unary:
		return w.unary(n)
	case *expr.Call:
		return w.call(n)
	default:
		return "", shapeError("", "%s cannot be written as a query option", expr.String(n))
	}
}

func (w *exprWriter) binary(b *expr.Binary) (string, error) {
	left, err := w.operand(b.Left, b.Op.Precedence(), false)
	if err != nil {
		return "", err
	}

	right, err := w.operand(b.Right, b.Op.Precedence(), !associative(b.Op))
	if err != nil {
		return "", err
	}

	return left + " " + b.Op.String() + " " + right, nil
}

func associative(op expr.BinaryOp) bool {
	return op == expr.OpAnd || op == expr.OpOr || op == expr.OpAdd || op == expr.OpMul
}

// operand parenthesizes a binary child that binds looser than its parent,
// or equally tight on the right of a non-associative operator.
func (w *exprWriter) operand(n expr.Node, parent int, strictRight bool) (string, error) {
	s, err := w.node(n)
	if err != nil {
		return "", err
	}

	if b, ok := n.(*expr.Binary); ok {
		p := b.Op.Precedence()
		if p < parent || (strictRight && p == parent) {
			return "(" + s + ")", nil
		}
	}

	return s, nil
}

func (w *exprWriter) unary(u *expr.Unary) (string, error) {
	if u.Op == expr.OpConvert {
		return w.node(u.Operand)
	}

	operand, err := w.node(u.Operand)
	if err != nil {
		return "", err
	}

	if _, ok := u.Operand.(*expr.Binary); ok {
		operand = "(" + operand + ")"
	}

	if u.Op == expr.OpNot {
		return "not " + operand, nil
	}

	return "-" + operand, nil
}

func (w *exprWriter) call(c *expr.Call) (string, error) {
	f, ok := expr.LookupFunction(c.Method, len(c.Args))
	if !ok {
		return "", newMethodError(c)
	}

	w.require(f.MinVersion)

	args := make([]string, len(c.Args))

	for i, a := range c.Args {
		s, err := w.node(a)
		if err != nil {
			return "", err
		}

		args[i] = s
	}

	if c.Method == "in" {
		return args[0] + " in " + args[1], nil
	}

	return c.Method + "(" + strings.Join(args, ",") + ")", nil
}

// FormatLiteral renders a constant in URL literal form. The content of
// string literals is percent-encoded, so the result can be placed in a
// query string as is.
func FormatLiteral(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "null", nil
	case bool:
		return strconv.FormatBool(x), nil
	case string:
		return "'" + escapeLiteral(strings.ReplaceAll(x, "'", "''")) + "'", nil
	case float32:
		return formatFloat(float64(x), 32), nil
	case float64:
		return formatFloat(x, 64), nil
	case decimal.Decimal:
		return x.String(), nil
	case uuid.UUID:
		return x.String(), nil
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano), nil
	}

	if n, ok := expr.IntValue(v); ok {
		return strconv.FormatInt(n, 10), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Uint, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Pointer:
		if rv.IsNil() {
			return "null", nil
		}

		return FormatLiteral(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		items := make([]string, rv.Len())

		for i := range rv.Len() {
			s, err := FormatLiteral(rv.Index(i).Interface())
			if err != nil {
				return "", err
			}

			items[i] = s
		}

		return "(" + strings.Join(items, ",") + ")", nil
	}

	return "", fmt.Errorf("%w: cannot write literal of type %T", snapodata.ErrUnsupportedQueryShape, v)
}

func formatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "INF"
	case math.IsInf(f, -1):
		return "-INF"
	default:
		// Exponents are written without '+'.
		return strings.Replace(strconv.FormatFloat(f, 'g', -1, bits), "e+", "e", 1)
	}
}

// escapeLiteral percent-encodes everything but unreserved characters and
// the quote, which is already doubled.
func escapeLiteral(s string) string {
	escaped := url.QueryEscape(s)
	escaped = strings.ReplaceAll(escaped, "+", "%20")

	return strings.ReplaceAll(escaped, "%27", "'")
}
