package translate

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"
	"github.com/google/uuid"
	"github.com/shibukawa/snapodata"
	"github.com/shibukawa/snapodata/expr"
	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/types/known/structpb"
)

var errNotClosed = errors.New("expression is not closed")

// celOperators maps foldable binary operators to CEL syntax.
var celOperators = map[expr.BinaryOp]string{
	expr.OpEq:  "a0 == a1",
	expr.OpNe:  "a0 != a1",
	expr.OpGt:  "a0 > a1",
	expr.OpGe:  "a0 >= a1",
	expr.OpLt:  "a0 < a1",
	expr.OpLe:  "a0 <= a1",
	expr.OpAnd: "a0 && a1",
	expr.OpOr:  "a0 || a1",
	expr.OpAdd: "a0 + a1",
	expr.OpSub: "a0 - a1",
	expr.OpMul: "a0 * a1",
	expr.OpDiv: "a0 / a1",
	expr.OpMod: "a0 % a1",
}

// celFunctions maps scalar functions to CEL syntax.
var celFunctions = map[string]string{
	"contains":   "a0.contains(a1)",
	"startswith": "a0.startsWith(a1)",
	"endswith":   "a0.endsWith(a1)",
	"tolower":    "a0.lowerAscii()",
	"toupper":    "a0.upperAscii()",
	"trim":       "a0.trim()",
	"length":     "size(a0)",
	"indexof":    "a0.indexOf(a1)",
	"year":       "a0.getFullYear()",
	"month":      "a0.getMonth() + 1",
	"day":        "a0.getDate()",
	"in":         "a0 in a1",
}

// PartialEvaluator folds closed sub-expressions into constants.
// A sub-expression is closed when it references no lambda parameter,
// no resource and no sequence operator.
type PartialEvaluator struct {
	env      *cel.Env
	programs map[string]cel.Program
}

// NewPartialEvaluator creates an evaluator with its own program cache.
func NewPartialEvaluator() (*PartialEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("a0", cel.DynType),
		cel.Variable("a1", cel.DynType),
		ext.Strings(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &PartialEvaluator{env: env, programs: make(map[string]cel.Program)}, nil
}

func (e *PartialEvaluator) Name() string {
	return "PartialEvaluator"
}

func (e *PartialEvaluator) Process(ctx *TranslationContext) error {
	result, err := e.Evaluate(ctx.Current, ctx.Rewrites)
	if err != nil {
		return err
	}

	ctx.Current = result

	return nil
}

// Evaluate returns n with every closed sub-tree replaced by a constant.
// Folds are recorded in rewrites when it is non-nil.
func (e *PartialEvaluator) Evaluate(n expr.Node, rewrites *RewriteMap) (expr.Node, error) {
	return e.fold(n, rewrites)
}

func (e *PartialEvaluator) fold(n expr.Node, rewrites *RewriteMap) (expr.Node, error) {
	children := expr.Children(n)
	if len(children) == 0 {
		return n, nil
	}

	folded := make([]expr.Node, len(children))
	changed := false
	closed := foldable(n)

	for i, c := range children {
		f, err := e.fold(c, rewrites)
		if err != nil {
			return nil, err
		}

		folded[i] = f
		if f != c {
			changed = true
		}

		if _, ok := f.(*expr.Constant); !ok {
			closed = false
		}
	}

	if closed {
		value, err := e.evaluateNode(n, folded)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", snapodata.ErrEvaluation, expr.String(n), err)
		}

		replacement := expr.NewConstant(value, constantType(value, n.Type()))
		if rewrites != nil {
			rewrites.Record(StageEvaluate, n, replacement)
		}

		return replacement, nil
	}

	if changed {
		return expr.WithChildren(n, folded), nil
	}

	return n, nil
}

// foldable reports whether n can be computed once all children are constants.
func foldable(n expr.Node) bool {
	switch n := n.(type) {
	case *expr.Member, *expr.Binary, *expr.Unary:
		return true
	case *expr.Call:
		_, ok := expr.LookupFunction(n.Method, len(n.Args))
		return ok && !expr.IsSequenceOperator(n.Method)
	default:
		return false
	}
}

func (e *PartialEvaluator) evaluateNode(n expr.Node, args []expr.Node) (any, error) {
	values := make([]any, len(args))
	for i, a := range args {
		values[i] = a.(*expr.Constant).Value
	}

	switch n := n.(type) {
	case *expr.Member:
		return memberValue(values[0], n.Name)
	case *expr.Unary:
		return e.evaluateUnary(n, values[0])
	case *expr.Binary:
		return e.evaluateBinary(n.Op, values[0], values[1], n.Type())
	case *expr.Call:
		return e.evaluateFunction(n.Method, values, n.Type())
	default:
		return nil, errNotClosed
	}
}

func (e *PartialEvaluator) evaluateUnary(n *expr.Unary, v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch n.Op {
	case expr.OpNot:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("not applied to %T", v)
		}

		return !b, nil
	case expr.OpNegate:
		if d, ok := v.(decimal.Decimal); ok {
			return d.Neg(), nil
		}

		result, err := e.run("-a0", celOperand(v), nil)
		if err != nil {
			return nil, err
		}

		return convertValue(result, n.Type())
	default:
		return convertValue(v, n.Type())
	}
}

func (e *PartialEvaluator) evaluateBinary(op expr.BinaryOp, l, r any, typ expr.Type) (any, error) {
	if l == nil || r == nil {
		return liftNull(op, l, r), nil
	}

	_, ld := l.(decimal.Decimal)
	_, rd := r.(decimal.Decimal)

	if ld || rd {
		return evaluateDecimal(op, l, r, typ)
	}

	a0, a1 := celOperand(l), celOperand(r)
	a0, a1 = promote(a0, a1)

	result, err := e.run(celOperators[op], a0, a1)
	if err != nil {
		return nil, err
	}

	return convertValue(result, typ)
}

// liftNull applies null semantics: arithmetic yields null, eq and ne
// compare null-ness, other comparisons are false.
func liftNull(op expr.BinaryOp, l, r any) any {
	switch op {
	case expr.OpEq:
		return l == nil && r == nil
	case expr.OpNe:
		return !(l == nil && r == nil)
	case expr.OpGt, expr.OpGe, expr.OpLt, expr.OpLe:
		return false
	case expr.OpAnd:
		if l == false || r == false {
			return false
		}

		return nil
	case expr.OpOr:
		if l == true || r == true {
			return true
		}

		return nil
	default:
		return nil
	}
}

func evaluateDecimal(op expr.BinaryOp, l, r any, typ expr.Type) (any, error) {
	a, err := toDecimal(l)
	if err != nil {
		return nil, err
	}

	b, err := toDecimal(r)
	if err != nil {
		return nil, err
	}

	switch op {
	case expr.OpEq:
		return a.Equal(b), nil
	case expr.OpNe:
		return !a.Equal(b), nil
	case expr.OpGt:
		return a.GreaterThan(b), nil
	case expr.OpGe:
		return a.GreaterThanOrEqual(b), nil
	case expr.OpLt:
		return a.LessThan(b), nil
	case expr.OpLe:
		return a.LessThanOrEqual(b), nil
	case expr.OpAdd:
		return convertValue(a.Add(b), typ)
	case expr.OpSub:
		return convertValue(a.Sub(b), typ)
	case expr.OpMul:
		return convertValue(a.Mul(b), typ)
	case expr.OpDiv:
		if b.IsZero() {
			return nil, errors.New("division by zero")
		}

		return convertValue(a.Div(b), typ)
	case expr.OpMod:
		if b.IsZero() {
			return nil, errors.New("modulus by zero")
		}

		return convertValue(a.Mod(b), typ)
	default:
		return nil, fmt.Errorf("operator %s is not defined for decimals", op)
	}
}

func (e *PartialEvaluator) evaluateFunction(name string, values []any, typ expr.Type) (any, error) {
	for _, v := range values {
		if v == nil {
			return nil, nil
		}
	}

	source, ok := celFunctions[name]
	if !ok {
		return nil, fmt.Errorf("function %s cannot be evaluated", name)
	}

	a0 := celOperand(values[0])

	var a1 any
	if len(values) > 1 {
		a1 = celOperand(values[1])
	}

	result, err := e.run(source, a0, a1)
	if err != nil {
		return nil, err
	}

	return convertValue(result, typ)
}

// run compiles source once per evaluator and evaluates it.
func (e *PartialEvaluator) run(source string, a0, a1 any) (any, error) {
	program, ok := e.programs[source]
	if !ok {
		ast, issues := e.env.Compile(source)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("failed to compile expression '%s': %w", source, issues.Err())
		}

		var err error

		program, err = e.env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("failed to create program for expression '%s': %w", source, err)
		}

		e.programs[source] = program
	}

	vars := map[string]any{"a0": a0}
	if a1 != nil {
		vars["a1"] = a1
	}

	result, _, err := program.Eval(vars)
	if err != nil {
		return nil, err
	}

	if _, isNull := result.Value().(structpb.NullValue); isNull {
		return nil, nil
	}

	return result.Value(), nil
}

// memberValue resolves a field or map entry of a captured value.
func memberValue(v any, name string) (any, error) {
	if v == nil {
		return nil, fmt.Errorf("member %s accessed on null", name)
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, fmt.Errorf("member %s accessed on null", name)
		}

		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Struct:
		f := rv.FieldByName(name)
		if !f.IsValid() || !f.CanInterface() {
			return nil, fmt.Errorf("no exported field %s on %s", name, rv.Type())
		}

		return derefValue(f), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("map key type %s is not string", rv.Type().Key())
		}

		f := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !f.IsValid() {
			return nil, fmt.Errorf("no key %s in map", name)
		}

		return derefValue(f), nil
	default:
		return nil, fmt.Errorf("member %s accessed on %s", name, rv.Type())
	}
}

func derefValue(v reflect.Value) any {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil
		}

		v = v.Elem()
	}

	return v.Interface()
}

// celOperand converts Go values to the representations CEL operates on.
func celOperand(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	case uuid.UUID:
		return x.String()
	case time.Time, string, bool, int64, float64:
		return x
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		list := make([]any, rv.Len())
		for i := range rv.Len() {
			list[i] = celOperand(rv.Index(i).Interface())
		}

		return list
	}

	return v
}

// promote converts an int64 operand to float64 when the other is float64.
func promote(a, b any) (any, any) {
	ai, aInt := a.(int64)
	bi, bInt := b.(int64)
	_, aFloat := a.(float64)
	_, bFloat := b.(float64)

	if aInt && bFloat {
		return float64(ai), b
	}

	if aFloat && bInt {
		return a, float64(bi)
	}

	return a, b
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch x := celOperand(v).(type) {
	case decimal.Decimal:
		return x, nil
	case int64:
		return decimal.NewFromInt(x), nil
	case float64:
		return decimal.NewFromFloat(x), nil
	case string:
		return decimal.NewFromString(x)
	default:
		return decimal.Zero, fmt.Errorf("cannot convert %T to decimal", v)
	}
}

// convertValue converts an evaluated value back to the static type.
func convertValue(v any, typ expr.Type) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch typ.Kind {
	case expr.KindInt32:
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}

		if n > math.MaxInt32 || n < math.MinInt32 {
			return nil, fmt.Errorf("value %d overflows int32", n)
		}

		return int32(n), nil
	case expr.KindInt64:
		return toInt64(v)
	case expr.KindSingle:
		f, err := toFloat64(v)
		return float32(f), err
	case expr.KindDouble:
		return toFloat64(v)
	case expr.KindDecimal:
		return toDecimal(v)
	case expr.KindString:
		if s, ok := v.(string); ok {
			return s, nil
		}

		return fmt.Sprint(v), nil
	case expr.KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("cannot convert %T to bool", v)
		}

		return b, nil
	case expr.KindGuid:
		switch x := v.(type) {
		case uuid.UUID:
			return x, nil
		case string:
			return uuid.Parse(x)
		}

		return nil, fmt.Errorf("cannot convert %T to guid", v)
	case expr.KindDateTime:
		if t, ok := v.(time.Time); ok {
			return t, nil
		}

		return nil, fmt.Errorf("cannot convert %T to datetime", v)
	default:
		return v, nil
	}
}

func toInt64(v any) (int64, error) {
	if n, ok := expr.IntValue(v); ok {
		return n, nil
	}

	switch x := v.(type) {
	case uint64:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case float32:
		return int64(x), nil
	case decimal.Decimal:
		return x.IntPart(), nil
	default:
		return 0, fmt.Errorf("cannot convert %T to integer", v)
	}
}

func toFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case decimal.Decimal:
		return x.InexactFloat64(), nil
	}

	n, err := toInt64(v)

	return float64(n), err
}

// constantType keeps the static type unless it is Any, in which case the
// value's own type is used.
func constantType(v any, static expr.Type) expr.Type {
	if static.Kind != expr.KindAny {
		if v == nil {
			return static.AsNullable()
		}

		return static
	}

	if v == nil {
		return expr.AnyType
	}

	return expr.TypeOf(v)
}
