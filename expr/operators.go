package expr

// BinaryOp is an infix operator. String returns the OData token.
type BinaryOp int

const (
	OpEq BinaryOp = iota
	OpNe
	OpGt
	OpGe
	OpLt
	OpLe
	OpAnd
	OpOr
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
)

var binaryTokens = [...]string{
	OpEq:  "eq",
	OpNe:  "ne",
	OpGt:  "gt",
	OpGe:  "ge",
	OpLt:  "lt",
	OpLe:  "le",
	OpAnd: "and",
	OpOr:  "or",
	OpAdd: "add",
	OpSub: "sub",
	OpMul: "mul",
	OpDiv: "div",
	OpMod: "mod",
}

func (op BinaryOp) String() string {
	if int(op) < len(binaryTokens) {
		return binaryTokens[op]
	}

	return "?"
}

// IsComparison reports whether op is eq, ne, gt, ge, lt or le.
func (op BinaryOp) IsComparison() bool {
	return op <= OpLe
}

// Inverse returns the comparison that is true exactly when op is false.
// Only meaningful for comparisons over non-null operands.
func (op BinaryOp) Inverse() BinaryOp {
	switch op {
	case OpEq:
		return OpNe
	case OpNe:
		return OpEq
	case OpGt:
		return OpLe
	case OpGe:
		return OpLt
	case OpLt:
		return OpGe
	case OpLe:
		return OpGt
	default:
		return op
	}
}

// Flip returns the comparison with its operands swapped.
func (op BinaryOp) Flip() BinaryOp {
	switch op {
	case OpGt:
		return OpLt
	case OpGe:
		return OpLe
	case OpLt:
		return OpGt
	case OpLe:
		return OpGe
	default:
		return op
	}
}

// Precedence orders operators for parenthesization; higher binds tighter.
func (op BinaryOp) Precedence() int {
	switch op {
	case OpOr:
		return 1
	case OpAnd:
		return 2
	case OpEq, OpNe, OpGt, OpGe, OpLt, OpLe:
		return 3
	case OpAdd, OpSub:
		return 4
	default:
		return 5
	}
}

// UnaryOp is a prefix operator.
type UnaryOp int

const (
	OpNot UnaryOp = iota
	OpNegate
	OpConvert
)

func (op UnaryOp) String() string {
	switch op {
	case OpNot:
		return "not"
	case OpNegate:
		return "-"
	case OpConvert:
		return "convert"
	default:
		return "?"
	}
}

// OperatorTag is the semantic identity of a recognized sequence operator.
type OperatorTag int

const (
	SeqUnknown OperatorTag = iota
	SeqWhere
	SeqOrderBy
	SeqOrderByDescending
	SeqThenBy
	SeqThenByDescending
	SeqSelect
	SeqSkip
	SeqTake
	SeqDistinct
	SeqCount
	SeqCountPredicate
	SeqLongCount
	SeqLongCountPredicate
	SeqFirst
	SeqFirstPredicate
	SeqFirstOrDefault
	SeqFirstOrDefaultPredicate
	SeqSingle
	SeqSinglePredicate
	SeqSingleOrDefault
	SeqSingleOrDefaultPredicate
	SeqSum
	SeqSumSelector
	SeqAverage
	SeqAverageSelector
	SeqMin
	SeqMinSelector
	SeqMax
	SeqMaxSelector
	SeqGroupBy
	SeqIncludeCount
)

// ArgKind is the expected shape of one operator argument.
type ArgKind int

const (
	// ArgSource is a sequence-typed source.
	ArgSource ArgKind = iota
	// ArgLambda1 is a one-parameter lambda.
	ArgLambda1
	// ArgLambda2 is a two-parameter lambda.
	ArgLambda2
	// ArgInt is an integer constant.
	ArgInt
)

// OperatorSignature is one row of the operator table.
type OperatorSignature struct {
	Name string
	Args []ArgKind
	Tag  OperatorTag
}

var (
	sourceOnly   = []ArgKind{ArgSource}
	sourceLambda = []ArgKind{ArgSource, ArgLambda1}
	sourceInt    = []ArgKind{ArgSource, ArgInt}
)

// operatorTable is the complete list of recognized sequence operators.
// The arity is the length of Args.
var operatorTable = []OperatorSignature{
	{"Where", sourceLambda, SeqWhere},
	{"OrderBy", sourceLambda, SeqOrderBy},
	{"OrderByDescending", sourceLambda, SeqOrderByDescending},
	{"ThenBy", sourceLambda, SeqThenBy},
	{"ThenByDescending", sourceLambda, SeqThenByDescending},
	{"Select", sourceLambda, SeqSelect},
	{"Skip", sourceInt, SeqSkip},
	{"Take", sourceInt, SeqTake},
	{"Distinct", sourceOnly, SeqDistinct},
	{"Count", sourceOnly, SeqCount},
	{"Count", sourceLambda, SeqCountPredicate},
	{"LongCount", sourceOnly, SeqLongCount},
	{"LongCount", sourceLambda, SeqLongCountPredicate},
	{"First", sourceOnly, SeqFirst},
	{"First", sourceLambda, SeqFirstPredicate},
	{"FirstOrDefault", sourceOnly, SeqFirstOrDefault},
	{"FirstOrDefault", sourceLambda, SeqFirstOrDefaultPredicate},
	{"Single", sourceOnly, SeqSingle},
	{"Single", sourceLambda, SeqSinglePredicate},
	{"SingleOrDefault", sourceOnly, SeqSingleOrDefault},
	{"SingleOrDefault", sourceLambda, SeqSingleOrDefaultPredicate},
	{"Sum", sourceOnly, SeqSum},
	{"Sum", sourceLambda, SeqSumSelector},
	{"Average", sourceOnly, SeqAverage},
	{"Average", sourceLambda, SeqAverageSelector},
	{"Min", sourceOnly, SeqMin},
	{"Min", sourceLambda, SeqMinSelector},
	{"Max", sourceOnly, SeqMax},
	{"Max", sourceLambda, SeqMaxSelector},
	{"GroupBy", []ArgKind{ArgSource, ArgLambda1, ArgLambda2}, SeqGroupBy},
	{"IncludeCount", sourceOnly, SeqIncludeCount},
}

var operatorNames = func() map[string]bool {
	names := make(map[string]bool, len(operatorTable))
	for _, sig := range operatorTable {
		names[sig.Name] = true
	}

	return names
}()

// IsSequenceOperator reports whether name belongs to the operator table.
func IsSequenceOperator(name string) bool {
	return operatorNames[name]
}

// LookupOperator resolves a call against the operator table by name,
// arity and argument shapes.
func LookupOperator(c *Call) (OperatorTag, bool) {
	for _, sig := range operatorTable {
		if sig.Name != c.Method || len(sig.Args) != len(c.Args) {
			continue
		}

		if matchArgs(sig.Args, c.Args) {
			return sig.Tag, true
		}
	}

	return SeqUnknown, false
}

func matchArgs(kinds []ArgKind, args []Node) bool {
	for i, kind := range kinds {
		if !matchArg(kind, args[i]) {
			return false
		}
	}

	return true
}

func matchArg(kind ArgKind, arg Node) bool {
	switch kind {
	case ArgSource:
		return arg.Type().Kind == KindSequence
	case ArgLambda1:
		l, ok := arg.(*Lambda)
		return ok && len(l.Params) == 1
	case ArgLambda2:
		l, ok := arg.(*Lambda)
		return ok && len(l.Params) == 2
	case ArgInt:
		c, ok := arg.(*Constant)
		if !ok {
			return false
		}

		_, ok = IntValue(c.Value)

		return ok
	default:
		return false
	}
}

// IntValue extracts an integer from the integral Go kinds.
func IntValue(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	default:
		return 0, false
	}
}
