package expr

import (
	"github.com/shibukawa/snapodata"
)

// FunctionInfo describes a scalar function usable inside predicates.
type FunctionInfo struct {
	Name       string
	Arity      int
	MinVersion snapodata.ProtocolVersion
	result     func(args []Node) Type
}

// ResultType computes the static result type for the given arguments.
func (f FunctionInfo) ResultType(args []Node) Type {
	return f.result(args)
}

func fixed(t Type) func([]Node) Type {
	return func(args []Node) Type {
		for _, a := range args {
			if a.Type().Nullable && a.Type().Kind != KindString {
				return t.AsNullable()
			}
		}

		return t
	}
}

func firstArg(args []Node) Type {
	return args[0].Type()
}

var functionTable = map[string]FunctionInfo{
	"contains":   {Name: "contains", Arity: 2, MinVersion: snapodata.Version40, result: fixed(BoolType)},
	"startswith": {Name: "startswith", Arity: 2, MinVersion: snapodata.Version40, result: fixed(BoolType)},
	"endswith":   {Name: "endswith", Arity: 2, MinVersion: snapodata.Version40, result: fixed(BoolType)},
	"tolower":    {Name: "tolower", Arity: 1, MinVersion: snapodata.Version40, result: firstArg},
	"toupper":    {Name: "toupper", Arity: 1, MinVersion: snapodata.Version40, result: firstArg},
	"trim":       {Name: "trim", Arity: 1, MinVersion: snapodata.Version40, result: firstArg},
	"length":     {Name: "length", Arity: 1, MinVersion: snapodata.Version40, result: fixed(Int32Type)},
	"indexof":    {Name: "indexof", Arity: 2, MinVersion: snapodata.Version40, result: fixed(Int32Type)},
	"year":       {Name: "year", Arity: 1, MinVersion: snapodata.Version40, result: fixed(Int32Type)},
	"month":      {Name: "month", Arity: 1, MinVersion: snapodata.Version40, result: fixed(Int32Type)},
	"day":        {Name: "day", Arity: 1, MinVersion: snapodata.Version40, result: fixed(Int32Type)},
	"in":         {Name: "in", Arity: 2, MinVersion: snapodata.Version401, result: fixed(BoolType)},
}

// LookupFunction returns the scalar function with the given name and arity.
func LookupFunction(name string, arity int) (FunctionInfo, bool) {
	f, ok := functionTable[name]
	if !ok || f.Arity != arity {
		return FunctionInfo{}, false
	}

	return f, true
}
