package expr

import (
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind is the static kind of an expression result.
type Kind int

const (
	KindAny Kind = iota
	KindBool
	KindInt32
	KindInt64
	KindSingle
	KindDouble
	KindDecimal
	KindString
	KindDateTime
	KindGuid
	KindEntity
	KindRecord
	KindSequence
)

var kindNames = map[Kind]string{
	KindAny:      "any",
	KindBool:     "bool",
	KindInt32:    "int32",
	KindInt64:    "int64",
	KindSingle:   "single",
	KindDouble:   "double",
	KindDecimal:  "decimal",
	KindString:   "string",
	KindDateTime: "datetime",
	KindGuid:     "guid",
	KindEntity:   "entity",
	KindRecord:   "record",
	KindSequence: "sequence",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return "unknown"
}

// Property is a named member of an entity or record type.
type Property struct {
	Name string
	Type Type
}

// Type is the static result type of a node.
// Elem is set for sequences; Properties for entities and records.
type Type struct {
	Kind       Kind
	Nullable   bool
	Name       string
	Elem       *Type
	Properties []Property
}

// Primitive type shorthands used by the builder.
var (
	AnyType      = Type{Kind: KindAny, Nullable: true}
	BoolType     = Type{Kind: KindBool}
	Int32Type    = Type{Kind: KindInt32}
	Int64Type    = Type{Kind: KindInt64}
	SingleType   = Type{Kind: KindSingle}
	DoubleType   = Type{Kind: KindDouble}
	DecimalType  = Type{Kind: KindDecimal}
	StringType   = Type{Kind: KindString, Nullable: true}
	DateTimeType = Type{Kind: KindDateTime}
	GuidType     = Type{Kind: KindGuid}
)

// EntityType builds an entity type with the given properties.
func EntityType(name string, props ...Property) Type {
	return Type{Kind: KindEntity, Name: name, Properties: props}
}

// RecordType builds an anonymous record type.
func RecordType(props ...Property) Type {
	return Type{Kind: KindRecord, Properties: props}
}

// SequenceOf builds a sequence type over elem.
func SequenceOf(elem Type) Type {
	return Type{Kind: KindSequence, Elem: &elem}
}

// AsNullable returns a nullable copy of t.
func (t Type) AsNullable() Type {
	t.Nullable = true
	return t
}

// NonNullable returns a non-nullable copy of t.
func (t Type) NonNullable() Type {
	t.Nullable = false
	return t
}

// IsNumeric reports whether t is one of the numeric kinds.
func (t Type) IsNumeric() bool {
	switch t.Kind {
	case KindInt32, KindInt64, KindSingle, KindDouble, KindDecimal:
		return true
	default:
		return false
	}
}

// IsIntegral reports whether t is Int32 or Int64.
func (t Type) IsIntegral() bool {
	return t.Kind == KindInt32 || t.Kind == KindInt64
}

// ElemType returns the element type of a sequence, or Any.
func (t Type) ElemType() Type {
	if t.Kind == KindSequence && t.Elem != nil {
		return *t.Elem
	}

	return AnyType
}

// Property looks up a property by name.
func (t Type) Property(name string) (Property, bool) {
	for _, p := range t.Properties {
		if p.Name == name {
			return p, true
		}
	}

	return Property{}, false
}

// Equal reports whether two types describe the same shape.
func (t Type) Equal(other Type) bool {
	if t.Kind != other.Kind || t.Nullable != other.Nullable || t.Name != other.Name {
		return false
	}

	if (t.Elem == nil) != (other.Elem == nil) {
		return false
	}

	if t.Elem != nil && !t.Elem.Equal(*other.Elem) {
		return false
	}

	if len(t.Properties) != len(other.Properties) {
		return false
	}

	for i, p := range t.Properties {
		q := other.Properties[i]
		if p.Name != q.Name || !p.Type.Equal(q.Type) {
			return false
		}
	}

	return true
}

func (t Type) String() string {
	var b strings.Builder

	switch t.Kind {
	case KindSequence:
		b.WriteString("sequence<")
		b.WriteString(t.ElemType().String())
		b.WriteString(">")
	case KindEntity:
		b.WriteString(t.Name)
	case KindRecord:
		b.WriteString("{")

		for i, p := range t.Properties {
			if i > 0 {
				b.WriteString(", ")
			}

			b.WriteString(p.Name)
			b.WriteString(": ")
			b.WriteString(p.Type.String())
		}

		b.WriteString("}")
	default:
		b.WriteString(t.Kind.String())
	}

	if t.Nullable && t.Kind != KindAny && t.Kind != KindString {
		b.WriteString("?")
	}

	return b.String()
}

var (
	timeType    = reflect.TypeOf(time.Time{})
	uuidType    = reflect.TypeOf(uuid.UUID{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
)

// TypeOf infers the static type of a Go value.
func TypeOf(v any) Type {
	if v == nil {
		return AnyType
	}

	return typeOfReflect(reflect.TypeOf(v))
}

func typeOfReflect(rt reflect.Type) Type {
	switch rt {
	case timeType:
		return DateTimeType
	case uuidType:
		return GuidType
	case decimalType:
		return DecimalType
	}

	switch rt.Kind() {
	case reflect.Bool:
		return BoolType
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint8, reflect.Uint16:
		return Int32Type
	case reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64:
		return Int64Type
	case reflect.Float32:
		return SingleType
	case reflect.Float64:
		return DoubleType
	case reflect.String:
		return StringType
	case reflect.Pointer:
		return typeOfReflect(rt.Elem()).AsNullable()
	case reflect.Slice, reflect.Array:
		return SequenceOf(typeOfReflect(rt.Elem()))
	case reflect.Struct:
		props := make([]Property, 0, rt.NumField())

		for i := range rt.NumField() {
			f := rt.Field(i)
			if !f.IsExported() {
				continue
			}

			props = append(props, Property{Name: f.Name, Type: typeOfReflect(f.Type)})
		}

		return Type{Kind: KindRecord, Name: rt.Name(), Properties: props}
	case reflect.Map:
		return Type{Kind: KindRecord, Nullable: true}
	default:
		return AnyType
	}
}
