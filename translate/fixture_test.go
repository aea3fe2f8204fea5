package translate

import (
	"github.com/shibukawa/snapodata"
	"github.com/shibukawa/snapodata/edm"
	"github.com/shibukawa/snapodata/expr"
)

const baseURL = "http://x"

var document = expr.EntityType("Document",
	expr.Property{Name: "ID", Type: expr.GuidType},
	expr.Property{Name: "Name", Type: expr.StringType},
	expr.Property{Name: "Active", Type: expr.BoolType},
	expr.Property{Name: "Created", Type: expr.DateTimeType},
	expr.Property{Name: "IntProp", Type: expr.Int32Type},
	expr.Property{Name: "NullableIntProp", Type: expr.Int32Type.AsNullable()},
	expr.Property{Name: "LongProp", Type: expr.Int64Type},
	expr.Property{Name: "NullableLongProp", Type: expr.Int64Type.AsNullable()},
	expr.Property{Name: "SingleProp", Type: expr.SingleType},
	expr.Property{Name: "NullableSingleProp", Type: expr.SingleType.AsNullable()},
	expr.Property{Name: "DoubleProp", Type: expr.DoubleType},
	expr.Property{Name: "NullableDoubleProp", Type: expr.DoubleType.AsNullable()},
	expr.Property{Name: "DecimalProp", Type: expr.DecimalType},
	expr.Property{Name: "NullableDecimalProp", Type: expr.DecimalType.AsNullable()},
)

func newModel(version snapodata.ProtocolVersion) *edm.Schema {
	schema := edm.NewSchema(version)
	schema.AddEntityType(document)

	if err := schema.AddEntitySet("Documents", "Document"); err != nil {
		panic(err)
	}

	return schema
}

func documents() *expr.Query {
	return expr.From("Documents", document)
}

func prop(name string) func(expr.Node) expr.Node {
	return func(x expr.Node) expr.Node { return expr.Prop(x, name) }
}

func intPropGt(n int) func(expr.Node) expr.Node {
	return func(x expr.Node) expr.Node { return expr.Gt(expr.Prop(x, "IntProp"), expr.Const(n)) }
}
