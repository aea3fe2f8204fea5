package edm

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"
	"github.com/shibukawa/snapodata"
	"github.com/shibukawa/snapodata/expr"
)

// CSDL loading errors
var (
	ErrNoEdmxElement       = errors.New("missing edmx:Edmx root element")
	ErrNoDataServices      = errors.New("missing edmx:DataServices element")
	ErrInvalidCSDLDocument = errors.New("invalid CSDL document")
)

var primitiveTypes = map[string]expr.Type{
	"Edm.Boolean":        expr.BoolType,
	"Edm.Byte":           expr.Int32Type,
	"Edm.SByte":          expr.Int32Type,
	"Edm.Int16":          expr.Int32Type,
	"Edm.Int32":          expr.Int32Type,
	"Edm.Int64":          expr.Int64Type,
	"Edm.Single":         expr.SingleType,
	"Edm.Double":         expr.DoubleType,
	"Edm.Decimal":        expr.DecimalType,
	"Edm.String":         expr.StringType,
	"Edm.Date":           expr.DateTimeType,
	"Edm.DateTimeOffset": expr.DateTimeType,
	"Edm.Guid":           expr.GuidType,
}

// LoadCSDL reads a $metadata document. Entity and complex types become
// expr types; entity sets and singletons of every EntityContainer become
// resources. The edmx Version attribute sets the protocol ceiling.
func LoadCSDL(r io.Reader) (*Schema, error) {
	doc := etree.NewDocument()

	if _, err := doc.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCSDLDocument, err)
	}

	edmx := doc.SelectElement("Edmx")
	if edmx == nil {
		return nil, ErrNoEdmxElement
	}

	version := snapodata.Version40
	if v := edmx.SelectAttrValue("Version", ""); v != "" {
		parsed, err := snapodata.ParseProtocolVersion(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCSDLDocument, err)
		}

		version = parsed
	}

	services := edmx.SelectElement("DataServices")
	if services == nil {
		return nil, ErrNoDataServices
	}

	loader := &csdlLoader{
		schema:  NewSchema(version),
		complex: make(map[string]expr.Type),
		aliases: make(map[string]string),
	}

	schemas := services.SelectElements("Schema")
	for _, s := range schemas {
		namespace := s.SelectAttrValue("Namespace", "")
		if alias := s.SelectAttrValue("Alias", ""); alias != "" {
			loader.aliases[alias] = namespace
		}
	}

	// Types first, so containers in any schema can reference them
	for _, s := range schemas {
		loader.loadTypes(s)
	}

	for _, s := range schemas {
		if err := loader.loadContainers(s); err != nil {
			return nil, err
		}
	}

	return loader.schema, nil
}

type csdlLoader struct {
	schema  *Schema
	complex map[string]expr.Type
	aliases map[string]string
}

func (l *csdlLoader) loadTypes(s *etree.Element) {
	namespace := s.SelectAttrValue("Namespace", "")

	for _, ct := range s.SelectElements("ComplexType") {
		name := ct.SelectAttrValue("Name", "")
		t := expr.Type{Kind: expr.KindRecord, Name: name, Properties: l.properties(ct)}
		l.complex[name] = t
		l.complex[namespace+"."+name] = t
	}

	for _, et := range s.SelectElements("EntityType") {
		name := et.SelectAttrValue("Name", "")
		l.schema.AddEntityType(expr.EntityType(name, l.properties(et)...))
	}
}

func (l *csdlLoader) properties(e *etree.Element) []expr.Property {
	props := make([]expr.Property, 0)

	for _, p := range e.SelectElements("Property") {
		t := l.propertyType(p.SelectAttrValue("Type", ""))
		if p.SelectAttrValue("Nullable", "true") != "false" {
			t = t.AsNullable()
		} else if t.Kind != expr.KindString {
			t = t.NonNullable()
		}

		props = append(props, expr.Property{Name: p.SelectAttrValue("Name", ""), Type: t})
	}

	return props
}

func (l *csdlLoader) propertyType(name string) expr.Type {
	if inner, ok := strings.CutPrefix(name, "Collection("); ok {
		return expr.SequenceOf(l.propertyType(strings.TrimSuffix(inner, ")")))
	}

	if t, ok := primitiveTypes[name]; ok {
		return t
	}

	if t, ok := l.complex[l.qualify(name)]; ok {
		return t
	}

	return expr.AnyType
}

// qualify expands an Alias.Type reference to Namespace.Type.
func (l *csdlLoader) qualify(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return name
	}

	if ns, ok := l.aliases[name[:idx]]; ok {
		return ns + name[idx:]
	}

	return name
}

func (l *csdlLoader) loadContainers(s *etree.Element) error {
	for _, c := range s.SelectElements("EntityContainer") {
		for _, set := range c.SelectElements("EntitySet") {
			err := l.schema.AddEntitySet(set.SelectAttrValue("Name", ""), localName(set.SelectAttrValue("EntityType", "")))
			if err != nil {
				return err
			}
		}

		for _, single := range c.SelectElements("Singleton") {
			err := l.schema.AddSingleton(single.SelectAttrValue("Name", ""), localName(single.SelectAttrValue("Type", "")))
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func localName(qualified string) string {
	if idx := strings.LastIndex(qualified, "."); idx >= 0 {
		return qualified[idx+1:]
	}

	return qualified
}
