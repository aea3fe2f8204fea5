package edm

import (
	"errors"
	"fmt"

	"github.com/shibukawa/snapodata"
	"github.com/shibukawa/snapodata/expr"
)

// Sentinel errors for model construction.
var (
	ErrUnknownEntityType = errors.New("unknown entity type")
	ErrDuplicateResource = errors.New("duplicate resource name")
)

// Resource is an entity set or singleton exposed by the service.
type Resource struct {
	Name       string
	EntityType expr.Type
	Singleton  bool
}

// Node returns the canonical expression for this resource.
func (r Resource) Node() *expr.Resource {
	return expr.NewResource(r.Name, r.EntityType, r.Singleton)
}

// Model resolves resource names and reports the protocol ceiling.
type Model interface {
	Resolve(name string) (Resource, bool)
	MaxProtocolVersion() snapodata.ProtocolVersion
}

// Schema is an in-memory Model.
type Schema struct {
	version   snapodata.ProtocolVersion
	types     map[string]expr.Type
	resources map[string]Resource
	order     []string
}

// NewSchema creates an empty schema with the given protocol ceiling.
func NewSchema(version snapodata.ProtocolVersion) *Schema {
	return &Schema{
		version:   version,
		types:     make(map[string]expr.Type),
		resources: make(map[string]Resource),
	}
}

// AddEntityType registers t under its name.
func (s *Schema) AddEntityType(t expr.Type) {
	s.types[t.Name] = t
}

// EntityType looks up a registered type by name.
func (s *Schema) EntityType(name string) (expr.Type, bool) {
	t, ok := s.types[name]
	return t, ok
}

// AddEntitySet exposes typeName as a collection named name.
func (s *Schema) AddEntitySet(name, typeName string) error {
	return s.addResource(name, typeName, false)
}

// AddSingleton exposes typeName as a single instance named name.
func (s *Schema) AddSingleton(name, typeName string) error {
	return s.addResource(name, typeName, true)
}

func (s *Schema) addResource(name, typeName string, singleton bool) error {
	t, ok := s.types[typeName]
	if !ok {
		return fmt.Errorf("%w: %s (resource %s)", ErrUnknownEntityType, typeName, name)
	}

	if _, exists := s.resources[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateResource, name)
	}

	s.resources[name] = Resource{Name: name, EntityType: t, Singleton: singleton}
	s.order = append(s.order, name)

	return nil
}

func (s *Schema) Resolve(name string) (Resource, bool) {
	r, ok := s.resources[name]
	return r, ok
}

func (s *Schema) MaxProtocolVersion() snapodata.ProtocolVersion {
	return s.version
}

// Resources lists resources in registration order.
func (s *Schema) Resources() []Resource {
	result := make([]Resource, 0, len(s.order))
	for _, name := range s.order {
		result = append(result, s.resources[name])
	}

	return result
}
