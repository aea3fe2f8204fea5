package main

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/shibukawa/snapodata/edm"
	"github.com/shibukawa/snapodata/expr"
	"gopkg.in/yaml.v3"
)

// QueryFile is the YAML form of a query accepted by the query command.
//
//	resource: Documents
//	where:
//	  - {property: IntProp, op: gt, value: 15}
//	orderby: [Name, -IntProp]
//	take: 10
//	terminal: sum
//	property: IntProp
type QueryFile struct {
	Resource string      `yaml:"resource"`
	Where    []Predicate `yaml:"where"`
	GroupBy  *GroupBy    `yaml:"groupby"`
	OrderBy  []string    `yaml:"orderby"`
	Skip     *int        `yaml:"skip"`
	Take     *int        `yaml:"take"`
	Count    bool        `yaml:"count"`
	Select   []string    `yaml:"select"`
	Terminal string      `yaml:"terminal"`
	Property string      `yaml:"property"`
}

// Predicate compares a property with a value. Predicates of one query are
// combined with and.
type Predicate struct {
	Property string `yaml:"property"`
	Op       string `yaml:"op"`
	Value    any    `yaml:"value"`
}

// GroupBy groups by Keys. Aggregate maps result aliases to "method(Property)"
// or "count", in the order they are written.
type GroupBy struct {
	Keys      []string  `yaml:"keys"`
	Aggregate yaml.Node `yaml:"aggregate"`
}

type namedAggregate struct {
	alias    string
	method   string
	property string
}

var aggregatePattern = regexp.MustCompile(`^(\w+)(?:\(\s*([\w/]+)\s*\))?$`)

var comparisons = map[string]func(l, r expr.Node) *expr.Binary{
	"eq": expr.Eq,
	"ne": expr.Ne,
	"gt": expr.Gt,
	"ge": expr.Ge,
	"lt": expr.Lt,
	"le": expr.Le,
}

// LoadQueryFile reads a query file.
func LoadQueryFile(path string) (*QueryFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrQueryFileNotFound, path)
	}

	return ParseQueryFile(data)
}

// ParseQueryFile parses the YAML form of a query.
func ParseQueryFile(data []byte) (*QueryFile, error) {
	var qf QueryFile
	if err := yaml.Unmarshal(data, &qf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQueryFile, err)
	}

	if qf.Resource == "" {
		return nil, fmt.Errorf("%w: resource is required", ErrInvalidQueryFile)
	}

	return &qf, nil
}

// Build turns the query file into an expression over a resource of model.
func (qf *QueryFile) Build(model edm.Model) (expr.Node, error) {
	res, ok := model.Resolve(qf.Resource)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, qf.Resource)
	}

	if res.Singleton {
		return res.Node(), nil
	}

	q := expr.Over(res.Node())

	if len(qf.Where) > 0 {
		for _, p := range qf.Where {
			if _, err := p.build(expr.NewParameter("x", res.EntityType)); err != nil {
				return nil, err
			}
		}

		q = q.Where(func(x expr.Node) expr.Node {
			var body expr.Node

			for _, p := range qf.Where {
				n, _ := p.build(x)
				if body == nil {
					body = n
				} else {
					body = expr.And(body, n)
				}
			}

			return body
		})
	}

	if qf.GroupBy != nil {
		grouped, err := qf.GroupBy.apply(q)
		if err != nil {
			return nil, err
		}

		q = grouped
	}

	for i, key := range qf.OrderBy {
		desc := strings.HasPrefix(key, "-")
		selector := path(strings.TrimPrefix(key, "-"))

		switch {
		case i == 0 && desc:
			q = q.OrderByDescending(selector)
		case i == 0:
			q = q.OrderBy(selector)
		case desc:
			q = q.ThenByDescending(selector)
		default:
			q = q.ThenBy(selector)
		}
	}

	if qf.Skip != nil {
		q = q.Skip(*qf.Skip)
	}

	if qf.Take != nil {
		q = q.Take(*qf.Take)
	}

	if qf.Count {
		q = q.IncludeCount()
	}

	if len(qf.Select) > 0 {
		q = q.Select(func(x expr.Node) expr.Node {
			if len(qf.Select) == 1 {
				return path(qf.Select[0])(x)
			}

			fields := make([]expr.Field, len(qf.Select))
			for i, p := range qf.Select {
				fields[i] = expr.Field{Name: fieldName(p), Value: path(p)(x)}
			}

			return expr.Record(fields...)
		})
	}

	return qf.applyTerminal(q)
}

func (qf *QueryFile) applyTerminal(q *expr.Query) (expr.Node, error) {
	needProperty := func() (func(expr.Node) expr.Node, error) {
		if qf.Property == "" {
			return nil, fmt.Errorf("%w: terminal %s needs a property", ErrInvalidQueryFile, qf.Terminal)
		}

		return path(qf.Property), nil
	}

	switch strings.ToLower(qf.Terminal) {
	case "":
		return q.Node(), nil
	case "count":
		return q.Count().Node(), nil
	case "long_count":
		return q.LongCount().Node(), nil
	case "first":
		return q.First().Node(), nil
	case "first_or_default":
		return q.FirstOrDefault().Node(), nil
	case "single":
		return q.Single().Node(), nil
	case "single_or_default":
		return q.SingleOrDefault().Node(), nil
	case "count_distinct":
		selector, err := needProperty()
		if err != nil {
			return nil, err
		}

		return q.Select(selector).Distinct().Count().Node(), nil
	case "sum", "average", "min", "max":
		selector, err := needProperty()
		if err != nil {
			return nil, err
		}

		return aggregateOver(q, qf.Terminal, selector).Node(), nil
	default:
		return nil, fmt.Errorf("%w: unknown terminal %q", ErrInvalidQueryFile, qf.Terminal)
	}
}

func aggregateOver(q *expr.Query, method string, selector func(expr.Node) expr.Node) *expr.Query {
	switch strings.ToLower(method) {
	case "sum":
		return q.Sum(selector)
	case "average":
		return q.Average(selector)
	case "min":
		return q.Min(selector)
	default:
		return q.Max(selector)
	}
}

func (p Predicate) build(x expr.Node) (expr.Node, error) {
	if p.Property == "" {
		return nil, fmt.Errorf("%w: predicate without property", ErrInvalidQueryFile)
	}

	target := path(p.Property)(x)

	op := strings.ToLower(p.Op)
	if op == "" {
		op = "eq"
	}

	if compare, ok := comparisons[op]; ok {
		if p.Value == nil {
			return compare(target, expr.Null(target.Type())), nil
		}

		return compare(target, expr.Const(p.Value)), nil
	}

	switch op {
	case "contains", "startswith", "endswith":
		s, ok := p.Value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s needs a string value", ErrInvalidQueryFile, op)
		}

		return expr.Func(op, target, expr.Const(s)), nil
	case "in":
		list, ok := p.Value.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: in needs a list value", ErrInvalidQueryFile)
		}

		return expr.Func("in", target, expr.Const(normalizeList(list))), nil
	default:
		return nil, fmt.Errorf("%w: unknown operator %q", ErrInvalidQueryFile, p.Op)
	}
}

// normalizeList gives homogeneous YAML lists a concrete slice type.
func normalizeList(list []any) any {
	ints := make([]int, 0, len(list))
	strs := make([]string, 0, len(list))

	for _, v := range list {
		switch x := v.(type) {
		case int:
			ints = append(ints, x)
		case string:
			strs = append(strs, x)
		}
	}

	switch len(list) {
	case len(ints):
		return ints
	case len(strs):
		return strs
	default:
		return list
	}
}

func (g *GroupBy) aggregates() ([]namedAggregate, error) {
	if g.Aggregate.Kind == 0 {
		return nil, nil
	}

	if g.Aggregate.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: groupby.aggregate must be a mapping (line %d)", ErrInvalidQueryFile, g.Aggregate.Line)
	}

	var result []namedAggregate

	for i := 0; i+1 < len(g.Aggregate.Content); i += 2 {
		alias, value := g.Aggregate.Content[i], g.Aggregate.Content[i+1]

		m := aggregatePattern.FindStringSubmatch(strings.TrimSpace(value.Value))
		if m == nil {
			return nil, fmt.Errorf("%w: aggregate %s: %q is not method(Property) (line %d)", ErrInvalidQueryFile, alias.Value, value.Value, value.Line)
		}

		method := strings.ToLower(m[1])

		switch method {
		case "count":
		case "sum", "average", "min", "max", "countdistinct":
			if m[2] == "" {
				return nil, fmt.Errorf("%w: aggregate %s needs a property (line %d)", ErrInvalidQueryFile, alias.Value, value.Line)
			}
		default:
			return nil, fmt.Errorf("%w: aggregate %s: unknown method %s (line %d)", ErrInvalidQueryFile, alias.Value, m[1], value.Line)
		}

		result = append(result, namedAggregate{alias: alias.Value, method: method, property: m[2]})
	}

	return result, nil
}

func (g *GroupBy) apply(q *expr.Query) (*expr.Query, error) {
	aggs, err := g.aggregates()
	if err != nil {
		return nil, err
	}

	key := func(x expr.Node) expr.Node {
		switch len(g.Keys) {
		case 0:
			return expr.Const(1)
		case 1:
			return path(g.Keys[0])(x)
		}

		fields := make([]expr.Field, len(g.Keys))
		for i, k := range g.Keys {
			fields[i] = expr.Field{Name: fieldName(k), Value: path(k)(x)}
		}

		return expr.Record(fields...)
	}

	result := func(k, group expr.Node) expr.Node {
		var fields []expr.Field

		switch len(g.Keys) {
		case 0:
		case 1:
			fields = append(fields, expr.Field{Name: fieldName(g.Keys[0]), Value: k})
		default:
			for _, key := range g.Keys {
				name := fieldName(key)
				fields = append(fields, expr.Field{Name: name, Value: expr.Prop(k, name)})
			}
		}

		for _, a := range aggs {
			over := expr.Over(group)

			var value *expr.Query

			switch a.method {
			case "count":
				value = over.Count()
			case "countdistinct":
				value = over.Select(path(a.property)).Distinct().Count()
			default:
				value = aggregateOver(over, a.method, path(a.property))
			}

			fields = append(fields, expr.Field{Name: a.alias, Value: value.Node()})
		}

		return expr.Record(fields...)
	}

	return q.GroupBy(key, result), nil
}

// path builds a selector for a slash separated property path.
func path(p string) func(expr.Node) expr.Node {
	return func(x expr.Node) expr.Node {
		n := x
		for _, segment := range strings.Split(p, "/") {
			n = expr.Prop(n, segment)
		}

		return n
	}
}

func fieldName(p string) string {
	return p[strings.LastIndexByte(p, '/')+1:]
}
