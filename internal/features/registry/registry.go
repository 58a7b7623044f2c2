package registry

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

var (
	ErrSourceNotFound   = errors.New("source not found")
	ErrRelationNotFound = errors.New("relation not found")
)

// Registry is the read-only catalog of sources, relations, operators and
// aggregations. Implementations must be safe for concurrent reads.
type Registry interface {
	Version() string
	ListSources() []SourceDescriptor
	GetSource(name string) (SourceDescriptor, error)
	GetRelation(from, to string) (RelationDescriptor, error)
	ListOperators() map[FieldType][]Operator
	ListAggregations() []AggregationDescriptor
	OperatorAllowed(t FieldType, op Operator) bool
	AggregationAllowed(f FieldDescriptor, fn AggFn) bool
}

var operatorsByType = map[FieldType][]Operator{
	FieldTypeString:  {OpEq, OpNeq, OpLike, OpIn, OpIsNull, OpIsNotNull},
	FieldTypeNumber:  {OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpIn, OpBetween, OpIsNull, OpIsNotNull},
	FieldTypeDate:    {OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpBetween, OpIsNull, OpIsNotNull},
	FieldTypeBoolean: {OpEq, OpNeq, OpIsNull, OpIsNotNull},
	FieldTypeEnum:    {OpEq, OpNeq, OpIn, OpIsNull, OpIsNotNull},
}

var aggregations = []AggregationDescriptor{
	{Function: AggSum, AllowedTypes: []FieldType{FieldTypeNumber}, Description: "Sum of an aggregatable number field"},
	{Function: AggAvg, AllowedTypes: []FieldType{FieldTypeNumber}, Description: "Average of an aggregatable number field"},
	{Function: AggCount, AllowedTypes: []FieldType{FieldTypeString, FieldTypeNumber, FieldTypeDate, FieldTypeBoolean, FieldTypeEnum}, Description: "Count of non-null values"},
	{Function: AggMin, AllowedTypes: []FieldType{FieldTypeNumber, FieldTypeDate}, Description: "Smallest value"},
	{Function: AggMax, AllowedTypes: []FieldType{FieldTypeNumber, FieldTypeDate}, Description: "Largest value"},
}

type StaticRegistry struct {
	version   string
	sources   map[string]SourceDescriptor
	names     []string
	relations map[[2]string]RelationDescriptor
}

// NewStaticRegistry checks the catalog for internal consistency and freezes it.
func NewStaticRegistry(version string, sources []SourceDescriptor) (*StaticRegistry, error) {
	r := &StaticRegistry{
		version:   version,
		sources:   make(map[string]SourceDescriptor, len(sources)),
		relations: make(map[[2]string]RelationDescriptor),
	}

	for _, src := range sources {
		if src.Name == "" || src.Table == "" {
			return nil, fmt.Errorf("source %q: name and table are required", src.Name)
		}
		if _, dup := r.sources[src.Name]; dup {
			return nil, fmt.Errorf("source %q declared twice", src.Name)
		}
		seen := make(map[string]bool, len(src.Fields))
		for _, f := range src.Fields {
			if seen[f.Name] {
				return nil, fmt.Errorf("source %q: field %q declared twice", src.Name, f.Name)
			}
			seen[f.Name] = true
			if _, ok := operatorsByType[f.Type]; !ok {
				return nil, fmt.Errorf("source %q: field %q has unknown type %q", src.Name, f.Name, f.Type)
			}
			if f.Type == FieldTypeEnum && len(f.EnumValues) == 0 {
				return nil, fmt.Errorf("source %q: enum field %q has no values", src.Name, f.Name)
			}
		}
		if !seen[src.TenantColumn] {
			return nil, fmt.Errorf("source %q: tenant column %q is not a declared field", src.Name, src.TenantColumn)
		}
		if !seen[src.NaturalKey] {
			return nil, fmt.Errorf("source %q: natural key %q is not a declared field", src.Name, src.NaturalKey)
		}
		r.sources[src.Name] = cloneSource(src)
		r.names = append(r.names, src.Name)
	}
	sort.Strings(r.names)

	for _, src := range r.sources {
		for _, rel := range src.Relations {
			if rel.FromSource != src.Name {
				return nil, fmt.Errorf("source %q: relation declared with from_source %q", src.Name, rel.FromSource)
			}
			to, ok := r.sources[rel.ToSource]
			if !ok {
				return nil, fmt.Errorf("relation %s->%s: unknown target source", rel.FromSource, rel.ToSource)
			}
			if _, ok := src.Field(rel.JoinKeyFrom); !ok {
				return nil, fmt.Errorf("relation %s->%s: unknown key %q", rel.FromSource, rel.ToSource, rel.JoinKeyFrom)
			}
			if _, ok := to.Field(rel.JoinKeyTo); !ok {
				return nil, fmt.Errorf("relation %s->%s: unknown key %q", rel.FromSource, rel.ToSource, rel.JoinKeyTo)
			}
			key := [2]string{rel.FromSource, rel.ToSource}
			if _, dup := r.relations[key]; dup {
				return nil, fmt.Errorf("relation %s->%s declared twice", rel.FromSource, rel.ToSource)
			}
			r.relations[key] = rel
		}
	}

	return r, nil
}

func (r *StaticRegistry) Version() string {
	return r.version
}

func (r *StaticRegistry) ListSources() []SourceDescriptor {
	out := make([]SourceDescriptor, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, cloneSource(r.sources[name]))
	}
	return out
}

func (r *StaticRegistry) GetSource(name string) (SourceDescriptor, error) {
	src, ok := r.sources[name]
	if !ok {
		return SourceDescriptor{}, fmt.Errorf("%w: %s", ErrSourceNotFound, name)
	}
	return cloneSource(src), nil
}

// GetRelation only returns relations declared in exactly this direction.
func (r *StaticRegistry) GetRelation(from, to string) (RelationDescriptor, error) {
	rel, ok := r.relations[[2]string{from, to}]
	if !ok {
		return RelationDescriptor{}, fmt.Errorf("%w: %s->%s", ErrRelationNotFound, from, to)
	}
	return rel, nil
}

func (r *StaticRegistry) ListOperators() map[FieldType][]Operator {
	out := make(map[FieldType][]Operator, len(operatorsByType))
	for t, ops := range operatorsByType {
		out[t] = slices.Clone(ops)
	}
	return out
}

func (r *StaticRegistry) ListAggregations() []AggregationDescriptor {
	out := make([]AggregationDescriptor, len(aggregations))
	for i, a := range aggregations {
		a.AllowedTypes = slices.Clone(a.AllowedTypes)
		out[i] = a
	}
	return out
}

func (r *StaticRegistry) OperatorAllowed(t FieldType, op Operator) bool {
	return slices.Contains(operatorsByType[t], op)
}

// AggregationAllowed requires the field to be aggregatable and of a type the
// function accepts; SUM and AVG therefore only ever target numbers.
func (r *StaticRegistry) AggregationAllowed(f FieldDescriptor, fn AggFn) bool {
	if !f.Aggregatable {
		return false
	}
	for _, a := range aggregations {
		if a.Function == fn {
			return slices.Contains(a.AllowedTypes, f.Type)
		}
	}
	return false
}

func cloneSource(s SourceDescriptor) SourceDescriptor {
	s.Fields = slices.Clone(s.Fields)
	for i := range s.Fields {
		s.Fields[i].EnumValues = slices.Clone(s.Fields[i].EnumValues)
	}
	s.Relations = slices.Clone(s.Relations)
	return s
}
