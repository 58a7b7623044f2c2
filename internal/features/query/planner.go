package query

import (
	"fmt"
	"strconv"

	"go-reports/internal/common/errs"
	"go-reports/internal/features/registry"
	"go-reports/internal/features/report"
)

type Planner struct {
	Registry  registry.Registry
	Validator *report.Validator
}

func NewPlanner(reg registry.Registry, validator *report.Validator) *Planner {
	return &Planner{Registry: reg, Validator: validator}
}

type resolved struct {
	ref  SourceRef
	desc registry.SourceDescriptor
}

// BuildPlan resolves def against the registry and scopes it to org. Runtime
// filters are ANDed with the stored ones and must target filterable fields.
func (p *Planner) BuildPlan(def report.Definition, runtime []report.FilterClause, org string) (*QueryPlan, error) {
	if v := p.Validator.Validate(def); len(v) > 0 {
		return nil, v
	}
	if v := p.Validator.ValidateRuntimeFilters(def, runtime); len(v) > 0 {
		return nil, v
	}
	if org == "" {
		return nil, fmt.Errorf("%w: organization is required", errs.ErrAccessDenied)
	}

	plan := &QueryPlan{OrganizationID: org}
	sources := make(map[string]resolved)

	primary, err := p.Registry.GetSource(def.DataSources.Primary)
	if err != nil {
		return nil, err
	}
	plan.Base = SourceRef{Name: primary.Name, Table: primary.Table, Alias: "t0"}
	sources[primary.Name] = resolved{ref: plan.Base, desc: primary}
	order := []string{primary.Name}

	for i, use := range def.DataSources.Joins {
		rel, err := p.Registry.GetRelation(use.FromSource, use.ToSource)
		if err != nil {
			return nil, err
		}
		to, err := p.Registry.GetSource(use.ToSource)
		if err != nil {
			return nil, err
		}
		from := sources[use.FromSource]
		ref := SourceRef{Name: to.Name, Table: to.Table, Alias: fmt.Sprintf("t%d", i+1)}
		sources[to.Name] = resolved{ref: ref, desc: to}
		order = append(order, to.Name)

		left, err := columnOf(from, rel.JoinKeyFrom)
		if err != nil {
			return nil, err
		}
		right, err := columnOf(sources[to.Name], rel.JoinKeyTo)
		if err != nil {
			return nil, err
		}
		joinType := use.JoinType
		if joinType == "" {
			joinType = report.JoinInner
		}
		plan.Joins = append(plan.Joins, JoinStep{Source: ref, Type: joinType, Left: left, Right: right})
	}

	// Tenant scoping comes first and does not depend on who owns the report
	for _, name := range order {
		src := sources[name]
		col, err := columnOf(src, src.desc.TenantColumn)
		if err != nil {
			return nil, err
		}
		value, err := tenantValue(col.Type, org)
		if err != nil {
			return nil, err
		}
		plan.TenantPredicates = append(plan.TenantPredicates, Predicate{Column: col, Operator: registry.OpEq, Values: []any{value}})
	}

	filters := make([]report.FilterClause, 0, len(def.Filters)+len(runtime))
	filters = append(filters, def.Filters...)
	filters = append(filters, runtime...)
	for _, f := range filters {
		col, err := columnOf(sources[f.Source], f.Field)
		if err != nil {
			return nil, err
		}
		values, err := bindValues(col.Type, f.Values)
		if err != nil {
			return nil, err
		}
		plan.Predicates = append(plan.Predicates, Predicate{Column: col, Operator: f.Operator, Values: values})
	}

	aggregated := def.IsAggregated()
	for _, c := range def.OutputColumns() {
		src := sources[c.Source]
		col, err := columnOf(src, c.Field)
		if err != nil {
			return nil, err
		}
		fd, _ := src.desc.Field(c.Field)
		proj := Projection{
			Column:      col,
			Aggregation: c.Aggregation,
			Name:        c.OutputName(),
			Label:       fd.Label,
			Type:        fd.Type,
			FormatHint:  c.FormatHint,
		}
		if c.Aggregation == registry.AggCount {
			proj.Type = registry.FieldTypeNumber
		}
		plan.Select = append(plan.Select, proj)
		if aggregated && c.Aggregation == "" {
			plan.GroupBy = append(plan.GroupBy, col)
		}
	}

	if err := p.orderBy(plan, def, sources, order, aggregated); err != nil {
		return nil, err
	}
	return plan, nil
}

func (p *Planner) orderBy(plan *QueryPlan, def report.Definition, sources map[string]resolved, order []string, aggregated bool) error {
	seen := make(map[ColumnRef]bool)
	add := func(t OrderTerm) {
		if t.Output == "" {
			if seen[t.Column] {
				return
			}
			seen[t.Column] = true
		}
		plan.OrderBy = append(plan.OrderBy, t)
	}

	for _, s := range def.Sort {
		desc := s.Direction == report.SortDesc
		if s.Alias != "" {
			proj, ok := findProjection(plan, s.Alias)
			if !ok {
				return fmt.Errorf("sort alias %q has no output column", s.Alias)
			}
			if proj.Aggregation != "" {
				add(OrderTerm{Output: proj.Name, Desc: desc})
			} else {
				add(OrderTerm{Column: proj.Column, Desc: desc})
			}
			continue
		}
		col, err := columnOf(sources[s.Source], s.Field)
		if err != nil {
			return err
		}
		add(OrderTerm{Column: col, Desc: desc})
	}

	// Tie-breakers make paging deterministic
	if aggregated {
		for _, col := range plan.GroupBy {
			add(OrderTerm{Column: col})
		}
		if len(plan.OrderBy) == 0 {
			for _, s := range plan.Select {
				add(OrderTerm{Output: s.Name})
			}
		}
		return nil
	}
	for _, name := range order {
		src := sources[name]
		col, err := columnOf(src, src.desc.NaturalKey)
		if err != nil {
			return err
		}
		add(OrderTerm{Column: col})
	}
	return nil
}

func findProjection(plan *QueryPlan, name string) (Projection, bool) {
	for _, s := range plan.Select {
		if s.Name == name {
			return s, true
		}
	}
	return Projection{}, false
}

func columnOf(src resolved, field string) (ColumnRef, error) {
	if src.ref.Alias == "" {
		return ColumnRef{}, fmt.Errorf("field %q refers to a source outside the plan", field)
	}
	fd, ok := src.desc.Field(field)
	if !ok {
		return ColumnRef{}, fmt.Errorf("source %q has no field %q", src.desc.Name, field)
	}
	return ColumnRef{SourceAlias: src.ref.Alias, Column: fd.Column, Type: fd.Type}, nil
}

func tenantValue(t registry.FieldType, org string) (any, error) {
	if t != registry.FieldTypeNumber {
		return org, nil
	}
	id, err := strconv.ParseInt(org, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: organization id %q is not numeric", errs.ErrAccessDenied, org)
	}
	return id, nil
}

func bindValues(t registry.FieldType, values []any) ([]any, error) {
	out := make([]any, 0, len(values))
	for _, v := range values {
		switch t {
		case registry.FieldTypeNumber:
			n, ok := report.NumberValue(v)
			if !ok {
				return nil, fmt.Errorf("value %v is not a number", v)
			}
			out = append(out, n)
		case registry.FieldTypeDate:
			d, ok := report.DateValue(v)
			if !ok {
				return nil, fmt.Errorf("value %v is not a date", v)
			}
			out = append(out, d)
		default:
			out = append(out, v)
		}
	}
	return out, nil
}
