// Package query turns validated report definitions into tenant-scoped query
// plans and runs them against the warehouse.
package query

import (
	"go-reports/internal/features/registry"
	"go-reports/internal/features/report"
)

// SourceRef is one table in the FROM clause. Alias is generated (t0, t1, ...).
type SourceRef struct {
	Name  string
	Table string
	Alias string
}

// ColumnRef is a registry-resolved column of an aliased source.
type ColumnRef struct {
	SourceAlias string
	Column      string
	Type        registry.FieldType
}

type JoinStep struct {
	Source SourceRef
	Type   report.JoinType
	Left   ColumnRef
	Right  ColumnRef
}

type Predicate struct {
	Column   ColumnRef
	Operator registry.Operator
	Values   []any
}

type Projection struct {
	Column      ColumnRef
	Aggregation registry.AggFn
	Name        string
	Label       string
	Type        registry.FieldType
	FormatHint  string
}

// OrderTerm orders by a column, or by an output name when Output is set.
type OrderTerm struct {
	Column ColumnRef
	Output string
	Desc   bool
}

// QueryPlan is everything needed to read one page of a report. Tenant
// predicates on the base source go into WHERE; those on joined sources go
// into the join condition so LEFT joins cannot pull in foreign rows.
type QueryPlan struct {
	OrganizationID   string
	Base             SourceRef
	Joins            []JoinStep
	TenantPredicates []Predicate
	Predicates       []Predicate
	Select           []Projection
	GroupBy          []ColumnRef
	OrderBy          []OrderTerm
	Limit            int
	Offset           int
}

// WithPage returns a copy of the plan reading limit rows from offset.
func (p QueryPlan) WithPage(limit, offset int) *QueryPlan {
	p.Limit = limit
	p.Offset = offset
	return &p
}

// Aggregated reports whether the plan groups rows.
func (p *QueryPlan) Aggregated() bool {
	for _, s := range p.Select {
		if s.Aggregation != "" {
			return true
		}
	}
	return false
}
