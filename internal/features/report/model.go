package report

import (
	"strings"
	"time"

	"go-reports/internal/features/registry"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type JoinType string

const (
	JoinInner JoinType = "inner"
	JoinLeft  JoinType = "left"
)

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// RelationUse asks for one declared relation to be joined into the report.
type RelationUse struct {
	FromSource string   `json:"from_source" bson:"from_source"`
	ToSource   string   `json:"to_source" bson:"to_source"`
	JoinType   JoinType `json:"join_type,omitempty" bson:"join_type,omitempty"` // inner when empty
}

type DataSources struct {
	Primary string        `json:"primary" bson:"primary"`
	Joins   []RelationUse `json:"joins" bson:"joins"`
}

// ColumnSpec selects one field, optionally aggregated.
type ColumnSpec struct {
	Source      string         `json:"source" bson:"source"`
	Field       string         `json:"field" bson:"field"`
	Alias       string         `json:"alias,omitempty" bson:"alias,omitempty"`
	Aggregation registry.AggFn `json:"aggregation,omitempty" bson:"aggregation,omitempty"`
	FormatHint  string         `json:"format_hint,omitempty" bson:"format_hint,omitempty"` // date, datetime, currency, percent
}

// OutputName is the column name in results: the alias, or a name derived
// from the source and field.
func (c ColumnSpec) OutputName() string {
	if c.Alias != "" {
		return c.Alias
	}
	if c.Aggregation != "" {
		return strings.ToLower(string(c.Aggregation)) + "_" + c.Source + "_" + c.Field
	}
	return c.Source + "_" + c.Field
}

type FilterClause struct {
	Source   string            `json:"source" bson:"source"`
	Field    string            `json:"field" bson:"field"`
	Operator registry.Operator `json:"operator" bson:"operator"`
	Values   []any             `json:"values,omitempty" bson:"values,omitempty"`
}

// SortSpec orders by a source field or by an output column alias.
type SortSpec struct {
	Source    string        `json:"source,omitempty" bson:"source,omitempty"`
	Field     string        `json:"field,omitempty" bson:"field,omitempty"`
	Alias     string        `json:"alias,omitempty" bson:"alias,omitempty"`
	Direction SortDirection `json:"direction,omitempty" bson:"direction,omitempty"`
}

type SourceField struct {
	Source string `json:"source" bson:"source"`
	Field  string `json:"field" bson:"field"`
}

// Definition is the declarative, user-editable part of a report.
type Definition struct {
	Name             string         `json:"name" bson:"name"`
	Description      string         `json:"description" bson:"description"`
	Category         string         `json:"category" bson:"category"`
	DataSources      DataSources    `json:"data_sources" bson:"data_sources"`
	Columns          []ColumnSpec   `json:"columns_config" bson:"columns_config"`
	Filters          []FilterClause `json:"filters_config" bson:"filters_config"`
	Aggregations     []ColumnSpec   `json:"aggregations_config" bson:"aggregations_config"`
	Sort             []SortSpec     `json:"sort_config" bson:"sort_config"`
	FilterableFields []SourceField  `json:"filterable_fields" bson:"filterable_fields"`
}

// OutputColumns lists columns then aggregations, in result order.
func (d Definition) OutputColumns() []ColumnSpec {
	out := make([]ColumnSpec, 0, len(d.Columns)+len(d.Aggregations))
	out = append(out, d.Columns...)
	out = append(out, d.Aggregations...)
	return out
}

// IsAggregated reports whether any output column carries an aggregation.
func (d Definition) IsAggregated() bool {
	for _, c := range d.OutputColumns() {
		if c.Aggregation != "" {
			return true
		}
	}
	return false
}

// Report is a saved definition owned by one user of one organization.
type Report struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	OrganizationID string             `json:"organization_id" bson:"organization_id"`
	OwnerUserID    string             `json:"owner_user_id" bson:"owner_user_id"`
	Definition     `bson:",inline"`
	IsShared       bool      `json:"is_shared" bson:"is_shared"`
	Version        int       `json:"version" bson:"version"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" bson:"updated_at"`
}

// ReportView is a report as seen by one viewer.
type ReportView struct {
	Report
	IsFavorite bool `json:"is_favorite"`
}

// Favorite marks a report as a favorite of one user.
type Favorite struct {
	UserID         string             `json:"user_id" bson:"user_id"`
	ReportID       primitive.ObjectID `json:"report_id" bson:"report_id"`
	OrganizationID string             `json:"organization_id" bson:"organization_id"`
	CreatedAt      time.Time          `json:"created_at" bson:"created_at"`
}

type ListFilter struct {
	Category      string
	FavoritesOnly bool
	SharedOnly    bool
	Search        string
}

// Patch carries the fields of an update; nil fields are left unchanged.
type Patch struct {
	Name             *string         `json:"name"`
	Description      *string         `json:"description"`
	Category         *string         `json:"category"`
	DataSources      *DataSources    `json:"data_sources"`
	Columns          *[]ColumnSpec   `json:"columns_config"`
	Filters          *[]FilterClause `json:"filters_config"`
	Aggregations     *[]ColumnSpec   `json:"aggregations_config"`
	Sort             *[]SortSpec     `json:"sort_config"`
	FilterableFields *[]SourceField  `json:"filterable_fields"`
}

// Apply merges the patch into a copy of def.
func (p Patch) Apply(def Definition) Definition {
	if p.Name != nil {
		def.Name = *p.Name
	}
	if p.Description != nil {
		def.Description = *p.Description
	}
	if p.Category != nil {
		def.Category = *p.Category
	}
	if p.DataSources != nil {
		def.DataSources = *p.DataSources
	}
	if p.Columns != nil {
		def.Columns = *p.Columns
	}
	if p.Filters != nil {
		def.Filters = *p.Filters
	}
	if p.Aggregations != nil {
		def.Aggregations = *p.Aggregations
	}
	if p.Sort != nil {
		def.Sort = *p.Sort
	}
	if p.FilterableFields != nil {
		def.FilterableFields = *p.FilterableFields
	}
	return def
}
