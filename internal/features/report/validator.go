package report

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"go-reports/internal/common/errs"
	"go-reports/internal/features/registry"
)

var aliasPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// Validator checks definitions against the registry. It has no side effects
// and is safe to share.
type Validator struct {
	Registry registry.Registry
}

func NewValidator(reg registry.Registry) *Validator {
	return &Validator{Registry: reg}
}

// Validate returns every problem found in def; an empty result means valid.
func (v *Validator) Validate(def Definition) errs.ValidationErrors {
	var out errs.ValidationErrors

	if strings.TrimSpace(def.Name) == "" {
		out.Add("name", "required", "name is required")
	}

	sources := v.includedSources(def, &out)
	if sources == nil {
		return out
	}

	for i, c := range def.Columns {
		v.checkColumn(fmt.Sprintf("columns_config[%d]", i), c, sources, false, &out)
	}
	for i, c := range def.Aggregations {
		v.checkColumn(fmt.Sprintf("aggregations_config[%d]", i), c, sources, true, &out)
	}

	outputs := def.OutputColumns()
	if len(outputs) == 0 {
		out.Add("columns_config", "required", "at least one column is required")
	}
	names := make(map[string]bool, len(outputs))
	for i, c := range outputs {
		path := outputPath(def, i) + ".alias"
		name := c.OutputName()
		if !aliasPattern.MatchString(name) {
			out.Add(path, "invalid_alias", "alias %q must be a letter or underscore followed by up to 62 letters, digits or underscores", name)
			continue
		}
		if names[name] {
			out.Add(path, "duplicate_alias", "output column %q appears more than once", name)
			continue
		}
		names[name] = true
	}

	for i, f := range def.Filters {
		v.checkFilter(fmt.Sprintf("filters_config[%d]", i), f, sources, &out)
	}

	aggregated := def.IsAggregated()
	for i, s := range def.Sort {
		v.checkSort(fmt.Sprintf("sort_config[%d]", i), s, def, sources, names, aggregated, &out)
	}

	for i, sf := range def.FilterableFields {
		v.resolveField(fmt.Sprintf("filterable_fields[%d]", i), sf.Source, sf.Field, sources, &out)
	}

	return out
}

// ValidateRuntimeFilters checks filters supplied at run time. They may only
// target the declared filterable fields or fields the stored filters already
// constrain.
func (v *Validator) ValidateRuntimeFilters(def Definition, filters []FilterClause) errs.ValidationErrors {
	var out errs.ValidationErrors
	if len(filters) == 0 {
		return out
	}

	var ignored errs.ValidationErrors
	sources := v.includedSources(def, &ignored)
	allowed := FilterableSet(def)

	for i, f := range filters {
		path := fmt.Sprintf("runtime_filters[%d]", i)
		if !allowed[SourceField{Source: f.Source, Field: f.Field}] {
			out.Add(path, "filter_not_allowed", "%s.%s is not a filterable field of this report", f.Source, f.Field)
			continue
		}
		v.checkFilter(path, f, sources, &out)
	}
	return out
}

// FilterableSet is the declared filterable fields plus the fields of stored filters.
func FilterableSet(def Definition) map[SourceField]bool {
	set := make(map[SourceField]bool, len(def.FilterableFields)+len(def.Filters))
	for _, sf := range def.FilterableFields {
		set[sf] = true
	}
	for _, f := range def.Filters {
		set[SourceField{Source: f.Source, Field: f.Field}] = true
	}
	return set
}

// includedSources resolves the primary source and the join chain. It returns
// nil when the primary source cannot be resolved.
func (v *Validator) includedSources(def Definition, out *errs.ValidationErrors) map[string]registry.SourceDescriptor {
	primaryName := def.DataSources.Primary
	if primaryName == "" {
		out.Add("data_sources.primary", "required", "primary source is required")
		return nil
	}
	primary, err := v.Registry.GetSource(primaryName)
	if err != nil {
		out.Add("data_sources.primary", "unknown_source", "unknown source %q", primaryName)
		return nil
	}

	sources := map[string]registry.SourceDescriptor{primary.Name: primary}
	for i, j := range def.DataSources.Joins {
		path := fmt.Sprintf("data_sources.joins[%d]", i)
		if j.JoinType != "" && j.JoinType != JoinInner && j.JoinType != JoinLeft {
			out.Add(path+".join_type", "invalid_join_type", "join type must be inner or left")
		}
		if _, ok := sources[j.FromSource]; !ok {
			out.Add(path+".from_source", "orphan_join", "%q is neither the primary source nor joined earlier", j.FromSource)
			continue
		}
		if _, dup := sources[j.ToSource]; dup {
			out.Add(path+".to_source", "duplicate_join", "%q is already part of the report", j.ToSource)
			continue
		}
		if _, err := v.Registry.GetRelation(j.FromSource, j.ToSource); err != nil {
			out.Add(path, "unknown_relation", "no relation from %q to %q", j.FromSource, j.ToSource)
			continue
		}
		to, err := v.Registry.GetSource(j.ToSource)
		if err != nil {
			out.Add(path+".to_source", "unknown_source", "unknown source %q", j.ToSource)
			continue
		}
		sources[to.Name] = to
	}
	return sources
}

func (v *Validator) resolveField(path, source, field string, sources map[string]registry.SourceDescriptor, out *errs.ValidationErrors) (registry.FieldDescriptor, bool) {
	src, ok := sources[source]
	if !ok {
		if _, err := v.Registry.GetSource(source); err == nil {
			out.Add(path+".source", "source_not_included", "source %q is not part of the report", source)
		} else {
			out.Add(path+".source", "unknown_source", "unknown source %q", source)
		}
		return registry.FieldDescriptor{}, false
	}
	fd, ok := src.Field(field)
	if !ok {
		out.Add(path+".field", "unknown_field", "%q has no field %q", source, field)
		return registry.FieldDescriptor{}, false
	}
	return fd, true
}

func (v *Validator) checkColumn(path string, c ColumnSpec, sources map[string]registry.SourceDescriptor, requireAgg bool, out *errs.ValidationErrors) {
	fd, ok := v.resolveField(path, c.Source, c.Field, sources, out)
	if c.Aggregation == "" {
		if requireAgg {
			out.Add(path+".aggregation", "required", "aggregation function is required")
		}
		return
	}
	if !c.Aggregation.Known() {
		out.Add(path+".aggregation", "unknown_aggregation", "unknown aggregation %q", c.Aggregation)
		return
	}
	if ok && !v.Registry.AggregationAllowed(fd, c.Aggregation) {
		out.Add(path+".aggregation", "aggregation_not_allowed", "%s is not allowed on %s.%s", c.Aggregation, c.Source, c.Field)
	}
}

func (v *Validator) checkFilter(path string, f FilterClause, sources map[string]registry.SourceDescriptor, out *errs.ValidationErrors) {
	fd, ok := v.resolveField(path, f.Source, f.Field, sources, out)
	if !ok {
		return
	}
	if !f.Operator.Known() {
		out.Add(path+".operator", "unknown_operator", "unknown operator %q", f.Operator)
		return
	}
	if !v.Registry.OperatorAllowed(fd.Type, f.Operator) {
		out.Add(path+".operator", "operator_not_allowed", "%s is not allowed on %s fields", f.Operator, fd.Type)
		return
	}

	switch n := f.Operator.Arity(); {
	case n < 0 && len(f.Values) == 0:
		out.Add(path+".values", "arity", "%s needs at least one value", f.Operator)
		return
	case n >= 0 && len(f.Values) != n:
		out.Add(path+".values", "arity", "%s needs exactly %d value(s), got %d", f.Operator, n, len(f.Values))
		return
	}

	for i, val := range f.Values {
		if code, msg := checkValue(fd, val); code != "" {
			out.Add(fmt.Sprintf("%s.values[%d]", path, i), code, "%s", msg)
		}
	}
}

func checkValue(fd registry.FieldDescriptor, val any) (string, string) {
	switch fd.Type {
	case registry.FieldTypeNumber:
		if _, ok := NumberValue(val); !ok {
			return "value_type", "expected a number"
		}
	case registry.FieldTypeDate:
		if _, ok := DateValue(val); !ok {
			return "value_type", "expected a date (YYYY-MM-DD or RFC 3339)"
		}
	case registry.FieldTypeBoolean:
		if _, ok := val.(bool); !ok {
			return "value_type", "expected true or false"
		}
	case registry.FieldTypeString:
		if _, ok := val.(string); !ok {
			return "value_type", "expected a string"
		}
	case registry.FieldTypeEnum:
		s, ok := val.(string)
		if !ok {
			return "value_type", "expected a string"
		}
		if !slices.Contains(fd.EnumValues, s) {
			return "enum_value", fmt.Sprintf("%q is not one of %s", s, strings.Join(fd.EnumValues, ", "))
		}
	}
	return "", ""
}

func (v *Validator) checkSort(path string, s SortSpec, def Definition, sources map[string]registry.SourceDescriptor, outputs map[string]bool, aggregated bool, out *errs.ValidationErrors) {
	if s.Direction != "" && s.Direction != SortAsc && s.Direction != SortDesc {
		out.Add(path+".direction", "invalid_direction", "direction must be asc or desc")
	}

	if s.Alias != "" {
		if !outputs[s.Alias] {
			out.Add(path+".alias", "unknown_sort_target", "no output column named %q", s.Alias)
		}
		return
	}
	if s.Source == "" && s.Field == "" {
		out.Add(path, "required", "sort needs a field or an alias")
		return
	}
	if _, ok := v.resolveField(path, s.Source, s.Field, sources, out); !ok {
		return
	}
	if aggregated && !isGrouped(def, s.Source, s.Field) {
		out.Add(path, "sort_not_grouped", "%s.%s is not a grouped column", s.Source, s.Field)
	}
}

func isGrouped(def Definition, source, field string) bool {
	for _, c := range def.OutputColumns() {
		if c.Aggregation == "" && c.Source == source && c.Field == field {
			return true
		}
	}
	return false
}

func outputPath(def Definition, i int) string {
	if i < len(def.Columns) {
		return fmt.Sprintf("columns_config[%d]", i)
	}
	return fmt.Sprintf("aggregations_config[%d]", i-len(def.Columns))
}
