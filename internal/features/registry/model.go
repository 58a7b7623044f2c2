package registry

// FieldType is the logical type of a source field.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeNumber  FieldType = "number"
	FieldTypeDate    FieldType = "date"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeEnum    FieldType = "enum"
)

// Operator is a filter comparison.
type Operator string

const (
	OpEq        Operator = "eq"
	OpNeq       Operator = "neq"
	OpGt        Operator = "gt"
	OpGte       Operator = "gte"
	OpLt        Operator = "lt"
	OpLte       Operator = "lte"
	OpLike      Operator = "like"
	OpIn        Operator = "in"
	OpBetween   Operator = "between"
	OpIsNull    Operator = "isNull"
	OpIsNotNull Operator = "isNotNull"
)

var allOperators = []Operator{OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpLike, OpIn, OpBetween, OpIsNull, OpIsNotNull}

// Known reports whether o is part of the operator vocabulary at all.
func (o Operator) Known() bool {
	for _, op := range allOperators {
		if op == o {
			return true
		}
	}
	return false
}

// Arity returns how many values an operator takes. -1 means one or more.
func (o Operator) Arity() int {
	switch o {
	case OpIsNull, OpIsNotNull:
		return 0
	case OpBetween:
		return 2
	case OpIn:
		return -1
	default:
		return 1
	}
}

// AggFn is an aggregation function.
type AggFn string

const (
	AggSum   AggFn = "SUM"
	AggAvg   AggFn = "AVG"
	AggCount AggFn = "COUNT"
	AggMin   AggFn = "MIN"
	AggMax   AggFn = "MAX"
)

// Known reports whether fn is one of the supported aggregations.
func (fn AggFn) Known() bool {
	switch fn {
	case AggSum, AggAvg, AggCount, AggMin, AggMax:
		return true
	}
	return false
}

type Cardinality string

const (
	OneToOne  Cardinality = "one-to-one"
	OneToMany Cardinality = "one-to-many"
)

// FieldDescriptor describes one readable column of a source.
type FieldDescriptor struct {
	Name         string    `json:"name"`
	Column       string    `json:"-"`
	Type         FieldType `json:"type"`
	Label        string    `json:"label"`
	Aggregatable bool      `json:"aggregatable"`
	EnumValues   []string  `json:"enum_values,omitempty"`
}

// RelationDescriptor is a declared, directional join between two sources.
type RelationDescriptor struct {
	FromSource  string      `json:"from_source"`
	ToSource    string      `json:"to_source"`
	JoinKeyFrom string      `json:"join_key_from"`
	JoinKeyTo   string      `json:"join_key_to"`
	Cardinality Cardinality `json:"cardinality"`
}

// SourceDescriptor is a logical data source. TenantColumn and NaturalKey name
// fields declared in Fields.
type SourceDescriptor struct {
	Name         string               `json:"name"`
	Label        string               `json:"label"`
	Table        string               `json:"-"`
	Fields       []FieldDescriptor    `json:"fields"`
	Relations    []RelationDescriptor `json:"relations"`
	TenantColumn string               `json:"tenant_column"`
	NaturalKey   string               `json:"natural_key"`
}

// Field looks up a field by name.
func (s SourceDescriptor) Field(name string) (FieldDescriptor, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

// AggregationDescriptor documents what an aggregation accepts.
type AggregationDescriptor struct {
	Function     AggFn       `json:"function"`
	AllowedTypes []FieldType `json:"allowed_types"`
	Description  string      `json:"description"`
}
