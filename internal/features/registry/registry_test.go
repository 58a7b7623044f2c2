package registry

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogLoads(t *testing.T) {
	r, err := NewDefaultRegistry()
	require.NoError(t, err)
	assert.Equal(t, CatalogVersion, r.Version())

	names := make([]string, 0)
	for _, s := range r.ListSources() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"completed_works", "contracts", "estimates", "materials", "organizations", "projects"}, names)
}

func TestGetSource(t *testing.T) {
	r, err := NewDefaultRegistry()
	require.NoError(t, err)

	src, err := r.GetSource("completed_works")
	require.NoError(t, err)
	assert.Equal(t, "organization_id", src.TenantColumn)

	f, ok := src.Field("total_amount")
	require.True(t, ok)
	assert.Equal(t, FieldTypeNumber, f.Type)

	_, ok = src.Field("secret_column")
	assert.False(t, ok)

	_, err = r.GetSource("payroll")
	assert.True(t, errors.Is(err, ErrSourceNotFound))
}

func TestReturnedSourcesAreCopies(t *testing.T) {
	r, err := NewDefaultRegistry()
	require.NoError(t, err)

	src, err := r.GetSource("projects")
	require.NoError(t, err)
	src.Fields[0].Name = "hacked"
	src.Relations = nil

	again, err := r.GetSource("projects")
	require.NoError(t, err)
	assert.Equal(t, "id", again.Fields[0].Name)
	assert.NotEmpty(t, again.Relations)
}

func TestGetRelationIsDirectional(t *testing.T) {
	r, err := NewDefaultRegistry()
	require.NoError(t, err)

	rel, err := r.GetRelation("completed_works", "projects")
	require.NoError(t, err)
	assert.Equal(t, "project_id", rel.JoinKeyFrom)
	assert.Equal(t, "id", rel.JoinKeyTo)

	// materials -> projects only exists transitively through estimates
	_, err = r.GetRelation("materials", "projects")
	assert.True(t, errors.Is(err, ErrRelationNotFound))

	_, err = r.GetRelation("organizations", "projects")
	assert.True(t, errors.Is(err, ErrRelationNotFound))
}

func TestOperatorAllowed(t *testing.T) {
	r, err := NewDefaultRegistry()
	require.NoError(t, err)

	tests := []struct {
		typ  FieldType
		op   Operator
		want bool
	}{
		{FieldTypeString, OpLike, true},
		{FieldTypeNumber, OpLike, false},
		{FieldTypeNumber, OpBetween, true},
		{FieldTypeDate, OpIn, false},
		{FieldTypeBoolean, OpGt, false},
		{FieldTypeEnum, OpIn, true},
		{FieldTypeEnum, OpIsNull, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.OperatorAllowed(tt.typ, tt.op), "%s %s", tt.typ, tt.op)
	}
}

func TestAggregationAllowed(t *testing.T) {
	r, err := NewDefaultRegistry()
	require.NoError(t, err)

	amount := FieldDescriptor{Name: "amount", Type: FieldTypeNumber, Aggregatable: true}
	notAgg := FieldDescriptor{Name: "organization_id", Type: FieldTypeNumber}
	date := FieldDescriptor{Name: "signed_on", Type: FieldTypeDate, Aggregatable: true}

	assert.True(t, r.AggregationAllowed(amount, AggSum))
	assert.False(t, r.AggregationAllowed(notAgg, AggSum))
	assert.False(t, r.AggregationAllowed(date, AggAvg))
	assert.True(t, r.AggregationAllowed(date, AggMax))
	assert.True(t, r.AggregationAllowed(date, AggCount))
	assert.False(t, r.AggregationAllowed(amount, AggFn("MEDIAN")))
}

func TestCatalogSelfValidation(t *testing.T) {
	base := func() SourceDescriptor {
		return SourceDescriptor{
			Name:  "a",
			Table: "a",
			Fields: []FieldDescriptor{
				{Name: "id", Column: "id", Type: FieldTypeNumber},
				{Name: "org", Column: "org", Type: FieldTypeNumber},
			},
			TenantColumn: "org",
			NaturalKey:   "id",
		}
	}

	tests := []struct {
		name   string
		mutate func(*SourceDescriptor)
	}{
		{"missing tenant column", func(s *SourceDescriptor) { s.TenantColumn = "tenant" }},
		{"missing natural key", func(s *SourceDescriptor) { s.NaturalKey = "code" }},
		{"duplicate field", func(s *SourceDescriptor) { s.Fields = append(s.Fields, s.Fields[0]) }},
		{"unknown type", func(s *SourceDescriptor) { s.Fields[0].Type = "money" }},
		{"enum without values", func(s *SourceDescriptor) {
			s.Fields = append(s.Fields, FieldDescriptor{Name: "state", Column: "state", Type: FieldTypeEnum})
		}},
		{"relation to unknown source", func(s *SourceDescriptor) {
			s.Relations = []RelationDescriptor{{FromSource: "a", ToSource: "b", JoinKeyFrom: "id", JoinKeyTo: "id"}}
		}},
		{"relation on unknown key", func(s *SourceDescriptor) {
			s.Relations = []RelationDescriptor{{FromSource: "a", ToSource: "a", JoinKeyFrom: "parent_id", JoinKeyTo: "id"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := base()
			tt.mutate(&src)
			_, err := NewStaticRegistry("test", []SourceDescriptor{src})
			assert.Error(t, err)
		})
	}

	_, err := NewStaticRegistry("test", []SourceDescriptor{base()})
	assert.NoError(t, err)
}

func TestConcurrentReads(t *testing.T) {
	r, err := NewDefaultRegistry()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = r.GetSource("projects")
				_, _ = r.GetRelation("projects", "contracts")
				_ = r.ListOperators()
			}
		}()
	}
	wg.Wait()
}
