package query

import (
	"testing"
	"time"

	"go-reports/internal/features/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompilePostgres(t *testing.T) {
	p := newTestPlanner(t)
	plan, err := p.BuildPlan(confirmedWorksByProject(), nil, "7")
	require.NoError(t, err)

	sql, args, err := Compile(plan.WithPage(50, 0), DialectPostgres)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "t1"."id" AS "project_id", SUM("t0"."total_amount") AS "total_amount"`+
			` FROM "completed_works" AS "t0"`+
			` INNER JOIN "projects" AS "t1" ON "t0"."project_id" = "t1"."id" AND "t1"."organization_id" = $1`+
			` WHERE "t0"."organization_id" = $2 AND "t0"."status" = $3`+
			` GROUP BY "t1"."id" ORDER BY "t1"."id" ASC LIMIT 50`,
		sql)
	assert.Equal(t, []any{int64(7), int64(7), "confirmed"}, args)
}

func TestCompileMySQL(t *testing.T) {
	p := newTestPlanner(t)
	plan, err := p.BuildPlan(worksWithProjects(), nil, "7")
	require.NoError(t, err)

	sql, args, err := Compile(plan.WithPage(10, 30), DialectMySQL)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT `t0`.`name` AS `projects_name`, `t1`.`total_amount` AS `completed_works_total_amount`"+
			" FROM `projects` AS `t0`"+
			" LEFT JOIN `completed_works` AS `t1` ON `t0`.`id` = `t1`.`project_id` AND `t1`.`organization_id` = ?"+
			" WHERE `t0`.`organization_id` = ?"+
			" ORDER BY `t0`.`id` ASC, `t1`.`id` ASC LIMIT 10 OFFSET 30",
		sql)
	assert.Equal(t, []any{int64(7), int64(7)}, args)
}

func TestCompileCount(t *testing.T) {
	p := newTestPlanner(t)
	plan, err := p.BuildPlan(confirmedWorksByProject(), nil, "7")
	require.NoError(t, err)

	sql, args, err := CompileCount(plan.WithPage(50, 100), DialectSQLite)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT COUNT(*) FROM (SELECT "t1"."id" AS "project_id", SUM("t0"."total_amount") AS "total_amount"`+
			` FROM "completed_works" AS "t0"`+
			` INNER JOIN "projects" AS "t1" ON "t0"."project_id" = "t1"."id" AND "t1"."organization_id" = ?`+
			` WHERE "t0"."organization_id" = ? AND "t0"."status" = ?`+
			` GROUP BY "t1"."id") AS "q"`,
		sql)
	assert.Len(t, args, 3)
}

func TestCompileOperators(t *testing.T) {
	col := ColumnRef{SourceAlias: "t0", Column: "name", Type: registry.FieldTypeString}
	num := ColumnRef{SourceAlias: "t0", Column: "budget", Type: registry.FieldTypeNumber}
	day := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		dialect Dialect
		pred    Predicate
		sql     string
		args    []any
	}{
		{"like escapes wildcards", DialectPostgres, Predicate{col, registry.OpLike, []any{"50%_off!"}}, `"t0"."name" ILIKE $1 ESCAPE '!'`, []any{"%50!%!_off!!%"}},
		{"like on mysql", DialectMySQL, Predicate{col, registry.OpLike, []any{"tower"}}, "`t0`.`name` LIKE ? ESCAPE '!'", []any{"%tower%"}},
		{"in", DialectPostgres, Predicate{num, registry.OpIn, []any{int64(1), int64(2)}}, `"t0"."budget" IN ($1, $2)`, []any{int64(1), int64(2)}},
		{"between", DialectPostgres, Predicate{num, registry.OpBetween, []any{int64(1), 2.5}}, `"t0"."budget" BETWEEN $1 AND $2`, []any{int64(1), 2.5}},
		{"neq", DialectSQLite, Predicate{num, registry.OpNeq, []any{int64(3)}}, `"t0"."budget" <> ?`, []any{int64(3)}},
		{"is null", DialectPostgres, Predicate{col, registry.OpIsNull, nil}, `"t0"."name" IS NULL`, nil},
		{"is not null", DialectPostgres, Predicate{col, registry.OpIsNotNull, nil}, `"t0"."name" IS NOT NULL`, nil},
		{"sqlite date as text", DialectSQLite, Predicate{num, registry.OpGte, []any{day}}, `"t0"."budget" >= ?`, []any{"2026-01-01"}},
		{"postgres date as time", DialectPostgres, Predicate{num, registry.OpLt, []any{day}}, `"t0"."budget" < $1`, []any{day}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &compiler{dialect: tt.dialect}
			require.NoError(t, c.predicate(tt.pred))
			assert.Equal(t, tt.sql, c.sb.String())
			assert.Equal(t, tt.args, c.args)
		})
	}
}

func TestQuoteDoublesQuoteCharacters(t *testing.T) {
	pg := &compiler{dialect: DialectPostgres}
	assert.Equal(t, `"we""ird"`, pg.quote(`we"ird`))
	my := &compiler{dialect: DialectMySQL}
	assert.Equal(t, "`we``ird`", my.quote("we`ird"))
}

func TestCompileRefusesUnscopedPlan(t *testing.T) {
	plan := &QueryPlan{
		Base:   SourceRef{Name: "projects", Table: "projects", Alias: "t0"},
		Select: []Projection{{Column: ColumnRef{SourceAlias: "t0", Column: "id"}, Name: "id"}},
	}
	_, _, err := Compile(plan, DialectPostgres)
	assert.Error(t, err)

	// A tenant predicate only on a joined source does not scope the base
	plan.TenantPredicates = []Predicate{{Column: ColumnRef{SourceAlias: "t1", Column: "organization_id"}, Operator: registry.OpEq, Values: []any{int64(7)}}}
	_, _, err = Compile(plan, DialectPostgres)
	assert.Error(t, err)
}

func TestDialectFor(t *testing.T) {
	d, err := DialectFor("postgresql")
	require.NoError(t, err)
	assert.Equal(t, DialectPostgres, d)

	_, err = DialectFor("oracle")
	assert.Error(t, err)
}
