package query

import (
	"context"
	"database/sql"
	"testing"

	"go-reports/internal/features/registry"
	"go-reports/internal/features/report"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const fixtureSchema = `
CREATE TABLE projects (
	id INTEGER PRIMARY KEY,
	organization_id INTEGER NOT NULL,
	name TEXT,
	status TEXT,
	budget REAL,
	start_date TEXT,
	end_date TEXT
);
CREATE TABLE completed_works (
	id INTEGER PRIMARY KEY,
	organization_id INTEGER NOT NULL,
	project_id INTEGER,
	contract_id INTEGER,
	description TEXT,
	status TEXT,
	quantity REAL,
	unit_price REAL,
	total_amount REAL,
	completed_on TEXT
);
INSERT INTO projects (id, organization_id, name, status, budget) VALUES
	(1, 7, 'Tower A', 'active', 1000),
	(2, 7, 'Tower B', 'active', 500),
	(3, 8, 'Foreign tower', 'active', 900),
	(4, 7, 'Empty lot', 'planned', 0),
	(5, 7, '100% Done', 'completed', 10),
	(6, 7, '1000 Done', 'completed', 10);
INSERT INTO completed_works (id, organization_id, project_id, status, total_amount, completed_on) VALUES
	(1, 7, 1, 'confirmed', 100, '2026-01-10'),
	(2, 7, 1, 'confirmed', 50, '2026-02-10'),
	(3, 7, 1, 'draft', 1000, '2026-02-11'),
	(4, 7, 2, 'confirmed', 30, '2026-03-01'),
	(5, 8, 3, 'confirmed', 999, '2026-01-05'),
	(6, 8, 1, 'confirmed', 5000, '2026-01-06'),
	(7, 7, 3, 'confirmed', 777, '2026-01-07');
`

func newFixtureReader(t *testing.T) Reader {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// Every connection to :memory: is a new database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(fixtureSchema)
	require.NoError(t, err)
	return &SQLReader{DB: db, Dialect: DialectSQLite, Logger: zap.NewNop()}
}

func TestExampleReportScopedToOrganization(t *testing.T) {
	reader := newFixtureReader(t)
	p := newTestPlanner(t)
	ctx := context.Background()

	plan, err := p.BuildPlan(confirmedWorksByProject(), nil, "7")
	require.NoError(t, err)

	rows, err := reader.Query(ctx, plan)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0]["project_id"])
	assert.Equal(t, 150.0, rows[0]["total_amount"])
	assert.Equal(t, int64(2), rows[1]["project_id"])
	assert.Equal(t, 30.0, rows[1]["total_amount"])

	n, err := reader.Count(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestLeftJoinDoesNotLeakForeignRows(t *testing.T) {
	reader := newFixtureReader(t)
	p := newTestPlanner(t)

	plan, err := p.BuildPlan(worksWithProjects(), nil, "7")
	require.NoError(t, err)

	rows, err := reader.Query(context.Background(), plan)
	require.NoError(t, err)
	// 3 works on Tower A, 1 on Tower B, and one null row for each empty project
	require.Len(t, rows, 7)
	for _, row := range rows {
		assert.NotEqual(t, "Foreign tower", row["projects_name"])
		assert.NotEqual(t, 5000.0, row["completed_works_total_amount"])
	}
	assert.Nil(t, rows[4]["completed_works_total_amount"])
}

func TestSharedReportRunsInCallerOrganization(t *testing.T) {
	reader := newFixtureReader(t)
	p := newTestPlanner(t)

	// The same definition executed for org 8 only ever sees org 8 rows
	plan, err := p.BuildPlan(confirmedWorksByProject(), nil, "8")
	require.NoError(t, err)

	rows, err := reader.Query(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(3), rows[0]["project_id"])
	assert.Equal(t, 999.0, rows[0]["total_amount"])
}

func TestQueryIsDeterministicAcrossPages(t *testing.T) {
	reader := newFixtureReader(t)
	p := newTestPlanner(t)
	ctx := context.Background()

	plan, err := p.BuildPlan(worksWithProjects(), nil, "7")
	require.NoError(t, err)

	first, err := reader.Query(ctx, plan)
	require.NoError(t, err)
	second, err := reader.Query(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var paged []Row
	for offset := 0; offset < len(first); offset += 2 {
		page, err := reader.Query(ctx, plan.WithPage(2, offset))
		require.NoError(t, err)
		paged = append(paged, page...)
	}
	assert.Equal(t, first, paged)
}

func TestLikeTreatsWildcardsLiterally(t *testing.T) {
	reader := newFixtureReader(t)
	p := newTestPlanner(t)

	runtime := []report.FilterClause{{Source: "projects", Field: "name", Operator: registry.OpLike, Values: []any{"100%"}}}
	plan, err := p.BuildPlan(worksWithProjects(), runtime, "7")
	require.NoError(t, err)

	rows, err := reader.Query(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "100% Done", rows[0]["projects_name"])
}

func TestRuntimeDateFilter(t *testing.T) {
	reader := newFixtureReader(t)
	p := newTestPlanner(t)

	runtime := []report.FilterClause{
		{Source: "completed_works", Field: "completed_on", Operator: registry.OpGte, Values: []any{"2026-02-01"}},
	}
	plan, err := p.BuildPlan(confirmedWorksByProject(), runtime, "7")
	require.NoError(t, err)

	rows, err := reader.Query(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 50.0, rows[0]["total_amount"])
	assert.Equal(t, 30.0, rows[1]["total_amount"])
}
