package query

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"go-reports/internal/database"
	"go-reports/internal/features/registry"

	"go.uber.org/zap"
)

// Row is one result row keyed by output column name.
type Row map[string]any

// Reader is the only place the core touches report data.
type Reader interface {
	Query(ctx context.Context, plan *QueryPlan) ([]Row, error)
	Count(ctx context.Context, plan *QueryPlan) (int64, error)
}

// SQLReader runs plans against the warehouse through database/sql.
type SQLReader struct {
	DB      *sql.DB
	Dialect Dialect
	Logger  *zap.Logger
}

func NewSQLReader(wh *database.Warehouse, logger *zap.Logger) (Reader, error) {
	dialect, err := DialectFor(wh.Driver)
	if err != nil {
		return nil, err
	}
	return &SQLReader{DB: wh.DB, Dialect: dialect, Logger: logger.Named("warehouse")}, nil
}

func (r *SQLReader) Query(ctx context.Context, plan *QueryPlan) ([]Row, error) {
	query, args, err := Compile(plan, r.Dialect)
	if err != nil {
		return nil, fmt.Errorf("failed to compile query: %w", err)
	}
	r.Logger.Debug("warehouse query", zap.String("sql", query), zap.Int("args", len(args)), zap.String("organization_id", plan.OrganizationID))

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	data, err := rowsToMaps(rows, plan.Select)
	if err != nil {
		return nil, fmt.Errorf("failed to process query results: %w", err)
	}
	return data, nil
}

func (r *SQLReader) Count(ctx context.Context, plan *QueryPlan) (int64, error) {
	query, args, err := CompileCount(plan, r.Dialect)
	if err != nil {
		return 0, fmt.Errorf("failed to compile count: %w", err)
	}

	var n int64
	if err := r.DB.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to execute count: %w", err)
	}
	return n, nil
}

// rowsToMaps scans rows generically and normalizes driver-specific values:
// []byte becomes string, and numeric text (postgres NUMERIC) becomes float64.
func rowsToMaps(rows *sql.Rows, projections []Projection) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	types := make(map[string]registry.FieldType, len(projections))
	for _, p := range projections {
		types[p.Name] = p.Type
	}

	result := []Row{}
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = normalize(values[i], types[col])
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func normalize(v any, t registry.FieldType) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	switch t {
	case registry.FieldTypeNumber:
		if s, ok := v.(string); ok {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f
			}
		}
	case registry.FieldTypeBoolean:
		if n, ok := v.(int64); ok {
			return n != 0
		}
	case registry.FieldTypeDate:
		if tm, ok := v.(time.Time); ok {
			return tm.UTC()
		}
	}
	return v
}
