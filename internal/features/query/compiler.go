package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go-reports/internal/features/registry"
	"go-reports/internal/features/report"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite3"
)

// DialectFor maps a database/sql driver name onto its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "postgres", "postgresql":
		return DialectPostgres, nil
	case "mysql":
		return DialectMySQL, nil
	case "sqlite3", "sqlite":
		return DialectSQLite, nil
	}
	return "", fmt.Errorf("unsupported dialect %q", driver)
}

const likeEscape = '!'

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

type compiler struct {
	dialect Dialect
	sb      strings.Builder
	args    []any
}

// Compile renders the plan as one parameterized SELECT. Identifiers come from
// the registry only; every value is a bind parameter.
func Compile(plan *QueryPlan, dialect Dialect) (string, []any, error) {
	c := &compiler{dialect: dialect}
	if err := c.selectStatement(plan, true); err != nil {
		return "", nil, err
	}
	return c.sb.String(), c.args, nil
}

// CompileCount renders a query counting the rows (or groups) the plan yields.
func CompileCount(plan *QueryPlan, dialect Dialect) (string, []any, error) {
	c := &compiler{dialect: dialect}
	c.sb.WriteString("SELECT COUNT(*) FROM (")
	if err := c.selectStatement(plan, false); err != nil {
		return "", nil, err
	}
	c.sb.WriteString(") AS ")
	c.sb.WriteString(c.quote("q"))
	return c.sb.String(), c.args, nil
}

func (c *compiler) selectStatement(plan *QueryPlan, paged bool) error {
	if len(plan.Select) == 0 {
		return fmt.Errorf("plan selects no columns")
	}
	if len(plan.TenantPredicates) == 0 {
		return fmt.Errorf("plan has no tenant predicate")
	}

	c.sb.WriteString("SELECT ")
	for i, s := range plan.Select {
		if i > 0 {
			c.sb.WriteString(", ")
		}
		if s.Aggregation != "" {
			fn, err := aggregateSQL(s.Aggregation)
			if err != nil {
				return err
			}
			c.sb.WriteString(fn + "(" + c.column(s.Column) + ")")
		} else {
			c.sb.WriteString(c.column(s.Column))
		}
		c.sb.WriteString(" AS ")
		c.sb.WriteString(c.quote(s.Name))
	}

	c.sb.WriteString(" FROM ")
	c.sb.WriteString(c.quote(plan.Base.Table) + " AS " + c.quote(plan.Base.Alias))

	for _, j := range plan.Joins {
		switch j.Type {
		case report.JoinLeft:
			c.sb.WriteString(" LEFT JOIN ")
		default:
			c.sb.WriteString(" INNER JOIN ")
		}
		c.sb.WriteString(c.quote(j.Source.Table) + " AS " + c.quote(j.Source.Alias))
		c.sb.WriteString(" ON " + c.column(j.Left) + " = " + c.column(j.Right))
		for _, p := range plan.TenantPredicates {
			if p.Column.SourceAlias != j.Source.Alias {
				continue
			}
			c.sb.WriteString(" AND ")
			if err := c.predicate(p); err != nil {
				return err
			}
		}
	}

	var where []Predicate
	for _, p := range plan.TenantPredicates {
		if p.Column.SourceAlias == plan.Base.Alias {
			where = append(where, p)
		}
	}
	if len(where) == 0 {
		return fmt.Errorf("plan has no tenant predicate on the base source")
	}
	where = append(where, plan.Predicates...)

	c.sb.WriteString(" WHERE ")
	for i, p := range where {
		if i > 0 {
			c.sb.WriteString(" AND ")
		}
		if err := c.predicate(p); err != nil {
			return err
		}
	}

	if len(plan.GroupBy) > 0 {
		c.sb.WriteString(" GROUP BY ")
		for i, col := range plan.GroupBy {
			if i > 0 {
				c.sb.WriteString(", ")
			}
			c.sb.WriteString(c.column(col))
		}
	}

	if !paged {
		return nil
	}

	if len(plan.OrderBy) > 0 {
		c.sb.WriteString(" ORDER BY ")
		for i, o := range plan.OrderBy {
			if i > 0 {
				c.sb.WriteString(", ")
			}
			if o.Output != "" {
				c.sb.WriteString(c.quote(o.Output))
			} else {
				c.sb.WriteString(c.column(o.Column))
			}
			if o.Desc {
				c.sb.WriteString(" DESC")
			} else {
				c.sb.WriteString(" ASC")
			}
		}
	}

	if plan.Limit > 0 {
		c.sb.WriteString(" LIMIT " + strconv.Itoa(plan.Limit))
		if plan.Offset > 0 {
			c.sb.WriteString(" OFFSET " + strconv.Itoa(plan.Offset))
		}
	}
	return nil
}

func (c *compiler) predicate(p Predicate) error {
	col := c.column(p.Column)
	switch p.Operator {
	case registry.OpEq, registry.OpNeq, registry.OpGt, registry.OpGte, registry.OpLt, registry.OpLte:
		if len(p.Values) != 1 {
			return fmt.Errorf("%s needs one value", p.Operator)
		}
		c.sb.WriteString(col + " " + comparison[p.Operator] + " " + c.bind(p.Values[0]))
	case registry.OpLike:
		if len(p.Values) != 1 {
			return fmt.Errorf("like needs one value")
		}
		s, ok := p.Values[0].(string)
		if !ok {
			return fmt.Errorf("like needs a string value")
		}
		op := "LIKE"
		if c.dialect == DialectPostgres {
			op = "ILIKE"
		}
		c.sb.WriteString(fmt.Sprintf("%s %s %s ESCAPE '%c'", col, op, c.bind("%"+likeEscaper.Replace(s)+"%"), likeEscape))
	case registry.OpIn:
		if len(p.Values) == 0 {
			return fmt.Errorf("in needs at least one value")
		}
		c.sb.WriteString(col + " IN (")
		for i, v := range p.Values {
			if i > 0 {
				c.sb.WriteString(", ")
			}
			c.sb.WriteString(c.bind(v))
		}
		c.sb.WriteString(")")
	case registry.OpBetween:
		if len(p.Values) != 2 {
			return fmt.Errorf("between needs two values")
		}
		c.sb.WriteString(col + " BETWEEN " + c.bind(p.Values[0]) + " AND " + c.bind(p.Values[1]))
	case registry.OpIsNull:
		c.sb.WriteString(col + " IS NULL")
	case registry.OpIsNotNull:
		c.sb.WriteString(col + " IS NOT NULL")
	default:
		return fmt.Errorf("unsupported operator %q", p.Operator)
	}
	return nil
}

var comparison = map[registry.Operator]string{
	registry.OpEq:  "=",
	registry.OpNeq: "<>",
	registry.OpGt:  ">",
	registry.OpGte: ">=",
	registry.OpLt:  "<",
	registry.OpLte: "<=",
}

func aggregateSQL(fn registry.AggFn) (string, error) {
	switch fn {
	case registry.AggSum, registry.AggAvg, registry.AggCount, registry.AggMin, registry.AggMax:
		return string(fn), nil
	}
	return "", fmt.Errorf("unsupported aggregation %q", fn)
}

func (c *compiler) bind(v any) string {
	if t, ok := v.(time.Time); ok && c.dialect == DialectSQLite {
		// SQLite keeps dates as text; match the stored layout
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			v = t.Format("2006-01-02")
		} else {
			v = t.Format("2006-01-02 15:04:05")
		}
	}
	c.args = append(c.args, v)
	if c.dialect == DialectPostgres {
		return "$" + strconv.Itoa(len(c.args))
	}
	return "?"
}

func (c *compiler) column(ref ColumnRef) string {
	return c.quote(ref.SourceAlias) + "." + c.quote(ref.Column)
}

func (c *compiler) quote(ident string) string {
	if c.dialect == DialectMySQL {
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
