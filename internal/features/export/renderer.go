// Package export renders tabular results into downloadable files.
package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ParseFormat accepts a format name case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatXLSX, FormatPDF:
		return f, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	}
	return "application/octet-stream"
}

func (f Format) Extension() string {
	return "." + string(f)
}

type Column struct {
	Name       string
	Label      string
	FormatHint string
}

// Table is what renderers consume; it knows nothing about queries.
type Table struct {
	Title       string
	Columns     []Column
	Rows        [][]any
	GeneratedAt time.Time
}

// Renderer writes table to w in the requested format.
type Renderer interface {
	Render(w io.Writer, table Table, format Format) error
}

// FormatRenderer renders exactly one format.
type FormatRenderer interface {
	Format() Format
	Render(w io.Writer, table Table) error
}

// MultiRenderer dispatches on format.
type MultiRenderer struct {
	renderers map[Format]FormatRenderer
}

func NewMultiRenderer(renderers ...FormatRenderer) *MultiRenderer {
	m := &MultiRenderer{renderers: make(map[Format]FormatRenderer, len(renderers))}
	for _, r := range renderers {
		m.renderers[r.Format()] = r
	}
	return m
}

// NewRenderer returns the CSV, XLSX and PDF renderers behind one interface.
func NewRenderer() Renderer {
	return NewMultiRenderer(&CSVRenderer{}, &XLSXRenderer{}, &PDFRenderer{})
}

func (m *MultiRenderer) Render(w io.Writer, table Table, format Format) error {
	r, ok := m.renderers[format]
	if !ok {
		return fmt.Errorf("no renderer for format %q", format)
	}
	return r.Render(w, table)
}

// Filename builds a safe download name such as "q1-works_20260301_090000.xlsx".
func Filename(slug string, at time.Time, format Format) string {
	return fmt.Sprintf("%s_%s%s", slug, at.UTC().Format("20060102_150405"), format.Extension())
}

// FormatValue renders one cell as text, honoring the column's format hint.
func FormatValue(v any, hint string) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		if hint == "datetime" || (hint != "date" && (t.Hour() != 0 || t.Minute() != 0 || t.Second() != 0)) {
			return t.Format("2006-01-02 15:04:05")
		}
		return t.Format("2006-01-02")
	case bool:
		if t {
			return "Yes"
		}
		return "No"
	case int64:
		return formatNumber(float64(t), hint, strconv.FormatInt(t, 10))
	case int:
		return formatNumber(float64(t), hint, strconv.Itoa(t))
	case float64:
		return formatNumber(t, hint, strconv.FormatFloat(t, 'f', -1, 64))
	case []byte:
		return string(t)
	}
	return fmt.Sprint(v)
}

func formatNumber(f float64, hint, plain string) string {
	switch hint {
	case "currency":
		return strconv.FormatFloat(f, 'f', 2, 64)
	case "percent":
		return strconv.FormatFloat(f*100, 'f', 1, 64) + "%"
	}
	return plain
}

func headers(table Table) []string {
	out := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		out[i] = c.Label
		if out[i] == "" {
			out[i] = c.Name
		}
	}
	return out
}
