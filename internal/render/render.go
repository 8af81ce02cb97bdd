// Package render writes command results as a table, JSON or YAML.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"
)

// Report is a titled set of rows.
type Report struct {
	Title   string
	RunID   string
	Columns []string
	Rows    [][]any
	// Decimal is the number of decimals floats are shown with in tables.
	Decimal int
}

// Append adds a row. It must have one value per column.
func (r *Report) Append(values ...any) {
	r.Rows = append(r.Rows, values)
}

// Resolve turns "auto" into "table" when w is a terminal and "json"
// otherwise. Other formats are returned unchanged.
func Resolve(format string, w io.Writer) string {
	if format != "auto" {
		return format
	}
	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return "table"
	}
	return "json"
}

// Write renders r to w in the given format.
func Write(w io.Writer, r *Report, format string) error {
	switch Resolve(format, w) {
	case "table":
		return renderTable(w, r)
	case "json":
		return renderJSON(w, r)
	case "yaml":
		return renderYAML(w, r)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func renderTable(w io.Writer, r *Report) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Format.Header = text.FormatDefault
	if r.Title != "" {
		t.SetTitle(r.Title)
	}

	header := make(table.Row, len(r.Columns))
	for i, col := range r.Columns {
		header[i] = col
	}
	t.AppendHeader(header)
	for _, values := range r.Rows {
		row := make(table.Row, len(values))
		for i, v := range values {
			row[i] = formatValue(v, r.Decimal)
		}
		t.AppendRow(row)
	}
	t.Render()
	if r.RunID != "" {
		_, _ = fmt.Fprintf(w, "run %s\n", r.RunID)
	}
	return nil
}

// document is the JSON and YAML shape of a report.
type document struct {
	Title string           `json:"title" yaml:"title"`
	RunID string           `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Rows  []map[string]any `json:"rows" yaml:"rows"`
}

func (r *Report) document() document {
	d := document{Title: r.Title, RunID: r.RunID, Rows: make([]map[string]any, 0, len(r.Rows))}
	for _, values := range r.Rows {
		row := make(map[string]any, len(r.Columns))
		for i, col := range r.Columns {
			if i < len(values) {
				row[col] = jsonValue(values[i])
			}
		}
		d.Rows = append(d.Rows, row)
	}
	return d
}

func renderJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r.document())
}

func renderYAML(w io.Writer, r *Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r.document()); err != nil {
		return err
	}
	return enc.Close()
}

// jsonValue replaces non-finite floats, which JSON cannot encode, with nil.
func jsonValue(v any) any {
	if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return nil
	}
	return v
}

func formatValue(v any, decimal int) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case float64:
		return strconv.FormatFloat(x, 'f', decimal, 64)
	case string:
		return x
	default:
		return fmt.Sprintf("%v", x)
	}
}
