// Package dataset holds the observation table the estimators operate on.
//
// A Table is an ordered set of named columns. Numeric columns store
// float64 values with NaN marking a missing value; string columns store
// categorical labels with "" marking a missing value.
package dataset

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrUnknownColumn is returned when a column name is not in the table.
	ErrUnknownColumn = errors.New("unknown column")
	// ErrLength is returned when a column does not match the table's row count.
	ErrLength = errors.New("column length mismatch")
	// ErrKind is returned when a column is used as the wrong kind.
	ErrKind = errors.New("wrong column kind")
)

// Kind is the storage type of a column.
type Kind int

const (
	Float Kind = iota
	String
)

func (k Kind) String() string {
	switch k {
	case Float:
		return "float"
	case String:
		return "string"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Column is one named variable. Exactly one of Floats or Strings is used,
// according to Kind.
type Column struct {
	Name    string
	Kind    Kind
	Floats  []float64
	Strings []string
}

// Len returns the number of values in the column.
func (c *Column) Len() int {
	if c.Kind == String {
		return len(c.Strings)
	}
	return len(c.Floats)
}

// Missing reports whether row i holds a missing value.
func (c *Column) Missing(i int) bool {
	if c.Kind == String {
		return c.Strings[i] == ""
	}
	return math.IsNaN(c.Floats[i])
}

func (c *Column) clone() *Column {
	out := &Column{Name: c.Name, Kind: c.Kind}
	if c.Floats != nil {
		out.Floats = append([]float64(nil), c.Floats...)
	}
	if c.Strings != nil {
		out.Strings = append([]string(nil), c.Strings...)
	}
	return out
}

// Table is an ordered collection of equal-length columns.
type Table struct {
	rows  int
	cols  []*Column
	index map[string]int
}

// New returns an empty table with the given number of rows.
func New(rows int) *Table {
	return &Table{rows: rows, index: make(map[string]int)}
}

// FromColumns builds a table from float columns given in order.
// names and values must have the same length.
func FromColumns(names []string, values [][]float64) (*Table, error) {
	if len(names) != len(values) {
		return nil, fmt.Errorf("%d names for %d columns: %w", len(names), len(values), ErrLength)
	}
	rows := 0
	if len(values) > 0 {
		rows = len(values[0])
	}
	t := New(rows)
	for i, name := range names {
		if err := t.SetFloat(name, values[i]); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Rows returns the number of observations.
func (t *Table) Rows() int { return t.rows }

// Names returns the column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name
	}
	return names
}

// Has reports whether the table has a column called name.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, error) {
	i, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownColumn)
	}
	return t.cols[i], nil
}

// Floats returns the values of a numeric column. The slice is shared with
// the table.
func (t *Table) Floats(name string) ([]float64, error) {
	c, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	if c.Kind != Float {
		return nil, fmt.Errorf("%q is a %s column: %w", name, c.Kind, ErrKind)
	}
	return c.Floats, nil
}

// SetFloat adds or replaces a numeric column. The values are copied.
func (t *Table) SetFloat(name string, values []float64) error {
	if len(values) != t.rows {
		return fmt.Errorf("column %q has %d rows, table has %d: %w", name, len(values), t.rows, ErrLength)
	}
	t.set(&Column{Name: name, Kind: Float, Floats: append([]float64(nil), values...)})
	return nil
}

// SetString adds or replaces a string column. The values are copied.
func (t *Table) SetString(name string, values []string) error {
	if len(values) != t.rows {
		return fmt.Errorf("column %q has %d rows, table has %d: %w", name, len(values), t.rows, ErrLength)
	}
	t.set(&Column{Name: name, Kind: String, Strings: append([]string(nil), values...)})
	return nil
}

// Fill sets every row of a numeric column to v, creating it if needed.
func (t *Table) Fill(name string, v float64) {
	vals := make([]float64, t.rows)
	for i := range vals {
		vals[i] = v
	}
	t.set(&Column{Name: name, Kind: Float, Floats: vals})
}

func (t *Table) set(c *Column) {
	if i, ok := t.index[c.Name]; ok {
		t.cols[i] = c
		return
	}
	t.index[c.Name] = len(t.cols)
	t.cols = append(t.cols, c)
}

// Copy returns a deep copy of the table.
func (t *Table) Copy() *Table {
	out := New(t.rows)
	for _, c := range t.cols {
		out.set(c.clone())
	}
	return out
}

// Drop removes the named column. Dropping an absent column is an error.
func (t *Table) Drop(name string) error {
	i, ok := t.index[name]
	if !ok {
		return fmt.Errorf("drop %q: %w", name, ErrUnknownColumn)
	}
	t.cols = append(t.cols[:i], t.cols[i+1:]...)
	t.reindex()
	return nil
}

// Rename changes a column's name. If a column called to already exists it
// is replaced.
func (t *Table) Rename(from, to string) error {
	i, ok := t.index[from]
	if !ok {
		return fmt.Errorf("rename %q: %w", from, ErrUnknownColumn)
	}
	if from == to {
		return nil
	}
	if j, exists := t.index[to]; exists {
		t.cols = append(t.cols[:j], t.cols[j+1:]...)
		if j < i {
			i--
		}
	}
	t.cols[i].Name = to
	t.reindex()
	return nil
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.cols))
	for i, c := range t.cols {
		t.index[c.Name] = i
	}
}

// CompleteRows returns the indices of rows with no missing value in any column.
func (t *Table) CompleteRows() []int {
	keep := make([]int, 0, t.rows)
	for i := 0; i < t.rows; i++ {
		ok := true
		for _, c := range t.cols {
			if c.Missing(i) {
				ok = false
				break
			}
		}
		if ok {
			keep = append(keep, i)
		}
	}
	return keep
}

// DropMissing returns a new table holding only the complete rows.
func (t *Table) DropMissing() *Table {
	return t.Subset(t.CompleteRows())
}

// Subset returns a new table with the given rows, in the given order.
func (t *Table) Subset(rows []int) *Table {
	out := New(len(rows))
	for _, c := range t.cols {
		nc := &Column{Name: c.Name, Kind: c.Kind}
		if c.Kind == String {
			nc.Strings = make([]string, len(rows))
			for j, r := range rows {
				nc.Strings[j] = c.Strings[r]
			}
		} else {
			nc.Floats = make([]float64, len(rows))
			for j, r := range rows {
				nc.Floats[j] = c.Floats[r]
			}
		}
		out.set(nc)
	}
	return out
}

// Levels returns the sorted distinct non-missing values of a column
// rendered as strings, along with the per-row label (empty when missing).
func (t *Table) Levels(name string) ([]string, []string, error) {
	c, err := t.Column(name)
	if err != nil {
		return nil, nil, err
	}
	labels := make([]string, t.rows)
	for i := 0; i < t.rows; i++ {
		if c.Missing(i) {
			continue
		}
		if c.Kind == String {
			labels[i] = c.Strings[i]
		} else {
			labels[i] = FormatFloat(c.Floats[i])
		}
	}
	return sortedLevels(c, labels), labels, nil
}
