package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// missing cell spellings accepted by LoadCSV
var missingTokens = map[string]bool{"": true, "NA": true, "NaN": true, "nan": true, ".": true}

// LoadCSV reads a CSV file:
//
//   - The first row is a header with variable names
//   - Remaining rows are observations, one per line
//   - A column is numeric when every non-missing cell parses as a float,
//     otherwise it is kept as strings
//   - Empty cells, "NA", "NaN" and "." are missing
func LoadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	t, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ReadCSV is LoadCSV over an arbitrary reader.
func ReadCSV(src io.Reader) (*Table, error) {
	r := csv.NewReader(src)
	r.TrimLeadingSpace = true

	// 1. Read header row
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) == 0 {
		return nil, fmt.Errorf("empty header")
	}
	K := len(header)

	cells := make([][]string, K)
	row := 0

	// 2. Read each data row
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row+2, err) // +2 for header + 1-based
		}

		// Skip completely empty lines
		if len(record) == 1 && record[0] == "" {
			continue
		}

		if len(record) != K {
			return nil, fmt.Errorf("row %d: expected %d columns, got %d", row+2, K, len(record))
		}
		for j, s := range record {
			cells[j] = append(cells[j], strings.TrimSpace(s))
		}
		row++
	}

	if row == 0 {
		return nil, fmt.Errorf("no data rows")
	}

	// 3. Infer column kinds
	t := New(row)
	for j, name := range header {
		name = strings.TrimSpace(name)
		if t.Has(name) {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		if vals, ok := parseFloats(cells[j]); ok {
			t.set(&Column{Name: name, Kind: Float, Floats: vals})
			continue
		}
		strs := make([]string, row)
		for i, s := range cells[j] {
			if !missingTokens[s] {
				strs[i] = s
			}
		}
		t.set(&Column{Name: name, Kind: String, Strings: strs})
	}
	return t, nil
}

func parseFloats(cells []string) ([]float64, bool) {
	out := make([]float64, len(cells))
	for i, s := range cells {
		if missingTokens[s] {
			out[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// WriteCSV writes the table with a header row. Missing values are written
// as empty cells.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Names()); err != nil {
		return err
	}
	record := make([]string, len(t.cols))
	for i := 0; i < t.rows; i++ {
		for j, c := range t.cols {
			switch {
			case c.Missing(i):
				record[j] = ""
			case c.Kind == String:
				record[j] = c.Strings[i]
			default:
				record[j] = strconv.FormatFloat(c.Floats[i], 'g', -1, 64)
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveCSV writes the table to path, creating or truncating the file.
func (t *Table) SaveCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := t.WriteCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
