// Package table provides a small column-named table of text cells with CSV I/O.
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrNoColumn is returned when a named column does not exist.
var ErrNoColumn = errors.New("no such column")

// Table holds rows of text cells under named columns. Missing values are "".
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]string
}

// New creates an empty table with the given columns.
func New(columns ...string) *Table {
	t := &Table{index: make(map[string]int, len(columns))}
	for _, c := range columns {
		t.AddColumn(c)
	}
	return t
}

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Has reports whether a column exists.
func (t *Table) Has(column string) bool {
	_, ok := t.index[column]
	return ok
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// AddColumn appends a column; existing rows get "" for it. Adding an existing
// column is a no-op.
func (t *Table) AddColumn(column string) {
	if t.Has(column) {
		return
	}
	t.index[column] = len(t.columns)
	t.columns = append(t.columns, column)
	for i := range t.rows {
		t.rows[i] = append(t.rows[i], "")
	}
}

// Append adds a row given in column order.
func (t *Table) Append(values ...string) error {
	if len(values) != len(t.columns) {
		return fmt.Errorf("row has %d values, table has %d columns", len(values), len(t.columns))
	}
	row := make([]string, len(values))
	copy(row, values)
	t.rows = append(t.rows, row)
	return nil
}

// AppendMap adds a row from column/value pairs; unknown columns are an error and
// unspecified columns are left empty.
func (t *Table) AppendMap(values map[string]string) error {
	row := make([]string, len(t.columns))
	for k, v := range values {
		i, ok := t.index[k]
		if !ok {
			return fmt.Errorf("%w: %q", ErrNoColumn, k)
		}
		row[i] = v
	}
	t.rows = append(t.rows, row)
	return nil
}

// Get returns the cell at row i in column.
func (t *Table) Get(i int, column string) (string, error) {
	c, ok := t.index[column]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNoColumn, column)
	}
	return t.rows[i][c], nil
}

// Column returns a copy of every cell in column.
func (t *Table) Column(column string) ([]string, error) {
	c, ok := t.index[column]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoColumn, column)
	}
	out := make([]string, len(t.rows))
	for i, row := range t.rows {
		out[i] = row[c]
	}
	return out, nil
}

// Float parses the cell at row i in column. ok is false for missing values.
func (t *Table) Float(i int, column string) (v float64, ok bool, err error) {
	s, err := t.Get(i, column)
	if err != nil {
		return 0, false, err
	}
	if IsMissing(s) {
		return 0, false, nil
	}
	v, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false, fmt.Errorf("column %q row %d: %w", column, i+1, err)
	}
	return v, true, nil
}

// Row returns the cells of row i keyed by column.
func (t *Table) Row(i int) map[string]string {
	out := make(map[string]string, len(t.columns))
	for c, name := range t.columns {
		out[name] = t.rows[i][c]
	}
	return out
}

// IsMissing reports whether a cell denotes a missing value.
func IsMissing(s string) bool {
	switch strings.TrimSpace(s) {
	case "", "NA", "NaN", "na", "nan":
		return true
	}
	return false
}

// LeftJoin returns a copy of t extended with the columns of right, matched on key.
// Keys are compared with surrounding spaces trimmed. Every row of t is kept; rows
// of right without a match are dropped. When right holds the same key more than
// once the first row wins and the duplicate keys are returned. Columns of right
// already present in t are skipped.
func (t *Table) LeftJoin(right *Table, key string) (*Table, []string, error) {
	lk, ok := t.index[key]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q in left table", ErrNoColumn, key)
	}
	rk, ok := right.index[key]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q in right table", ErrNoColumn, key)
	}

	lookup := make(map[string]int, len(right.rows))
	var dups []string
	for i, row := range right.rows {
		k := strings.TrimSpace(row[rk])
		if _, seen := lookup[k]; seen {
			dups = append(dups, k)
			continue
		}
		lookup[k] = i
	}

	out := New(t.columns...)
	var extra []int
	for c, name := range right.columns {
		if c == rk || out.Has(name) {
			continue
		}
		out.AddColumn(name)
		extra = append(extra, c)
	}
	for _, row := range t.rows {
		joined := make([]string, 0, len(out.columns))
		joined = append(joined, row...)
		match, found := lookup[strings.TrimSpace(row[lk])]
		for _, c := range extra {
			if found {
				joined = append(joined, right.rows[match][c])
			} else {
				joined = append(joined, "")
			}
		}
		out.rows = append(out.rows, joined)
	}
	return out, dups, nil
}

// ReadCSV reads a table whose first record is the header.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("csv has no header")
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	t := New(header...)
	if len(t.columns) != len(header) {
		return nil, errors.New("csv header has duplicate columns")
	}
	for _, rec := range records[1:] {
		if err := t.Append(rec...); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// ReadCSVFile reads a CSV table from path.
func ReadCSVFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// WriteCSV writes the header followed by every row.
func (t *Table) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.columns); err != nil {
		return err
	}
	if err := writer.WriteAll(t.rows); err != nil {
		return err
	}
	return writer.Error()
}

// WriteCSVFile writes the table to path.
func (t *Table) WriteCSVFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := t.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
