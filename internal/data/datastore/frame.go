// Package datastore materializes training datasets as in-memory frames.
package datastore

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Frame is a tabular dataset with string cells. Typing is left to the
// model-synthesis engine.
type Frame struct {
	Columns []string
	Rows    [][]string
}

func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

// Index returns the position of a column, or -1.
func (f *Frame) Index(name string) int {
	if f == nil {
		return -1
	}
	for i, c := range f.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns a copy of one column's cells.
func (f *Frame) Column(name string) ([]string, bool) {
	idx := f.Index(name)
	if idx < 0 {
		return nil, false
	}
	out := make([]string, len(f.Rows))
	for i, row := range f.Rows {
		if idx < len(row) {
			out[i] = row[idx]
		}
	}
	return out, true
}

// ReadCSV reads a header row followed by data rows. Rows shorter than the
// header are padded with empty cells.
func ReadCSV(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("csv: empty input")
	}
	if err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}
	cols := make([]string, len(header))
	seen := map[string]bool{}
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			h = fmt.Sprintf("column_%d", i)
		}
		if seen[h] {
			return nil, fmt.Errorf("csv header: duplicate column %q", h)
		}
		seen[h] = true
		cols[i] = h
	}

	f := &Frame{Columns: cols}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		if len(rec) > len(cols) {
			return nil, fmt.Errorf("csv line %d: %d fields for %d columns", line, len(rec), len(cols))
		}
		row := make([]string, len(cols))
		copy(row, rec)
		f.Rows = append(f.Rows, row)
	}
	return f, nil
}
