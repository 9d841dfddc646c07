// Package tabular holds a whole header-plus-rows sheet in memory for sinks
// that are rewritten as one object (CSV files, XLSX workbooks, GCS objects).
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
)

// Table is a header row and the data rows below it.
type Table struct {
	Header []string
	Rows   [][]string
}

// EnsureHeader sets headers when the table has none and reports whether it
// changed the table.
func (t *Table) EnsureHeader(headers []string) bool {
	if len(t.Header) > 0 {
		return false
	}
	t.Header = slices.Clone(headers)
	return true
}

// Keys returns the non-empty values of column. A table without that column
// has no keys.
func (t *Table) Keys(column string) map[string]bool {
	keys := make(map[string]bool, len(t.Rows))
	idx := slices.Index(t.Header, column)
	if idx < 0 {
		return keys
	}
	for _, row := range t.Rows {
		if idx < len(row) && row[idx] != "" {
			keys[row[idx]] = true
		}
	}
	return keys
}

// Append adds rows after the last row.
func (t *Table) Append(rows [][]string) {
	for _, row := range rows {
		t.Rows = append(t.Rows, slices.Clone(row))
	}
}

// ReadCSV parses a CSV document whose first record is the header. Empty
// input yields an empty table.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	table := &Table{}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ReadCSV: %w", err)
		}
		if table.Header == nil {
			table.Header = record
			continue
		}
		table.Rows = append(table.Rows, record)
	}
	return table, nil
}

// WriteCSV writes the header and every row.
func (t *Table) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if len(t.Header) > 0 {
		if err := writer.Write(t.Header); err != nil {
			return fmt.Errorf("WriteCSV: header: %w", err)
		}
	}
	if err := writer.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("WriteCSV: rows: %w", err)
	}
	return nil
}
