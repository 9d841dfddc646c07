// Package filesink stores the export in a local CSV file or XLSX workbook.
package filesink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dvloznov/finance-sync/internal/infra/tabular"
)

// CSVStore keeps the export table in a CSV file.
type CSVStore struct {
	path string
}

// NewCSVTarget returns an export target writing to the CSV file at path.
func NewCSVTarget(path string) *tabular.Target {
	return tabular.NewTarget(&CSVStore{path: path})
}

// Load reads the file; a missing file is an empty table.
func (s *CSVStore) Load(_ context.Context) (*tabular.Table, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &tabular.Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("CSVStore.Load: %w", err)
	}

	table, err := tabular.ReadCSV(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("CSVStore.Load: %s: %w", s.path, err)
	}
	return table, nil
}

// Save replaces the file atomically.
func (s *CSVStore) Save(_ context.Context, table *tabular.Table) error {
	var buf bytes.Buffer
	if err := table.WriteCSV(&buf); err != nil {
		return fmt.Errorf("CSVStore.Save: %w", err)
	}
	if err := writeFileAtomic(s.path, buf.Bytes()); err != nil {
		return fmt.Errorf("CSVStore.Save: %w", err)
	}
	return nil
}

// writeFileAtomic writes data to a temporary file next to path and renames
// it over path, so readers never see a half-written file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
