// Package gcs stores the export as a CSV object and item cursors as small
// JSON objects in a Google Cloud Storage bucket.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/finance-sync/internal/infra/tabular"
)

const csvContentType = "text/csv"

// CSVObjectStore keeps the export table in one CSV object. Save only
// succeeds if nobody replaced the object since the last Load.
type CSVObjectStore struct {
	objects    ObjectStore
	object     string
	generation int64
}

// NewCSVTarget returns an export target writing the CSV object named object.
func NewCSVTarget(objects ObjectStore, object string) *tabular.Target {
	return tabular.NewTarget(&CSVObjectStore{objects: objects, object: object})
}

func (s *CSVObjectStore) Load(ctx context.Context) (*tabular.Table, error) {
	data, generation, err := s.objects.Read(ctx, s.object)
	if errors.Is(err, ErrNotFound) {
		s.generation = 0
		return &tabular.Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("CSVObjectStore.Load: %w", err)
	}

	table, err := tabular.ReadCSV(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("CSVObjectStore.Load: %s: %w", s.object, err)
	}
	s.generation = generation
	return table, nil
}

func (s *CSVObjectStore) Save(ctx context.Context, table *tabular.Table) error {
	var buf bytes.Buffer
	if err := table.WriteCSV(&buf); err != nil {
		return fmt.Errorf("CSVObjectStore.Save: %w", err)
	}
	if err := s.objects.Write(ctx, s.object, buf.Bytes(), csvContentType, s.generation); err != nil {
		return fmt.Errorf("CSVObjectStore.Save: %w", err)
	}
	return nil
}
