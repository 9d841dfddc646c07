package tabular

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Store loads and saves a whole table. Save after Load must fail rather than
// overwrite a table that changed in between, where the backend can tell.
type Store interface {
	Load(ctx context.Context) (*Table, error)
	Save(ctx context.Context, table *Table) error
}

// Target adapts a Store to the export target contract. Every call is a
// load-modify-save of the whole table, so an append is all-or-nothing.
type Target struct {
	mu    sync.Mutex
	store Store
}

// NewTarget creates a Target over store.
func NewTarget(store Store) *Target {
	return &Target{store: store}
}

func (t *Target) EnsureHeaders(ctx context.Context, headers []string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	table, err := t.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("EnsureHeaders: %w", err)
	}
	if table.EnsureHeader(headers) {
		if err := t.store.Save(ctx, table); err != nil {
			return nil, fmt.Errorf("EnsureHeaders: %w", err)
		}
	}
	return table.Header, nil
}

func (t *Target) ReadKeyColumn(ctx context.Context, column string) (map[string]bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	table, err := t.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("ReadKeyColumn: %w", err)
	}
	return table.Keys(column), nil
}

func (t *Target) AppendRows(ctx context.Context, rows [][]string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	table, err := t.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("AppendRows: %w", err)
	}
	if len(table.Header) == 0 {
		return errors.New("AppendRows: target has no header row")
	}
	table.Append(rows)
	if err := t.store.Save(ctx, table); err != nil {
		return fmt.Errorf("AppendRows: %w", err)
	}
	return nil
}
