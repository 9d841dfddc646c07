// Package cursor persists the last fully drained sync cursor of each item.
package cursor

import (
	"context"
	"sync"

	"github.com/dvloznov/finance-sync/internal/domain"
)

// Store is a single-slot durable cursor per item. Save is a full overwrite and
// must report failure; the caller only saves after the export was written.
type Store interface {
	// Load returns the zero Cursor when nothing was saved for itemID yet.
	Load(ctx context.Context, itemID string) (domain.Cursor, error)
	Save(ctx context.Context, itemID string, cursor domain.Cursor) error
	// Reset clears the slot so the next run starts from the fallback path.
	Reset(ctx context.Context, itemID string) error
}

// MemoryStore is a process-local Store, used by tests and dry runs.
type MemoryStore struct {
	mu      sync.RWMutex
	cursors map[string]domain.Cursor
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cursors: make(map[string]domain.Cursor)}
}

func (s *MemoryStore) Load(_ context.Context, itemID string) (domain.Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursors[itemID], nil
}

func (s *MemoryStore) Save(_ context.Context, itemID string, cursor domain.Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[itemID] = cursor
	return nil
}

func (s *MemoryStore) Reset(_ context.Context, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cursors, itemID)
	return nil
}
