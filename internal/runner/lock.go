package runner

import (
	"context"
	"sync"
)

// itemLocks serialises runs per item. Waiting honours the context.
type itemLocks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newItemLocks() *itemLocks {
	return &itemLocks{slots: make(map[string]chan struct{})}
}

func (l *itemLocks) slot(itemID string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.slots[itemID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[itemID] = ch
	}
	return ch
}

// acquire blocks until the item is free or ctx is done, and returns the
// release function.
func (l *itemLocks) acquire(ctx context.Context, itemID string) (func(), error) {
	ch := l.slot(itemID)
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
