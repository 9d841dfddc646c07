// Package providertest provides a scriptable provider.Source for tests.
package providertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/dvloznov/finance-sync/internal/domain"
	"github.com/dvloznov/finance-sync/internal/provider"
)

// SyncCall records one Sync invocation.
type SyncCall struct {
	ItemID string
	Cursor domain.Cursor
	Count  int
}

// Source is a mock implementation of provider.Source.
type Source struct {
	SyncFunc func(ctx context.Context, cred domain.Credential, cursor domain.Cursor, count int) (*domain.SyncBatch, error)
	GetFunc  func(ctx context.Context, cred domain.Credential, req provider.GetRequest) (*provider.GetPage, error)

	mu        sync.Mutex
	syncCalls []SyncCall
	getCalls  []provider.GetRequest
}

func (s *Source) Sync(ctx context.Context, cred domain.Credential, cursor domain.Cursor, count int) (*domain.SyncBatch, error) {
	s.mu.Lock()
	s.syncCalls = append(s.syncCalls, SyncCall{ItemID: cred.ItemID, Cursor: cursor, Count: count})
	s.mu.Unlock()

	if s.SyncFunc == nil {
		return &domain.SyncBatch{}, nil
	}
	return s.SyncFunc(ctx, cred, cursor, count)
}

func (s *Source) Get(ctx context.Context, cred domain.Credential, req provider.GetRequest) (*provider.GetPage, error) {
	s.mu.Lock()
	s.getCalls = append(s.getCalls, req)
	s.mu.Unlock()

	if s.GetFunc == nil {
		return &provider.GetPage{}, nil
	}
	return s.GetFunc(ctx, cred, req)
}

// SyncCalls returns a copy of the recorded Sync calls in call order.
func (s *Source) SyncCalls() []SyncCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SyncCall(nil), s.syncCalls...)
}

// GetCalls returns a copy of the recorded Get requests in call order.
func (s *Source) GetCalls() []provider.GetRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]provider.GetRequest(nil), s.getCalls...)
}

// SyncStream answers Sync from pages keyed by the cursor they were requested
// with; the absent cursor is keyed by domain.Cursor{}.String().
func SyncStream(pages map[string]*domain.SyncBatch) func(context.Context, domain.Credential, domain.Cursor, int) (*domain.SyncBatch, error) {
	return func(_ context.Context, _ domain.Credential, cursor domain.Cursor, _ int) (*domain.SyncBatch, error) {
		page, ok := pages[cursor.String()]
		if !ok {
			return nil, fmt.Errorf("providertest: no page scripted for cursor %s", cursor)
		}
		return page, nil
	}
}

// PagedTransactions answers Get by slicing records at the requested offset,
// reporting len(records) as the total.
func PagedTransactions(records []domain.TransactionRecord) func(context.Context, domain.Credential, provider.GetRequest) (*provider.GetPage, error) {
	return func(_ context.Context, _ domain.Credential, req provider.GetRequest) (*provider.GetPage, error) {
		start := min(req.Offset, len(records))
		end := min(start+req.Count, len(records))
		return &provider.GetPage{
			Transactions: append([]domain.TransactionRecord(nil), records[start:end]...),
			Total:        len(records),
		}, nil
	}
}

// Records builds n records with ids prefix-0 .. prefix-(n-1).
func Records(prefix string, n int) []domain.TransactionRecord {
	records := make([]domain.TransactionRecord, n)
	for i := range records {
		records[i] = Record(fmt.Sprintf("%s-%d", prefix, i))
	}
	return records
}
