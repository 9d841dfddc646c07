package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/finance-sync/internal/cursor"
	"github.com/dvloznov/finance-sync/internal/domain"
	"github.com/dvloznov/finance-sync/internal/export"
	"github.com/dvloznov/finance-sync/internal/provider/providertest"
	"github.com/dvloznov/finance-sync/internal/reconciler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCred = domain.Credential{ItemID: "item-1", AccessToken: "token"}

// recordingStore wraps a MemoryStore, counting saves and optionally failing them.
type recordingStore struct {
	*cursor.MemoryStore
	saveErr error
	saves   int
}

func (s *recordingStore) Save(ctx context.Context, itemID string, c domain.Cursor) error {
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.MemoryStore.Save(ctx, itemID, c)
}

func newStore() *recordingStore {
	return &recordingStore{MemoryStore: cursor.NewMemoryStore()}
}

func twoPageStream() map[string]*domain.SyncBatch {
	return map[string]*domain.SyncBatch{
		domain.Cursor{}.String(): {
			Added:      providertest.Records("a", 3),
			HasMore:    true,
			NextCursor: "c1",
		},
		"c1": {
			Added:      []domain.TransactionRecord{providertest.Record("b-0")},
			Modified:   []domain.TransactionRecord{providertest.Record("m-0")},
			Removed:    []string{"r-0"},
			NextCursor: "c2",
		},
		"c2": {NextCursor: "c2"},
	}
}

func newRunner(source *providertest.Source, store cursor.Store, target export.Target) *Runner {
	return New(reconciler.New(source, reconciler.Config{}), store, target, Config{})
}

func storedCursor(t *testing.T, store cursor.Store) domain.Cursor {
	t.Helper()
	c, err := store.Load(context.Background(), testCred.ItemID)
	require.NoError(t, err)
	return c
}

func TestRunExport_TwoPageScenario(t *testing.T) {
	source := &providertest.Source{SyncFunc: providertest.SyncStream(twoPageStream())}
	store := newStore()
	target := &export.MemoryTarget{}

	result, err := newRunner(source, store, target).RunExport(context.Background(), testCred, Options{LookbackDaysIfFirstRun: 30})
	require.NoError(t, err)

	assert.Equal(t, StatusExported, result.Status)
	assert.Equal(t, 4, result.AddedCount)
	assert.Equal(t, 1, result.ModifiedCount)
	assert.Equal(t, 1, result.RemovedCount)
	assert.Equal(t, 5, result.WrittenCount)
	assert.Equal(t, 0, result.SkippedCount)
	assert.True(t, result.CursorPersisted)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, testCred.ItemID, result.ItemID)

	assert.Equal(t, []string{"a-0", "a-1", "a-2", "b-0", "m-0"}, target.Column(domain.ColumnTransactionID))
	assert.Equal(t, domain.NewCursor("c2"), storedCursor(t, store))
}

func TestRunExport_IdempotentRerun(t *testing.T) {
	source := &providertest.Source{SyncFunc: providertest.SyncStream(twoPageStream())}
	store := newStore()
	target := &export.MemoryTarget{}
	r := newRunner(source, store, target)

	_, err := r.RunExport(context.Background(), testCred, Options{})
	require.NoError(t, err)

	second, err := r.RunExport(context.Background(), testCred, Options{})
	require.NoError(t, err)

	assert.Equal(t, StatusNoChanges, second.Status)
	assert.Equal(t, 0, second.WrittenCount)
	assert.Len(t, target.Rows, 5)
}

func TestRunExport_StaleCursorRerunWritesNothingTwice(t *testing.T) {
	source := &providertest.Source{SyncFunc: providertest.SyncStream(twoPageStream())}
	store := newStore()
	store.saveErr = errors.New("disk full")
	target := &export.MemoryTarget{}
	r := newRunner(source, store, target)

	first, err := r.RunExport(context.Background(), testCred, Options{})
	require.Error(t, err)

	var runErr *domain.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, domain.KindCursorPersist, runErr.Kind)
	assert.Equal(t, domain.RiskWastedWork, runErr.Risk())
	assert.Equal(t, 5, first.WrittenCount, "counts reflect the already written export")
	assert.False(t, first.CursorPersisted)
	assert.False(t, storedCursor(t, store).Valid)

	store.saveErr = nil
	second, err := r.RunExport(context.Background(), testCred, Options{})
	require.NoError(t, err)

	assert.Equal(t, 5, second.AddedCount+second.ModifiedCount, "stale cursor re-fetches the same changes")
	assert.Equal(t, 0, second.WrittenCount)
	assert.Equal(t, 5, second.SkippedCount)
	assert.Len(t, target.Rows, 5)
	assert.Equal(t, domain.NewCursor("c2"), storedCursor(t, store))
}

func TestRunExport_SinkFailureNeverSavesCursor(t *testing.T) {
	source := &providertest.Source{SyncFunc: providertest.SyncStream(twoPageStream())}
	store := newStore()
	target := &export.MemoryTarget{AppendErr: errors.New("sheet is read-only")}

	result, err := newRunner(source, store, target).RunExport(context.Background(), testCred, Options{})
	require.Error(t, err)

	assert.Equal(t, domain.KindSinkWrite, domain.KindOf(err))
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, 0, store.saves)
	assert.False(t, storedCursor(t, store).Valid)
}

func TestRunExport_NormalizationFailureWritesNothing(t *testing.T) {
	bad := providertest.Record("bad")
	bad.AccountID = ""
	source := &providertest.Source{
		SyncFunc: providertest.SyncStream(map[string]*domain.SyncBatch{
			domain.Cursor{}.String(): {
				Added:      []domain.TransactionRecord{providertest.Record("ok"), bad},
				NextCursor: "c1",
			},
		}),
	}
	store := newStore()
	target := &export.MemoryTarget{}

	_, err := newRunner(source, store, target).RunExport(context.Background(), testCred, Options{})
	require.Error(t, err)

	assert.Equal(t, domain.KindNormalization, domain.KindOf(err))
	assert.Equal(t, 0, target.AppendCalls)
	assert.Equal(t, 0, store.saves)
}

func TestRunExport_FetchFailureIsTransient(t *testing.T) {
	source := &providertest.Source{
		SyncFunc: func(context.Context, domain.Credential, domain.Cursor, int) (*domain.SyncBatch, error) {
			return nil, errors.New("connection reset")
		},
	}
	store := newStore()
	target := &export.MemoryTarget{}

	_, err := newRunner(source, store, target).RunExport(context.Background(), testCred, Options{})
	require.Error(t, err)

	assert.Equal(t, domain.KindTransientFetch, domain.KindOf(err))
	assert.True(t, domain.KindOf(err).Retryable())
	assert.Equal(t, 0, target.AppendCalls)
	assert.Equal(t, 0, store.saves)
}

func TestRunExport_FallbackTriggersOnce(t *testing.T) {
	historical := providertest.Records("h", 3)
	initialised := false

	source := &providertest.Source{
		SyncFunc: func(_ context.Context, _ domain.Credential, c domain.Cursor, _ int) (*domain.SyncBatch, error) {
			switch {
			case !initialised && !c.Valid:
				initialised = true
				return nil, domain.ErrSyncUnsupported
			case !c.Valid:
				return &domain.SyncBatch{Added: historical, NextCursor: "c1"}, nil
			case c.Token == "c1":
				return &domain.SyncBatch{Added: providertest.Records("new", 1), NextCursor: "c2"}, nil
			}
			return nil, fmt.Errorf("unexpected cursor %s", c)
		},
		GetFunc: providertest.PagedTransactions(historical),
	}
	store := newStore()
	target := &export.MemoryTarget{}
	r := newRunner(source, store, target)

	first, err := r.RunExport(context.Background(), testCred, Options{LookbackDaysIfFirstRun: 30})
	require.NoError(t, err)
	assert.True(t, first.UsedFallback)
	assert.Equal(t, 3, first.WrittenCount)
	assert.True(t, first.CursorPersisted)
	assert.Len(t, source.GetCalls(), 1)

	second, err := r.RunExport(context.Background(), testCred, Options{LookbackDaysIfFirstRun: 30})
	require.NoError(t, err)
	assert.False(t, second.UsedFallback)
	assert.Equal(t, 1, second.WrittenCount)
	assert.Len(t, source.GetCalls(), 1, "second run uses the sync path")
	assert.Equal(t, domain.NewCursor("c2"), storedCursor(t, store))
}

func TestRunExport_FallbackWithoutCursor(t *testing.T) {
	source := &providertest.Source{
		SyncFunc: func(context.Context, domain.Credential, domain.Cursor, int) (*domain.SyncBatch, error) {
			return nil, domain.ErrSyncUnsupported
		},
		GetFunc: providertest.PagedTransactions(providertest.Records("h", 2)),
	}
	store := newStore()
	target := &export.MemoryTarget{}

	result, err := newRunner(source, store, target).RunExport(context.Background(), testCred, Options{LookbackDaysIfFirstRun: 7})
	require.NoError(t, err)

	assert.Equal(t, 2, result.WrittenCount)
	assert.False(t, result.CursorPersisted)
	assert.Equal(t, 0, store.saves)
}

func TestRunExport_AccountFilter(t *testing.T) {
	other := providertest.Record("x-0")
	other.AccountID = "acc-2"
	source := &providertest.Source{
		SyncFunc: providertest.SyncStream(map[string]*domain.SyncBatch{
			domain.Cursor{}.String(): {
				Added:      []domain.TransactionRecord{providertest.Record("a-0"), other},
				NextCursor: "c1",
			},
		}),
	}
	target := &export.MemoryTarget{}

	result, err := newRunner(source, newStore(), target).RunExport(context.Background(), testCred, Options{AccountIDs: []string{"acc-1"}})
	require.NoError(t, err)

	assert.Equal(t, 1, result.AddedCount)
	assert.Equal(t, []string{"a-0"}, target.Column(domain.ColumnTransactionID))
}

func TestRunExport_CompletionHook(t *testing.T) {
	source := &providertest.Source{SyncFunc: providertest.SyncStream(twoPageStream())}
	finished := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

	var hooked *Result
	r := New(reconciler.New(source, reconciler.Config{}), newStore(), &export.MemoryTarget{}, Config{
		Now: func() time.Time { return finished },
		OnComplete: func(_ context.Context, result *Result) error {
			hooked = result
			return errors.New("hook failed")
		},
	})

	result, err := r.RunExport(context.Background(), testCred, Options{})
	require.NoError(t, err, "hook errors never fail the run")
	require.NotNil(t, hooked)
	assert.Equal(t, result.RunID, hooked.RunID)
	assert.Equal(t, finished, hooked.FinishedAt)
}

func TestRunExport_HookNotCalledOnFailure(t *testing.T) {
	source := &providertest.Source{SyncFunc: providertest.SyncStream(twoPageStream())}
	called := false

	r := New(reconciler.New(source, reconciler.Config{}), newStore(), &export.MemoryTarget{AppendErr: errors.New("boom")}, Config{
		OnComplete: func(context.Context, *Result) error {
			called = true
			return nil
		},
	})

	_, err := r.RunExport(context.Background(), testCred, Options{})
	require.Error(t, err)
	assert.False(t, called)
}

// blockingSynchronizer parks every call until release is closed.
type blockingSynchronizer struct {
	entered chan string
	release chan struct{}
}

func (b *blockingSynchronizer) Synchronize(_ context.Context, cred domain.Credential, _ domain.Cursor, _ reconciler.Options) (*reconciler.Result, error) {
	b.entered <- cred.ItemID
	<-b.release
	return &reconciler.Result{FinalCursor: domain.NewCursor("c")}, nil
}

func TestRunExport_SameItemIsSerialised(t *testing.T) {
	syncer := &blockingSynchronizer{entered: make(chan string, 4), release: make(chan struct{})}
	r := New(syncer, newStore(), &export.MemoryTarget{}, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.RunExport(context.Background(), testCred, Options{})
		}()
	}

	<-syncer.entered
	select {
	case <-syncer.entered:
		t.Fatal("second run for the same item entered while the first was in progress")
	case <-time.After(50 * time.Millisecond):
	}

	close(syncer.release)
	wg.Wait()
}

func TestRunExport_DifferentItemsRunConcurrently(t *testing.T) {
	syncer := &blockingSynchronizer{entered: make(chan string, 4), release: make(chan struct{})}
	r := New(syncer, cursor.NewMemoryStore(), &export.MemoryTarget{}, Config{})

	var wg sync.WaitGroup
	for _, id := range []string{"item-a", "item-b"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = r.RunExport(context.Background(), domain.Credential{ItemID: id}, Options{})
		}(id)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-syncer.entered:
		case <-time.After(2 * time.Second):
			t.Fatal("runs for different items did not proceed in parallel")
		}
	}

	close(syncer.release)
	wg.Wait()
}

func TestRunExport_LockWaitHonoursContext(t *testing.T) {
	syncer := &blockingSynchronizer{entered: make(chan string, 4), release: make(chan struct{})}
	r := New(syncer, newStore(), &export.MemoryTarget{}, Config{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = r.RunExport(context.Background(), testCred, Options{})
	}()
	<-syncer.entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result, err := r.RunExport(ctx, testCred, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StatusFailed, result.Status)

	close(syncer.release)
	<-done
}

// sharedLease stands in for a lease held in a database shared by processes.
type sharedLease struct {
	slot     chan struct{}
	acquired int
	mu       sync.Mutex
}

func (l *sharedLease) Acquire(ctx context.Context, _ string) (context.Context, func(), error) {
	select {
	case l.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	l.mu.Lock()
	l.acquired++
	l.mu.Unlock()
	return ctx, func() { <-l.slot }, nil
}

type slowTarget struct {
	*export.MemoryTarget
}

func (s *slowTarget) AppendRows(ctx context.Context, rows [][]string) error {
	time.Sleep(20 * time.Millisecond)
	return s.MemoryTarget.AppendRows(ctx, rows)
}

func TestRunExport_LeaseSerialisesSeparateRunners(t *testing.T) {
	source := &providertest.Source{
		SyncFunc: func(context.Context, domain.Credential, domain.Cursor, int) (*domain.SyncBatch, error) {
			return &domain.SyncBatch{Added: providertest.Records("a", 3), NextCursor: "c1"}, nil
		},
	}
	target := &slowTarget{MemoryTarget: &export.MemoryTarget{}}
	store := cursor.NewMemoryStore()
	lease := &sharedLease{slot: make(chan struct{}, 1)}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		r := New(reconciler.New(source, reconciler.Config{}), store, target, Config{Lease: lease})
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.RunExport(context.Background(), testCred, Options{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{"a-0", "a-1", "a-2"}, target.Column(domain.ColumnTransactionID))
	assert.Equal(t, 2, lease.acquired)
}

type failingLease struct{ err error }

func (l failingLease) Acquire(context.Context, string) (context.Context, func(), error) {
	return nil, nil, l.err
}

func TestRunExport_LeaseFailureAbortsBeforeSync(t *testing.T) {
	source := &providertest.Source{SyncFunc: providertest.SyncStream(twoPageStream())}
	boom := errors.New("database is locked")
	r := New(reconciler.New(source, reconciler.Config{}), newStore(), &export.MemoryTarget{}, Config{Lease: failingLease{err: boom}})

	result, err := r.RunExport(context.Background(), testCred, Options{})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Empty(t, source.SyncCalls())
}
