package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/dvloznov/finance-sync/internal/domain"
	"github.com/dvloznov/finance-sync/internal/export"
	"github.com/dvloznov/finance-sync/internal/provider/providertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type object struct {
	data        []byte
	generation  int64
	contentType string
}

// memObjects is an in-memory ObjectStore honouring generation preconditions.
type memObjects struct {
	mu      sync.Mutex
	objects map[string]object
	next    int64

	// beforeWrite runs inside Write before the precondition check.
	beforeWrite func(name string)
	writeErr    error
}

func newMemObjects() *memObjects {
	return &memObjects{objects: make(map[string]object)}
}

func (m *memObjects) Read(_ context.Context, name string) ([]byte, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[name]
	if !ok {
		return nil, 0, ErrNotFound
	}
	return append([]byte(nil), obj.data...), obj.generation, nil
}

func (m *memObjects) put(name string, data []byte) {
	m.next++
	m.objects[name] = object{data: data, generation: m.next}
}

func (m *memObjects) Write(_ context.Context, name string, data []byte, contentType string, generation int64) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	if m.beforeWrite != nil {
		m.beforeWrite(name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	current := m.objects[name].generation
	if current != generation {
		return ErrConflict
	}
	m.put(name, append([]byte(nil), data...))
	obj := m.objects[name]
	obj.contentType = contentType
	m.objects[name] = obj
	return nil
}

func (m *memObjects) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, name)
	return nil
}

func rows(t *testing.T, ids ...string) []domain.NormalizedRow {
	t.Helper()
	records := make([]domain.TransactionRecord, len(ids))
	for i, id := range ids {
		records[i] = providertest.Record(id)
	}
	out, err := export.Normalize(records)
	require.NoError(t, err)
	return out
}

func TestCSVTarget_AppendNew(t *testing.T) {
	ctx := context.Background()
	objects := newMemObjects()
	target := NewCSVTarget(objects, "exports/tx.csv")

	written, _, err := export.AppendNew(ctx, target, domain.TransactionSchema, rows(t, "a", "b"))
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	written, skipped, err := export.AppendNew(ctx, target, domain.TransactionSchema, rows(t, "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, 1, written)
	assert.Equal(t, 1, skipped)

	data, _, err := objects.Read(ctx, "exports/tx.csv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 4)
	assert.Equal(t, csvContentType, objects.objects["exports/tx.csv"].contentType)
}

func TestCSVTarget_ConcurrentReplaceFailsAppend(t *testing.T) {
	ctx := context.Background()
	objects := newMemObjects()
	target := NewCSVTarget(objects, "tx.csv")

	_, err := target.EnsureHeaders(ctx, domain.TransactionSchema.Columns)
	require.NoError(t, err)

	objects.beforeWrite = func(name string) {
		objects.mu.Lock()
		defer objects.mu.Unlock()
		objects.put(name, []byte("Transaction ID\nother\n"))
	}

	err = target.AppendRows(ctx, [][]string{{"x"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCursorStore(t *testing.T) {
	ctx := context.Background()
	objects := newMemObjects()
	store := NewCursorStore(objects, "cursors/")

	c, err := store.Load(ctx, "item-1")
	require.NoError(t, err)
	assert.False(t, c.Valid)

	require.NoError(t, store.Save(ctx, "item-1", domain.NewCursor("c1")))
	require.NoError(t, store.Save(ctx, "item-1", domain.NewCursor("c2")))

	c, err = store.Load(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, domain.NewCursor("c2"), c)

	data, _, err := objects.Read(ctx, "cursors/item-1.json")
	require.NoError(t, err)
	var obj cursorObject
	require.NoError(t, json.Unmarshal(data, &obj))
	assert.Equal(t, "c2", obj.Cursor)
	assert.False(t, obj.SavedAt.IsZero())

	require.NoError(t, store.Reset(ctx, "item-1"))
	c, err = store.Load(ctx, "item-1")
	require.NoError(t, err)
	assert.False(t, c.Valid)
}

func TestCursorStore_SaveFailure(t *testing.T) {
	boom := errors.New("bucket unavailable")
	objects := newMemObjects()
	objects.writeErr = boom
	store := NewCursorStore(objects, "cursors")

	err := store.Save(context.Background(), "item-1", domain.NewCursor("c1"))
	assert.ErrorIs(t, err, boom)

	c, err := store.Load(context.Background(), "item-1")
	require.NoError(t, err)
	assert.False(t, c.Valid)
}

func TestParseURI(t *testing.T) {
	bucket, object, err := ParseURI("gs://my-bucket/exports/tx.csv")
	require.NoError(t, err)
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "exports/tx.csv", object)

	for _, bad := range []string{"s3://bucket/key", "gs://bucket", "gs://bucket/", "gs:///key"} {
		_, _, err := ParseURI(bad)
		assert.Error(t, err, bad)
	}
}

func TestCursorStore_ConcurrentSaveConflicts(t *testing.T) {
	ctx := context.Background()
	objects := newMemObjects()
	store := NewCursorStore(objects, "cursors")
	require.NoError(t, store.Save(ctx, "item-1", domain.NewCursor("c1")))

	objects.beforeWrite = func(name string) {
		objects.beforeWrite = nil
		data, _ := json.Marshal(cursorObject{Cursor: "c-other"})
		objects.mu.Lock()
		defer objects.mu.Unlock()
		objects.put(name, data)
	}

	err := store.Save(ctx, "item-1", domain.NewCursor("c2"))
	require.ErrorIs(t, err, ErrConflict)

	c, err := store.Load(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, domain.NewCursor("c-other"), c)
}
