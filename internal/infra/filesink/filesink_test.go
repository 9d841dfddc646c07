package filesink

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dvloznov/finance-sync/internal/domain"
	"github.com/dvloznov/finance-sync/internal/export"
	"github.com/dvloznov/finance-sync/internal/provider/providertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func normalized(t *testing.T, ids ...string) []domain.NormalizedRow {
	t.Helper()
	records := make([]domain.TransactionRecord, len(ids))
	for i, id := range ids {
		records[i] = providertest.Record(id)
	}
	rows, err := export.Normalize(records)
	require.NoError(t, err)
	return rows
}

func TestCSVTarget_AppendNew(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out", "transactions.csv")
	target := NewCSVTarget(path)

	written, _, err := export.AppendNew(ctx, target, domain.TransactionSchema, normalized(t, "a", "b"))
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	written, skipped, err := export.AppendNew(ctx, target, domain.TransactionSchema, normalized(t, "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, 1, written)
	assert.Equal(t, 1, skipped)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, strings.Join(domain.TransactionSchema.Columns, ","), lines[0])
	assert.True(t, strings.HasSuffix(lines[3], ",c"))
}

func TestCSVTarget_KeepsExistingHeaderOrder(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "transactions.csv")
	header := "Transaction ID,Date,Description,Amount,Category,Merchant,Status,Currency,Account ID\n"
	require.NoError(t, os.WriteFile(path, []byte(header), 0o644))

	_, _, err := export.AppendNew(ctx, NewCSVTarget(path), domain.TransactionSchema, normalized(t, "a"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.TrimSpace(header), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "a,2024-01-15,"))
}

func TestXLSXTarget_AppendNew(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "transactions.xlsx")
	target := NewXLSXTarget(path, "")

	written, _, err := export.AppendNew(ctx, target, domain.TransactionSchema, normalized(t, "a", "b"))
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	written, skipped, err := export.AppendNew(ctx, target, domain.TransactionSchema, normalized(t, "a", "c"))
	require.NoError(t, err)
	assert.Equal(t, 1, written)
	assert.Equal(t, 1, skipped)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{DefaultSheet}, f.GetSheetList())
	rows, err := f.GetRows(DefaultSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, domain.TransactionSchema.Columns, rows[0])
	last := rows[3]
	assert.Equal(t, "c", last[len(last)-1])
}

func TestXLSXStore_LoadMissingFile(t *testing.T) {
	store := &XLSXStore{path: filepath.Join(t.TempDir(), "missing.xlsx"), sheet: DefaultSheet}

	table, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, table.Header)
	assert.Empty(t, table.Rows)
}
