package fetcher

import (
	"context"
	"errors"
	"math"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-sync/internal/domain"
	"github.com/dvloznov/finance-sync/internal/provider"
	"github.com/dvloznov/finance-sync/internal/provider/providertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testWindow = provider.Window{
	Start: civil.Date{Year: 2024, Month: 1, Day: 1},
	End:   civil.Date{Year: 2024, Month: 1, Day: 31},
}

var testCred = domain.Credential{ItemID: "item-1", AccessToken: "token"}

func TestFetchAll_RequestCount(t *testing.T) {
	const pageSize = 10

	tests := []struct {
		name      string
		total     int
		wantCalls int
	}{
		{"empty interval still issues first request", 0, 1},
		{"single record", 1, 1},
		{"exactly one page", pageSize, 1},
		{"one past a page", pageSize + 1, 2},
		{"ten pages", 10 * pageSize, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := providertest.Records("tx", tt.total)
			source := &providertest.Source{GetFunc: providertest.PagedTransactions(records)}

			got, err := FetchAll(context.Background(), source, testCred, testWindow, nil, pageSize)
			require.NoError(t, err)

			assert.Len(t, got, tt.total)
			assert.Equal(t, records, got[:len(records)])
			assert.Len(t, source.GetCalls(), tt.wantCalls)
		})
	}
}

func TestFetchAll_IncreasingOffsets(t *testing.T) {
	source := &providertest.Source{GetFunc: providertest.PagedTransactions(providertest.Records("tx", 25))}

	_, err := FetchAll(context.Background(), source, testCred, testWindow, nil, 10)
	require.NoError(t, err)

	calls := source.GetCalls()
	require.Len(t, calls, 3)
	for i, call := range calls {
		assert.Equal(t, i*10, call.Offset)
		assert.Equal(t, 10, call.Count)
		assert.Equal(t, testWindow, call.Window)
	}
}

func TestFetchAll_AccountFilterPassthrough(t *testing.T) {
	source := &providertest.Source{GetFunc: providertest.PagedTransactions(providertest.Records("tx", 3))}

	_, err := FetchAll(context.Background(), source, testCred, testWindow, []string{"acc-1", "acc-2"}, 10)
	require.NoError(t, err)

	calls := source.GetCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"acc-1", "acc-2"}, calls[0].AccountIDs)
}

func TestFetchAll_PageFailureAborts(t *testing.T) {
	records := providertest.Records("tx", 30)
	paged := providertest.PagedTransactions(records)
	boom := errors.New("provider unavailable")

	source := &providertest.Source{
		GetFunc: func(ctx context.Context, cred domain.Credential, req provider.GetRequest) (*provider.GetPage, error) {
			if req.Offset == 20 {
				return nil, boom
			}
			return paged(ctx, cred, req)
		},
	}

	got, err := FetchAll(context.Background(), source, testCred, testWindow, nil, 10)
	require.Error(t, err)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, domain.KindTransientFetch, domain.KindOf(err))
}

func TestFetchAll_TotalReadOnce(t *testing.T) {
	records := providertest.Records("tx", 15)
	paged := providertest.PagedTransactions(records)

	source := &providertest.Source{
		GetFunc: func(ctx context.Context, cred domain.Credential, req provider.GetRequest) (*provider.GetPage, error) {
			page, err := paged(ctx, cred, req)
			if req.Offset > 0 {
				page.Total = 1000
			}
			return page, err
		},
	}

	got, err := FetchAll(context.Background(), source, testCred, testWindow, nil, 10)
	require.NoError(t, err)
	assert.Len(t, got, 15)
	assert.Len(t, source.GetCalls(), 2)
}

func TestFetchAll_EmptyPageBeforeTotal(t *testing.T) {
	source := &providertest.Source{
		GetFunc: func(_ context.Context, _ domain.Credential, req provider.GetRequest) (*provider.GetPage, error) {
			if req.Offset == 0 {
				return &provider.GetPage{Transactions: providertest.Records("tx", 10), Total: 50}, nil
			}
			return &provider.GetPage{Total: 50}, nil
		},
	}

	got, err := FetchAll(context.Background(), source, testCred, testWindow, nil, 10)
	require.NoError(t, err)
	assert.Len(t, got, 10)
	assert.Len(t, source.GetCalls(), 2)
}

func TestFetchAll_CancelledBetweenPages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	paged := providertest.PagedTransactions(providertest.Records("tx", 30))

	source := &providertest.Source{
		GetFunc: func(ctx context.Context, cred domain.Credential, req provider.GetRequest) (*provider.GetPage, error) {
			cancel()
			return paged(ctx, cred, req)
		},
	}

	got, err := FetchAll(ctx, source, testCred, testWindow, nil, 10)
	require.Error(t, err)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, source.GetCalls(), 1)
}

func TestFetchAll_DefaultPageSize(t *testing.T) {
	source := &providertest.Source{GetFunc: providertest.PagedTransactions(nil)}

	_, err := FetchAll(context.Background(), source, testCred, testWindow, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultPageSize, source.GetCalls()[0].Count)
}

func TestFetchAll_NegativeTotalIsTransient(t *testing.T) {
	source := &providertest.Source{
		GetFunc: func(context.Context, domain.Credential, provider.GetRequest) (*provider.GetPage, error) {
			return &provider.GetPage{Total: -1}, nil
		},
	}

	got, err := FetchAll(context.Background(), source, testCred, testWindow, nil, 10)
	require.Error(t, err)
	assert.Nil(t, got)
	assert.Equal(t, domain.KindTransientFetch, domain.KindOf(err))
	assert.Len(t, source.GetCalls(), 1)
}

func TestFetchAll_HugeTotalIsNotPreallocated(t *testing.T) {
	source := &providertest.Source{
		GetFunc: func(_ context.Context, _ domain.Credential, req provider.GetRequest) (*provider.GetPage, error) {
			if req.Offset == 0 {
				return &provider.GetPage{Transactions: providertest.Records("tx", 2), Total: math.MaxInt}, nil
			}
			return &provider.GetPage{Total: math.MaxInt}, nil
		},
	}

	got, err := FetchAll(context.Background(), source, testCred, testWindow, nil, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.LessOrEqual(t, cap(got), maxPreallocPages*2)
}
