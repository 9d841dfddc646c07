// Package fetcher drains the provider's offset-paged historical Get call.
package fetcher

import (
	"context"
	"fmt"

	"github.com/dvloznov/finance-sync/internal/domain"
	"github.com/dvloznov/finance-sync/internal/logger"
	"github.com/dvloznov/finance-sync/internal/provider"
)

// DefaultPageSize is the provider's maximum page size for the Get call.
const DefaultPageSize = 500

// maxPreallocPages caps how much of the reported total is allocated up front.
const maxPreallocPages = 10

// FetchAll returns every transaction dated inside window, requesting pages at
// increasing offsets until the cumulative count reaches the total reported by
// the first page. The first request is always issued, even for an empty
// window. An empty accountIDs means no account filter. A failure on any page
// aborts the whole fetch and no partial result is returned.
func FetchAll(ctx context.Context, source provider.Source, cred domain.Credential, window provider.Window, accountIDs []string, pageSize int) ([]domain.TransactionRecord, error) {
	log := logger.FromContext(ctx)

	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	req := provider.GetRequest{
		Window:     window,
		Offset:     0,
		Count:      pageSize,
		AccountIDs: accountIDs,
	}

	first, err := source.Get(ctx, cred, req)
	if err != nil {
		return nil, domain.NewRunError(domain.KindTransientFetch, "FetchAll", fmt.Errorf("page at offset 0: %w", err))
	}

	// The total is read once; later pages may report a different number.
	total := first.Total
	if total < 0 {
		return nil, domain.NewRunError(domain.KindTransientFetch, "FetchAll", fmt.Errorf("provider reported negative total %d", total))
	}
	records := make([]domain.TransactionRecord, 0, min(total, maxPreallocPages*pageSize))
	records = append(records, first.Transactions...)
	pages := 1

	for len(records) < total {
		if err := ctx.Err(); err != nil {
			return nil, domain.NewRunError(domain.KindTransientFetch, "FetchAll", err)
		}

		req.Offset = len(records)
		page, err := source.Get(ctx, cred, req)
		if err != nil {
			return nil, domain.NewRunError(domain.KindTransientFetch, "FetchAll", fmt.Errorf("page at offset %d: %w", req.Offset, err))
		}
		pages++

		if len(page.Transactions) == 0 {
			log.Warn().
				Str("item_id", cred.ItemID).
				Int("fetched", len(records)).
				Int("total", total).
				Msg("Provider returned an empty page before the reported total was reached")
			break
		}

		records = append(records, page.Transactions...)
	}

	log.Debug().
		Str("item_id", cred.ItemID).
		Int("pages", pages).
		Int("records", len(records)).
		Int("total", total).
		Msg("Fetched historical transactions")

	return records, nil
}
