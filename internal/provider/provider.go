package provider

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-sync/internal/domain"
)

// Source is the upstream financial-data provider as the export core sees it.
// Implementations must classify failures: domain.ErrSyncUnsupported when the
// item has no usable incremental sync state, domain.ErrMutationDuringPagination
// when the stream moved mid-drain, anything else is a transient fetch failure.
type Source interface {
	// Sync returns one page of changes after cursor. An invalid (zero) cursor
	// means "from the beginning of the stream" and must not be sent as "".
	Sync(ctx context.Context, cred domain.Credential, cursor domain.Cursor, count int) (*domain.SyncBatch, error)

	// Get returns one offset page of transactions dated inside the window.
	Get(ctx context.Context, cred domain.Credential, req GetRequest) (*GetPage, error)
}

// Window is a closed calendar-date interval.
type Window struct {
	Start civil.Date
	End   civil.Date
}

// Contains reports whether d falls inside the window.
func (w Window) Contains(d civil.Date) bool {
	return !d.Before(w.Start) && !d.After(w.End)
}

// GetRequest selects one page of a historical pull.
type GetRequest struct {
	Window     Window
	Offset     int
	Count      int
	AccountIDs []string // empty means all accounts
}

// GetPage is one page of a historical pull.
type GetPage struct {
	Transactions []domain.TransactionRecord
	Total        int
}
