// Package reconciler drains an item's change stream from a saved cursor and
// falls back to a bounded historical pull when the item cannot sync yet.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-sync/internal/domain"
	"github.com/dvloznov/finance-sync/internal/fetcher"
	"github.com/dvloznov/finance-sync/internal/logger"
	"github.com/dvloznov/finance-sync/internal/provider"
)

const (
	// DefaultSyncPageSize is the provider's maximum page size for the Sync call.
	DefaultSyncPageSize = 500
	// DefaultMaxRestarts bounds drain restarts after the stream mutated mid-drain.
	DefaultMaxRestarts = 3
)

// Config tunes a Reconciler. Zero values select the defaults.
type Config struct {
	SyncPageSize int
	GetPageSize  int
	MaxRestarts  int
	Now          func() time.Time
}

// Options are the per-run inputs of Synchronize.
type Options struct {
	AccountIDs   []string
	LookbackDays int
}

// Result is the merged outcome of one drain. FinalCursor is not persisted here.
type Result struct {
	Added        []domain.TransactionRecord
	Modified     []domain.TransactionRecord
	Removed      []string
	FinalCursor  domain.Cursor
	UsedFallback bool
	Pages        int
}

// Reconciler turns a possibly stale cursor into the complete set of changes
// since that cursor.
type Reconciler struct {
	source provider.Source
	cfg    Config
}

// New creates a Reconciler reading from source.
func New(source provider.Source, cfg Config) *Reconciler {
	if cfg.SyncPageSize <= 0 {
		cfg.SyncPageSize = DefaultSyncPageSize
	}
	if cfg.GetPageSize <= 0 {
		cfg.GetPageSize = fetcher.DefaultPageSize
	}
	if cfg.MaxRestarts < 0 {
		cfg.MaxRestarts = 0
	} else if cfg.MaxRestarts == 0 {
		cfg.MaxRestarts = DefaultMaxRestarts
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Reconciler{source: source, cfg: cfg}
}

// Synchronize fetches every change after cursor. It issues one Sync call per
// page, strictly in sequence, until the provider reports no more pages, and
// accumulates Added, Modified and Removed in page order. When the provider
// reports that incremental sync is unsupported for the item, Synchronize
// returns the transactions of the last opts.LookbackDays days as Added and
// tries once to initialise the change stream so the next run can sync.
func (r *Reconciler) Synchronize(ctx context.Context, cred domain.Credential, cursor domain.Cursor, opts Options) (*Result, error) {
	log := logger.FromContext(ctx)

	result, err := r.drain(ctx, cred, cursor)
	switch {
	case err == nil:
		log.Debug().
			Str("item_id", cred.ItemID).
			Int("pages", result.Pages).
			Int("added", len(result.Added)).
			Int("modified", len(result.Modified)).
			Int("removed", len(result.Removed)).
			Msg("Drained change stream")
		return result, nil
	case errors.Is(err, domain.ErrSyncUnsupported):
		log.Info().
			Err(err).
			Str("item_id", cred.ItemID).
			Str("cursor", cursor.String()).
			Msg("Incremental sync unavailable, falling back to historical fetch")
		return r.fallback(ctx, cred, opts)
	default:
		return nil, domain.NewRunError(domain.KindTransientFetch, "Synchronize", err)
	}
}

func (r *Reconciler) fallback(ctx context.Context, cred domain.Credential, opts Options) (*Result, error) {
	log := logger.FromContext(ctx)

	end := civil.DateOf(r.cfg.Now())
	window := provider.Window{Start: end.AddDays(-opts.LookbackDays), End: end}

	records, err := fetcher.FetchAll(ctx, r.source, cred, window, opts.AccountIDs, r.cfg.GetPageSize)
	if err != nil {
		return nil, fmt.Errorf("fallback: %w", err)
	}

	result := &Result{
		Added:        records,
		UsedFallback: true,
	}

	// The initialisation drain only establishes a cursor; its records are
	// already covered by the historical fetch.
	init, err := r.drain(ctx, cred, domain.Cursor{})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, domain.NewRunError(domain.KindTransientFetch, "fallback", ctxErr)
		}
		log.Warn().
			Err(err).
			Str("item_id", cred.ItemID).
			Msg("Failed to initialise incremental sync, no cursor will be saved this run")
		return result, nil
	}

	result.FinalCursor = init.FinalCursor
	result.Pages = init.Pages

	log.Info().
		Str("item_id", cred.ItemID).
		Str("start", window.Start.String()).
		Str("end", window.End.String()).
		Int("records", len(records)).
		Int("discarded_init_records", len(init.Added)+len(init.Modified)).
		Msg("Historical fetch completed and incremental sync initialised")

	return result, nil
}

// drain pages from start until HasMore is false, restarting from start when
// the provider reports the stream changed under the drain.
func (r *Reconciler) drain(ctx context.Context, cred domain.Credential, start domain.Cursor) (*Result, error) {
	log := logger.FromContext(ctx)

	for attempt := 0; ; attempt++ {
		result, err := r.drainOnce(ctx, cred, start)
		if err == nil || !errors.Is(err, domain.ErrMutationDuringPagination) {
			return result, err
		}
		if attempt >= r.cfg.MaxRestarts {
			return nil, fmt.Errorf("drain: gave up after %d restarts: %w", attempt, err)
		}
		log.Warn().
			Err(err).
			Str("item_id", cred.ItemID).
			Int("attempt", attempt+1).
			Msg("Change stream mutated during pagination, restarting drain")
	}
}

func (r *Reconciler) drainOnce(ctx context.Context, cred domain.Credential, start domain.Cursor) (*Result, error) {
	result := &Result{}
	cursor := start

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		batch, err := r.source.Sync(ctx, cred, cursor, r.cfg.SyncPageSize)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", result.Pages+1, err)
		}
		result.Pages++

		result.Added = append(result.Added, batch.Added...)
		result.Modified = append(result.Modified, batch.Modified...)
		result.Removed = append(result.Removed, batch.Removed...)
		cursor = domain.NewCursor(batch.NextCursor)

		if !batch.HasMore {
			break
		}
	}

	result.FinalCursor = cursor
	return result, nil
}
