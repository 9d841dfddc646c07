// Package runner is the single synchronous entry point of an export run:
// synchronise, normalise, append new rows, and only then checkpoint the cursor.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/finance-sync/internal/cursor"
	"github.com/dvloznov/finance-sync/internal/domain"
	"github.com/dvloznov/finance-sync/internal/export"
	"github.com/dvloznov/finance-sync/internal/logger"
	"github.com/dvloznov/finance-sync/internal/reconciler"
	"github.com/google/uuid"
)

// Status summarises how a run ended.
type Status string

const (
	StatusNoChanges Status = "no_changes"
	StatusExported  Status = "exported"
	StatusFailed    Status = "failed"
)

// Options are the caller's inputs to one run.
type Options struct {
	// AccountIDs restricts the export to these accounts; empty exports all.
	AccountIDs []string
	// LookbackDaysIfFirstRun bounds the historical fetch used when the item
	// cannot sync incrementally yet.
	LookbackDaysIfFirstRun int
}

// Result reports what a run did. It is returned even when the run failed.
type Result struct {
	RunID           string    `json:"run_id"`
	ItemID          string    `json:"item_id"`
	Status          Status    `json:"status"`
	AddedCount      int       `json:"added_count"`
	ModifiedCount   int       `json:"modified_count"`
	RemovedCount    int       `json:"removed_count"`
	WrittenCount    int       `json:"written_count"`
	SkippedCount    int       `json:"skipped_count"`
	CursorPersisted bool      `json:"cursor_persisted"`
	UsedFallback    bool      `json:"used_fallback"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
}

// Synchronizer produces every change since a cursor.
type Synchronizer interface {
	Synchronize(ctx context.Context, cred domain.Credential, cursor domain.Cursor, opts reconciler.Options) (*reconciler.Result, error)
}

// CompletionHook is called after a run's core sequence succeeded. Its error is
// logged and never fails the run.
type CompletionHook func(ctx context.Context, result *Result) error

// ItemLease serialises runs of one item across processes that share a
// cursor store and sink. Acquire blocks until the lease is held or ctx is
// done. The returned context is cancelled if the lease is lost before
// release is called.
type ItemLease interface {
	Acquire(ctx context.Context, itemID string) (context.Context, func(), error)
}

// Config holds the optional collaborators of a Runner.
type Config struct {
	Schema     domain.Schema
	OnComplete CompletionHook
	Now        func() time.Time
	// Lease, when set, is held for the whole run in addition to the
	// in-process item lock.
	Lease ItemLease
}

// Runner executes export runs, one at a time per item.
type Runner struct {
	sync   Synchronizer
	store  cursor.Store
	target export.Target
	cfg    Config
	locks  *itemLocks
}

// New creates a Runner. A zero cfg.Schema selects domain.TransactionSchema.
func New(sync Synchronizer, store cursor.Store, target export.Target, cfg Config) *Runner {
	if len(cfg.Schema.Columns) == 0 {
		cfg.Schema = domain.TransactionSchema
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Runner{
		sync:   sync,
		store:  store,
		target: target,
		cfg:    cfg,
		locks:  newItemLocks(),
	}
}

// RunExport performs one export run for cred. The cursor is saved only after
// the rows were appended, so a failure at any step leaves the previous
// checkpoint in place and a rerun is always safe. When only the cursor save
// fails, the returned Result still carries the counts of the written export.
func (r *Runner) RunExport(ctx context.Context, cred domain.Credential, opts Options) (*Result, error) {
	result := &Result{
		RunID:     uuid.NewString(),
		ItemID:    cred.ItemID,
		Status:    StatusFailed,
		StartedAt: r.cfg.Now(),
	}

	log := logger.FromContext(ctx).With().
		Str("run_id", result.RunID).
		Str("item_id", cred.ItemID).
		Logger()
	ctx = logger.WithContext(ctx, log)

	release, err := r.locks.acquire(ctx, cred.ItemID)
	if err != nil {
		return r.finish(result), fmt.Errorf("RunExport: wait for item lock: %w", err)
	}
	defer release()

	if r.cfg.Lease != nil {
		leaseCtx, releaseLease, err := r.cfg.Lease.Acquire(ctx, cred.ItemID)
		if err != nil {
			return r.finish(result), fmt.Errorf("RunExport: acquire item lease: %w", err)
		}
		defer releaseLease()
		ctx = leaseCtx
	}

	if err := r.run(ctx, cred, opts, result); err != nil {
		log.Error().
			Err(err).
			Str("kind", string(domain.KindOf(err))).
			Str("risk", string(domain.KindOf(err).Risk())).
			Msg("Export run failed")
		return r.finish(result), err
	}

	r.finish(result)
	log.Info().
		Str("status", string(result.Status)).
		Int("added", result.AddedCount).
		Int("modified", result.ModifiedCount).
		Int("removed", result.RemovedCount).
		Int("written", result.WrittenCount).
		Int("skipped", result.SkippedCount).
		Bool("cursor_persisted", result.CursorPersisted).
		Bool("used_fallback", result.UsedFallback).
		Msg("Export run completed")

	if r.cfg.OnComplete != nil {
		if err := r.cfg.OnComplete(ctx, result); err != nil {
			log.Warn().Err(err).Msg("Post-run hook failed")
		}
	}

	return result, nil
}

func (r *Runner) run(ctx context.Context, cred domain.Credential, opts Options, result *Result) error {
	log := logger.FromContext(ctx)

	start, err := r.store.Load(ctx, cred.ItemID)
	if err != nil {
		return domain.NewRunError(domain.KindCursorPersist, "RunExport", fmt.Errorf("load cursor: %w", err))
	}
	log.Debug().Str("cursor", start.String()).Msg("Loaded cursor")

	synced, err := r.sync.Synchronize(ctx, cred, start, reconciler.Options{
		AccountIDs:   opts.AccountIDs,
		LookbackDays: opts.LookbackDaysIfFirstRun,
	})
	if err != nil {
		return domain.NewRunError(domain.KindTransientFetch, "RunExport", err)
	}

	added := filterAccounts(synced.Added, opts.AccountIDs)
	modified := filterAccounts(synced.Modified, opts.AccountIDs)

	result.AddedCount = len(added)
	result.ModifiedCount = len(modified)
	result.RemovedCount = len(synced.Removed)
	result.UsedFallback = synced.UsedFallback

	if len(synced.Removed) > 0 {
		log.Debug().Strs("removed_ids", synced.Removed).Msg("Upstream removed transactions")
	}

	records := make([]domain.TransactionRecord, 0, len(added)+len(modified))
	records = append(records, added...)
	records = append(records, modified...)

	rows, err := export.Normalize(records)
	if err != nil {
		return err
	}

	written, skipped, err := export.AppendNew(ctx, r.target, r.cfg.Schema, rows)
	result.SkippedCount = skipped
	if err != nil {
		return err
	}
	result.WrittenCount = written

	if result.AddedCount+result.ModifiedCount+result.RemovedCount > 0 {
		result.Status = StatusExported
	} else {
		result.Status = StatusNoChanges
	}

	if !synced.FinalCursor.Valid {
		log.Warn().Msg("No cursor available to save, the next run will repeat the historical fetch")
		return nil
	}

	if err := r.store.Save(ctx, cred.ItemID, synced.FinalCursor); err != nil {
		result.Status = StatusFailed
		return domain.NewRunError(domain.KindCursorPersist, "RunExport", fmt.Errorf("save cursor: %w", err))
	}
	result.CursorPersisted = true

	return nil
}

func (r *Runner) finish(result *Result) *Result {
	result.FinishedAt = r.cfg.Now()
	return result
}

// filterAccounts keeps records of the given accounts; an empty filter keeps all.
func filterAccounts(records []domain.TransactionRecord, accountIDs []string) []domain.TransactionRecord {
	if len(accountIDs) == 0 {
		return records
	}

	allowed := make(map[string]bool, len(accountIDs))
	for _, id := range accountIDs {
		allowed[id] = true
	}

	filtered := make([]domain.TransactionRecord, 0, len(records))
	for _, rec := range records {
		if allowed[rec.AccountID] {
			filtered = append(filtered, rec)
		}
	}
	return filtered
}
