// Package app wires the export core to the configured provider, cursor
// store, export target and item database, and exposes the operations the
// API, worker and CLI share.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/finance-sync/internal/config"
	"github.com/dvloznov/finance-sync/internal/cursor"
	"github.com/dvloznov/finance-sync/internal/domain"
	"github.com/dvloznov/finance-sync/internal/export"
	"github.com/dvloznov/finance-sync/internal/fetcher"
	"github.com/dvloznov/finance-sync/internal/infra/sqlite"
	"github.com/dvloznov/finance-sync/internal/jobs"
	"github.com/dvloznov/finance-sync/internal/logger"
	"github.com/dvloznov/finance-sync/internal/provider"
	"github.com/dvloznov/finance-sync/internal/reconciler"
	"github.com/dvloznov/finance-sync/internal/runner"
)

// Deps are the collaborators of a Service.
type Deps struct {
	Source  provider.Source
	Cursors cursor.Store
	Target  export.Target
	Items   *sqlite.Store
	Now     func() time.Time
	// Lease overrides the item lease built from Items.
	Lease runner.ItemLease
}

// Service runs exports for registered items.
type Service struct {
	cfg     *config.Config
	source  provider.Source
	cursors cursor.Store
	items   *sqlite.Store
	runner  *runner.Runner
	now     func() time.Time
}

// NewService creates a Service. Page sizes and the default lookback come
// from cfg.
func NewService(cfg *config.Config, deps Deps) *Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	s := &Service{
		cfg:     cfg,
		source:  deps.Source,
		cursors: deps.Cursors,
		items:   deps.Items,
		now:     now,
	}

	sync := reconciler.New(deps.Source, reconciler.Config{
		SyncPageSize: cfg.SyncPageSize,
		GetPageSize:  cfg.GetPageSize,
		Now:          now,
	})
	runnerCfg := runner.Config{
		OnComplete: s.markSynced,
		Now:        now,
	}
	switch {
	case deps.Lease != nil:
		runnerCfg.Lease = deps.Lease
	case deps.Items != nil:
		runnerCfg.Lease = deps.Items.RunLease(sqlite.LeaseOptions{})
	}
	s.runner = runner.New(sync, deps.Cursors, deps.Target, runnerCfg)
	return s
}

// ExportRequest selects what one export run covers.
type ExportRequest struct {
	ItemID     string
	AccountIDs []string
	// LookbackDays overrides the configured first-run lookback when positive.
	LookbackDays int
}

// Export runs one export for a registered item and records it in the run
// history, whatever the outcome.
func (s *Service) Export(ctx context.Context, req ExportRequest) (*runner.Result, error) {
	cred, err := s.items.Credential(ctx, req.ItemID)
	if err != nil {
		return nil, fmt.Errorf("Export: %w", err)
	}

	lookback := s.cfg.LookbackDays
	if req.LookbackDays > 0 {
		lookback = req.LookbackDays
	}

	result, runErr := s.runner.RunExport(ctx, cred, runner.Options{
		AccountIDs:             req.AccountIDs,
		LookbackDaysIfFirstRun: lookback,
	})

	s.recordRun(ctx, result, runErr)

	if runErr != nil {
		return result, fmt.Errorf("Export: %w", runErr)
	}
	return result, nil
}

// HandleJob is the jobs.JobHandler that executes export jobs.
func (s *Service) HandleJob(ctx context.Context, job jobs.Job) error {
	exportJob, ok := job.(*jobs.ExportJob)
	if !ok {
		return fmt.Errorf("HandleJob: unexpected job type: %T", job)
	}

	log := logger.FromContext(ctx)
	log.Info().Msg("Processing export job")

	result, err := s.Export(ctx, ExportRequest{
		ItemID:       exportJob.ItemID,
		AccountIDs:   exportJob.AccountIDs,
		LookbackDays: exportJob.LookbackDays,
	})
	exportJob.Result = result
	return err
}

// EnqueueAll publishes one export job per registered item and returns how
// many were published.
func (s *Service) EnqueueAll(ctx context.Context, publisher jobs.Publisher) (int, error) {
	items, err := s.items.ListItems(ctx)
	if err != nil {
		return 0, fmt.Errorf("EnqueueAll: %w", err)
	}

	var errs []error
	published := 0
	for _, item := range items {
		if err := publisher.PublishExport(ctx, &jobs.ExportJob{ItemID: item.ItemID}); err != nil {
			errs = append(errs, fmt.Errorf("item %s: %w", item.ItemID, err))
			continue
		}
		published++
	}

	if len(errs) > 0 {
		return published, fmt.Errorf("EnqueueAll: %w", errors.Join(errs...))
	}
	return published, nil
}

// Fetch pulls every transaction of a registered item inside window, without
// touching its cursor.
func (s *Service) Fetch(ctx context.Context, itemID string, window provider.Window, accountIDs []string) ([]domain.TransactionRecord, error) {
	cred, err := s.items.Credential(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("Fetch: %w", err)
	}

	records, err := fetcher.FetchAll(ctx, s.source, cred, window, accountIDs, s.cfg.GetPageSize)
	if err != nil {
		return nil, fmt.Errorf("Fetch: %w", err)
	}
	return records, nil
}

// RegisterItem stores an item's credential.
func (s *Service) RegisterItem(ctx context.Context, cred domain.Credential) error {
	if cred.ItemID == "" || cred.AccessToken == "" {
		return fmt.Errorf("RegisterItem: item id and access token are required")
	}
	return s.items.RegisterItem(ctx, cred)
}

// ItemStatus is an item together with its checkpoint in the configured
// cursor store.
type ItemStatus struct {
	*sqlite.Item
	Cursor string `json:"cursor,omitempty"`
}

// GetItem returns an item and its current cursor.
func (s *Service) GetItem(ctx context.Context, itemID string) (*ItemStatus, error) {
	item, err := s.items.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("GetItem: %w", err)
	}

	c, err := s.cursors.Load(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("GetItem: load cursor: %w", err)
	}

	status := &ItemStatus{Item: item}
	status.HasCursor = c.Valid
	if c.Valid {
		status.Cursor = c.Token
	}
	return status, nil
}

// ListItems returns every registered item.
func (s *Service) ListItems(ctx context.Context) ([]*sqlite.Item, error) {
	return s.items.ListItems(ctx)
}

// ListRuns returns an item's recent export runs, newest first.
func (s *Service) ListRuns(ctx context.Context, itemID string, limit int) ([]*sqlite.RunRecord, error) {
	return s.items.ListRuns(ctx, itemID, limit)
}

// LoadCursor returns an item's saved cursor.
func (s *Service) LoadCursor(ctx context.Context, itemID string) (domain.Cursor, error) {
	return s.cursors.Load(ctx, itemID)
}

// ResetCursor forgets an item's cursor so the next run starts from a
// historical fetch.
func (s *Service) ResetCursor(ctx context.Context, itemID string) error {
	if err := s.cursors.Reset(ctx, itemID); err != nil {
		return fmt.Errorf("ResetCursor: %w", err)
	}
	log := logger.FromContext(ctx)
	log.Info().Str("item_id", itemID).Msg("Cursor reset")
	return nil
}

func (s *Service) markSynced(ctx context.Context, result *runner.Result) error {
	return s.items.MarkSynced(ctx, result.ItemID, result.FinishedAt)
}

func (s *Service) recordRun(ctx context.Context, result *runner.Result, runErr error) {
	if result == nil {
		return
	}

	record := sqlite.RunRecord{
		RunID:           result.RunID,
		ItemID:          result.ItemID,
		Status:          string(result.Status),
		AddedCount:      result.AddedCount,
		ModifiedCount:   result.ModifiedCount,
		RemovedCount:    result.RemovedCount,
		WrittenCount:    result.WrittenCount,
		SkippedCount:    result.SkippedCount,
		CursorPersisted: result.CursorPersisted,
		UsedFallback:    result.UsedFallback,
		StartedAt:       result.StartedAt,
		FinishedAt:      result.FinishedAt,
	}
	if runErr != nil {
		record.ErrorKind = string(domain.KindOf(runErr))
		record.ErrorMessage = runErr.Error()
	}

	// A cancelled run is still worth recording.
	if err := s.items.RecordRun(context.WithoutCancel(ctx), record); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("run_id", result.RunID).Msg("Failed to record run")
	}
}
