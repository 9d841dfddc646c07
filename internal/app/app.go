package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/finance-sync/internal/config"
	"github.com/dvloznov/finance-sync/internal/cursor"
	"github.com/dvloznov/finance-sync/internal/export"
	"github.com/dvloznov/finance-sync/internal/gcs"
	infraBQ "github.com/dvloznov/finance-sync/internal/infra/bigquery"
	"github.com/dvloznov/finance-sync/internal/infra/filesink"
	"github.com/dvloznov/finance-sync/internal/infra/sheets"
	"github.com/dvloznov/finance-sync/internal/infra/sqlite"
	"github.com/dvloznov/finance-sync/internal/logger"
	"github.com/dvloznov/finance-sync/internal/notionsync"
	"github.com/dvloznov/finance-sync/internal/provider"
)

// App is a Service built from configuration, owning the clients it opened.
type App struct {
	*Service
	closers []func() error
}

// Open connects every backend cfg selects. Close releases them.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.FromContext(ctx)
	a := &App{}

	items, err := sqlite.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}
	a.closers = append(a.closers, items.Close)

	source, err := provider.NewPlaidClient(provider.PlaidConfig{
		ClientID:    cfg.PlaidClientID,
		Secret:      cfg.PlaidSecret,
		Environment: cfg.PlaidEnv,
		RateLimit:   cfg.PlaidRateLimit,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("Open: %w", err)
	}

	cursors, err := a.openCursorStore(ctx, cfg, items)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("Open: %w", err)
	}

	target, err := a.openTarget(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("Open: %w", err)
	}

	log.Info().
		Str("export_target", cfg.ExportTarget).
		Str("cursor_store", cfg.CursorStore).
		Str("plaid_env", cfg.PlaidEnv).
		Msg("Backends ready")

	a.Service = NewService(cfg, Deps{
		Source:  source,
		Cursors: cursors,
		Target:  target,
		Items:   items,
	})
	return a, nil
}

// Close closes every client Open created, in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) openCursorStore(ctx context.Context, cfg *config.Config, items *sqlite.Store) (cursor.Store, error) {
	switch cfg.CursorStore {
	case config.CursorStoreSQLite:
		return items, nil
	case config.CursorStoreGCS:
		client, err := gcs.NewClient(ctx, cfg.GCSBucket)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		return gcs.NewCursorStore(client, cfg.GCSCursorPrefix), nil
	}
	return nil, fmt.Errorf("unsupported cursor store %q", cfg.CursorStore)
}

func (a *App) openTarget(ctx context.Context, cfg *config.Config) (export.Target, error) {
	switch cfg.ExportTarget {
	case config.TargetSheets:
		return sheets.NewTarget(ctx, cfg.SheetsSpreadsheetID, cfg.SheetsSheetName)

	case config.TargetBigQuery:
		target, err := infraBQ.NewTarget(ctx, cfg.BigQueryProject, cfg.BigQueryDataset, cfg.BigQueryTable)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, target.Close)
		return target, nil

	case config.TargetNotion:
		return notionsync.NewTarget(notionsync.NewNotionClient(cfg.NotionToken), cfg.NotionDBID), nil

	case config.TargetGCS:
		bucket, object, err := gcsLocation(cfg)
		if err != nil {
			return nil, err
		}
		client, err := gcs.NewClient(ctx, bucket)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		return gcs.NewCSVTarget(client, object), nil

	case config.TargetCSV:
		return filesink.NewCSVTarget(cfg.ExportFilePath), nil

	case config.TargetXLSX:
		return filesink.NewXLSXTarget(cfg.ExportFilePath, cfg.SheetsSheetName), nil
	}
	return nil, fmt.Errorf("unsupported export target %q", cfg.ExportTarget)
}

// gcsLocation resolves the export object, which may be given either as an
// object name inside GCS_BUCKET or as a full gs:// URI.
func gcsLocation(cfg *config.Config) (bucket, object string, err error) {
	if strings.HasPrefix(cfg.GCSObject, "gs://") {
		return gcs.ParseURI(cfg.GCSObject)
	}
	return cfg.GCSBucket, cfg.GCSObject, nil
}
