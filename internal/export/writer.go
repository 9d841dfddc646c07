package export

import (
	"context"
	"fmt"

	"github.com/dvloznov/finance-sync/internal/domain"
	"github.com/dvloznov/finance-sync/internal/logger"
)

// Target is a spreadsheet-like sink with a header row and a key column.
type Target interface {
	// EnsureHeaders writes headers only when the target has no header row
	// yet, and returns the header row the target actually has.
	EnsureHeaders(ctx context.Context, headers []string) ([]string, error)

	// ReadKeyColumn returns every non-empty value currently in column.
	ReadKeyColumn(ctx context.Context, column string) (map[string]bool, error)

	// AppendRows appends rows after the last existing row, in order.
	AppendRows(ctx context.Context, rows [][]string) error
}

// AppendNew writes the rows whose key is not yet present in target and
// reports how many were written and skipped. Rows repeating a key earlier in
// the same input are skipped as well. All new rows go out in one AppendRows
// call, in input order; when there are none, AppendRows is not called.
// Calling AppendNew again with the same rows writes nothing.
func AppendNew(ctx context.Context, target Target, schema domain.Schema, rows []domain.NormalizedRow) (written, skipped int, err error) {
	log := logger.FromContext(ctx)

	header, err := target.EnsureHeaders(ctx, schema.Columns)
	if err != nil {
		return 0, 0, domain.NewRunError(domain.KindSinkWrite, "AppendNew", fmt.Errorf("ensure headers: %w", err))
	}
	if err := checkHeader(header, schema); err != nil {
		return 0, 0, domain.NewRunError(domain.KindSinkWrite, "AppendNew", err)
	}

	existing, err := target.ReadKeyColumn(ctx, schema.KeyColumn)
	if err != nil {
		return 0, 0, domain.NewRunError(domain.KindSinkWrite, "AppendNew", fmt.Errorf("read key column: %w", err))
	}

	seen := make(map[string]bool, len(rows))
	var pending [][]string
	for _, row := range rows {
		key, _ := row.Value(schema.KeyColumn)
		if existing[key] || seen[key] {
			skipped++
			continue
		}
		seen[key] = true
		pending = append(pending, Project(header, row))
	}

	if len(pending) == 0 {
		log.Debug().Int("skipped", skipped).Msg("No new rows to export")
		return 0, skipped, nil
	}

	if err := target.AppendRows(ctx, pending); err != nil {
		return 0, skipped, domain.NewRunError(domain.KindSinkWrite, "AppendNew", fmt.Errorf("append %d rows: %w", len(pending), err))
	}

	log.Info().
		Int("written", len(pending)).
		Int("skipped", skipped).
		Msg("Appended new rows to export target")

	return len(pending), skipped, nil
}

// Project lays row out in header order. Header columns the schema does not
// know are left empty.
func Project(header []string, row domain.NormalizedRow) []string {
	values := make([]string, len(header))
	for i, column := range header {
		values[i], _ = row.Value(column)
	}
	return values
}

func checkHeader(header []string, schema domain.Schema) error {
	present := make(map[string]bool, len(header))
	for _, column := range header {
		present[column] = true
	}
	for _, column := range schema.Columns {
		if !present[column] {
			return fmt.Errorf("existing header row %q is missing column %q", header, column)
		}
	}
	return nil
}
