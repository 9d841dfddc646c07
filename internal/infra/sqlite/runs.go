package sqlite

import (
	"context"
	"fmt"
	"time"
)

// RunRecord is one row of export run history.
type RunRecord struct {
	RunID           string    `json:"run_id"`
	ItemID          string    `json:"item_id"`
	Status          string    `json:"status"`
	AddedCount      int       `json:"added_count"`
	ModifiedCount   int       `json:"modified_count"`
	RemovedCount    int       `json:"removed_count"`
	WrittenCount    int       `json:"written_count"`
	SkippedCount    int       `json:"skipped_count"`
	CursorPersisted bool      `json:"cursor_persisted"`
	UsedFallback    bool      `json:"used_fallback"`
	ErrorKind       string    `json:"error_kind,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
}

// RecordRun appends a run to the history.
func (s *Store) RecordRun(ctx context.Context, run RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (
			run_id, item_id, status,
			added_count, modified_count, removed_count, written_count, skipped_count,
			cursor_persisted, used_fallback, error_kind, error_message,
			started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.ItemID, run.Status,
		run.AddedCount, run.ModifiedCount, run.RemovedCount, run.WrittenCount, run.SkippedCount,
		run.CursorPersisted, run.UsedFallback, run.ErrorKind, run.ErrorMessage,
		formatTime(run.StartedAt), formatTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("RecordRun: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs of itemID, newest first.
func (s *Store) ListRuns(ctx context.Context, itemID string, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, item_id, status,
			added_count, modified_count, removed_count, written_count, skipped_count,
			cursor_persisted, used_fallback, error_kind, error_message,
			started_at, finished_at
		FROM runs WHERE item_id = ?
		ORDER BY finished_at DESC
		LIMIT ?`, itemID, limit)
	if err != nil {
		return nil, fmt.Errorf("ListRuns: %w", err)
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		var (
			run                 RunRecord
			startedAt, finished string
		)
		if err := rows.Scan(
			&run.RunID, &run.ItemID, &run.Status,
			&run.AddedCount, &run.ModifiedCount, &run.RemovedCount, &run.WrittenCount, &run.SkippedCount,
			&run.CursorPersisted, &run.UsedFallback, &run.ErrorKind, &run.ErrorMessage,
			&startedAt, &finished,
		); err != nil {
			return nil, fmt.Errorf("ListRuns: %w", err)
		}
		if run.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, fmt.Errorf("ListRuns: parse started_at: %w", err)
		}
		if run.FinishedAt, err = parseTime(finished); err != nil {
			return nil, fmt.Errorf("ListRuns: parse finished_at: %w", err)
		}
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListRuns: %w", err)
	}
	return runs, nil
}
