// Package sqlite is the local database of registered items, their cursors
// and their export run history.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/finance-sync/internal/domain"
	_ "modernc.org/sqlite"
)

// ErrItemNotFound is returned for an item id that was never registered.
var ErrItemNotFound = errors.New("item not found")

// Store wraps the SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and applies pending
// migrations. Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("Open: open database at %s: %w", path, err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:" shared.
	db.SetMaxOpenConns(1)

	// Other processes (api, worker, cli) share the file; wait for their
	// write locks instead of failing with SQLITE_BUSY.
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("Open: set busy timeout: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if _, err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("Open: %w", err)
	}

	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// timeLayout has fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(timeLayout, value)
}

// Load implements cursor.Store.
func (s *Store) Load(ctx context.Context, itemID string) (domain.Cursor, error) {
	var token string
	var valid bool
	err := s.db.QueryRowContext(ctx,
		`SELECT cursor, cursor_valid FROM items WHERE item_id = ?`, itemID,
	).Scan(&token, &valid)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Cursor{}, nil
	}
	if err != nil {
		return domain.Cursor{}, fmt.Errorf("Load: %w", err)
	}
	if !valid {
		return domain.Cursor{}, nil
	}
	return domain.NewCursor(token), nil
}

// Save implements cursor.Store. An unregistered item gets a row without an
// access token.
func (s *Store) Save(ctx context.Context, itemID string, cursor domain.Cursor) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (item_id, cursor, cursor_valid, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			cursor = excluded.cursor,
			cursor_valid = excluded.cursor_valid`,
		itemID, cursor.Token, cursor.Valid, formatTime(s.now()),
	)
	if err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}

// Reset implements cursor.Store.
func (s *Store) Reset(ctx context.Context, itemID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE items SET cursor = '', cursor_valid = 0 WHERE item_id = ?`, itemID)
	if err != nil {
		return fmt.Errorf("Reset: %w", err)
	}
	return nil
}
