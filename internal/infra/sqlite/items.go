package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/finance-sync/internal/domain"
)

// Item is a registered provider item.
type Item struct {
	ItemID       string        `json:"item_id"`
	Cursor       domain.Cursor `json:"-"`
	HasCursor    bool          `json:"has_cursor"`
	LastSyncedAt *time.Time    `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// RegisterItem stores cred, replacing the access token of an existing item
// and leaving its cursor alone.
func (s *Store) RegisterItem(ctx context.Context, cred domain.Credential) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (item_id, access_token, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET access_token = excluded.access_token`,
		cred.ItemID, cred.AccessToken, formatTime(s.now()),
	)
	if err != nil {
		return fmt.Errorf("RegisterItem: %w", err)
	}
	return nil
}

// Credential returns the stored credential of itemID.
func (s *Store) Credential(ctx context.Context, itemID string) (domain.Credential, error) {
	var token string
	err := s.db.QueryRowContext(ctx,
		`SELECT access_token FROM items WHERE item_id = ?`, itemID,
	).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Credential{}, fmt.Errorf("Credential: %s: %w", itemID, ErrItemNotFound)
	}
	if err != nil {
		return domain.Credential{}, fmt.Errorf("Credential: %w", err)
	}
	if token == "" {
		return domain.Credential{}, fmt.Errorf("Credential: %s has no access token: %w", itemID, ErrItemNotFound)
	}
	return domain.Credential{ItemID: itemID, AccessToken: token}, nil
}

// GetItem returns one item.
func (s *Store) GetItem(ctx context.Context, itemID string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT item_id, cursor, cursor_valid, last_synced_at, created_at
		FROM items WHERE item_id = ?`, itemID)

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("GetItem: %s: %w", itemID, ErrItemNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetItem: %w", err)
	}
	return item, nil
}

// ListItems returns every item that has an access token, by item id.
func (s *Store) ListItems(ctx context.Context) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, cursor, cursor_valid, last_synced_at, created_at
		FROM items WHERE access_token != '' ORDER BY item_id`)
	if err != nil {
		return nil, fmt.Errorf("ListItems: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("ListItems: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListItems: %w", err)
	}
	return items, nil
}

// MarkSynced records the completion time of the item's last successful run.
func (s *Store) MarkSynced(ctx context.Context, itemID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE items SET last_synced_at = ? WHERE item_id = ?`, formatTime(at), itemID)
	if err != nil {
		return fmt.Errorf("MarkSynced: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (*Item, error) {
	var (
		item       Item
		token      string
		valid      bool
		lastSynced sql.NullString
		createdAt  string
	)
	if err := row.Scan(&item.ItemID, &token, &valid, &lastSynced, &createdAt); err != nil {
		return nil, err
	}

	if valid {
		item.Cursor = domain.NewCursor(token)
		item.HasCursor = true
	}

	created, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	item.CreatedAt = created

	if lastSynced.Valid {
		t, err := parseTime(lastSynced.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_synced_at: %w", err)
		}
		item.LastSyncedAt = &t
	}

	return &item, nil
}
