package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/dvloznov/finance-sync/internal/domain"
)

const cursorContentType = "application/json"

type cursorObject struct {
	Cursor  string    `json:"cursor"`
	SavedAt time.Time `json:"saved_at"`
}

// CursorStore keeps one JSON object per item under prefix.
type CursorStore struct {
	objects ObjectStore
	prefix  string
}

// NewCursorStore creates a CursorStore writing under prefix, e.g. "cursors/".
func NewCursorStore(objects ObjectStore, prefix string) *CursorStore {
	return &CursorStore{objects: objects, prefix: prefix}
}

func (s *CursorStore) objectName(itemID string) string {
	return path.Join(s.prefix, itemID+".json")
}

func (s *CursorStore) Load(ctx context.Context, itemID string) (domain.Cursor, error) {
	data, _, err := s.objects.Read(ctx, s.objectName(itemID))
	if errors.Is(err, ErrNotFound) {
		return domain.Cursor{}, nil
	}
	if err != nil {
		return domain.Cursor{}, fmt.Errorf("CursorStore.Load: %w", err)
	}

	var obj cursorObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return domain.Cursor{}, fmt.Errorf("CursorStore.Load: decode %s: %w", s.objectName(itemID), err)
	}
	return domain.NewCursor(obj.Cursor), nil
}

// Save replaces the item's cursor object, conditioned on the generation read
// just before. A concurrent writer in between makes Save fail with
// ErrConflict and leaves the other writer's cursor in place.
func (s *CursorStore) Save(ctx context.Context, itemID string, cursor domain.Cursor) error {
	if !cursor.Valid {
		return s.Reset(ctx, itemID)
	}

	name := s.objectName(itemID)
	_, generation, err := s.objects.Read(ctx, name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("CursorStore.Save: %w", err)
	}

	data, err := json.Marshal(cursorObject{Cursor: cursor.Token, SavedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("CursorStore.Save: encode: %w", err)
	}
	if err := s.objects.Write(ctx, name, data, cursorContentType, generation); err != nil {
		return fmt.Errorf("CursorStore.Save: %w", err)
	}
	return nil
}

func (s *CursorStore) Reset(ctx context.Context, itemID string) error {
	if err := s.objects.Delete(ctx, s.objectName(itemID)); err != nil {
		return fmt.Errorf("CursorStore.Reset: %w", err)
	}
	return nil
}
