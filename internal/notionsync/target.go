// Package notionsync exports transactions as pages of a Notion database.
package notionsync

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/dvloznov/finance-sync/internal/logger"
	"github.com/jomei/notionapi"
)

// Target writes export rows as pages of one Notion database. The database's
// properties are its header row.
type Target struct {
	notion     NotionService
	databaseID string

	// header and propTypes hold the columns seen by the last EnsureHeaders.
	header    []string
	propTypes map[string]notionapi.PropertyConfigType
}

// NewTarget creates a Target for databaseID.
func NewTarget(notion NotionService, databaseID string) *Target {
	return &Target{notion: notion, databaseID: databaseID}
}

// EnsureHeaders adds the header columns the database lacks as text
// properties, leaving existing properties untouched. It returns the header
// columns first, in order, followed by any other database properties.
func (t *Target) EnsureHeaders(ctx context.Context, headers []string) ([]string, error) {
	log := logger.FromContext(ctx)

	db, err := t.notion.GetDatabase(ctx, t.databaseID)
	if err != nil {
		return nil, fmt.Errorf("EnsureHeaders: %w", err)
	}

	types := make(map[string]notionapi.PropertyConfigType, len(db.Properties))
	for name, cfg := range db.Properties {
		types[name] = cfg.GetType()
	}

	missing := notionapi.PropertyConfigs{}
	for _, h := range headers {
		if _, ok := types[h]; !ok {
			missing[h] = notionapi.RichTextPropertyConfig{Type: notionapi.PropertyConfigTypeRichText}
			types[h] = notionapi.PropertyConfigTypeRichText
		}
	}
	if len(missing) > 0 {
		if err := t.notion.AddDatabaseProperties(ctx, t.databaseID, missing); err != nil {
			return nil, fmt.Errorf("EnsureHeaders: %w", err)
		}
		log.Info().
			Str("database_id", t.databaseID).
			Int("added_properties", len(missing)).
			Msg("Added export columns to Notion database")
	}
	t.propTypes = types

	header := slices.Clone(headers)
	var extra []string
	for name := range types {
		if !slices.Contains(headers, name) {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	t.header = append(header, extra...)
	return slices.Clone(t.header), nil
}

// ReadKeyColumn reads column from every page of the database.
func (t *Target) ReadKeyColumn(ctx context.Context, column string) (map[string]bool, error) {
	pages, err := queryAllNotionPages(ctx, t.notion, t.databaseID)
	if err != nil {
		return nil, fmt.Errorf("ReadKeyColumn: %w", err)
	}

	keys := make(map[string]bool, len(pages))
	for _, page := range pages {
		if prop, ok := page.Properties[column]; ok {
			if key := propertyText(prop); key != "" {
				keys[key] = true
			}
		}
	}
	return keys, nil
}

// AppendRows creates one page per row. Notion has no batch insert, so a
// failure part way leaves the earlier pages in place; they are skipped as
// existing keys when the run is repeated.
func (t *Target) AppendRows(ctx context.Context, rows [][]string) error {
	log := logger.FromContext(ctx)

	if t.header == nil {
		return fmt.Errorf("AppendRows: database %s: headers not ensured", t.databaseID)
	}

	for i, row := range rows {
		props := notionapi.Properties{}
		for j, column := range t.header {
			if j >= len(row) {
				break
			}
			if prop, ok := cellToProperty(t.propTypes[column], row[j]); ok {
				props[column] = prop
			}
		}

		page, err := t.notion.CreatePage(ctx, t.databaseID, props)
		if err != nil {
			return fmt.Errorf("AppendRows: row %d of %d: %w", i+1, len(rows), err)
		}
		log.Debug().Str("page_id", string(page.ID)).Msg("Created Notion page")
	}

	return nil
}

// queryAllNotionPages queries all pages from a Notion database and returns them.
// Handles pagination automatically.
func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: 100,
		}

		// Only set StartCursor if we have a cursor value
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}
