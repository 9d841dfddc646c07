package notionsync

import (
	"context"

	"github.com/jomei/notionapi"
)

// NotionService defines the interface for interacting with Notion API.
// This interface enables mocking and testing of Notion operations.
type NotionService interface {
	// GetDatabase returns a database with its property configuration.
	GetDatabase(ctx context.Context, databaseID string) (*notionapi.Database, error)

	// AddDatabaseProperties adds property columns to a database.
	AddDatabaseProperties(ctx context.Context, databaseID string, properties notionapi.PropertyConfigs) error

	// CreatePage creates a new page in a Notion database with the given properties.
	CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)

	// QueryDatabase queries a Notion database with the given filter.
	QueryDatabase(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}
