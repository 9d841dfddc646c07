package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finance-sync/internal/logger"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// Target exports rows into a BigQuery table with one STRING column per
// export column. It holds a shared BigQuery client.
type Target struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	tableID   string

	mu       sync.Mutex
	schema   bigquery.Schema
	keyField string
}

// NewTarget creates a Target for projectID.datasetID.tableID.
func NewTarget(ctx context.Context, projectID, datasetID, tableID string) (*Target, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewTarget: creating client: %w", err)
	}
	return &Target{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
		tableID:   tableID,
	}, nil
}

// Close closes the BigQuery client connection.
func (t *Target) Close() error {
	if t.client != nil {
		return t.client.Close()
	}
	return nil
}

func (t *Target) table() *bigquery.Table {
	return t.client.DatasetInProject(t.projectID, t.datasetID).Table(t.tableID)
}

func (t *Target) qualifiedName() string {
	return "`" + t.projectID + "." + t.datasetID + "." + t.tableID + "`"
}

// EnsureHeaders creates the table when it does not exist yet and returns the
// header row recorded in the table schema.
func (t *Target) EnsureHeaders(ctx context.Context, headers []string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	meta, err := t.table().Metadata(ctx)
	if err == nil {
		t.schema = meta.Schema
		return headersFromSchema(meta.Schema), nil
	}
	if !isNotFound(err) {
		return nil, fmt.Errorf("EnsureHeaders: table metadata: %w", err)
	}

	schema := exportSchema(headers)
	err = t.table().Create(ctx, &bigquery.TableMetadata{
		Name:        t.tableID,
		Description: "Exported bank transactions",
		Schema:      schema,
	})
	if err != nil {
		return nil, fmt.Errorf("EnsureHeaders: create table: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("table", t.qualifiedName()).
		Int("columns", len(schema)).
		Msg("Created BigQuery export table")

	t.schema = schema
	return headersFromSchema(schema), nil
}

// ReadKeyColumn returns the distinct non-null values of column.
func (t *Target) ReadKeyColumn(ctx context.Context, column string) (map[string]bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	field := fieldName(column)
	for _, f := range t.schema {
		if f.Description == column {
			field = f.Name
		}
	}
	t.keyField = field

	q := t.client.Query(fmt.Sprintf(
		"SELECT DISTINCT %s AS key FROM %s WHERE %s IS NOT NULL",
		field, t.qualifiedName(), field,
	))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ReadKeyColumn: query read: %w", err)
	}

	keys := make(map[string]bool)
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ReadKeyColumn: iterating rows: %w", err)
		}
		if len(row) > 0 {
			if key, ok := row[0].(string); ok && key != "" {
				keys[key] = true
			}
		}
	}

	return keys, nil
}

// AppendRows streams rows into the table. Rows carry their key as insert id
// so a retried insert is deduplicated by BigQuery as well.
func (t *Target) AppendRows(ctx context.Context, rows [][]string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.schema) == 0 {
		meta, err := t.table().Metadata(ctx)
		if err != nil {
			return fmt.Errorf("AppendRows: table metadata: %w", err)
		}
		t.schema = meta.Schema
	}

	savers := make([]*bigquery.ValuesSaver, len(rows))
	for i, row := range rows {
		savers[i] = t.saver(row)
	}

	if err := t.table().Inserter().Put(ctx, savers); err != nil {
		return fmt.Errorf("AppendRows: inserting rows: %w", err)
	}
	return nil
}

func (t *Target) saver(row []string) *bigquery.ValuesSaver {
	values := make([]bigquery.Value, len(t.schema))
	var insertID string
	for i, f := range t.schema {
		if i < len(row) {
			values[i] = row[i]
			if f.Name == t.keyField {
				insertID = row[i]
			}
		}
	}
	return &bigquery.ValuesSaver{Schema: t.schema, InsertID: insertID, Row: values}
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
