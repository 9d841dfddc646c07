package bigquery

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finance-sync/internal/domain"
	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
)

func TestFieldName(t *testing.T) {
	tests := map[string]string{
		"Transaction ID": "transaction_id",
		"Date":           "date",
		"Account  ID ":   "account_id",
		"Amount (USD)":   "amount_usd",
	}
	for in, want := range tests {
		assert.Equal(t, want, fieldName(in), in)
	}
}

func TestSchemaRoundTrip(t *testing.T) {
	schema := exportSchema(domain.TransactionSchema.Columns)

	assert.Len(t, schema, len(domain.TransactionSchema.Columns))
	for _, f := range schema {
		assert.Equal(t, bigquery.StringFieldType, f.Type)
	}
	assert.Equal(t, domain.TransactionSchema.Columns, headersFromSchema(schema))
}

func TestHeadersFromSchema_HandMadeField(t *testing.T) {
	schema := bigquery.Schema{{Name: "notes", Type: bigquery.StringFieldType}}
	assert.Equal(t, []string{"notes"}, headersFromSchema(schema))
}

func TestSaverUsesKeyAsInsertID(t *testing.T) {
	target := &Target{schema: exportSchema(domain.TransactionSchema.Columns), keyField: "transaction_id"}
	row := []string{"2024-01-01", "Coffee", "4.5", "", "", "posted", "USD", "acc-1", "tx-1"}

	saver := target.saver(row)

	assert.Equal(t, "tx-1", saver.InsertID)
	assert.Len(t, saver.Row, 9)
	assert.Equal(t, bigquery.Value("Coffee"), saver.Row[1])
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(fmt.Errorf("wrapped: %w", &googleapi.Error{Code: http.StatusNotFound})))
	assert.False(t, isNotFound(&googleapi.Error{Code: http.StatusForbidden}))
	assert.False(t, isNotFound(errors.New("plain")))
}
