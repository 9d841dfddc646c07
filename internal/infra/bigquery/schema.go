package bigquery

import (
	"strings"
	"unicode"

	"cloud.google.com/go/bigquery"
)

// fieldName turns an export column name into a BigQuery column name:
// "Transaction ID" → "transaction_id".
func fieldName(column string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range column {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// exportSchema builds an all-STRING table schema for headers. The original
// column name is kept in the field description so the header row can be
// recovered from the table metadata.
func exportSchema(headers []string) bigquery.Schema {
	schema := make(bigquery.Schema, len(headers))
	for i, h := range headers {
		schema[i] = &bigquery.FieldSchema{
			Name:        fieldName(h),
			Description: h,
			Type:        bigquery.StringFieldType,
		}
	}
	return schema
}

// headersFromSchema is the inverse of exportSchema. Fields created by hand
// without a description contribute their name.
func headersFromSchema(schema bigquery.Schema) []string {
	headers := make([]string, len(schema))
	for i, f := range schema {
		headers[i] = f.Name
		if f.Description != "" {
			headers[i] = f.Description
		}
	}
	return headers
}
