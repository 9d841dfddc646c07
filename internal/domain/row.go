package domain

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// RowStatus is the two-valued settlement state of an exported row.
type RowStatus string

const (
	StatusPending RowStatus = "pending"
	StatusPosted  RowStatus = "posted"
)

// Column names of the export schema, in header order.
const (
	ColumnDate          = "Date"
	ColumnDescription   = "Description"
	ColumnAmount        = "Amount"
	ColumnCategory      = "Category"
	ColumnMerchant      = "Merchant"
	ColumnStatus        = "Status"
	ColumnCurrency      = "Currency"
	ColumnAccountID     = "Account ID"
	ColumnTransactionID = "Transaction ID"
)

// NormalizedRow is the export-ready projection of a TransactionRecord.
type NormalizedRow struct {
	ID          string
	AccountID   string
	Date        civil.Date
	Description string
	Amount      decimal.Decimal
	Currency    string
	Category    string
	Merchant    string
	Status      RowStatus
}

// Schema is an ordered column list plus the column holding the dedup key.
type Schema struct {
	Columns   []string
	KeyColumn string
}

// TransactionSchema is the schema every export target is written with.
var TransactionSchema = Schema{
	Columns: []string{
		ColumnDate,
		ColumnDescription,
		ColumnAmount,
		ColumnCategory,
		ColumnMerchant,
		ColumnStatus,
		ColumnCurrency,
		ColumnAccountID,
		ColumnTransactionID,
	},
	KeyColumn: ColumnTransactionID,
}

// Value returns the cell value for the named column, and false for a column
// the row does not know about.
func (r NormalizedRow) Value(column string) (string, bool) {
	switch column {
	case ColumnDate:
		return r.Date.String(), true
	case ColumnDescription:
		return r.Description, true
	case ColumnAmount:
		return r.Amount.String(), true
	case ColumnCategory:
		return r.Category, true
	case ColumnMerchant:
		return r.Merchant, true
	case ColumnStatus:
		return string(r.Status), true
	case ColumnCurrency:
		return r.Currency, true
	case ColumnAccountID:
		return r.AccountID, true
	case ColumnTransactionID:
		return r.ID, true
	}
	return "", false
}
