package providertest

import (
	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-sync/internal/domain"
	"github.com/shopspring/decimal"
)

// Record returns a complete, valid posted transaction with the given id.
func Record(id string) domain.TransactionRecord {
	return domain.TransactionRecord{
		ID:          id,
		AccountID:   "acc-1",
		Date:        civil.Date{Year: 2024, Month: 1, Day: 15},
		Description: "Transaction " + id,
		Amount:      decimal.RequireFromString("12.34"),
		Currency:    "USD",
		Category:    []string{"Shops"},
		Merchant:    "Merchant",
	}
}
