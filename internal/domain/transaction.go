package domain

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// TransactionRecord is one transaction as reported by the upstream provider.
// This is a domain struct, not a provider payload; the provider client maps
// its SDK types into it and the export normalizer projects it into a row.
type TransactionRecord struct {
	ID          string          // provider transaction id, unique per environment
	AccountID   string          // owning account id
	Date        civil.Date      // posted (or authorized) calendar date
	Description string          // provider name/description
	Amount      decimal.Decimal // signed, positive = money out
	Currency    string          // ISO code, or the provider's unofficial code

	Category []string // hierarchical labels, most general first; may be empty
	Merchant string   // empty when the provider has no merchant
	Pending  bool
}

// Credential identifies an item (a linked institution login) and carries the
// opaque access token the provider expects.
type Credential struct {
	ItemID      string `json:"item_id"`
	AccessToken string `json:"-"`
}

// SyncBatch is one page of the provider's change stream.
type SyncBatch struct {
	Added      []TransactionRecord
	Modified   []TransactionRecord
	Removed    []string
	HasMore    bool
	NextCursor string
}
