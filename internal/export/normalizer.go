// Package export projects transaction records onto the export schema and
// appends them to a target without duplicating keys already present.
package export

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/finance-sync/internal/domain"
)

// CategorySeparator joins hierarchical category labels into one cell.
const CategorySeparator = " / "

// Normalize maps records to rows in input order. It is pure: the same input
// always yields the same output. A record missing its id, account id or date
// fails the whole batch; no partial result is returned.
func Normalize(records []domain.TransactionRecord) ([]domain.NormalizedRow, error) {
	var problems []error
	rows := make([]domain.NormalizedRow, 0, len(records))

	for i, rec := range records {
		if err := validateRecord(rec); err != nil {
			problems = append(problems, fmt.Errorf("record %d (%q): %w", i, rec.ID, err))
			continue
		}
		rows = append(rows, normalizeRecord(rec))
	}

	if len(problems) > 0 {
		return nil, domain.NewRunError(domain.KindNormalization, "Normalize", errors.Join(problems...))
	}
	return rows, nil
}

func validateRecord(rec domain.TransactionRecord) error {
	var missing []string
	if strings.TrimSpace(rec.ID) == "" {
		missing = append(missing, "transaction id")
	}
	if strings.TrimSpace(rec.AccountID) == "" {
		missing = append(missing, "account id")
	}
	if !rec.Date.IsValid() {
		missing = append(missing, "date")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func normalizeRecord(rec domain.TransactionRecord) domain.NormalizedRow {
	status := domain.StatusPosted
	if rec.Pending {
		status = domain.StatusPending
	}

	return domain.NormalizedRow{
		ID:          rec.ID,
		AccountID:   rec.AccountID,
		Date:        rec.Date,
		Description: rec.Description,
		Amount:      rec.Amount,
		Currency:    rec.Currency,
		Category:    joinCategory(rec.Category),
		Merchant:    rec.Merchant,
		Status:      status,
	}
}

func joinCategory(labels []string) string {
	parts := make([]string, 0, len(labels))
	for _, label := range labels {
		if label = strings.TrimSpace(label); label != "" {
			parts = append(parts, label)
		}
	}
	return strings.Join(parts, CategorySeparator)
}
