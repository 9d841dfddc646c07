// Package sheets exports transactions to a tab of a Google Sheets spreadsheet.
package sheets

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// Target appends export rows to one tab of a spreadsheet.
type Target struct {
	values        valuesAPI
	spreadsheetID string
	sheetName     string
}

// NewTarget creates a Target using Application Default Credentials unless
// opts say otherwise (e.g. option.WithCredentialsFile).
func NewTarget(ctx context.Context, spreadsheetID, sheetName string, opts ...option.ClientOption) (*Target, error) {
	values, err := newServiceValues(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewTarget: %w", err)
	}
	return &Target{values: values, spreadsheetID: spreadsheetID, sheetName: sheetName}, nil
}

// a1 builds an A1 range on the target's tab.
func (t *Target) a1(rng string) string {
	return "'" + strings.ReplaceAll(t.sheetName, "'", "''") + "'!" + rng
}

func (t *Target) headerRow(ctx context.Context) ([]string, error) {
	resp, err := t.values.Get(ctx, t.spreadsheetID, t.a1("1:1"))
	if err != nil {
		return nil, err
	}
	if len(resp.Values) == 0 {
		return nil, nil
	}
	return cellsToStrings(resp.Values[0]), nil
}

func (t *Target) EnsureHeaders(ctx context.Context, headers []string) ([]string, error) {
	existing, err := t.headerRow(ctx)
	if err != nil {
		return nil, fmt.Errorf("EnsureHeaders: %w", err)
	}
	if len(existing) > 0 {
		return existing, nil
	}

	row := make([]interface{}, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	err = t.values.Update(ctx, t.spreadsheetID, t.a1("A1"), &sheetsapi.ValueRange{
		Values: [][]interface{}{row},
	})
	if err != nil {
		return nil, fmt.Errorf("EnsureHeaders: %w", err)
	}
	return slices.Clone(headers), nil
}

func (t *Target) ReadKeyColumn(ctx context.Context, column string) (map[string]bool, error) {
	header, err := t.headerRow(ctx)
	if err != nil {
		return nil, fmt.Errorf("ReadKeyColumn: %w", err)
	}

	keys := make(map[string]bool)
	idx := slices.Index(header, column)
	if idx < 0 {
		return keys, nil
	}

	letter := columnLetter(idx)
	resp, err := t.values.Get(ctx, t.spreadsheetID, t.a1(fmt.Sprintf("%s2:%s", letter, letter)))
	if err != nil {
		return nil, fmt.Errorf("ReadKeyColumn: %w", err)
	}
	for _, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if key := cellString(row[0]); key != "" {
			keys[key] = true
		}
	}
	return keys, nil
}

func (t *Target) AppendRows(ctx context.Context, rows [][]string) error {
	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cells[j] = v
		}
		values[i] = cells
	}

	err := t.values.Append(ctx, t.spreadsheetID, t.a1("A1"), &sheetsapi.ValueRange{Values: values})
	if err != nil {
		return fmt.Errorf("AppendRows: %w", err)
	}
	return nil
}

// columnLetter converts a zero-based column index to its A1 letters:
// 0 → A, 25 → Z, 26 → AA.
func columnLetter(idx int) string {
	var letters []byte
	for n := idx + 1; n > 0; n = (n - 1) / 26 {
		letters = append([]byte{byte('A' + (n-1)%26)}, letters...)
	}
	return string(letters)
}

func cellsToStrings(cells []interface{}) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = cellString(c)
	}
	return out
}

func cellString(cell interface{}) string {
	if cell == nil {
		return ""
	}
	if s, ok := cell.(string); ok {
		return s
	}
	return fmt.Sprint(cell)
}
