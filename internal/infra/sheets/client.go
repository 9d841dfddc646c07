package sheets

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// valuesAPI is the slice of the Sheets values API the target uses.
type valuesAPI interface {
	Get(ctx context.Context, spreadsheetID, rng string) (*sheetsapi.ValueRange, error)
	Update(ctx context.Context, spreadsheetID, rng string, values *sheetsapi.ValueRange) error
	Append(ctx context.Context, spreadsheetID, rng string, values *sheetsapi.ValueRange) error
}

// serviceValues is the concrete implementation of valuesAPI.
type serviceValues struct {
	svc *sheetsapi.Service
}

func newServiceValues(ctx context.Context, opts ...option.ClientOption) (*serviceValues, error) {
	opts = append([]option.ClientOption{option.WithScopes(sheetsapi.SpreadsheetsScope)}, opts...)
	svc, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("newServiceValues: %w", err)
	}
	return &serviceValues{svc: svc}, nil
}

func (s *serviceValues) Get(ctx context.Context, spreadsheetID, rng string) (*sheetsapi.ValueRange, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("Get %s: %w", rng, err)
	}
	return resp, nil
}

func (s *serviceValues) Update(ctx context.Context, spreadsheetID, rng string, values *sheetsapi.ValueRange) error {
	_, err := s.svc.Spreadsheets.Values.Update(spreadsheetID, rng, values).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("Update %s: %w", rng, err)
	}
	return nil
}

func (s *serviceValues) Append(ctx context.Context, spreadsheetID, rng string, values *sheetsapi.ValueRange) error {
	_, err := s.svc.Spreadsheets.Values.Append(spreadsheetID, rng, values).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("Append %s: %w", rng, err)
	}
	return nil
}
