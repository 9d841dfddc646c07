package filesink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dvloznov/finance-sync/internal/infra/tabular"
	"github.com/xuri/excelize/v2"
)

// DefaultSheet is the worksheet name used when none is configured.
const DefaultSheet = "Transactions"

// XLSXStore keeps the export table in one worksheet of an XLSX workbook.
// Other worksheets of the workbook are left alone.
type XLSXStore struct {
	path  string
	sheet string
}

// NewXLSXTarget returns an export target writing to sheet of the workbook at path.
func NewXLSXTarget(path, sheet string) *tabular.Target {
	if sheet == "" {
		sheet = DefaultSheet
	}
	return tabular.NewTarget(&XLSXStore{path: path, sheet: sheet})
}

func (s *XLSXStore) open() (*excelize.File, error) {
	f, err := excelize.OpenFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return excelize.NewFile(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", s.path, err)
	}
	return f, nil
}

// Load reads the worksheet; a missing workbook or worksheet is an empty table.
func (s *XLSXStore) Load(_ context.Context) (*tabular.Table, error) {
	f, err := s.open()
	if err != nil {
		return nil, fmt.Errorf("XLSXStore.Load: %w", err)
	}
	defer f.Close()

	idx, err := f.GetSheetIndex(s.sheet)
	if err != nil {
		return nil, fmt.Errorf("XLSXStore.Load: %w", err)
	}
	if idx < 0 {
		return &tabular.Table{}, nil
	}

	rows, err := f.GetRows(s.sheet)
	if err != nil {
		return nil, fmt.Errorf("XLSXStore.Load: read sheet %s: %w", s.sheet, err)
	}

	table := &tabular.Table{}
	if len(rows) > 0 {
		table.Header = rows[0]
		table.Rows = rows[1:]
	}
	return table, nil
}

// Save writes the table over the worksheet and replaces the workbook file
// atomically.
func (s *XLSXStore) Save(_ context.Context, table *tabular.Table) error {
	f, err := s.open()
	if err != nil {
		return fmt.Errorf("XLSXStore.Save: %w", err)
	}
	defer f.Close()

	if err := s.ensureSheet(f); err != nil {
		return fmt.Errorf("XLSXStore.Save: %w", err)
	}

	existing, err := f.GetRows(s.sheet)
	if err != nil {
		return fmt.Errorf("XLSXStore.Save: read sheet %s: %w", s.sheet, err)
	}

	if err := writeRow(f, s.sheet, 1, table.Header); err != nil {
		return fmt.Errorf("XLSXStore.Save: header: %w", err)
	}
	for i, row := range table.Rows {
		if err := writeRow(f, s.sheet, i+2, row); err != nil {
			return fmt.Errorf("XLSXStore.Save: row %d: %w", i+2, err)
		}
	}
	for r := len(existing); r > len(table.Rows)+1; r-- {
		if err := f.RemoveRow(s.sheet, r); err != nil {
			return fmt.Errorf("XLSXStore.Save: trim row %d: %w", r, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return fmt.Errorf("XLSXStore.Save: encode workbook: %w", err)
	}
	if err := writeFileAtomic(s.path, buf.Bytes()); err != nil {
		return fmt.Errorf("XLSXStore.Save: %w", err)
	}
	return nil
}

// ensureSheet creates the worksheet when missing. A new workbook's empty
// default sheet is dropped so the export sheet is the only one.
func (s *XLSXStore) ensureSheet(f *excelize.File) error {
	idx, err := f.GetSheetIndex(s.sheet)
	if err != nil {
		return err
	}
	if idx >= 0 {
		return nil
	}

	idx, err = f.NewSheet(s.sheet)
	if err != nil {
		return fmt.Errorf("create sheet %s: %w", s.sheet, err)
	}
	f.SetActiveSheet(idx)

	if rows, err := f.GetRows("Sheet1"); err == nil && len(rows) == 0 {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return fmt.Errorf("drop default sheet: %w", err)
		}
		if idx, err := f.GetSheetIndex(s.sheet); err == nil {
			f.SetActiveSheet(idx)
		}
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, rowNum int, values []string) error {
	if len(values) == 0 {
		return nil
	}
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	return f.SetSheetRow(sheet, cell, &row)
}
