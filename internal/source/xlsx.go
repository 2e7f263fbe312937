// Package source reads the tabular inputs of a batch: XLSX invoice models and
// provider CSV exports. It locates headers dynamically instead of relying on
// hard-coded row numbers.
package source

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ReadSheetRows returns every row of the workbook's first sheet as cell
// slices. Trailing empty cells are absent, matching excelize behavior;
// callers index defensively.
func ReadSheetRows(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("ReadSheetRows: opening %q: %w", path, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("ReadSheetRows: %q has no sheets", path)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("ReadSheetRows: reading sheet %q: %w", sheet, err)
	}
	return rows, nil
}

// LocateHeaderRow returns the index of the first row whose first cell equals
// label. ok is false when no row matches; for batch inputs that is a
// configuration error, decided by the caller.
func LocateHeaderRow(rows [][]string, label string) (int, bool) {
	for idx, row := range rows {
		if len(row) > 0 && strings.TrimSpace(row[0]) == label {
			return idx, true
		}
	}
	return -1, false
}

// FindHeaderCell scans all cells for the first one equal to label and returns
// its (row, column) position.
func FindHeaderCell(rows [][]string, label string) (int, int, bool) {
	for rowIdx, row := range rows {
		for colIdx, cell := range row {
			if strings.TrimSpace(cell) == label {
				return rowIdx, colIdx, true
			}
		}
	}
	return -1, -1, false
}

// Cell returns the trimmed cell at col, or "" when the row is shorter.
func Cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}
