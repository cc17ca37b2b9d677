package ingest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dvloznov/opa-taxengine/internal/table"
	"github.com/xuri/excelize/v2"
)

// ParseXLSX reads the first worksheet of a workbook into a table. The first
// non-empty row is the header. Cells are read as stored, so number formats
// are ignored and dates arrive as serial numbers.
func ParseXLSX(name string, data []byte) (*table.Table, []ParseWarning, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("%s: opening workbook: %w", name, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("%s: %w", name, ErrEmptyFile)
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, nil, fmt.Errorf("%s: reading sheet %q: %w", name, sheets[0], err)
	}

	start := 0
	for start < len(rows) && isBlank(rows[start]) {
		start++
	}
	if start == len(rows) {
		return nil, nil, fmt.Errorf("%s: %w", name, ErrEmptyFile)
	}

	headers := make([]string, len(rows[start]))
	for i, h := range rows[start] {
		headers[i] = strings.TrimSpace(h)
	}

	t := table.New(name, headers...)
	var warnings []ParseWarning
	for i, row := range rows[start+1:] {
		if isBlank(row) {
			continue
		}
		// GetRows drops trailing empty cells, so only longer rows are suspicious.
		if len(row) > len(headers) {
			warnings = append(warnings, ParseWarning{
				Row:     start + i + 2,
				Message: fmt.Sprintf("row has %d columns, expected %d", len(row), len(headers)),
			})
		}
		t.Append(row...)
	}
	return t, warnings, nil
}
