package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/dvloznov/opa-taxengine/internal/table"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ParseWarning is a non-fatal issue found while reading a file.
type ParseWarning struct {
	Row     int
	Message string
}

// decodeText converts source bytes to UTF-8. A BOM selects UTF-8 or UTF-16;
// bytes that are not valid UTF-8 are read as Windows-1252, which is what
// spreadsheet exports without a BOM usually are.
func decodeText(data []byte) ([]byte, error) {
	decoded, _, err := transform.Bytes(unicode.BOMOverride(transform.Nop), data)
	if err != nil {
		return nil, fmt.Errorf("decodeText: %w", err)
	}
	if utf8.Valid(decoded) {
		return decoded, nil
	}
	decoded, _, err = transform.Bytes(charmap.Windows1252.NewDecoder(), data)
	if err != nil {
		return nil, fmt.Errorf("decodeText: windows-1252: %w", err)
	}
	return decoded, nil
}

// ParseCSV reads CSV bytes into a table. Rows with the wrong number of cells
// are padded or truncated to the header width and reported as warnings.
func ParseCSV(name string, data []byte) (*table.Table, []ParseWarning, error) {
	decoded, err := decodeText(data)
	if err != nil {
		return nil, nil, err
	}

	reader := csv.NewReader(bytes.NewReader(decoded))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, fmt.Errorf("%s: %w", name, ErrEmptyFile)
		}
		return nil, nil, fmt.Errorf("%s: reading header row: %w", name, err)
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}

	t := table.New(name, headers...)
	var warnings []ParseWarning
	rowNum := 1

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		rowNum++
		if err != nil {
			warnings = append(warnings, ParseWarning{Row: rowNum, Message: fmt.Sprintf("parse error: %v", err)})
			continue
		}
		if isBlank(row) {
			continue
		}
		if len(row) != len(headers) {
			warnings = append(warnings, ParseWarning{
				Row:     rowNum,
				Message: fmt.Sprintf("row has %d columns, expected %d", len(row), len(headers)),
			})
		}
		t.Append(row...)
	}

	return t, warnings, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
