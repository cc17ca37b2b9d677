// Package ingest reads the engine's source datasets from CSV and XLSX files.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dvloznov/opa-taxengine/internal/logger"
	"github.com/dvloznov/opa-taxengine/internal/table"
)

var (
	// ErrSourceNotFound is returned when no file exists for a dataset.
	ErrSourceNotFound = errors.New("source not found")
	// ErrEmptyFile is returned for files without a header row.
	ErrEmptyFile = errors.New("empty file: no header row found")
	// ErrUnsupportedFormat is returned for extensions other than csv and xlsx.
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// Dataset names one of the four engine inputs.
type Dataset string

const (
	DatasetOrders     Dataset = "orders"
	DatasetTaxClass   Dataset = "tax_class"
	DatasetMachineMap Dataset = "machine_map"
	DatasetRates      Dataset = "jurisdiction_rates"
)

// Datasets lists every input in load order.
var Datasets = []Dataset{DatasetOrders, DatasetTaxClass, DatasetMachineMap, DatasetRates}

var baseNames = map[Dataset][]string{
	DatasetOrders:     {"Orders", "orders", "sample_orders"},
	DatasetTaxClass:   {"Tax_Class", "tax_class", "sample_tax_class"},
	DatasetMachineMap: {"Machine_Map", "machine_map", "sample_machine_map"},
	DatasetRates:      {"Jurisdiction_Rates", "jurisdiction_rates", "sample_jurisdiction_rates"},
}

var extensions = []string{".csv", ".xlsx"}

// Candidates lists the file names a dataset may be stored under, in the
// order they are tried.
func Candidates(ds Dataset) []string {
	var out []string
	for _, base := range baseNames[ds] {
		for _, ext := range extensions {
			out = append(out, base+ext)
		}
	}
	return out
}

// Parse decodes file bytes according to the file extension.
func Parse(name string, data []byte) (*table.Table, []ParseWarning, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return ParseCSV(name, data)
	case ".xlsx", ".xlsm":
		return ParseXLSX(name, data)
	default:
		return nil, nil, fmt.Errorf("%s: %w", name, ErrUnsupportedFormat)
	}
}

// FileSource reads datasets from a local folder.
type FileSource struct {
	Dir string
}

// NewFileSource creates a FileSource rooted at dir.
func NewFileSource(dir string) *FileSource {
	return &FileSource{Dir: dir}
}

// ReadTable loads the first candidate file that exists for ds.
func (s *FileSource) ReadTable(ctx context.Context, ds Dataset) (*table.Table, error) {
	log := logger.FromContext(ctx)

	for _, name := range Candidates(ds) {
		path := filepath.Join(s.Dir, name)
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("FileSource.ReadTable: reading %s: %w", path, err)
		}

		t, warnings, err := Parse(name, data)
		if err != nil {
			return nil, fmt.Errorf("FileSource.ReadTable: %w", err)
		}
		for _, w := range warnings {
			log.Warn().Str("file", path).Int("row", w.Row).Msg(w.Message)
		}
		log.Debug().Str("dataset", string(ds)).Str("file", path).Int("rows", t.Len()).Msg("Loaded source")
		return t, nil
	}

	return nil, fmt.Errorf("FileSource.ReadTable: %s in %s: %w", ds, s.Dir, ErrSourceNotFound)
}
