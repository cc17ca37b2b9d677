package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dvloznov/opa-taxengine/internal/ingest"
	"github.com/dvloznov/opa-taxengine/internal/schema"
	"github.com/dvloznov/opa-taxengine/internal/table"
)

// Column_Map.csv headers.
const (
	colRawHeader    = "Raw_Header"
	colTargetHeader = "Target_Header"
)

// ColumnMap holds the extra header aliases from Column_Map.csv.
type ColumnMap struct {
	Aliases []schema.Alias
}

// LoadColumnMap reads dir/Column_Map.csv. Rows with an empty cell are skipped.
func LoadColumnMap(dir string) (*ColumnMap, error) {
	t, err := readColumnMap(dir)
	if err != nil {
		return nil, fmt.Errorf("LoadColumnMap: %w", err)
	}
	if !t.Has(colRawHeader) || !t.Has(colTargetHeader) {
		return nil, fmt.Errorf("LoadColumnMap: %s needs %s and %s headers", ColumnMapFile, colRawHeader, colTargetHeader)
	}

	raw, target := t.Column(colRawHeader), t.Column(colTargetHeader)
	cm := &ColumnMap{}
	for i := 0; i < t.Len(); i++ {
		from, to := strings.TrimSpace(raw(i)), strings.TrimSpace(target(i))
		if from == "" || to == "" {
			continue
		}
		cm.Aliases = append(cm.Aliases, schema.Alias{From: from, To: to})
	}
	return cm, nil
}

func readColumnMap(dir string) (*table.Table, error) {
	data, err := os.ReadFile(filepath.Join(dir, ColumnMapFile))
	if err != nil {
		return nil, err
	}
	t, _, err := ingest.ParseCSV(ColumnMapFile, data)
	return t, err
}

// AliasSets returns the built-in alias tables of every dataset extended
// with the column map.
func (cm *ColumnMap) AliasSets() map[ingest.Dataset]schema.AliasSet {
	var extra []schema.Alias
	if cm != nil {
		extra = cm.Aliases
	}
	return map[ingest.Dataset]schema.AliasSet{
		ingest.DatasetOrders:     schema.TransactionAliases.Extend(extra),
		ingest.DatasetTaxClass:   schema.TaxClassAliases.Extend(extra),
		ingest.DatasetMachineMap: schema.MachineAliases.Extend(extra),
		ingest.DatasetRates:      schema.RateAliases.Extend(extra),
	}
}
