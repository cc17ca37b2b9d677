package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dvloznov/opa-taxengine/internal/schema"
)

// Report is the outcome of validating a configuration folder. Errors make
// the configuration unusable; warnings do not.
type Report struct {
	Checks   []string `json:"checks"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// OK reports whether no errors were found.
func (r *Report) OK() bool {
	return len(r.Errors) == 0
}

func (r *Report) check(format string, args ...any) {
	r.Checks = append(r.Checks, fmt.Sprintf(format, args...))
}

func (r *Report) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Report) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validate checks Parameters.json and Column_Map.csv inside dir.
func Validate(dir string) *Report {
	r := &Report{}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		r.errorf("Config directory not found: %s", dir)
		return r
	}

	validateParameters(r, dir)
	validateColumnMap(r, dir)
	return r
}

func validateParameters(r *Report, dir string) {
	path := filepath.Join(dir, ParametersFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		r.errorf("Missing file: %s", path)
		return
	}
	if err != nil {
		r.errorf("Error reading %s: %v", ParametersFile, err)
		return
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		r.errorf("Invalid JSON in %s: %v", ParametersFile, err)
		return
	}
	r.check("%s: valid JSON syntax", ParametersFile)

	for _, f := range ParameterFields {
		if v, ok := fields[f]; ok {
			r.check("%s: field '%s' present: %s", ParametersFile, f, v)
		} else {
			r.warnf("Expected field '%s' not found in %s", f, ParametersFile)
		}
	}

	var p Parameters
	if err := json.Unmarshal(data, &p); err != nil {
		r.errorf("%s: %v", ParametersFile, err)
		return
	}
	if _, err := p.Frequency(); err != nil {
		r.errorf("%s: %v", ParametersFile, err)
	}
	if _, err := p.Location(); err != nil {
		r.errorf("%s: %v", ParametersFile, err)
	}
	if p.ImportsFolderPath != "" {
		if info, err := os.Stat(p.ImportsFolderPath); err != nil || !info.IsDir() {
			r.warnf("Imports_Folder_Path %q is not a readable folder", p.ImportsFolderPath)
		}
	}
}

func validateColumnMap(r *Report, dir string) {
	t, err := readColumnMap(dir)
	if errors.Is(err, fs.ErrNotExist) {
		r.errorf("Missing file: %s", filepath.Join(dir, ColumnMapFile))
		return
	}
	if err != nil {
		r.errorf("Error reading %s: %v", ColumnMapFile, err)
		return
	}

	r.check("%s: headers: %s", ColumnMapFile, strings.Join(t.Columns, ", "))
	for _, h := range []string{colRawHeader, colTargetHeader} {
		if !t.Has(h) {
			r.errorf("Missing expected header '%s' in %s", h, ColumnMapFile)
		}
	}
	r.check("%s: contains %d mapping(s)", ColumnMapFile, t.Len())

	for i, row := range t.Rows {
		for j, h := range t.Columns {
			if strings.TrimSpace(row[j]) == "" {
				r.warnf("Empty value in row %d, column '%s'", i+1, h)
			}
		}
	}

	if !t.Has(colTargetHeader) {
		return
	}
	target := t.Column(colTargetHeader)
	for i := 0; i < t.Len(); i++ {
		to := strings.TrimSpace(target(i))
		if to != "" && !isCanonical(to) {
			r.warnf("Row %d: target '%s' is not a known column and will be ignored", i+1, to)
		}
	}
}

func isCanonical(col string) bool {
	for _, set := range []schema.AliasSet{
		schema.TransactionAliases,
		schema.TaxClassAliases,
		schema.MachineAliases,
		schema.RateAliases,
	} {
		if set.HasTarget(col) {
			return true
		}
	}
	return false
}
