package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/opa-taxengine/internal/tax"
)

// File names inside the configuration folder.
const (
	ParametersFile = "Parameters.json"
	ColumnMapFile  = "Column_Map.csv"
)

// ParameterFields are the fields Parameters.json is expected to carry.
var ParameterFields = []string{"Imports_Folder_Path", "Filing_Frequency", "Allow_ZIP_Fallback", "Timezone"}

// Parameters mirrors Parameters.json.
type Parameters struct {
	ImportsFolderPath string   `json:"Imports_Folder_Path"`
	FilingFrequency   string   `json:"Filing_Frequency"`
	AllowZIPFallback  FlexBool `json:"Allow_ZIP_Fallback"`
	Timezone          string   `json:"Timezone"`
}

// FlexBool decodes JSON booleans as well as the "TRUE"/"yes"/1 spellings
// spreadsheet users put in Parameters.json.
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	switch strings.ToLower(s) {
	case "", "null":
		*b = false
		return nil
	case "yes", "y":
		*b = true
		return nil
	case "no", "n":
		*b = false
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid boolean %s", data)
	}
	*b = FlexBool(v)
	return nil
}

// LoadParameters reads dir/Parameters.json. A missing file yields the zero
// Parameters and an error wrapping fs.ErrNotExist.
func LoadParameters(dir string) (*Parameters, error) {
	path := filepath.Join(dir, ParametersFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return &Parameters{}, fmt.Errorf("LoadParameters: %w", err)
	}

	var p Parameters
	if err := json.Unmarshal(data, &p); err != nil {
		return &Parameters{}, fmt.Errorf("LoadParameters: invalid JSON in %s: %w", path, err)
	}
	return &p, nil
}

// LoadParametersOrDefault is LoadParameters with a missing file treated as
// all defaults.
func LoadParametersOrDefault(dir string) (*Parameters, error) {
	p, err := LoadParameters(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return p, nil
	}
	return p, err
}

// Frequency parses Filing_Frequency.
func (p *Parameters) Frequency() (tax.FilingFrequency, error) {
	return tax.ParseFilingFrequency(p.FilingFrequency)
}

// Location loads Timezone. An empty timezone means UTC.
func (p *Parameters) Location() (*time.Location, error) {
	if strings.TrimSpace(p.Timezone) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(strings.TrimSpace(p.Timezone))
	if err != nil {
		return nil, fmt.Errorf("invalid Timezone %q: %w", p.Timezone, err)
	}
	return loc, nil
}
