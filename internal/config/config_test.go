package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/opa-taxengine/internal/ingest"
	"github.com/dvloznov/opa-taxengine/internal/schema"
	"github.com/dvloznov/opa-taxengine/internal/tax"
	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadEnv_Defaults(t *testing.T) {
	e, err := LoadEnv()
	if err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if e.Output != "exports" || e.ConfigDir != "config" {
		t.Errorf("defaults = (%q, %q), want (exports, config)", e.Output, e.ConfigDir)
	}
	if e.StatePortion.String() != "0.029" {
		t.Errorf("StatePortion = %s, want 0.029", e.StatePortion)
	}
	if e.Timeout != 5*time.Minute {
		t.Errorf("Timeout = %v, want 5m", e.Timeout)
	}
	if m, _ := e.Mode(); m != tax.ModeComponents {
		t.Errorf("Mode() = %v, want components", m)
	}
	if e.Workers != 2 || e.MaxRetries != 0 {
		t.Errorf("Workers, MaxRetries = %d, %d, want 2, 0", e.Workers, e.MaxRetries)
	}
}

func TestLoadEnv_Overrides(t *testing.T) {
	t.Setenv("TAX_RATE_MODE", "combined")
	t.Setenv("TAX_STATE_PORTION", "0.03")
	t.Setenv("TAX_RECORD_RUNS", "true")
	t.Setenv("TAX_SOURCE", "gs://bucket/in")

	e, err := LoadEnv()
	if err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if m, _ := e.Mode(); m != tax.ModeCombined {
		t.Errorf("Mode() = %v, want combined", m)
	}
	if e.StatePortion.String() != "0.03" || !e.RecordRuns || e.Source != "gs://bucket/in" {
		t.Errorf("env = %+v", e)
	}
}

func TestLoadEnv_InvalidMode(t *testing.T) {
	t.Setenv("TAX_RATE_MODE", "blended")

	_, err := LoadEnv()
	if !errors.Is(err, ErrInvalidMode) {
		t.Errorf("LoadEnv() error = %v, want ErrInvalidMode", err)
	}
}

func TestLoadEnv_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("TAX_LOG_FORMAT=json\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("TAX_LOG_FORMAT") })

	e, err := LoadEnv(path)
	if err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if e.LogOptions().Format != "json" {
		t.Errorf("LogOptions().Format = %q, want json", e.LogOptions().Format)
	}
}

func TestFlexBool(t *testing.T) {
	tests := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{`true`, true, false},
		{`"TRUE"`, true, false},
		{`"yes"`, true, false},
		{`0`, false, false},
		{`"False"`, false, false},
		{`null`, false, false},
		{`"maybe"`, false, true},
	}
	for _, tt := range tests {
		var b FlexBool
		err := json.Unmarshal([]byte(tt.in), &b)
		if (err != nil) != tt.wantErr {
			t.Errorf("Unmarshal(%s) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if bool(b) != tt.want {
			t.Errorf("Unmarshal(%s) = %v, want %v", tt.in, b, tt.want)
		}
	}
}

func TestLoadParameters(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ParametersFile, `{
		"Imports_Folder_Path": "data/imports",
		"Filing_Frequency": "Quarterly",
		"Allow_ZIP_Fallback": "TRUE",
		"Timezone": "America/Denver"
	}`)

	p, err := LoadParameters(dir)
	if err != nil {
		t.Fatalf("LoadParameters() error = %v", err)
	}
	if p.ImportsFolderPath != "data/imports" || !bool(p.AllowZIPFallback) {
		t.Errorf("parameters = %+v", p)
	}
	if f, err := p.Frequency(); err != nil || f != tax.FilingQuarterly {
		t.Errorf("Frequency() = (%v, %v), want quarterly", f, err)
	}
	if loc, err := p.Location(); err != nil || loc.String() != "America/Denver" {
		t.Errorf("Location() = (%v, %v)", loc, err)
	}
}

func TestLoadParametersOrDefault_Missing(t *testing.T) {
	p, err := LoadParametersOrDefault(t.TempDir())
	if err != nil {
		t.Fatalf("LoadParametersOrDefault() error = %v", err)
	}
	if loc, _ := p.Location(); loc != time.UTC {
		t.Errorf("default Location() = %v, want UTC", loc)
	}
}

func TestLoadColumnMap(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ColumnMapFile, "Raw_Header,Target_Header\nSold_At,Txn_Date\n,Device_Number\nMuni,Jurisdiction_Code\n")

	cm, err := LoadColumnMap(dir)
	if err != nil {
		t.Fatalf("LoadColumnMap() error = %v", err)
	}
	want := []schema.Alias{{From: "Sold_At", To: "Txn_Date"}, {From: "Muni", To: "Jurisdiction_Code"}}
	if diff := cmp.Diff(want, cm.Aliases); diff != "" {
		t.Errorf("Aliases mismatch (-want +got):\n%s", diff)
	}

	sets := cm.AliasSets()
	if !sets[ingest.DatasetRates].HasTarget(schema.ColJurisdiction) {
		t.Error("rate aliases lost their built-in targets")
	}
	orders := sets[ingest.DatasetOrders]
	if orders[len(orders)-1].From != "Sold_At" {
		t.Errorf("order aliases not extended: %v", orders[len(orders)-1])
	}
}

func TestLoadColumnMap_BadHeaders(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ColumnMapFile, "From,To\nA,B\n")

	if _, err := LoadColumnMap(dir); err == nil {
		t.Error("LoadColumnMap() expected error for wrong headers")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name         string
		params       string
		columnMap    string
		wantOK       bool
		wantErrors   []string
		wantWarnings []string
	}{
		{
			name:      "valid",
			params:    `{"Imports_Folder_Path": "", "Filing_Frequency": "Monthly", "Allow_ZIP_Fallback": false, "Timezone": "UTC"}`,
			columnMap: "Raw_Header,Target_Header\nTimestamp,Txn_Date\n",
			wantOK:    true,
		},
		{
			name:       "invalid json",
			params:     `{"Filing_Frequency": `,
			columnMap:  "Raw_Header,Target_Header\n",
			wantErrors: []string{"Invalid JSON"},
		},
		{
			name:         "missing fields and empty cells",
			params:       `{"Filing_Frequency": "Annual"}`,
			columnMap:    "Raw_Header,Target_Header\nTimestamp,\n",
			wantOK:       true,
			wantWarnings: []string{"Imports_Folder_Path", "Allow_ZIP_Fallback", "Timezone", "Empty value in row 1, column 'Target_Header'"},
		},
		{
			name:       "bad values",
			params:     `{"Filing_Frequency": "Weekly", "Timezone": "Mars/Olympus"}`,
			columnMap:  "Raw_Header\nTimestamp\n",
			wantErrors: []string{"filing frequency", "Timezone", "Missing expected header 'Target_Header'"},
		},
		{
			name:         "unknown target",
			params:       `{}`,
			columnMap:    "Raw_Header,Target_Header\nFoo,Bar\n",
			wantOK:       true,
			wantWarnings: []string{"'Bar' is not a known column"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, ParametersFile, tt.params)
			writeFile(t, dir, ColumnMapFile, tt.columnMap)

			r := Validate(dir)
			if r.OK() != tt.wantOK {
				t.Errorf("OK() = %v, want %v (errors: %v)", r.OK(), tt.wantOK, r.Errors)
			}
			for _, want := range tt.wantErrors {
				if !containsAny(r.Errors, want) {
					t.Errorf("errors %v missing %q", r.Errors, want)
				}
			}
			for _, want := range tt.wantWarnings {
				if !containsAny(r.Warnings, want) {
					t.Errorf("warnings %v missing %q", r.Warnings, want)
				}
			}
		})
	}
}

func TestValidate_MissingDir(t *testing.T) {
	r := Validate(filepath.Join(t.TempDir(), "nope"))
	if r.OK() || !containsAny(r.Errors, "Config directory not found") {
		t.Errorf("Validate() errors = %v", r.Errors)
	}
}

func TestValidate_MissingFiles(t *testing.T) {
	r := Validate(t.TempDir())
	if len(r.Errors) != 2 {
		t.Errorf("Validate() errors = %v, want two missing files", r.Errors)
	}
}

func containsAny(list []string, substr string) bool {
	for _, s := range list {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}
