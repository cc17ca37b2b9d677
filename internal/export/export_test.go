package export

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/opa-taxengine/internal/tax"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

func sampleResult(freq tax.FilingFrequency) *tax.Result {
	window := func(y int) (civil.Date, civil.Date) {
		return civil.Date{Year: y, Month: time.January, Day: 1}, civil.Date{Year: y, Month: time.December, Day: 31}
	}
	from, to := window(2024)

	return tax.Compute(tax.Inputs{
		Transactions: []tax.RawTransaction{
			{Date: "2024-01-15", DeviceNumber: "VM-1", SKU: "SODA", NetSales: "1.50"},
			{Date: "2024-02-01", DeviceNumber: "VM-404", SKU: "SODA", NetSales: "2.00"},
		},
		TaxClasses: []tax.TaxClassMapping{{SKU: "SODA", Class: "Beverage", Taxability: "Taxable"}},
		Machines:   []tax.MachineMapping{{DeviceNumber: "VM-1", Jurisdiction: "DEN"}},
		Rates: []tax.RateComponent{
			{Jurisdiction: "DEN", Component: "State", Rate: decimal.RequireFromString("0.029"), From: from, To: to},
			{Jurisdiction: "DEN", Component: "Local", Rate: decimal.RequireFromString("0.0481"), From: from, To: to},
		},
	}, tax.Options{FilingFrequency: freq})
}

func fileByName(t *testing.T, files []File, name string) string {
	t.Helper()
	for _, f := range files {
		if f.Name == name {
			return string(f.Data)
		}
	}
	t.Fatalf("file %s not rendered", name)
	return ""
}

func TestRender(t *testing.T) {
	files, err := Render(sampleResult(tax.FilingNone))
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	if diff := cmp.Diff([]string{FactFile, SummaryFile, ValidationFile}, names); diff != "" {
		t.Errorf("rendered files mismatch (-want +got):\n%s", diff)
	}

	wantFact := "Txn_ID,Net_Sales,Jurisdiction_Code,SKU,Device_Number,Txn_Date,Tax_Local,Tax_State,Tax_Total\n" +
		"0,1.5,DEN,SODA,VM-1,2024-01-15,0.07,0.04,0.11\n" +
		"1,2,,SODA,VM-404,2024-02-01,0.00,0.00,0.00\n"
	if diff := cmp.Diff(wantFact, fileByName(t, files, FactFile)); diff != "" {
		t.Errorf("fact file mismatch (-want +got):\n%s", diff)
	}

	wantSummary := "Jurisdiction_Code,Taxable_Sales,Tax_Collected\n" +
		"DEN,1.50,0.11\n" +
		",2.00,0.00\n"
	if diff := cmp.Diff(wantSummary, fileByName(t, files, SummaryFile)); diff != "" {
		t.Errorf("summary file mismatch (-want +got):\n%s", diff)
	}

	validation := fileByName(t, files, ValidationFile)
	if !strings.Contains(validation, "Unmapped_Device,VM-404,\n") {
		t.Errorf("validation file missing unmapped device:\n%s", validation)
	}
}

func TestRender_RepeatedComputeIsByteIdentical(t *testing.T) {
	from := civil.Date{Year: 2024, Month: time.January, Day: 1}
	to := civil.Date{Year: 2024, Month: time.December, Day: 31}
	in := tax.Inputs{
		Transactions: []tax.RawTransaction{
			{Date: "2024-01-15", DeviceNumber: "VM-1", SKU: "SODA", NetSales: "1.50"},
			{Date: "2024-02-01", DeviceNumber: "VM-2", SKU: "CHIPS", NetSales: "2.25"},
			{Date: "2024-03-09", DeviceNumber: "VM-3", SKU: "WATER", NetSales: "1.00"},
			{Date: "2024-04-20", DeviceNumber: "VM-404", SKU: "GUM", NetSales: "0.75"},
			{Date: "2024-05-05", DeviceNumber: "VM-2", SKU: "SODA", NetSales: "3.10"},
		},
		TaxClasses: []tax.TaxClassMapping{
			{SKU: "SODA", Class: "Beverage", Taxability: "Taxable"},
			{SKU: "CHIPS", Class: "Snack", Taxability: "Local Only"},
			{SKU: "WATER", Class: "Grocery", Taxability: "Exempt"},
		},
		Machines: []tax.MachineMapping{
			{DeviceNumber: "VM-1", Jurisdiction: "DEN"},
			{DeviceNumber: "VM-2", Jurisdiction: "BOU"},
			{DeviceNumber: "VM-3", Jurisdiction: "AUR"},
		},
		Rates: []tax.RateComponent{
			{Jurisdiction: "DEN", Component: "State", Rate: decimal.RequireFromString("0.029"), From: from, To: to},
			{Jurisdiction: "DEN", Component: "Local", Rate: decimal.RequireFromString("0.0481"), From: from, To: to},
			{Jurisdiction: "DEN", Component: "RTD", Rate: decimal.RequireFromString("0.01"), From: from, To: to},
			{Jurisdiction: "BOU", Component: "State", Rate: decimal.RequireFromString("0.029"), From: from, To: to},
			{Jurisdiction: "BOU", Component: "Local", Rate: decimal.RequireFromString("0.0386"), From: from, To: to},
			{Jurisdiction: "AUR", Component: "County", Rate: decimal.RequireFromString("0.0025"), From: from, To: to},
		},
	}

	for _, mode := range []tax.Mode{tax.ModeComponents, tax.ModeCombined} {
		opts := tax.Options{Mode: mode, FilingFrequency: tax.FilingMonthly, Location: time.UTC}
		first, err := Render(tax.Compute(in, opts))
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		for i := 0; i < 10; i++ {
			again, err := Render(tax.Compute(in, opts))
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			if len(again) != len(first) {
				t.Fatalf("mode %v: rendered %d files, want %d", mode, len(again), len(first))
			}
			for j := range first {
				if again[j].Name != first[j].Name || !bytes.Equal(again[j].Data, first[j].Data) {
					t.Errorf("mode %v: %s differs between runs:\n%s\n---\n%s", mode, first[j].Name, first[j].Data, again[j].Data)
				}
			}
		}
	}
}

func TestRender_PeriodSummary(t *testing.T) {
	files, err := Render(sampleResult(tax.FilingQuarterly))
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	got := fileByName(t, files, PeriodSummaryFile)
	if !strings.HasPrefix(got, "Jurisdiction_Code,Period,Taxable_Sales,Tax_Collected\nDEN,2024-Q1,1.50,0.11\n") {
		t.Errorf("period summary = %q", got)
	}
}

// MockSink is a mock implementation of FileSink for testing.
type MockSink struct {
	WriteFileFunc func(ctx context.Context, name string, data []byte) error
}

func (m *MockSink) WriteFile(ctx context.Context, name string, data []byte) error {
	if m.WriteFileFunc != nil {
		return m.WriteFileFunc(ctx, name, data)
	}
	return nil
}

func TestResultWriter_WriteResult(t *testing.T) {
	var written []string
	sink := &MockSink{
		WriteFileFunc: func(ctx context.Context, name string, data []byte) error {
			written = append(written, name)
			return nil
		},
	}

	if err := NewResultWriter(sink).WriteResult(context.Background(), "run-1", sampleResult(tax.FilingMonthly)); err != nil {
		t.Fatalf("WriteResult() error = %v", err)
	}
	if len(written) != 4 {
		t.Errorf("wrote %d files, want 4: %v", len(written), written)
	}
}

func TestResultWriter_SinkError(t *testing.T) {
	boom := errors.New("disk full")
	sink := &MockSink{
		WriteFileFunc: func(ctx context.Context, name string, data []byte) error { return boom },
	}

	err := NewResultWriter(sink).WriteResult(context.Background(), "run-1", sampleResult(tax.FilingNone))
	if !errors.Is(err, boom) {
		t.Errorf("WriteResult() error = %v, want %v", err, boom)
	}
}

func TestDirSink_WriteFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")

	if err := (DirSink{Dir: dir}).WriteFile(context.Background(), SummaryFile, []byte("a,b\n")); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, SummaryFile))
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if string(got) != "a,b\n" {
		t.Errorf("file contents = %q, want %q", got, "a,b\n")
	}
}
