package bigquery

import (
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/opa-taxengine/internal/tax"
	"github.com/shopspring/decimal"
	"google.golang.org/api/googleapi"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri         string
		wantProject string
		wantDataset string
		wantErr     bool
	}{
		{uri: "bq://my-project/sales_tax", wantProject: "my-project", wantDataset: "sales_tax"},
		{uri: "bq://my-project/sales_tax/", wantProject: "my-project", wantDataset: "sales_tax"},
		{uri: "bq://my-project", wantErr: true},
		{uri: "bq://my-project/a/b", wantErr: true},
		{uri: "gs://bucket/x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			project, dataset, err := ParseURI(tt.uri)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidURI) {
					t.Errorf("ParseURI() error = %v, want ErrInvalidURI", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseURI() unexpected error: %v", err)
			}
			if project != tt.wantProject || dataset != tt.wantDataset {
				t.Errorf("ParseURI() = (%q, %q), want (%q, %q)", project, dataset, tt.wantProject, tt.wantDataset)
			}
		})
	}
}

func TestValueString(t *testing.T) {
	tests := []struct {
		name string
		in   bigquery.Value
		want string
	}{
		{"nil", nil, ""},
		{"string", "VM-1", "VM-1"},
		{"int", int64(80202), "80202"},
		{"float", 0.029, "0.029"},
		{"numeric", big.NewRat(481, 10000), "0.0481"},
		{"numeric integer", big.NewRat(3, 1), "3"},
		{"date", civil.Date{Year: 2024, Month: time.March, Day: 9}, "2024-03-09"},
		{"bool", true, "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := valueString(tt.in); got != tt.want {
				t.Errorf("valueString(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"api 404", fmt.Errorf("wrapped: %w", &googleapi.Error{Code: http.StatusNotFound}), true},
		{"api 403", &googleapi.Error{Code: http.StatusForbidden}, false},
		{"job notFound", &bigquery.Error{Reason: "notFound"}, true},
		{"other", errors.New("boom"), false},
	}
	for _, tt := range tests {
		if got := isNotFound(tt.err); got != tt.want {
			t.Errorf("isNotFound(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestToFactRows(t *testing.T) {
	facts := &tax.FactTable{
		Columns: []string{"Tax_Local", "Tax_State"},
		Rows: []tax.FactRow{
			{
				TxnID:        0,
				NetSales:     decimal.RequireFromString("1.50"),
				Jurisdiction: "DEN",
				SKU:          "SODA",
				DeviceNumber: "VM-1",
				Date:         civil.Date{Year: 2024, Month: time.January, Day: 15},
				Components: map[string]decimal.Decimal{
					"Tax_Local": decimal.RequireFromString("0.07"),
					"Tax_State": decimal.RequireFromString("0.04"),
				},
				Total: decimal.RequireFromString("0.11"),
			},
			{TxnID: 1, NetSales: decimal.Zero, Total: decimal.Zero},
		},
	}

	created := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)
	rows := toFactRows("run-1", facts, created)
	if len(rows) != 2 {
		t.Fatalf("toFactRows() returned %d rows, want 2", len(rows))
	}

	first := rows[0]
	if !first.TxnDate.Valid || first.TxnDate.Date.Day != 15 {
		t.Errorf("TxnDate = %+v, want valid 2024-01-15", first.TxnDate)
	}
	if len(first.Components) != 2 || first.Components[0].Column != "Tax_Local" {
		t.Errorf("Components = %+v", first.Components)
	}
	if first.TaxTotal.Cmp(big.NewRat(11, 100)) != 0 {
		t.Errorf("TaxTotal = %s, want 11/100", first.TaxTotal)
	}

	if first.Jurisdiction != (bigquery.NullString{StringVal: "DEN", Valid: true}) {
		t.Errorf("Jurisdiction = %+v, want DEN", first.Jurisdiction)
	}

	second := rows[1]
	if second.TxnDate.Valid {
		t.Error("invalid transaction date should be stored as NULL")
	}
	if second.Jurisdiction.Valid {
		t.Errorf("unresolved jurisdiction = %+v, want NULL", second.Jurisdiction)
	}
	if len(second.Components) != 0 {
		t.Errorf("unmatched transaction has components %+v", second.Components)
	}
	if second.RunID != "run-1" || !second.CreatedTS.Equal(created) {
		t.Errorf("row metadata = (%q, %v)", second.RunID, second.CreatedTS)
	}
}

func TestToSummaryRows(t *testing.T) {
	overall, byPeriod := toSummaryRows("run-1",
		[]tax.SummaryRow{
			{Jurisdiction: "DEN", TaxableSales: decimal.RequireFromString("1.50"), TaxCollected: decimal.RequireFromString("0.11")},
			{Jurisdiction: tax.UnresolvedJurisdiction, TaxableSales: decimal.RequireFromString("3.00"), TaxCollected: decimal.Zero},
		},
		[]tax.PeriodSummaryRow{{Jurisdiction: "DEN", Period: "2024-Q1", TaxableSales: decimal.RequireFromString("1.50"), TaxCollected: decimal.RequireFromString("0.11")}},
	)
	if len(overall) != 2 || overall[0].Period.Valid {
		t.Errorf("overall = %+v", overall)
	}
	if overall[0].Jurisdiction.StringVal != "DEN" || overall[1].Jurisdiction.Valid {
		t.Errorf("overall jurisdictions = %+v, %+v", overall[0].Jurisdiction, overall[1].Jurisdiction)
	}
	if len(byPeriod) != 1 || byPeriod[0].Period != (bigquery.NullString{StringVal: "2024-Q1", Valid: true}) {
		t.Errorf("byPeriod = %+v", byPeriod)
	}
}

func TestToValidationRows(t *testing.T) {
	report := &tax.ValidationReport{UnmappedSKUs: []string{"GUM"}}
	rows := toValidationRows("run-1", report)
	if rows[0].Check != tax.CheckUnmappedSKU || rows[0].Value != "GUM" || rows[0].RunID != "run-1" {
		t.Errorf("first row = %+v", rows[0])
	}
}

func TestTruncateError(t *testing.T) {
	if got := truncateError(nil); got != "" {
		t.Errorf("truncateError(nil) = %q", got)
	}
	long := errors.New(strings.Repeat("x", 3000))
	if got := truncateError(long); len(got) != maxErrorMessageLen {
		t.Errorf("len(truncateError(long)) = %d, want %d", len(got), maxErrorMessageLen)
	}
}
