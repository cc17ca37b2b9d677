package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/opa-taxengine/internal/tax"
)

type ComponentAmount struct {
	Column string   `bigquery:"column_name"` // REQUIRED
	Amount *big.Rat `bigquery:"amount"`      // REQUIRED NUMERIC
}

type FactRow struct {
	RunID string `bigquery:"run_id"` // REQUIRED
	TxnID int64  `bigquery:"txn_id"` // REQUIRED

	TxnDate      bigquery.NullDate   `bigquery:"txn_date"`          // NULLABLE
	DeviceNumber string              `bigquery:"device_number"`     // NULLABLE
	SKU          string              `bigquery:"sku"`               // NULLABLE
	Jurisdiction bigquery.NullString `bigquery:"jurisdiction_code"` // NULLABLE, NULL when unresolved

	NetSales   *big.Rat          `bigquery:"net_sales"`  // REQUIRED NUMERIC
	Components []ComponentAmount `bigquery:"components"` // REPEATED RECORD
	TaxTotal   *big.Rat          `bigquery:"tax_total"`  // REQUIRED NUMERIC

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

type SummaryRow struct {
	RunID        string              `bigquery:"run_id"`            // REQUIRED
	Jurisdiction bigquery.NullString `bigquery:"jurisdiction_code"` // NULLABLE, NULL when unresolved
	Period       bigquery.NullString `bigquery:"period"`            // NULLABLE, NULL for the overall summary
	TaxableSales *big.Rat            `bigquery:"taxable_sales"`     // REQUIRED NUMERIC
	TaxCollected *big.Rat            `bigquery:"tax_collected"`     // REQUIRED NUMERIC
}

type ValidationRow struct {
	RunID  string `bigquery:"run_id"`     // REQUIRED
	Check  string `bigquery:"check_name"` // REQUIRED
	Value  string `bigquery:"value"`      // NULLABLE
	Detail string `bigquery:"detail"`     // NULLABLE
}

func toFactRows(runID string, facts *tax.FactTable, created time.Time) []*FactRow {
	rows := make([]*FactRow, 0, len(facts.Rows))
	for _, r := range facts.Rows {
		components := make([]ComponentAmount, 0, len(facts.Columns))
		for _, col := range facts.Columns {
			if amt, ok := r.Components[col]; ok {
				components = append(components, ComponentAmount{Column: col, Amount: amt.Rat()})
			}
		}
		rows = append(rows, &FactRow{
			RunID:        runID,
			TxnID:        int64(r.TxnID),
			TxnDate:      bigquery.NullDate{Date: r.Date, Valid: r.Date.IsValid()},
			DeviceNumber: r.DeviceNumber,
			SKU:          r.SKU,
			Jurisdiction: nullString(r.Jurisdiction),
			NetSales:     r.NetSales.Rat(),
			Components:   components,
			TaxTotal:     r.Total.Rat(),
			CreatedTS:    created,
		})
	}
	return rows
}

func toSummaryRows(runID string, summary []tax.SummaryRow, periods []tax.PeriodSummaryRow) (overall, byPeriod []*SummaryRow) {
	for _, s := range summary {
		overall = append(overall, &SummaryRow{
			RunID:        runID,
			Jurisdiction: nullString(s.Jurisdiction),
			TaxableSales: s.TaxableSales.Rat(),
			TaxCollected: s.TaxCollected.Rat(),
		})
	}
	for _, p := range periods {
		byPeriod = append(byPeriod, &SummaryRow{
			RunID:        runID,
			Jurisdiction: nullString(p.Jurisdiction),
			Period:       nullString(p.Period),
			TaxableSales: p.TaxableSales.Rat(),
			TaxCollected: p.TaxCollected.Rat(),
		})
	}
	return overall, byPeriod
}

func toValidationRows(runID string, report *tax.ValidationReport) []*ValidationRow {
	findings := report.Findings()
	rows := make([]*ValidationRow, len(findings))
	for i, f := range findings {
		rows[i] = &ValidationRow{RunID: runID, Check: f.Check, Value: f.Value, Detail: f.Detail}
	}
	return rows
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}
