package export

import (
	"encoding/csv"
	"strconv"

	"github.com/dvloznov/opa-taxengine/internal/schema"
	"github.com/dvloznov/opa-taxengine/internal/tax"
)

// Output column names that are not source columns.
const (
	ColTxnID        = "Txn_ID"
	ColTaxableSales = "Taxable_Sales"
	ColTaxCollected = "Tax_Collected"
	ColPeriod       = "Period"
)

// WriteFacts writes the fact table: identity columns, one column per tax
// component and the row total.
func WriteFacts(w *csv.Writer, facts *tax.FactTable) error {
	header := []string{
		ColTxnID,
		schema.ColNetSales,
		schema.ColJurisdiction,
		schema.ColSKU,
		schema.ColDevice,
		schema.ColTxnDate,
	}
	header = append(header, facts.Columns...)
	header = append(header, tax.TotalColumn)
	if err := w.Write(header); err != nil {
		return err
	}

	for _, r := range facts.Rows {
		rec := []string{
			strconv.Itoa(int(r.TxnID)),
			r.NetSales.String(),
			r.Jurisdiction,
			r.SKU,
			r.DeviceNumber,
			date(r.Date),
		}
		for _, col := range facts.Columns {
			rec = append(rec, money(r.Component(col)))
		}
		rec = append(rec, money(r.Total))
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

// WriteSummary writes one row per jurisdiction.
func WriteSummary(w *csv.Writer, rows []tax.SummaryRow) error {
	if err := w.Write([]string{schema.ColJurisdiction, ColTaxableSales, ColTaxCollected}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := w.Write([]string{r.Jurisdiction, money(r.TaxableSales), money(r.TaxCollected)}); err != nil {
			return err
		}
	}
	return nil
}

// WritePeriodSummary writes one row per jurisdiction and filing period.
func WritePeriodSummary(w *csv.Writer, rows []tax.PeriodSummaryRow) error {
	if err := w.Write([]string{schema.ColJurisdiction, ColPeriod, ColTaxableSales, ColTaxCollected}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := w.Write([]string{r.Jurisdiction, r.Period, money(r.TaxableSales), money(r.TaxCollected)}); err != nil {
			return err
		}
	}
	return nil
}

// WriteValidation writes the flattened validation report.
func WriteValidation(w *csv.Writer, report *tax.ValidationReport) error {
	if err := w.Write([]string{"Check", "Value", "Detail"}); err != nil {
		return err
	}
	for _, f := range report.Findings() {
		if err := w.Write([]string{f.Check, f.Value, f.Detail}); err != nil {
			return err
		}
	}
	return nil
}
