package tax

import (
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// UnresolvedJurisdiction is the jurisdiction code carried by transactions whose
// device has no usable machine mapping. The summary groups them under it.
const UnresolvedJurisdiction = ""

// TxnID identifies a transaction for the lifetime of one computation.
// It is the transaction's position in the normalized slice, assigned once by
// NormalizeTransactions and carried through every derived structure.
type TxnID int

// RawTransaction is one transaction row as presented by the ingestion
// boundary, after column canonicalization but before type coercion.
type RawTransaction struct {
	Date         string
	DeviceNumber string
	SKU          string
	NetSales     string
}

// Transaction is one normalized taxable sale.
type Transaction struct {
	ID           TxnID
	Date         civil.Date // zero (invalid) when the source value could not be parsed
	DeviceNumber string
	SKU          string
	NetSales     decimal.Decimal
}

// TaxClassMapping maps a SKU to its tax class and assumed taxability label.
type TaxClassMapping struct {
	SKU        string
	Class      string
	Taxability string
}

// MachineMapping maps a device to the jurisdiction it sells in.
type MachineMapping struct {
	DeviceNumber string
	Jurisdiction string
	ZIP          string
}

// RateComponent is one named slice of a jurisdiction's rate, effective on
// every date in [From, To].
type RateComponent struct {
	Jurisdiction string
	Component    string
	Rate         decimal.Decimal
	From         civil.Date
	To           civil.Date
}

// Effective reports whether the component applies on d. Both ends of the
// window are inclusive; invalid dates never match.
func (rc RateComponent) Effective(d civil.Date) bool {
	if !d.IsValid() || !rc.From.IsValid() || !rc.To.IsValid() {
		return false
	}
	return !d.Before(rc.From) && !d.After(rc.To)
}

// JoinedTransaction is a transaction with its reference data attached.
type JoinedTransaction struct {
	Transaction

	Class         string
	ClassResolved bool
	Taxability    Taxability

	Jurisdiction string
	ZIP          string
}

// JurisdictionResolved reports whether the device mapped to a jurisdiction.
func (jt JoinedTransaction) JurisdictionResolved() bool {
	return jt.Jurisdiction != UnresolvedJurisdiction
}

// ExpandedLine pairs a transaction with one rate component effective on its date.
type ExpandedLine struct {
	Txn       TxnID
	Component string
	Rate      decimal.Decimal
}

// FactRow is the transaction-grain output row.
type FactRow struct {
	TxnID        TxnID
	NetSales     decimal.Decimal
	Jurisdiction string
	SKU          string
	DeviceNumber string
	Date         civil.Date

	// Components holds one rounded amount per component column of the fact
	// table, keyed by column name. Columns absent for this row are zero.
	Components map[string]decimal.Decimal
	Total      decimal.Decimal
}

// Component returns the amount for the given column, zero when absent.
func (r FactRow) Component(column string) decimal.Decimal {
	if v, ok := r.Components[column]; ok {
		return v
	}
	return decimal.Zero
}

// FactTable is the fact output: the component columns observed across all
// matched rates, sorted, and one row per input transaction in input order.
type FactTable struct {
	Columns []string
	Rows    []FactRow
}

// SummaryRow is the jurisdiction-grain roll-up of the fact table.
type SummaryRow struct {
	Jurisdiction string
	TaxableSales decimal.Decimal
	TaxCollected decimal.Decimal
}

// PeriodSummaryRow rolls the fact table up by jurisdiction and filing period.
type PeriodSummaryRow struct {
	Jurisdiction string
	Period       string
	TaxableSales decimal.Decimal
	TaxCollected decimal.Decimal
}

// ComponentColumn converts a component name into its fact table column name.
func ComponentColumn(component string) string {
	name := strings.ReplaceAll(strings.TrimSpace(component), " ", "_")
	if strings.EqualFold(name, "Total") {
		// keep the component apart from the row total
		name += "_Component"
	}
	return "Tax_" + name
}

// TotalColumn is the fact table column holding the row total.
const TotalColumn = "Tax_Total"
