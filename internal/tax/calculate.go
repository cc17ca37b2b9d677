package tax

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Mode selects how matched rate components become tax amounts.
type Mode int

const (
	// ModeComponents taxes each matched component separately and reports
	// one column per component.
	ModeComponents Mode = iota
	// ModeCombined sums the matched components into one effective rate and
	// removes a fixed state portion for LocalOnly sales.
	ModeCombined
)

func (m Mode) String() string {
	switch m {
	case ModeComponents:
		return "components"
	case ModeCombined:
		return "combined"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses the configuration spelling of a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "components":
		return ModeComponents, nil
	case "combined":
		return ModeCombined, nil
	default:
		return ModeComponents, fmt.Errorf("unknown rate mode %q (want components or combined)", s)
	}
}

// CombinedComponent is the component name reported in ModeCombined.
const CombinedComponent = "Combined"

// DefaultStatePortion is the state share removed from LocalOnly sales in ModeCombined.
var DefaultStatePortion = decimal.RequireFromString("0.029")

const (
	componentPlaces = 4
	currencyPlaces  = 2
)

// CalcOptions configures the Component Tax Calculator.
type CalcOptions struct {
	Mode         Mode
	StatePortion decimal.Decimal
}

// ComponentTax is the tax one expanded line contributes, at four decimal places.
func ComponentTax(net decimal.Decimal, line ExpandedLine, taxability Taxability) decimal.Decimal {
	switch {
	case taxability == TaxabilityExempt:
		return decimal.Zero
	case taxability == TaxabilityLocalOnly && isStateComponent(line.Component):
		return decimal.Zero
	}
	return net.Mul(line.Rate).Round(componentPlaces)
}

// CombinedTax computes a line's tax from its matched components summed into a
// single effective rate.
func CombinedTax(net decimal.Decimal, lines []ExpandedLine, taxability Taxability, statePortion decimal.Decimal) decimal.Decimal {
	rate := decimal.Zero
	for _, l := range lines {
		rate = rate.Add(l.Rate)
	}
	switch taxability {
	case TaxabilityExempt:
		return decimal.Zero
	case TaxabilityLocalOnly:
		rate = decimal.Max(decimal.Zero, rate.Sub(statePortion))
	}
	return net.Mul(rate).Round(currencyPlaces)
}

// BuildFacts aggregates expanded lines back to one fact row per transaction.
// Transactions with no lines still get a row, with every component and the
// total at zero. Component amounts are rounded to cents and the total is the
// sum of the rounded components, so the two always agree exactly.
func BuildFacts(txns []JoinedTransaction, lines []ExpandedLine, opts CalcOptions) *FactTable {
	byTxn := make(map[TxnID][]ExpandedLine, len(txns))
	for _, l := range lines {
		byTxn[l.Txn] = append(byTxn[l.Txn], l)
	}

	columnSet := make(map[string]bool)
	rows := make([]FactRow, len(txns))
	for i, jt := range txns {
		amounts := make(map[string]decimal.Decimal)
		txnLines := byTxn[jt.ID]

		switch opts.Mode {
		case ModeCombined:
			if len(txnLines) > 0 {
				col := ComponentColumn(CombinedComponent)
				amounts[col] = CombinedTax(jt.NetSales, txnLines, jt.Taxability, opts.StatePortion)
			}
		default:
			for _, l := range txnLines {
				col := ComponentColumn(l.Component)
				amounts[col] = amounts[col].Add(ComponentTax(jt.NetSales, l, jt.Taxability))
			}
		}

		total := decimal.Zero
		for col, amt := range amounts {
			rounded := amt.Round(currencyPlaces)
			amounts[col] = rounded
			total = total.Add(rounded)
			columnSet[col] = true
		}

		rows[i] = FactRow{
			TxnID:        jt.ID,
			NetSales:     jt.NetSales,
			Jurisdiction: jt.Jurisdiction,
			SKU:          jt.SKU,
			DeviceNumber: jt.DeviceNumber,
			Date:         jt.Date,
			Components:   amounts,
			Total:        total.Round(currencyPlaces),
		}
	}

	columns := make([]string, 0, len(columnSet))
	for col := range columnSet {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	return &FactTable{Columns: columns, Rows: rows}
}
