// Package tax computes per-transaction sales tax from transactions, SKU tax
// classes, device jurisdictions and dated jurisdiction rate components.
//
// The computation is a pure function of its inputs: no I/O, no shared state
// and the same output for the same input. Control flows
// Normalizer -> Reference Joiner -> Rate Window Matcher -> Component Tax
// Calculator -> {Summary Aggregator, Validation Reporter}.
package tax

import (
	"time"

	"github.com/shopspring/decimal"
)

// Inputs are the four datasets the engine consumes.
type Inputs struct {
	Transactions []RawTransaction
	TaxClasses   []TaxClassMapping
	Machines     []MachineMapping
	Rates        []RateComponent
}

// Options configures a computation. The zero value computes per component in
// UTC with no ZIP fallback and no period summary.
type Options struct {
	Mode             Mode
	StatePortion     decimal.NullDecimal // ModeCombined only; unset means DefaultStatePortion
	AllowZIPFallback bool
	Location         *time.Location
	FilingFrequency  FilingFrequency
}

// Result is everything one computation produces.
type Result struct {
	Facts         *FactTable
	Summary       []SummaryRow
	PeriodSummary []PeriodSummaryRow
	Validation    *ValidationReport
}

// Compute runs the full engine over in.
func Compute(in Inputs, opts Options) *Result {
	statePortion := DefaultStatePortion
	if opts.StatePortion.Valid {
		statePortion = opts.StatePortion.Decimal
	}

	txns := NormalizeTransactions(in.Transactions, opts.Location)
	joined, diag := JoinReferences(txns, in.TaxClasses, in.Machines, JoinOptions{
		AllowZIPFallback: opts.AllowZIPFallback,
	})

	rates := NewRateIndex(in.Rates)
	lines := ExpandLines(joined, rates)

	facts := BuildFacts(joined, lines, CalcOptions{
		Mode:         opts.Mode,
		StatePortion: statePortion,
	})

	report := Validate(joined, lines)
	report.DuplicateSKUs = diag.DuplicateSKUs
	report.DuplicateDevices = diag.DuplicateDevices
	report.ZIPFallbacks = diag.ZIPFallbacks
	report.OverlappingRates = rates.FindOverlaps()

	return &Result{
		Facts:         facts,
		Summary:       Summarize(facts),
		PeriodSummary: SummarizeByPeriod(facts, opts.FilingFrequency),
		Validation:    report,
	}
}
