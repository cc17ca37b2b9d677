package tax

import (
	"strings"

	"golang.org/x/text/cases"
)

// Taxability is the closed set of exemption rules a SKU can carry.
type Taxability int

const (
	// TaxabilityOther covers empty or unrecognized labels. Taxed at the full rate.
	TaxabilityOther Taxability = iota
	// TaxabilityTaxable is taxed at the full rate.
	TaxabilityTaxable
	// TaxabilityExempt zeroes every component of the line.
	TaxabilityExempt
	// TaxabilityLocalOnly is taxed by every component except the state one.
	TaxabilityLocalOnly
)

var taxabilityNames = map[Taxability]string{
	TaxabilityOther:     "Other",
	TaxabilityTaxable:   "Taxable",
	TaxabilityExempt:    "Exempt",
	TaxabilityLocalOnly: "LocalOnly",
}

func (t Taxability) String() string {
	if name, ok := taxabilityNames[t]; ok {
		return name
	}
	return "Other"
}

var labelFolder = cases.Fold()

// ParseTaxability resolves a free-text assumed-taxability label.
//
// Matching is case-insensitive on substrings and ordered: a label mentioning
// both "local" and "only" is LocalOnly even when it also says "exempt".
func ParseTaxability(label string) Taxability {
	l := labelFolder.String(strings.TrimSpace(label))
	switch {
	case l == "":
		return TaxabilityOther
	case strings.Contains(l, "local") && strings.Contains(l, "only"):
		return TaxabilityLocalOnly
	case strings.Contains(l, "exempt"),
		strings.Contains(l, "non-taxable"),
		strings.Contains(l, "nontaxable"),
		strings.Contains(l, "non taxable"):
		return TaxabilityExempt
	case strings.Contains(l, "taxable"):
		return TaxabilityTaxable
	default:
		return TaxabilityOther
	}
}

// isStateComponent reports whether a component is the state-level slice that
// LocalOnly sales are not charged.
func isStateComponent(component string) bool {
	return labelFolder.String(strings.TrimSpace(component)) == "state"
}
