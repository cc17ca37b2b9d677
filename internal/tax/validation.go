package tax

import (
	"fmt"
	"strconv"
)

// Coverage counts how much of the input the reference data covered.
type Coverage struct {
	Transactions         int
	ClassResolved        int
	JurisdictionResolved int
	Taxed                int // transactions with at least one effective component
	InvalidDates         int
}

// ValidationReport lists the data-quality findings of one computation. It is
// informational only and never stops the fact or summary tables from being built.
type ValidationReport struct {
	UnmappedSKUs    []string
	UnmappedDevices []string

	DuplicateSKUs    []string
	DuplicateDevices []string
	OverlappingRates []RateOverlap
	ZIPFallbacks     []string

	Coverage Coverage
}

// HasFindings reports whether anything in the report needs attention.
func (v *ValidationReport) HasFindings() bool {
	return len(v.UnmappedSKUs) > 0 ||
		len(v.UnmappedDevices) > 0 ||
		len(v.DuplicateSKUs) > 0 ||
		len(v.DuplicateDevices) > 0 ||
		len(v.OverlappingRates) > 0 ||
		v.Coverage.InvalidDates > 0
}

// Validate scans the joined transactions for unresolved references. SKUs and
// devices are listed once each, in the order they first appear.
func Validate(txns []JoinedTransaction, lines []ExpandedLine) *ValidationReport {
	report := &ValidationReport{Coverage: Coverage{Transactions: len(txns)}}

	taxed := make(map[TxnID]bool, len(txns))
	for _, l := range lines {
		taxed[l.Txn] = true
	}

	seenSKU := make(map[string]bool)
	seenDevice := make(map[string]bool)
	for _, jt := range txns {
		if jt.ClassResolved {
			report.Coverage.ClassResolved++
		} else if !seenSKU[jt.SKU] {
			seenSKU[jt.SKU] = true
			report.UnmappedSKUs = append(report.UnmappedSKUs, jt.SKU)
		}

		if jt.JurisdictionResolved() {
			report.Coverage.JurisdictionResolved++
		} else if !seenDevice[jt.DeviceNumber] {
			seenDevice[jt.DeviceNumber] = true
			report.UnmappedDevices = append(report.UnmappedDevices, jt.DeviceNumber)
		}

		if taxed[jt.ID] {
			report.Coverage.Taxed++
		}
		if !jt.Date.IsValid() {
			report.Coverage.InvalidDates++
		}
	}
	return report
}

// Finding is one flattened entry of a validation report.
type Finding struct {
	Check  string
	Value  string
	Detail string
}

// Check names used by Findings.
const (
	CheckUnmappedSKU     = "Unmapped_SKU"
	CheckUnmappedDevice  = "Unmapped_Device"
	CheckDuplicateSKU    = "Duplicate_SKU"
	CheckDuplicateDevice = "Duplicate_Device"
	CheckOverlappingRate = "Overlapping_Rate"
	CheckZIPFallback     = "ZIP_Fallback"
	CheckCoverage        = "Coverage"
)

// Findings flattens the report into one entry per finding followed by the
// coverage counts.
func (v *ValidationReport) Findings() []Finding {
	var out []Finding
	add := func(check string, values []string) {
		for _, s := range values {
			out = append(out, Finding{Check: check, Value: s})
		}
	}
	add(CheckUnmappedSKU, v.UnmappedSKUs)
	add(CheckUnmappedDevice, v.UnmappedDevices)
	add(CheckDuplicateSKU, v.DuplicateSKUs)
	add(CheckDuplicateDevice, v.DuplicateDevices)
	for _, o := range v.OverlappingRates {
		out = append(out, Finding{
			Check:  CheckOverlappingRate,
			Value:  o.Jurisdiction + "/" + o.Component,
			Detail: fmt.Sprintf("%s..%s overlaps %s..%s", o.First.From, o.First.To, o.Second.From, o.Second.To),
		})
	}
	add(CheckZIPFallback, v.ZIPFallbacks)

	c := v.Coverage
	for _, kv := range []struct {
		name string
		n    int
	}{
		{"Transactions", c.Transactions},
		{"Class_Resolved", c.ClassResolved},
		{"Jurisdiction_Resolved", c.JurisdictionResolved},
		{"Taxed", c.Taxed},
		{"Invalid_Dates", c.InvalidDates},
	} {
		out = append(out, Finding{Check: CheckCoverage, Value: kv.name, Detail: strconv.Itoa(kv.n)})
	}
	return out
}
