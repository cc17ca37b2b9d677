package tax

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestValidationReport_Findings(t *testing.T) {
	report := &ValidationReport{
		UnmappedSKUs:    []string{"GUM"},
		UnmappedDevices: []string{"VM-9"},
		OverlappingRates: []RateOverlap{{
			Jurisdiction: "DEN",
			Component:    "Local",
			First:        RateComponent{From: day(2024, time.January, 1), To: day(2024, time.June, 30)},
			Second:       RateComponent{From: day(2024, time.June, 1), To: day(2024, time.December, 31)},
		}},
		Coverage: Coverage{Transactions: 3, ClassResolved: 2, JurisdictionResolved: 2, Taxed: 2},
	}

	want := []Finding{
		{Check: CheckUnmappedSKU, Value: "GUM"},
		{Check: CheckUnmappedDevice, Value: "VM-9"},
		{Check: CheckOverlappingRate, Value: "DEN/Local", Detail: "2024-01-01..2024-06-30 overlaps 2024-06-01..2024-12-31"},
		{Check: CheckCoverage, Value: "Transactions", Detail: "3"},
		{Check: CheckCoverage, Value: "Class_Resolved", Detail: "2"},
		{Check: CheckCoverage, Value: "Jurisdiction_Resolved", Detail: "2"},
		{Check: CheckCoverage, Value: "Taxed", Detail: "2"},
		{Check: CheckCoverage, Value: "Invalid_Dates", Detail: "0"},
	}
	if diff := cmp.Diff(want, report.Findings()); diff != "" {
		t.Errorf("Findings() mismatch (-want +got):\n%s", diff)
	}
	if !report.HasFindings() {
		t.Error("HasFindings() = false, want true")
	}
}
