package tax

import (
	"fmt"
	"sort"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Summarize rolls the fact table up by jurisdiction. Unresolved transactions
// form their own group. Rows are sorted by jurisdiction with the unresolved
// group last.
func Summarize(facts *FactTable) []SummaryRow {
	type acc struct{ sales, tax decimal.Decimal }
	groups := make(map[string]*acc)
	for _, r := range facts.Rows {
		a, ok := groups[r.Jurisdiction]
		if !ok {
			a = &acc{}
			groups[r.Jurisdiction] = a
		}
		a.sales = a.sales.Add(r.NetSales)
		a.tax = a.tax.Add(r.Total)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sortJurisdictions(keys)

	out := make([]SummaryRow, 0, len(keys))
	for _, k := range keys {
		out = append(out, SummaryRow{
			Jurisdiction: k,
			TaxableSales: groups[k].sales.Round(currencyPlaces),
			TaxCollected: groups[k].tax.Round(currencyPlaces),
		})
	}
	return out
}

// FilingFrequency is how often returns are filed for a jurisdiction.
type FilingFrequency int

const (
	FilingNone FilingFrequency = iota
	FilingMonthly
	FilingQuarterly
	FilingAnnual
)

// ParseFilingFrequency accepts the spellings used in Parameters.json.
func ParseFilingFrequency(s string) (FilingFrequency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return FilingNone, nil
	case "monthly", "month":
		return FilingMonthly, nil
	case "quarterly", "quarter":
		return FilingQuarterly, nil
	case "annual", "annually", "yearly":
		return FilingAnnual, nil
	default:
		return FilingNone, fmt.Errorf("unknown filing frequency %q", s)
	}
}

// Period labels the filing period containing d. Invalid dates have no period.
func (f FilingFrequency) Period(d civil.Date) string {
	if !d.IsValid() {
		return ""
	}
	switch f {
	case FilingMonthly:
		return fmt.Sprintf("%04d-%02d", d.Year, int(d.Month))
	case FilingQuarterly:
		return fmt.Sprintf("%04d-Q%d", d.Year, (int(d.Month)-1)/3+1)
	case FilingAnnual:
		return fmt.Sprintf("%04d", d.Year)
	default:
		return ""
	}
}

// SummarizeByPeriod rolls the fact table up by jurisdiction and filing
// period. It returns nil for FilingNone.
func SummarizeByPeriod(facts *FactTable, freq FilingFrequency) []PeriodSummaryRow {
	if freq == FilingNone {
		return nil
	}
	type key struct{ jurisdiction, period string }
	type acc struct{ sales, tax decimal.Decimal }
	groups := make(map[key]*acc)
	for _, r := range facts.Rows {
		k := key{r.Jurisdiction, freq.Period(r.Date)}
		a, ok := groups[k]
		if !ok {
			a = &acc{}
			groups[k] = a
		}
		a.sales = a.sales.Add(r.NetSales)
		a.tax = a.tax.Add(r.Total)
	}

	keys := make([]key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].jurisdiction != keys[j].jurisdiction {
			return jurisdictionLess(keys[i].jurisdiction, keys[j].jurisdiction)
		}
		return keys[i].period < keys[j].period
	})

	out := make([]PeriodSummaryRow, 0, len(keys))
	for _, k := range keys {
		out = append(out, PeriodSummaryRow{
			Jurisdiction: k.jurisdiction,
			Period:       k.period,
			TaxableSales: groups[k].sales.Round(currencyPlaces),
			TaxCollected: groups[k].tax.Round(currencyPlaces),
		})
	}
	return out
}

func sortJurisdictions(keys []string) {
	sort.Slice(keys, func(i, j int) bool { return jurisdictionLess(keys[i], keys[j]) })
}

// jurisdictionLess orders codes lexically with the unresolved code last.
func jurisdictionLess(a, b string) bool {
	if a == UnresolvedJurisdiction {
		return false
	}
	if b == UnresolvedJurisdiction {
		return true
	}
	return a < b
}
