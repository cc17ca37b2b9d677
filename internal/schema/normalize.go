package schema

import (
	"strings"
	"time"

	"github.com/dvloznov/opa-taxengine/internal/table"
	"github.com/dvloznov/opa-taxengine/internal/tax"
	"github.com/shopspring/decimal"
)

// Canonicalize returns a copy of t with source columns renamed to their
// canonical names. A canonical column that already exists is never
// overwritten. Source names match exactly first, then ignoring case,
// spaces, underscores and hyphens.
func Canonicalize(t *table.Table, aliases AliasSet) *table.Table {
	out := t.Clone()
	for _, target := range aliases.targets() {
		if out.Has(target) {
			continue
		}
		if i := findSource(out.Columns, aliases, target); i >= 0 {
			out.Columns[i] = target
		}
	}
	return out
}

func findSource(columns []string, aliases AliasSet, target string) int {
	isTarget := make(map[string]bool)
	for _, a := range aliases {
		isTarget[a.To] = true
	}
	match := func(same func(col, from string) bool) int {
		for _, a := range aliases {
			if a.To != target {
				continue
			}
			for i, c := range columns {
				if !isTarget[c] && same(c, a.From) {
					return i
				}
			}
		}
		return -1
	}

	if i := match(func(c, f string) bool { return c == f }); i >= 0 {
		return i
	}
	return match(func(c, f string) bool { return normalizeHeader(c) == normalizeHeader(f) })
}

// Transactions decodes a canonical transaction table.
func Transactions(t *table.Table) []tax.RawTransaction {
	date := t.Column(ColTxnDate)
	device := t.Column(ColDevice)
	sku := t.Column(ColSKU)
	net := t.Column(ColNetSales)

	out := make([]tax.RawTransaction, t.Len())
	for i := range out {
		out[i] = tax.RawTransaction{
			Date:         date(i),
			DeviceNumber: device(i),
			SKU:          sku(i),
			NetSales:     net(i),
		}
	}
	return out
}

// TaxClasses decodes a canonical tax class table.
func TaxClasses(t *table.Table) []tax.TaxClassMapping {
	sku := t.Column(ColSKU)
	class := t.Column(ColClass)
	taxability := t.Column(ColTaxability)

	out := make([]tax.TaxClassMapping, t.Len())
	for i := range out {
		out[i] = tax.TaxClassMapping{
			SKU:        strings.TrimSpace(sku(i)),
			Class:      strings.TrimSpace(class(i)),
			Taxability: strings.TrimSpace(taxability(i)),
		}
	}
	return out
}

// Machines decodes a canonical machine mapping table.
func Machines(t *table.Table) []tax.MachineMapping {
	device := t.Column(ColDevice)
	jurisdiction := t.Column(ColJurisdiction)
	zip := t.Column(ColZIP)

	out := make([]tax.MachineMapping, t.Len())
	for i := range out {
		out[i] = tax.MachineMapping{
			DeviceNumber: strings.TrimSpace(device(i)),
			Jurisdiction: strings.TrimSpace(jurisdiction(i)),
			ZIP:          strings.TrimSpace(zip(i)),
		}
	}
	return out
}

// Rates decodes a canonical rate component table. Unparseable rates are
// zero and unparseable window dates leave the component unmatchable.
func Rates(t *table.Table, loc *time.Location) []tax.RateComponent {
	jurisdiction := t.Column(ColJurisdiction)
	component := t.Column(ColComponent)
	rate := t.Column(ColRate)
	from := t.Column(ColRateFrom)
	to := t.Column(ColRateTo)

	out := make([]tax.RateComponent, t.Len())
	for i := range out {
		f, _ := tax.ParseDate(from(i), loc)
		e, _ := tax.ParseDate(to(i), loc)
		out[i] = tax.RateComponent{
			Jurisdiction: strings.TrimSpace(jurisdiction(i)),
			Component:    strings.TrimSpace(component(i)),
			Rate:         ParseRate(rate(i)),
			From:         f,
			To:           e,
		}
	}
	return out
}

var hundred = decimal.NewFromInt(100)

// ParseRate parses a decimal fraction. A trailing percent sign divides by 100.
func ParseRate(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if p, ok := strings.CutSuffix(s, "%"); ok {
		return tax.ParseAmount(p).Div(hundred)
	}
	return tax.ParseAmount(s)
}
