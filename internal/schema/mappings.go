// Package schema maps the column names found in source files onto the
// canonical names the tax engine's decoders read.
package schema

import "strings"

// Canonical column names.
const (
	ColTxnDate      = "Txn_Date"
	ColDevice       = "Device_Number"
	ColSKU          = "SKU"
	ColNetSales     = "Net_Sales"
	ColDescription  = "Product_Desc"
	ColQty          = "Qty"
	ColClass        = "Class"
	ColTaxability   = "Assumed_Taxability"
	ColJurisdiction = "Jurisdiction_Code"
	ColZIP          = "ZIP"
	ColComponent    = "Component"
	ColRate         = "Rate"
	ColRateFrom     = "Rate_Effective_From"
	ColRateTo       = "Rate_Effective_To"
)

// Alias renames a source column to a canonical one.
type Alias struct {
	From string
	To   string
}

// AliasSet is an ordered alias table. For each canonical target the first
// matching source column wins.
type AliasSet []Alias

// Transaction aliases. Order matters: Timestamp is preferred over Date.
var TransactionAliases = AliasSet{
	{"Timestamp", ColTxnDate},
	{"Txn_Date", ColTxnDate},
	{"Date", ColTxnDate},
	{"Transaction_Date", ColTxnDate},
	{"Device_Number", ColDevice},
	{"Device", ColDevice},
	{"Machine", ColDevice},
	{"SKU", ColSKU},
	{"Item_SKU", ColSKU},
	{"Description", ColDescription},
	{"Qty", ColQty},
	{"Quantity", ColQty},
	{"Net_Sales", ColNetSales},
	{"Net Sales", ColNetSales},
}

// TaxClassAliases covers the SKU to tax class mapping.
var TaxClassAliases = AliasSet{
	{"SKU", ColSKU},
	{"Class_Key", ColSKU},
	{"Class", ColClass},
	{"Tax_Class", ColClass},
	{"Assumed_Taxability", ColTaxability},
	{"Taxability", ColTaxability},
}

// MachineAliases covers the device to jurisdiction mapping.
var MachineAliases = AliasSet{
	{"Device_Number", ColDevice},
	{"Device", ColDevice},
	{"Jurisdiction_Code", ColJurisdiction},
	{"Jurisdiction", ColJurisdiction},
	{"JurisdictionCode", ColJurisdiction},
	{"ZIP", ColZIP},
	{"Zip_Code", ColZIP},
	{"Postal_Code", ColZIP},
}

// RateAliases covers jurisdiction rate components.
var RateAliases = AliasSet{
	{"Jurisdiction_Code", ColJurisdiction},
	{"Jurisdiction", ColJurisdiction},
	{"JurisdictionCode", ColJurisdiction},
	{"Component", ColComponent},
	{"Rate_Component", ColComponent},
	{"Rate", ColRate},
	{"Rate_Effective_From", ColRateFrom},
	{"Effective_From", ColRateFrom},
	{"Rate_Effective_To", ColRateTo},
	{"Effective_To", ColRateTo},
}

// With returns a copy of s with extra appended after the built-in aliases.
func (s AliasSet) With(extra ...Alias) AliasSet {
	out := make(AliasSet, 0, len(s)+len(extra))
	out = append(out, s...)
	return append(out, extra...)
}

// targets lists canonical names in first-appearance order.
func (s AliasSet) targets() []string {
	seen := make(map[string]bool)
	var out []string
	for _, a := range s {
		if !seen[a.To] {
			seen[a.To] = true
			out = append(out, a.To)
		}
	}
	return out
}

// normalizeHeader lowercases a header and strips whitespace, underscores and hyphens.
func normalizeHeader(header string) string {
	s := strings.ToLower(strings.TrimSpace(header))
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "_", "")
	s = strings.ReplaceAll(s, "-", "")
	return s
}

// Extend returns a copy of s with the extra aliases whose target s already
// knows appended. Aliases for other datasets are ignored.
func (s AliasSet) Extend(extra []Alias) AliasSet {
	known := make(map[string]bool)
	for _, t := range s.targets() {
		known[t] = true
	}
	var keep []Alias
	for _, a := range extra {
		if known[a.To] {
			keep = append(keep, a)
		}
	}
	return s.With(keep...)
}

// HasTarget reports whether col is one of the canonical names of s.
func (s AliasSet) HasTarget(col string) bool {
	for _, a := range s {
		if a.To == col {
			return true
		}
	}
	return false
}
