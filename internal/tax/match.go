package tax

import (
	"sort"
	"strings"
)

// RateIndex groups rate components by jurisdiction so matching only scans
// the components of the transaction's own jurisdiction.
type RateIndex struct {
	byJurisdiction map[string][]RateComponent
}

// NewRateIndex indexes rate components. Components without a jurisdiction
// code are dropped since no transaction can match them.
func NewRateIndex(rates []RateComponent) *RateIndex {
	idx := &RateIndex{byJurisdiction: make(map[string][]RateComponent)}
	for _, rc := range rates {
		rc.Jurisdiction = strings.TrimSpace(rc.Jurisdiction)
		rc.Component = strings.TrimSpace(rc.Component)
		if rc.Jurisdiction == "" {
			continue
		}
		idx.byJurisdiction[rc.Jurisdiction] = append(idx.byJurisdiction[rc.Jurisdiction], rc)
	}
	return idx
}

// Match returns the components of the transaction's jurisdiction effective on
// its date, in rate table order.
func (idx *RateIndex) Match(jt JoinedTransaction) []RateComponent {
	if !jt.JurisdictionResolved() || !jt.Date.IsValid() {
		return nil
	}
	var matched []RateComponent
	for _, rc := range idx.byJurisdiction[jt.Jurisdiction] {
		if rc.Effective(jt.Date) {
			matched = append(matched, rc)
		}
	}
	return matched
}

// ExpandLines produces one ExpandedLine per (transaction, effective component)
// pair. A transaction with no effective component contributes no lines.
func ExpandLines(txns []JoinedTransaction, idx *RateIndex) []ExpandedLine {
	var lines []ExpandedLine
	for _, jt := range txns {
		for _, rc := range idx.Match(jt) {
			lines = append(lines, ExpandedLine{
				Txn:       jt.ID,
				Component: rc.Component,
				Rate:      rc.Rate,
			})
		}
	}
	return lines
}

// RateOverlap describes two windows of the same jurisdiction component that
// share at least one day. Transactions on shared days are taxed by both.
type RateOverlap struct {
	Jurisdiction string
	Component    string
	First        RateComponent
	Second       RateComponent
}

// FindOverlaps lists every pair of overlapping windows per jurisdiction and
// component. Output is sorted by jurisdiction, component and window start.
func (idx *RateIndex) FindOverlaps() []RateOverlap {
	jurisdictions := make([]string, 0, len(idx.byJurisdiction))
	for j := range idx.byJurisdiction {
		jurisdictions = append(jurisdictions, j)
	}
	sort.Strings(jurisdictions)

	var overlaps []RateOverlap
	for _, j := range jurisdictions {
		byComponent := make(map[string][]RateComponent)
		var names []string
		for _, rc := range idx.byJurisdiction[j] {
			if !rc.From.IsValid() || !rc.To.IsValid() || rc.To.Before(rc.From) {
				continue
			}
			key := labelFolder.String(rc.Component)
			if _, ok := byComponent[key]; !ok {
				names = append(names, key)
			}
			byComponent[key] = append(byComponent[key], rc)
		}
		sort.Strings(names)
		for _, name := range names {
			windows := byComponent[name]
			sort.SliceStable(windows, func(a, b int) bool {
				return windows[a].From.Before(windows[b].From)
			})
			for a := 0; a < len(windows); a++ {
				for b := a + 1; b < len(windows); b++ {
					if windows[b].From.After(windows[a].To) {
						break
					}
					overlaps = append(overlaps, RateOverlap{
						Jurisdiction: j,
						Component:    windows[a].Component,
						First:        windows[a],
						Second:       windows[b],
					})
				}
			}
		}
	}
	return overlaps
}
