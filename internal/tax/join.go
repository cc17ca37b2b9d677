package tax

import (
	"sort"
	"strings"
)

// JoinOptions tunes reference resolution.
type JoinOptions struct {
	// AllowZIPFallback lets a machine mapping with no jurisdiction borrow
	// the jurisdiction of other devices in the same ZIP, when that ZIP maps
	// to exactly one jurisdiction.
	AllowZIPFallback bool
}

// JoinDiagnostics records what the joiner noticed about the reference tables.
type JoinDiagnostics struct {
	DuplicateSKUs    []string
	DuplicateDevices []string
	ZIPFallbacks     []string // devices resolved through their ZIP
}

// ClassIndex looks up tax classes by SKU. The first mapping for a SKU wins.
type ClassIndex struct {
	bySKU      map[string]TaxClassMapping
	duplicates []string
}

// NewClassIndex builds a ClassIndex from the mapping table.
func NewClassIndex(classes []TaxClassMapping) *ClassIndex {
	idx := &ClassIndex{bySKU: make(map[string]TaxClassMapping, len(classes))}
	seenDup := make(map[string]bool)
	for _, c := range classes {
		key := strings.TrimSpace(c.SKU)
		if key == "" {
			continue
		}
		if _, ok := idx.bySKU[key]; ok {
			if !seenDup[key] {
				seenDup[key] = true
				idx.duplicates = append(idx.duplicates, key)
			}
			continue
		}
		c.SKU = key
		idx.bySKU[key] = c
	}
	return idx
}

// Lookup returns the mapping for sku.
func (idx *ClassIndex) Lookup(sku string) (TaxClassMapping, bool) {
	c, ok := idx.bySKU[sku]
	return c, ok
}

// Duplicates lists SKUs that appeared more than once, in first-seen order.
func (idx *ClassIndex) Duplicates() []string {
	return idx.duplicates
}

// MachineIndex looks up jurisdictions by device. The first mapping for a device wins.
type MachineIndex struct {
	byDevice     map[string]MachineMapping
	duplicates   []string
	zipFallbacks []string
}

// NewMachineIndex builds a MachineIndex, applying the ZIP fallback when allowed.
func NewMachineIndex(machines []MachineMapping, allowZIPFallback bool) *MachineIndex {
	idx := &MachineIndex{byDevice: make(map[string]MachineMapping, len(machines))}
	var order []string
	seenDup := make(map[string]bool)
	for _, m := range machines {
		key := strings.TrimSpace(m.DeviceNumber)
		if key == "" {
			continue
		}
		if _, ok := idx.byDevice[key]; ok {
			if !seenDup[key] {
				seenDup[key] = true
				idx.duplicates = append(idx.duplicates, key)
			}
			continue
		}
		m.DeviceNumber = key
		m.Jurisdiction = strings.TrimSpace(m.Jurisdiction)
		m.ZIP = strings.TrimSpace(m.ZIP)
		idx.byDevice[key] = m
		order = append(order, key)
	}

	if !allowZIPFallback {
		return idx
	}

	byZIP := make(map[string]map[string]bool)
	for _, m := range idx.byDevice {
		if m.ZIP == "" || m.Jurisdiction == "" {
			continue
		}
		if byZIP[m.ZIP] == nil {
			byZIP[m.ZIP] = make(map[string]bool)
		}
		byZIP[m.ZIP][m.Jurisdiction] = true
	}
	for _, key := range order {
		m := idx.byDevice[key]
		if m.Jurisdiction != "" || m.ZIP == "" {
			continue
		}
		jurs := byZIP[m.ZIP]
		if len(jurs) != 1 {
			continue
		}
		for j := range jurs {
			m.Jurisdiction = j
		}
		idx.byDevice[key] = m
		idx.zipFallbacks = append(idx.zipFallbacks, key)
	}
	return idx
}

// Lookup returns the mapping for device.
func (idx *MachineIndex) Lookup(device string) (MachineMapping, bool) {
	m, ok := idx.byDevice[device]
	return m, ok
}

// Duplicates lists devices that appeared more than once, in first-seen order.
func (idx *MachineIndex) Duplicates() []string {
	return idx.duplicates
}

// JoinReferences left-joins transactions to the tax class and machine
// mappings. Every transaction is kept; unmatched ones carry an unresolved
// class or jurisdiction.
func JoinReferences(txns []Transaction, classes []TaxClassMapping, machines []MachineMapping, opts JoinOptions) ([]JoinedTransaction, JoinDiagnostics) {
	classIdx := NewClassIndex(classes)
	machineIdx := NewMachineIndex(machines, opts.AllowZIPFallback)

	out := make([]JoinedTransaction, len(txns))
	for i, t := range txns {
		jt := JoinedTransaction{Transaction: t, Jurisdiction: UnresolvedJurisdiction}
		if c, ok := classIdx.Lookup(t.SKU); ok {
			jt.Class = strings.TrimSpace(c.Class)
			jt.ClassResolved = jt.Class != ""
			jt.Taxability = ParseTaxability(c.Taxability)
		}
		if m, ok := machineIdx.Lookup(t.DeviceNumber); ok {
			jt.Jurisdiction = m.Jurisdiction
			jt.ZIP = m.ZIP
		}
		out[i] = jt
	}

	fallbacks := append([]string(nil), machineIdx.zipFallbacks...)
	sort.Strings(fallbacks)
	return out, JoinDiagnostics{
		DuplicateSKUs:    classIdx.Duplicates(),
		DuplicateDevices: machineIdx.Duplicates(),
		ZIPFallbacks:     fallbacks,
	}
}
