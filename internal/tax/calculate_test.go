package tax

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestComponentTax(t *testing.T) {
	tests := []struct {
		name       string
		net        string
		component  string
		rate       string
		taxability Taxability
		want       string
	}{
		{"taxable keeps four places", "1.00", "State", "0.075", TaxabilityTaxable, "0.075"},
		{"rounds to four places", "1.23", "Local", "0.04812", TaxabilityTaxable, "0.0592"},
		{"exempt zeroes every component", "10.00", "Local", "0.05", TaxabilityExempt, "0"},
		{"local only zeroes state", "10.00", "State", "0.029", TaxabilityLocalOnly, "0"},
		{"local only zeroes state case-insensitively", "10.00", "STATE", "0.029", TaxabilityLocalOnly, "0"},
		{"local only keeps local", "10.00", "Local", "0.05", TaxabilityLocalOnly, "0.5"},
		{"unknown label is taxed", "2.00", "RTD", "0.01", TaxabilityOther, "0.02"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := ExpandedLine{Component: tt.component, Rate: dec(tt.rate)}
			got := ComponentTax(dec(tt.net), line, tt.taxability)
			if !got.Equal(dec(tt.want)) {
				t.Errorf("ComponentTax() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBuildFacts_Components(t *testing.T) {
	txns := []JoinedTransaction{
		{Transaction: Transaction{ID: 0, NetSales: dec("1.00"), SKU: "A"}, Jurisdiction: "J1", Taxability: TaxabilityTaxable},
		{Transaction: Transaction{ID: 1, NetSales: dec("10.00"), SKU: "B"}, Jurisdiction: "J1", Taxability: TaxabilityLocalOnly},
		{Transaction: Transaction{ID: 2, NetSales: dec("5.00"), SKU: "C"}, Jurisdiction: "J1", Taxability: TaxabilityExempt},
		{Transaction: Transaction{ID: 3, NetSales: dec("4.00"), SKU: "D"}, Jurisdiction: UnresolvedJurisdiction},
	}
	lines := []ExpandedLine{
		{Txn: 0, Component: "State", Rate: dec("0.075")},
		{Txn: 1, Component: "State", Rate: dec("0.029")},
		{Txn: 1, Component: "Special District", Rate: dec("0.011")},
		{Txn: 1, Component: "Local", Rate: dec("0.0481")},
		{Txn: 2, Component: "State", Rate: dec("0.029")},
	}

	facts := BuildFacts(txns, lines, CalcOptions{Mode: ModeComponents})

	wantColumns := []string{"Tax_Local", "Tax_Special_District", "Tax_State"}
	if len(facts.Columns) != len(wantColumns) {
		t.Fatalf("Columns = %v, want %v", facts.Columns, wantColumns)
	}
	for i := range wantColumns {
		if facts.Columns[i] != wantColumns[i] {
			t.Errorf("Columns[%d] = %s, want %s", i, facts.Columns[i], wantColumns[i])
		}
	}
	if len(facts.Rows) != len(txns) {
		t.Fatalf("got %d fact rows, want %d", len(facts.Rows), len(txns))
	}

	tests := []struct {
		row   int
		col   string
		want  string
		total string
	}{
		{0, "Tax_State", "0.08", "0.08"},
		{1, "Tax_State", "0", "0.59"},
		{1, "Tax_Special_District", "0.11", "0.59"},
		{1, "Tax_Local", "0.48", "0.59"},
		{2, "Tax_State", "0", "0"},
		{3, "Tax_State", "0", "0"},
	}
	for _, tt := range tests {
		r := facts.Rows[tt.row]
		if got := r.Component(tt.col); !got.Equal(dec(tt.want)) {
			t.Errorf("row %d %s = %s, want %s", tt.row, tt.col, got, tt.want)
		}
		if !r.Total.Equal(dec(tt.total)) {
			t.Errorf("row %d total = %s, want %s", tt.row, r.Total, tt.total)
		}
	}
}

func TestBuildFacts_TotalEqualsRoundedComponents(t *testing.T) {
	// 0.0045 + 0.0045 rounds to 0.00 + 0.00 per component but 0.01 unrounded.
	txns := []JoinedTransaction{
		{Transaction: Transaction{ID: 0, NetSales: dec("0.15")}, Jurisdiction: "J1"},
	}
	lines := []ExpandedLine{
		{Txn: 0, Component: "Local", Rate: dec("0.03")},
		{Txn: 0, Component: "RTD", Rate: dec("0.03")},
	}

	facts := BuildFacts(txns, lines, CalcOptions{})
	r := facts.Rows[0]

	sum := decimal.Zero
	for _, col := range facts.Columns {
		sum = sum.Add(r.Component(col))
	}
	if !r.Total.Equal(sum) {
		t.Errorf("Total = %s, sum of components = %s", r.Total, sum)
	}
	if !r.Total.Equal(dec("0")) {
		t.Errorf("Total = %s, want 0", r.Total)
	}
}

func TestBuildFacts_OverlappingWindowsSum(t *testing.T) {
	txns := []JoinedTransaction{
		{Transaction: Transaction{ID: 0, NetSales: dec("100")}, Jurisdiction: "J1"},
	}
	lines := []ExpandedLine{
		{Txn: 0, Component: "Local", Rate: dec("0.04")},
		{Txn: 0, Component: "Local", Rate: dec("0.05")},
	}

	facts := BuildFacts(txns, lines, CalcOptions{})
	if len(facts.Columns) != 1 {
		t.Fatalf("Columns = %v, want one Local column", facts.Columns)
	}
	if got := facts.Rows[0].Component("Tax_Local"); !got.Equal(dec("9")) {
		t.Errorf("Tax_Local = %s, want 9", got)
	}
}

func TestBuildFacts_Combined(t *testing.T) {
	tests := []struct {
		name       string
		net        string
		rates      []string
		taxability Taxability
		want       string
	}{
		// 1.50 * (0.081 - 0.029) = 0.078
		{"local only removes state portion", "1.50", []string{"0.081"}, TaxabilityLocalOnly, "0.08"},
		{"taxable uses summed rate", "1.00", []string{"0.029", "0.046"}, TaxabilityTaxable, "0.08"},
		{"exempt is zero", "1.00", []string{"0.075"}, TaxabilityExempt, "0"},
		{"state portion floors at zero", "10.00", []string{"0.01"}, TaxabilityLocalOnly, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txns := []JoinedTransaction{
				{Transaction: Transaction{ID: 0, NetSales: dec(tt.net)}, Jurisdiction: "J1", Taxability: tt.taxability},
			}
			var lines []ExpandedLine
			for _, r := range tt.rates {
				lines = append(lines, ExpandedLine{Txn: 0, Component: "State", Rate: dec(r)})
			}

			facts := BuildFacts(txns, lines, CalcOptions{Mode: ModeCombined, StatePortion: DefaultStatePortion})
			r := facts.Rows[0]
			if got := r.Component(ComponentColumn(CombinedComponent)); !got.Equal(dec(tt.want)) {
				t.Errorf("combined tax = %s, want %s", got, tt.want)
			}
			if !r.Total.Equal(dec(tt.want)) {
				t.Errorf("total = %s, want %s", r.Total, tt.want)
			}
		})
	}
}

func TestComponentColumn(t *testing.T) {
	tests := []struct {
		component string
		want      string
	}{
		{"State", "Tax_State"},
		{"Special District", "Tax_Special_District"},
		{" RTD ", "Tax_RTD"},
		{"Total", "Tax_Total_Component"},
	}

	for _, tt := range tests {
		t.Run(tt.component, func(t *testing.T) {
			if got := ComponentColumn(tt.component); got != tt.want {
				t.Errorf("ComponentColumn(%q) = %q, want %q", tt.component, got, tt.want)
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode(""); err != nil || m != ModeComponents {
		t.Errorf("ParseMode(\"\") = %v, %v", m, err)
	}
	if m, err := ParseMode("combined"); err != nil || m != ModeCombined {
		t.Errorf("ParseMode(combined) = %v, %v", m, err)
	}
	if _, err := ParseMode("flat"); err == nil {
		t.Error("ParseMode(flat) expected error")
	}
}
