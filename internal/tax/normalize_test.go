package tax

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
)

func TestParseDate(t *testing.T) {
	mountain := time.FixedZone("MST", -7*60*60)

	tests := []struct {
		name   string
		input  string
		loc    *time.Location
		want   civil.Date
		wantOK bool
	}{
		{"iso date", "2024-01-15", nil, civil.Date{Year: 2024, Month: time.January, Day: 15}, true},
		{"timestamp drops time", "2024-01-15 23:59:59", nil, civil.Date{Year: 2024, Month: time.January, Day: 15}, true},
		{"us date", "3/7/2024", nil, civil.Date{Year: 2024, Month: time.March, Day: 7}, true},
		{"us timestamp with meridiem", "3/7/2024 1:15 PM", nil, civil.Date{Year: 2024, Month: time.March, Day: 7}, true},
		{"utc timestamp in utc", "2024-03-01T02:00:00Z", nil, civil.Date{Year: 2024, Month: time.March, Day: 1}, true},
		{"utc timestamp shifted to local zone", "2024-03-01T02:00:00Z", mountain, civil.Date{Year: 2024, Month: time.February, Day: 29}, true},
		{"spreadsheet serial", "45306", nil, civil.Date{Year: 2024, Month: time.January, Day: 15}, true},
		{"garbage", "not a date", nil, civil.Date{}, false},
		{"empty", "  ", nil, civil.Date{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.input, tt.loc)
			if ok != tt.wantOK {
				t.Fatalf("ParseDate(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"1.50", "1.5"},
		{" 2 ", "2"},
		{"", "0"},
		{"abc", "0"},
		{"$1.00", "0"},
		{"-3.25", "-3.25"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseAmount(tt.input); got.String() != tt.want {
				t.Errorf("ParseAmount(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeTransactions(t *testing.T) {
	raw := []RawTransaction{
		{Date: "2024-01-15 10:30:00", DeviceNumber: " D1 ", SKU: "SKU1", NetSales: "1.50"},
		{Date: "bad", DeviceNumber: "D2", SKU: " SKU2", NetSales: "oops"},
	}

	got := NormalizeTransactions(raw, nil)
	if len(got) != 2 {
		t.Fatalf("NormalizeTransactions() returned %d rows, want 2", len(got))
	}

	for i, txn := range got {
		if txn.ID != TxnID(i) {
			t.Errorf("row %d: ID = %d, want %d", i, txn.ID, i)
		}
	}
	if got[0].DeviceNumber != "D1" || got[1].SKU != "SKU2" {
		t.Errorf("identifiers not trimmed: %+v", got)
	}
	if want := (civil.Date{Year: 2024, Month: time.January, Day: 15}); got[0].Date != want {
		t.Errorf("row 0 date = %v, want %v", got[0].Date, want)
	}
	if got[1].Date.IsValid() {
		t.Errorf("row 1 date = %v, want invalid", got[1].Date)
	}
	if !got[1].NetSales.IsZero() {
		t.Errorf("row 1 net sales = %s, want 0", got[1].NetSales)
	}
}
