package tax

import (
	"math"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Layouts carrying their own offset are converted into the normalizer's
// location before the date is taken.
var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05 -0700",
}

var localLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006/01/02",
	"2006/01/02 15:04:05",
	"1/2/2006",
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"1/2/2006 3:04 PM",
	"1/2/2006 3:04:05 PM",
	"1/2/06",
	"1/2/06 15:04",
	"01-02-06",
	"02-Jan-2006",
	"Jan 2, 2006",
}

// Spreadsheet serial dates count days from this epoch.
var serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// NormalizeTransactions coerces raw rows into transactions and assigns each
// its TxnID. Unparseable dates become the zero civil.Date, which matches no
// rate window; unparseable amounts become zero. A nil location means UTC.
func NormalizeTransactions(raw []RawTransaction, loc *time.Location) []Transaction {
	if loc == nil {
		loc = time.UTC
	}
	out := make([]Transaction, len(raw))
	for i, r := range raw {
		date, _ := ParseDate(r.Date, loc)
		out[i] = Transaction{
			ID:           TxnID(i),
			Date:         date,
			DeviceNumber: strings.TrimSpace(r.DeviceNumber),
			SKU:          strings.TrimSpace(r.SKU),
			NetSales:     ParseAmount(r.NetSales),
		}
	}
	return out
}

// ParseDate parses a date or timestamp and discards the time of day.
func ParseDate(s string, loc *time.Location) (civil.Date, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return civil.Date{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return civil.DateOf(t.In(loc)), true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return civil.DateOf(t), true
		}
	}
	if d, ok := parseSerialDate(s); ok {
		return d, true
	}
	return civil.Date{}, false
}

func parseSerialDate(s string) (civil.Date, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || f < 1 || f > 2958465 {
		return civil.Date{}, false
	}
	days := int(math.Floor(f))
	return civil.DateOf(serialEpoch.AddDate(0, 0, days)), true
}

// ParseAmount coerces a numeric string, returning zero when it cannot be parsed.
func ParseAmount(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
