package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

// Bar is a single daily OHLCV record.
type Bar struct {
	Date   time.Time       `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// Day returns the bar date truncated to a calendar day in UTC.
func (b Bar) Day() time.Time {
	return Day(b.Date)
}

// Ticker is the static metadata of a symbol. Optional fields are nil when the
// source did not report them.
type Ticker struct {
	Symbol            string `json:"symbol"`
	Sector            string `json:"sector,omitempty"`
	SharesOutstanding *int64 `json:"shares_outstanding,omitempty"`
	Float             *int64 `json:"float,omitempty"`
}

// NewTicker validates and normalizes a symbol.
func NewTicker(symbol, sector string) (Ticker, error) {
	s, err := NormalizeSymbol(symbol)
	if err != nil {
		return Ticker{}, err
	}
	return Ticker{Symbol: s, Sector: strings.TrimSpace(sector)}, nil
}

// NormalizeSymbol upper-cases and trims a symbol, rejecting empty or oversized ones.
func NormalizeSymbol(symbol string) (string, error) {
	s := strings.TrimSpace(strings.ToUpper(symbol))
	if s == "" {
		return "", fmt.Errorf("symbol cannot be empty")
	}
	if len(s) > 10 {
		return "", fmt.Errorf("symbol too long: %s", s)
	}
	return s, nil
}

// Int64 returns a pointer to v, for optional ticker fields.
func Int64(v int64) *int64 {
	return &v
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, use YYYY-MM-DD: %w", s, err)
	}
	return t, nil
}
