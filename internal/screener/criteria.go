package screener

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Criteria are the inclusion filters and indicator windows of a profile.
type Criteria struct {
	MinPrice     decimal.Decimal `json:"min_price"`
	MaxPrice     decimal.Decimal `json:"max_price"` // zero disables the ceiling
	MinAvgVolume int64           `json:"min_avg_volume"`
	MaxFloat     *int64          `json:"max_float,omitempty"`
	RequireFloat bool            `json:"require_float"`
	AllowSectors []string        `json:"allow_sectors,omitempty"`
	DenySectors  []string        `json:"deny_sectors,omitempty"`

	LookbackDays int `json:"lookback_days"` // calendar days fetched before as-of
	MinBars      int `json:"min_bars"`
	VolumePeriod int `json:"volume_period"`
	RSIPeriod    int `json:"rsi_period"`
	SignalWindow int `json:"signal_window"`
	HighWindow   int `json:"high_window"` // bars in the 52-week high lookback
}

// DefaultCriteria is a $0.50-$10 small-cap filter over roughly 90 trading days.
func DefaultCriteria() Criteria {
	return Criteria{
		MinPrice:     decimal.RequireFromString("0.50"),
		MaxPrice:     decimal.NewFromInt(10),
		MinAvgVolume: 10_000,
		LookbackDays: 130,
		MinBars:      30,
		VolumePeriod: 20,
		RSIPeriod:    14,
		SignalWindow: 10,
		HighWindow:   252,
	}
}

func (c Criteria) Validate() error {
	var errs []error
	if c.MinPrice.IsNegative() {
		errs = append(errs, fmt.Errorf("min_price cannot be negative"))
	}
	if !c.MaxPrice.IsZero() && c.MaxPrice.LessThan(c.MinPrice) {
		errs = append(errs, fmt.Errorf("max_price %s below min_price %s", c.MaxPrice, c.MinPrice))
	}
	if c.MinAvgVolume < 0 {
		errs = append(errs, fmt.Errorf("min_avg_volume cannot be negative"))
	}
	if c.MaxFloat != nil && *c.MaxFloat <= 0 {
		errs = append(errs, fmt.Errorf("max_float must be positive when set"))
	}
	if c.RSIPeriod <= 0 || c.VolumePeriod <= 0 || c.SignalWindow <= 0 {
		errs = append(errs, fmt.Errorf("rsi_period, volume_period and signal_window must be positive"))
	}
	if need := c.requiredBars(); c.MinBars < need {
		errs = append(errs, fmt.Errorf("min_bars %d below the %d the indicator periods need", c.MinBars, need))
	}
	if c.HighWindow < 0 {
		errs = append(errs, fmt.Errorf("high_window cannot be negative"))
	}
	if c.LookbackDays < c.MinBars {
		errs = append(errs, fmt.Errorf("lookback_days %d cannot hold min_bars %d", c.LookbackDays, c.MinBars))
	}
	for _, s := range c.AllowSectors {
		if containsFold(c.DenySectors, s) {
			errs = append(errs, fmt.Errorf("sector %q both allowed and denied", s))
		}
	}
	return errors.Join(errs...)
}

// FetchDays is the calendar span Screen requests before as-of: the trailing
// lookback, widened so HighWindow trading bars fit with two weeks of holidays.
func (c Criteria) FetchDays() int {
	high := c.HighWindow*7/5 + 14
	if c.HighWindow <= 0 || high < c.LookbackDays {
		return c.LookbackDays
	}
	return high
}

func (c Criteria) requiredBars() int {
	need := c.RSIPeriod + 1
	if c.VolumePeriod+1 > need {
		need = c.VolumePeriod + 1
	}
	return need
}

func containsFold(list []string, s string) bool {
	s = strings.TrimSpace(s)
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), s) {
			return true
		}
	}
	return false
}
