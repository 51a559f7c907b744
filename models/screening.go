package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Signal names used in score breakdowns.
const (
	SignalVolumeSpike   = "volume_spike"
	SignalRSIOversold   = "rsi_oversold"
	SignalNearHigh      = "near_52w_high"
	SignalShortInterest = "short_interest"
	SignalInsiderBuying = "insider_buying"
	SignalCatalyst      = "catalyst"
)

// SignalScore is one fired signal and the points it contributed.
type SignalScore struct {
	Signal string  `json:"signal"`
	Value  float64 `json:"value"`
	Points float64 `json:"points"`
}

type ScoreBreakdown struct {
	Signals        []SignalScore `json:"signals"`
	CompositeBonus float64       `json:"composite_bonus"`
}

// Total sums signal points and the composite bonus.
func (b ScoreBreakdown) Total() float64 {
	total := b.CompositeBonus
	for _, s := range b.Signals {
		total += s.Points
	}
	return total
}

// Fired reports whether the named signal contributed points.
func (b ScoreBreakdown) Fired(signal string) bool {
	for _, s := range b.Signals {
		if s.Signal == signal && s.Points > 0 {
			return true
		}
	}
	return false
}

// Indicators is the scalar snapshot the screener scores on.
type Indicators struct {
	RSI             float64  `json:"rsi"`
	MinRSI          float64  `json:"min_rsi"`
	AvgVolume       float64  `json:"avg_volume"`
	VolumeRatio     float64  `json:"volume_ratio"`
	PeakVolumeRatio float64  `json:"peak_volume_ratio"`
	RangePosition   float64  `json:"range_position"`
	HighProximity   float64  `json:"high_proximity"`
	SMA20           float64  `json:"sma20"`
	SMA50           float64  `json:"sma50,omitempty"`
	ShortFloatPct   *float64 `json:"short_float_pct,omitempty"`
	InsiderBuys     *int     `json:"insider_buys,omitempty"`
	CatalystHits    []string `json:"catalyst_hits,omitempty"`
}

// ScreeningResult is produced once per ticker per run and is not mutated after
// ranking. EntryPrice is the close of the bar dated EntryDate.
type ScreeningResult struct {
	Ticker     Ticker          `json:"ticker"`
	Score      float64         `json:"score"`
	Breakdown  ScoreBreakdown  `json:"score_breakdown"`
	Indicators Indicators      `json:"indicators"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	EntryDate  time.Time       `json:"entry_date"`
	Rank       int             `json:"rank"`
}

// Rejection records a ticker that did not make it through a stage.
type Rejection struct {
	Ticker     Ticker          `json:"ticker"`
	Stage      string          `json:"stage"`
	Kind       string          `json:"kind"`
	Reason     string          `json:"reason"`
	LastClose  decimal.Decimal `json:"last_close"`
	LastDate   time.Time       `json:"last_date"`
	HasLastBar bool            `json:"has_last_bar"`
}

// CatalystSignals are the off-chart inputs a catalyst provider reports. Nil
// fields were unavailable and score nothing.
type CatalystSignals struct {
	ShortFloatPct    *float64 `json:"short_float_pct,omitempty"`
	InsiderBuys      *int     `json:"insider_buys,omitempty"`
	NetInsiderShares *float64 `json:"net_insider_shares,omitempty"`
	Keywords         []string `json:"keywords,omitempty"`
}
