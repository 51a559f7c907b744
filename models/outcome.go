package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Classification is a discrete outcome label.
type Classification string

const (
	TruePositive Classification = "TRUE_POSITIVE"
	ModerateWin  Classification = "MODERATE_WIN"
	SmallWin     Classification = "SMALL_WIN"
	BreakEven    Classification = "BREAK_EVEN"
	Loss         Classification = "LOSS"
)

// Rank orders labels from worst (0) to best; unknown labels return -1.
func (c Classification) Rank() int {
	switch c {
	case Loss:
		return 0
	case BreakEven:
		return 1
	case SmallWin:
		return 2
	case ModerateWin:
		return 3
	case TruePositive:
		return 4
	default:
		return -1
	}
}

func (c Classification) Valid() bool {
	return c.Rank() >= 0
}

// ParseClassification accepts a label name.
func ParseClassification(s string) (Classification, error) {
	c := Classification(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown classification %q", s)
	}
	return c, nil
}

// ForwardOutcome is the best/worst case of a forward price window after entry.
type ForwardOutcome struct {
	Symbol             string          `json:"symbol"`
	EntryDate          time.Time       `json:"entry_date"`
	EntryPrice         decimal.Decimal `json:"entry_price"`
	MaxGainPct         float64         `json:"max_gain_pct"`
	MaxDrawdownPct     float64         `json:"max_drawdown_pct"`
	PeakDate           time.Time       `json:"peak_date"`
	DaysToPeak         int             `json:"days_to_peak"`
	DaysAboveThreshold int             `json:"days_above_threshold"`
	Explosive          bool            `json:"explosive"`
	PumpAndDump        bool            `json:"pump_and_dump"`
	Classification     Classification  `json:"classification"`
	Scheme             string          `json:"scheme"`
	ForwardBars        int             `json:"forward_bars"`
}
