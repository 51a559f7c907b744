package screener

import (
	"errors"
	"fmt"

	"github.com/dyike/GemScreener/models"
)

// Tier awards Points once its Threshold is crossed. When several tiers of a
// signal cross, the one worth the most points wins.
type Tier struct {
	Threshold float64 `json:"threshold"`
	Points    float64 `json:"points"`
}

// ScoringTable is one named set of signal weights.
type ScoringTable struct {
	Name string `json:"name"`

	VolumeTiers     []Tier `json:"volume_tiers"`      // peak volume ratio >= threshold
	RSITiers        []Tier `json:"rsi_tiers"`         // min RSI < threshold
	ShortFloatTiers []Tier `json:"short_float_tiers"` // short float pct >= threshold

	NearHighThreshold float64 `json:"near_high_threshold"` // close / 52w high
	NearHighPoints    float64 `json:"near_high_points"`

	InsiderBuyPoints float64 `json:"insider_buy_points"`
	MinInsiderBuys   int     `json:"min_insider_buys"`
	CatalystPoints   float64 `json:"catalyst_points"`

	CompositeMinSignals int     `json:"composite_min_signals"`
	CompositeBonus      float64 `json:"composite_bonus"`
}

func (t ScoringTable) Validate() error {
	var errs []error
	if t.Name == "" {
		errs = append(errs, fmt.Errorf("scoring table needs a name"))
	}
	for _, group := range [][]Tier{t.VolumeTiers, t.RSITiers, t.ShortFloatTiers} {
		for _, tier := range group {
			if tier.Points < 0 {
				errs = append(errs, fmt.Errorf("table %s: negative tier points %v", t.Name, tier.Points))
			}
		}
	}
	if t.NearHighThreshold < 0 || t.NearHighThreshold > 1 {
		errs = append(errs, fmt.Errorf("table %s: near_high_threshold must be within [0,1]", t.Name))
	}
	if t.CompositeBonus > 0 && t.CompositeMinSignals < 2 {
		errs = append(errs, fmt.Errorf("table %s: composite bonus needs composite_min_signals >= 2", t.Name))
	}
	return errors.Join(errs...)
}

// Score applies the table to an indicator snapshot.
func (t ScoringTable) Score(ind models.Indicators) models.ScoreBreakdown {
	var b models.ScoreBreakdown
	add := func(signal string, value, points float64) {
		if points > 0 {
			b.Signals = append(b.Signals, models.SignalScore{Signal: signal, Value: value, Points: points})
		}
	}

	add(models.SignalVolumeSpike, ind.PeakVolumeRatio, tierAtLeast(t.VolumeTiers, ind.PeakVolumeRatio))
	add(models.SignalRSIOversold, ind.MinRSI, tierBelow(t.RSITiers, ind.MinRSI))
	if t.NearHighPoints > 0 && ind.HighProximity >= t.NearHighThreshold {
		add(models.SignalNearHigh, ind.HighProximity, t.NearHighPoints)
	}
	if ind.ShortFloatPct != nil {
		add(models.SignalShortInterest, *ind.ShortFloatPct, tierAtLeast(t.ShortFloatTiers, *ind.ShortFloatPct))
	}
	if ind.InsiderBuys != nil && *ind.InsiderBuys > 0 && *ind.InsiderBuys >= t.MinInsiderBuys {
		add(models.SignalInsiderBuying, float64(*ind.InsiderBuys), t.InsiderBuyPoints)
	}
	if len(ind.CatalystHits) > 0 {
		add(models.SignalCatalyst, float64(len(ind.CatalystHits)), t.CatalystPoints)
	}

	if t.CompositeMinSignals > 0 && len(b.Signals) >= t.CompositeMinSignals {
		b.CompositeBonus = t.CompositeBonus
	}
	return b
}

func tierAtLeast(tiers []Tier, v float64) float64 {
	best := 0.0
	for _, tier := range tiers {
		if v >= tier.Threshold && tier.Points > best {
			best = tier.Points
		}
	}
	return best
}

func tierBelow(tiers []Tier, v float64) float64 {
	best := 0.0
	for _, tier := range tiers {
		if v < tier.Threshold && tier.Points > best {
			best = tier.Points
		}
	}
	return best
}
