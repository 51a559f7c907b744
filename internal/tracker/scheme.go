package tracker

import (
	"errors"
	"fmt"

	"github.com/dyike/GemScreener/models"
)

// Breakpoint assigns Label to gains of at least MinGainPct.
type Breakpoint struct {
	MinGainPct float64               `json:"min_gain_pct"`
	Label      models.Classification `json:"label"`
}

// Scheme is a named set of classification breakpoints plus the thresholds
// behind the explosive and pump-and-dump flags.
type Scheme struct {
	Name                  string       `json:"name"`
	Breakpoints           []Breakpoint `json:"breakpoints"`
	ExplosiveThresholdPct float64      `json:"explosive_threshold_pct"`
	SustainThresholdPct   float64      `json:"sustain_threshold_pct"`
	MinSustainDays        int          `json:"min_sustain_days"`
}

// NewScheme builds and validates a scheme.
func NewScheme(name string, breakpoints []Breakpoint, explosivePct, sustainPct float64, minSustainDays int) (Scheme, error) {
	s := Scheme{
		Name:                  name,
		Breakpoints:           append([]Breakpoint(nil), breakpoints...),
		ExplosiveThresholdPct: explosivePct,
		SustainThresholdPct:   sustainPct,
		MinSustainDays:        minSustainDays,
	}
	return s, s.Validate()
}

// Validate requires breakpoints whose gains and labels both strictly
// descend, which keeps Classify monotonic.
func (s Scheme) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("scheme needs a name"))
	}
	if len(s.Breakpoints) == 0 {
		errs = append(errs, fmt.Errorf("scheme %s has no breakpoints", s.Name))
	}
	for i, bp := range s.Breakpoints {
		if !bp.Label.Valid() {
			errs = append(errs, fmt.Errorf("scheme %s: unknown label %q", s.Name, bp.Label))
			continue
		}
		if i == 0 {
			continue
		}
		prev := s.Breakpoints[i-1]
		if bp.MinGainPct >= prev.MinGainPct {
			errs = append(errs, fmt.Errorf("scheme %s: breakpoint %v%% not below %v%%", s.Name, bp.MinGainPct, prev.MinGainPct))
		}
		if bp.Label.Rank() >= prev.Label.Rank() {
			errs = append(errs, fmt.Errorf("scheme %s: label %s not worse than %s", s.Name, bp.Label, prev.Label))
		}
	}
	if s.MinSustainDays < 0 {
		errs = append(errs, fmt.Errorf("scheme %s: min_sustain_days cannot be negative", s.Name))
	}
	return errors.Join(errs...)
}

// Classify maps a max gain to a label. Gains below every breakpoint are LOSS.
func (s Scheme) Classify(maxGainPct float64) models.Classification {
	for _, bp := range s.Breakpoints {
		if maxGainPct >= bp.MinGainPct {
			return bp.Label
		}
	}
	return models.Loss
}

// Explosive reports whether a gain crosses the scheme's explosive threshold.
func (s Scheme) Explosive(maxGainPct float64) bool {
	return maxGainPct >= s.ExplosiveThresholdPct
}

// Backtest is the scheme of the historical backtests: explosive at +100%.
func Backtest() Scheme {
	return Scheme{
		Name: "backtest",
		Breakpoints: []Breakpoint{
			{300, models.TruePositive},
			{100, models.ModerateWin},
			{25, models.SmallWin},
			{0, models.BreakEven},
		},
		ExplosiveThresholdPct: 100,
		SustainThresholdPct:   50,
		MinSustainDays:        5,
	}
}

// Phase4 is the live-screener scheme: explosive at +500%.
func Phase4() Scheme {
	return Scheme{
		Name: "phase4",
		Breakpoints: []Breakpoint{
			{500, models.TruePositive},
			{100, models.ModerateWin},
			{50, models.SmallWin},
			{0, models.BreakEven},
		},
		ExplosiveThresholdPct: 500,
		SustainThresholdPct:   100,
		MinSustainDays:        10,
	}
}

// BuiltinSchemes returns the shipped schemes keyed by name.
func BuiltinSchemes() map[string]Scheme {
	b, p := Backtest(), Phase4()
	return map[string]Scheme{b.Name: b, p.Name: p}
}
