package config

import (
	"maps"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/dyike/GemScreener/internal/screener"
	"github.com/dyike/GemScreener/models"
)

// DefaultProfiles ships the four scoring tables in use. None is the default;
// commands take the profile by name.
func DefaultProfiles() map[string]screener.Profile {
	v6 := screener.Profile{
		Criteria: screener.DefaultCriteria(),
		Table: screener.ScoringTable{
			Name:              "v6",
			VolumeTiers:       []screener.Tier{{Threshold: 10, Points: 50}, {Threshold: 5, Points: 30}, {Threshold: 3, Points: 15}},
			RSITiers:          []screener.Tier{{Threshold: 30, Points: 30}, {Threshold: 40, Points: 15}},
			ShortFloatTiers:   []screener.Tier{{Threshold: 20, Points: 25}, {Threshold: 10, Points: 15}},
			NearHighThreshold: 0.9,
			NearHighPoints:    20,
			InsiderBuyPoints:  20,
			MinInsiderBuys:    1,
			CatalystPoints:    15,

			CompositeMinSignals: 3,
			CompositeBonus:      25,
		},
	}

	v4 := screener.Profile{
		Criteria: screener.DefaultCriteria(),
		Table: screener.ScoringTable{
			Name:              "v4final",
			VolumeTiers:       []screener.Tier{{Threshold: 5, Points: 40}, {Threshold: 3, Points: 20}},
			RSITiers:          []screener.Tier{{Threshold: 30, Points: 25}},
			ShortFloatTiers:   []screener.Tier{{Threshold: 15, Points: 20}},
			NearHighThreshold: 0.85,
			NearHighPoints:    15,
			InsiderBuyPoints:  15,
			MinInsiderBuys:    1,
			CatalystPoints:    10,

			CompositeMinSignals: 3,
			CompositeBonus:      20,
		},
	}
	v4.Criteria.MaxPrice = decimal.NewFromInt(5)

	phase4 := screener.Profile{
		Criteria: screener.DefaultCriteria(),
		Table: screener.ScoringTable{
			Name:              "phase4",
			VolumeTiers:       []screener.Tier{{Threshold: 10, Points: 60}, {Threshold: 5, Points: 35}},
			RSITiers:          []screener.Tier{{Threshold: 25, Points: 35}, {Threshold: 30, Points: 20}},
			ShortFloatTiers:   []screener.Tier{{Threshold: 30, Points: 30}, {Threshold: 20, Points: 20}},
			NearHighThreshold: 0.95,
			NearHighPoints:    25,
			InsiderBuyPoints:  25,
			MinInsiderBuys:    2,
			CatalystPoints:    20,

			CompositeMinSignals: 4,
			CompositeBonus:      40,
		},
	}
	phase4.Criteria.MaxFloat = models.Int64(50_000_000)
	phase4.Criteria.MinAvgVolume = 50_000

	// Historical screens have no point-in-time catalyst data, so only the
	// chart signals score.
	backtest := screener.Profile{
		Criteria: screener.DefaultCriteria(),
		Table: screener.ScoringTable{
			Name:              "backtest_v6",
			VolumeTiers:       []screener.Tier{{Threshold: 10, Points: 50}, {Threshold: 5, Points: 30}, {Threshold: 3, Points: 15}},
			RSITiers:          []screener.Tier{{Threshold: 30, Points: 30}, {Threshold: 40, Points: 15}},
			NearHighThreshold: 0.9,
			NearHighPoints:    20,

			CompositeMinSignals: 2,
			CompositeBonus:      20,
		},
	}

	return map[string]screener.Profile{
		v6.Table.Name:       v6,
		v4.Table.Name:       v4,
		phase4.Table.Name:   phase4,
		backtest.Table.Name: backtest,
	}
}

func DefaultUniverses() map[string][]models.Ticker {
	return map[string][]models.Ticker{
		"sample": {
			{Symbol: "SNDL"}, {Symbol: "OCGN"}, {Symbol: "GNUS"}, {Symbol: "FCEL"},
			{Symbol: "BNGO"}, {Symbol: "CTRM"}, {Symbol: "SENS"}, {Symbol: "ZOM"},
		},
		"biotech": {
			{Symbol: "OCGN", Sector: "Biotechnology"},
			{Symbol: "SENS", Sector: "Biotechnology"},
			{Symbol: "INO", Sector: "Biotechnology"},
			{Symbol: "VXRT", Sector: "Biotechnology"},
			{Symbol: "ATOS", Sector: "Biotechnology"},
			{Symbol: "CODX", Sector: "Diagnostics"},
		},
	}
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
