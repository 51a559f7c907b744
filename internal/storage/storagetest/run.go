// Package storagetest holds a sample run shared by the backend tests.
package storagetest

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dyike/GemScreener/models"
)

// SampleRun returns a small, fully populated run.
func SampleRun(id string) *models.Run {
	asOf := time.Date(2024, 3, 29, 0, 0, 0, 0, time.UTC)
	started := time.Date(2024, 4, 1, 14, 30, 0, 0, time.UTC)
	entry := decimal.RequireFromString("1.70")

	errs := models.ErrorSummary{}
	errs.Record("filtered", "PRCY: price 12.00 above max 10", 5)
	errs.Record("not_found", "GONE: polygon GONE: not found", 5)

	return &models.Run{
		ID:          id,
		Profile:     "v6",
		Scheme:      "backtest",
		Universe:    "sample",
		AsOf:        asOf,
		HorizonDays: 30,
		TopN:        10,
		StartedAt:   started,
		FinishedAt:  started.Add(3 * time.Second),
		Screened:    4,
		Results: []models.ScreeningResult{
			{
				Ticker:     models.Ticker{Symbol: "SPKE", Sector: "Biotech"},
				Score:      80,
				Breakdown:  models.ScoreBreakdown{Signals: []models.SignalScore{{Signal: models.SignalVolumeSpike, Value: 10, Points: 50}}},
				Indicators: models.Indicators{RSI: 35, PeakVolumeRatio: 10},
				EntryPrice: entry,
				EntryDate:  asOf,
				Rank:       1,
			},
			{
				Ticker:     models.Ticker{Symbol: "FLAT"},
				Score:      20,
				EntryPrice: decimal.RequireFromString("2.198"),
				EntryDate:  asOf,
				Rank:       2,
			},
		},
		Rejected: []models.Rejection{
			{Ticker: models.Ticker{Symbol: "GONE"}, Stage: "REJECTED", Kind: "not_found", Reason: "no bars"},
			{Ticker: models.Ticker{Symbol: "PRCY"}, Stage: "REJECTED", Kind: "filtered", Reason: "price above max"},
		},
		Outcomes: []models.ForwardOutcome{
			{
				Symbol:         "SPKE",
				EntryDate:      asOf,
				EntryPrice:     entry,
				MaxGainPct:     200,
				MaxDrawdownPct: -5,
				Classification: models.ModerateWin,
				Scheme:         "backtest",
				ForwardBars:    20,
			},
		},
		DiscardOutcomes: []models.ForwardOutcome{
			{Symbol: "PRCY", EntryDate: asOf, EntryPrice: decimal.NewFromInt(12), MaxGainPct: 100, Classification: models.ModerateWin, Scheme: "backtest"},
		},
		Errors: errs,
		Stages: map[string]string{"SPKE": "CLASSIFIED", "FLAT": "TRACKED", "GONE": "REJECTED", "PRCY": "REJECTED"},
	}
}
