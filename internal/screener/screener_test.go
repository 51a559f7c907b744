package screener

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/GemScreener/internal/dataflows"
	"github.com/dyike/GemScreener/internal/fixtures"
	"github.com/dyike/GemScreener/models"
)

func testProfile() Profile {
	return Profile{
		Criteria: DefaultCriteria(),
		Table: ScoringTable{
			Name:              "test",
			VolumeTiers:       []Tier{{10, 50}, {5, 30}, {3, 15}},
			RSITiers:          []Tier{{30, 30}, {40, 15}},
			ShortFloatTiers:   []Tier{{20, 25}, {10, 15}},
			NearHighThreshold: 0.9,
			NearHighPoints:    20,
			InsiderBuyPoints:  20,
			MinInsiderBuys:    1,
			CatalystPoints:    15,

			CompositeMinSignals: 3,
			CompositeBonus:      25,
		},
	}
}

func lastDate(bars []models.Bar) time.Time {
	return bars[len(bars)-1].Date
}

func TestSpikeOutscoresFlat(t *testing.T) {
	p := testProfile()
	ticker := models.Ticker{Symbol: "SPKE"}

	spike := fixtures.Spike()
	spiked, err := p.Evaluate(ticker, spike, lastDate(spike), nil)
	require.NoError(t, err)

	flat := fixtures.Flat()
	steady, err := p.Evaluate(models.Ticker{Symbol: "FLAT"}, flat, lastDate(flat), nil)
	require.NoError(t, err)

	assert.InDelta(t, 10.0, spiked.Indicators.PeakVolumeRatio, 1e-9)
	assert.Less(t, spiked.Indicators.MinRSI, 30.0)
	assert.True(t, spiked.Breakdown.Fired(models.SignalVolumeSpike))
	assert.True(t, spiked.Breakdown.Fired(models.SignalRSIOversold))
	assert.Equal(t, 80.0, spiked.Score)

	assert.InDelta(t, 55.0, steady.Indicators.RSI, 1e-9)
	assert.False(t, steady.Breakdown.Fired(models.SignalVolumeSpike))
	assert.Greater(t, spiked.Score, steady.Score)
}

func TestCompositeBonus(t *testing.T) {
	p := testProfile()
	spike := fixtures.Spike()
	short := 25.0
	res, err := p.Evaluate(models.Ticker{Symbol: "SPKE"}, spike, lastDate(spike), &models.CatalystSignals{ShortFloatPct: &short})
	require.NoError(t, err)

	assert.True(t, res.Breakdown.Fired(models.SignalShortInterest))
	assert.Equal(t, 25.0, res.Breakdown.CompositeBonus)
	assert.Equal(t, 50.0+30.0+25.0+25.0, res.Score)
}

func TestEntryPriceIsCloseAtEntryDate(t *testing.T) {
	p := testProfile()
	bars := fixtures.Spike()
	asOf := bars[60].Date

	res, err := p.Evaluate(models.Ticker{Symbol: "SPKE"}, bars, asOf, nil)
	require.NoError(t, err)
	assert.Equal(t, asOf, res.EntryDate)
	assert.True(t, bars[60].Close.Equal(res.EntryPrice))
}

func TestRejectsShortHistory(t *testing.T) {
	p := testProfile()
	bars := fixtures.Spike()[:p.Criteria.MinBars-1]

	_, err := p.Evaluate(models.Ticker{Symbol: "NEW"}, bars, lastDate(bars), nil)
	assert.ErrorIs(t, err, dataflows.ErrInsufficientData)

	var fe *FilterError
	assert.False(t, errors.As(err, &fe))
}

func TestFilters(t *testing.T) {
	bars := fixtures.Spike()

	cases := []struct {
		name   string
		mutate func(p *Profile, tk *models.Ticker)
		filter string
	}{
		{"price ceiling", func(p *Profile, tk *models.Ticker) { p.Criteria.MaxPrice = decimal.NewFromInt(1) }, "price"},
		{"price floor", func(p *Profile, tk *models.Ticker) { p.Criteria.MinPrice = decimal.NewFromInt(5); p.Criteria.MaxPrice = decimal.Zero }, "price"},
		{"volume", func(p *Profile, tk *models.Ticker) { p.Criteria.MinAvgVolume = 1_000_000 }, "volume"},
		{"float ceiling", func(p *Profile, tk *models.Ticker) {
			p.Criteria.MaxFloat = models.Int64(20_000_000)
			tk.Float = models.Int64(50_000_000)
		}, "float"},
		{"float required", func(p *Profile, tk *models.Ticker) { p.Criteria.RequireFloat = true }, "float"},
		{"sector allow", func(p *Profile, tk *models.Ticker) {
			p.Criteria.AllowSectors = []string{"pharma"}
			tk.Sector = "Crude Petroleum"
		}, "sector"},
		{"sector deny", func(p *Profile, tk *models.Ticker) {
			p.Criteria.DenySectors = []string{"blank check"}
			tk.Sector = "BLANK CHECKS"
		}, "sector"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := testProfile()
			tk := models.Ticker{Symbol: "SPKE"}
			tc.mutate(&p, &tk)

			_, err := p.Evaluate(tk, bars, lastDate(bars), nil)
			var fe *FilterError
			require.True(t, errors.As(err, &fe), "expected filter error, got %v", err)
			assert.Equal(t, tc.filter, fe.Filter)
			assert.True(t, bars[len(bars)-1].Close.Equal(fe.LastClose))
		})
	}
}

func TestUnknownFloatPassesByDefault(t *testing.T) {
	p := testProfile()
	p.Criteria.MaxFloat = models.Int64(20_000_000)
	bars := fixtures.Spike()
	_, err := p.Evaluate(models.Ticker{Symbol: "SPKE"}, bars, lastDate(bars), nil)
	assert.NoError(t, err)
}

func TestCriteriaValidate(t *testing.T) {
	assert.NoError(t, DefaultCriteria().Validate())

	c := DefaultCriteria()
	c.MinBars = 5
	assert.Error(t, c.Validate())

	c = DefaultCriteria()
	c.MaxPrice = decimal.RequireFromString("0.25")
	assert.Error(t, c.Validate())
}

type barsOnly struct {
	bars []models.Bar
	err  error
}

func (b barsOnly) Name() string { return "fixture" }

func (b barsOnly) DailyBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
	return b.bars, b.err
}

type failingCatalyst struct{}

func (failingCatalyst) Signals(ctx context.Context, ticker models.Ticker, asOf time.Time) (models.CatalystSignals, error) {
	return models.CatalystSignals{}, errors.New("edgar down")
}

func TestScreenSurvivesCatalystFailure(t *testing.T) {
	bars := fixtures.Spike()
	s, err := New(barsOnly{bars: bars}, testProfile(), WithCatalyst(failingCatalyst{}))
	require.NoError(t, err)

	res, err := s.Screen(context.Background(), models.Ticker{Symbol: "SPKE"}, lastDate(bars))
	require.NoError(t, err)
	assert.Equal(t, 80.0, res.Score)
}

func TestScreenPropagatesSourceErrors(t *testing.T) {
	s, err := New(barsOnly{err: dataflows.ErrNotFound}, testProfile())
	require.NoError(t, err)

	_, err = s.Screen(context.Background(), models.Ticker{Symbol: "GONE"}, time.Now())
	assert.ErrorIs(t, err, dataflows.ErrNotFound)
}

// rangeSource serves only the bars inside the requested window and records it.
type rangeSource struct {
	bars     []models.Bar
	from, to time.Time
}

func (r *rangeSource) Name() string { return "range" }

func (r *rangeSource) DailyBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
	r.from, r.to = from, to
	var out []models.Bar
	for _, b := range r.bars {
		if !b.Date.Before(from) && !b.Date.After(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

func TestScreenFetchesFullYearForHighProximity(t *testing.T) {
	closes := make([]int64, 300)
	volumes := make([]int64, 300)
	for i := range closes {
		closes[i] = 2000
		if i < 100 {
			closes[i] = 10000
		}
		volumes[i] = 100_000
	}
	bars := fixtures.Series(closes, volumes, 10)
	asOf := lastDate(bars)

	src := &rangeSource{bars: bars}
	s, err := New(src, testProfile())
	require.NoError(t, err)

	res, err := s.Screen(context.Background(), models.Ticker{Symbol: "FADE"}, asOf)
	require.NoError(t, err)

	assert.Equal(t, asOf.AddDate(0, 0, -testProfile().Criteria.FetchDays()), src.from)
	assert.InDelta(t, 2.0/10.01, res.Indicators.HighProximity, 1e-9)
	assert.False(t, res.Breakdown.Fired(models.SignalNearHigh))
	// Range position stays on the trailing window, which is all $2.00.
	assert.InDelta(t, 0.5, res.Indicators.RangePosition, 1e-9)
}

func TestFetchDaysCoversHighWindow(t *testing.T) {
	c := DefaultCriteria()
	assert.Equal(t, 366, c.FetchDays())

	c.HighWindow = 0
	assert.Equal(t, c.LookbackDays, c.FetchDays())

	c.HighWindow = 20
	assert.Equal(t, c.LookbackDays, c.FetchDays())
}

func TestEvaluateRejectsZeroProfile(t *testing.T) {
	var p Profile
	assert.NotPanics(t, func() {
		_, err := p.Evaluate(models.Ticker{Symbol: "NONE"}, nil, time.Now(), nil)
		assert.Error(t, err)
	})
}
