package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/GemScreener/internal/dataflows"
	"github.com/dyike/GemScreener/internal/fixtures"
	"github.com/dyike/GemScreener/models"
)

var entryDay = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func entryAt(millis int64) Entry {
	return Entry{Symbol: "GEM", Date: entryDay, Price: decimal.New(millis, -3)}
}

func TestClassifyIsMonotonic(t *testing.T) {
	for _, scheme := range BuiltinSchemes() {
		prev := scheme.Classify(-100)
		for g := -100.0; g <= 1500; g += 0.5 {
			c := scheme.Classify(g)
			assert.GreaterOrEqual(t, c.Rank(), prev.Rank(), "%s at %v", scheme.Name, g)
			prev = c
		}
	}
}

func TestClassifyBoundaries(t *testing.T) {
	b := Backtest()
	assert.Equal(t, models.TruePositive, b.Classify(300))
	assert.Equal(t, models.ModerateWin, b.Classify(299.99))
	assert.Equal(t, models.SmallWin, b.Classify(25))
	assert.Equal(t, models.BreakEven, b.Classify(0))
	assert.Equal(t, models.Loss, b.Classify(-0.01))

	p := Phase4()
	assert.Equal(t, models.TruePositive, p.Classify(500))
	assert.Equal(t, models.SmallWin, p.Classify(50))
	assert.Equal(t, models.BreakEven, p.Classify(49))
}

func TestTripleHighUnderBothSchemes(t *testing.T) {
	forward := fixtures.Forward(entryDay,
		[]int64{1200, 1800, 3000, 2600, 2400},
		[]int64{950, 1100, 2000, 2100, 1900})

	backtest, err := Outcome(entryAt(1000), forward, Backtest())
	require.NoError(t, err)
	phase4, err := Outcome(entryAt(1000), forward, Phase4())
	require.NoError(t, err)

	assert.Equal(t, 200.0, backtest.MaxGainPct)
	assert.Equal(t, models.ModerateWin, backtest.Classification)
	assert.True(t, backtest.Explosive)

	assert.Equal(t, 200.0, phase4.MaxGainPct)
	assert.Equal(t, models.ModerateWin, phase4.Classification)
	assert.NotEqual(t, models.TruePositive, phase4.Classification)
	assert.False(t, phase4.Explosive)
	assert.False(t, phase4.PumpAndDump)

	assert.Equal(t, 3, backtest.DaysToPeak)
	assert.Equal(t, entryDay.AddDate(0, 0, 3), backtest.PeakDate)
	assert.Equal(t, -5.0, backtest.MaxDrawdownPct)
	assert.Equal(t, 5, backtest.ForwardBars)
}

func TestPumpAndDump(t *testing.T) {
	// Closes clear +50% on two days only, short of the five the scheme wants.
	forward := fixtures.Forward(entryDay,
		[]int64{1100, 2600, 2000, 1200, 1000, 900},
		[]int64{1000, 1800, 1400, 900, 800, 700})

	out, err := Outcome(entryAt(1000), forward, Backtest())
	require.NoError(t, err)
	assert.True(t, out.Explosive)
	assert.Equal(t, 2, out.DaysAboveThreshold)
	assert.True(t, out.PumpAndDump)
	assert.Equal(t, models.ModerateWin, out.Classification)
}

func TestOutcomeIgnoresBarsOnOrBeforeEntry(t *testing.T) {
	bars := fixtures.Forward(entryDay.AddDate(0, 0, -3), []int64{9000, 9000, 9000, 1100}, []int64{900, 900, 900, 1000})
	out, err := Outcome(entryAt(1000), bars, Backtest())
	require.NoError(t, err)
	assert.Equal(t, 1, out.ForwardBars)
	assert.InDelta(t, 10.0, out.MaxGainPct, 1e-9)
}

func TestOutcomeEmptyWindow(t *testing.T) {
	_, err := Outcome(entryAt(1000), nil, Backtest())
	assert.ErrorIs(t, err, dataflows.ErrInsufficientData)

	_, err = Outcome(Entry{Symbol: "GEM", Date: entryDay}, fixtures.Forward(entryDay, []int64{1}, []int64{1}), Backtest())
	assert.Error(t, err)
}

func TestNewSchemeRejectsUnorderedBreakpoints(t *testing.T) {
	_, err := NewScheme("bad", []Breakpoint{{100, models.ModerateWin}, {300, models.TruePositive}}, 100, 50, 5)
	assert.Error(t, err)

	_, err = NewScheme("bad-labels", []Breakpoint{{300, models.SmallWin}, {100, models.TruePositive}}, 100, 50, 5)
	assert.Error(t, err)

	_, err = NewScheme("empty", nil, 100, 50, 5)
	assert.Error(t, err)

	s, err := NewScheme("ok", Backtest().Breakpoints, 100, 50, 5)
	require.NoError(t, err)
	assert.Equal(t, models.TruePositive, s.Classify(1000))
}

type fixedSource struct {
	bars []models.Bar
	err  error
	from time.Time
	to   time.Time
}

func (f *fixedSource) Name() string { return "fixed" }

func (f *fixedSource) DailyBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
	f.from, f.to = from, to
	return f.bars, f.err
}

func TestTrackWindow(t *testing.T) {
	src := &fixedSource{bars: fixtures.Forward(entryDay, []int64{1100, 1500, 4000}, []int64{1000, 1000, 1000})}
	tr, err := New(src, Backtest())
	require.NoError(t, err)

	out, err := tr.Track(context.Background(), entryAt(1000), 2)
	require.NoError(t, err)
	assert.Equal(t, entryDay.AddDate(0, 0, 1), src.from)
	assert.Equal(t, entryDay.AddDate(0, 0, 2), src.to)
	assert.Equal(t, 2, out.ForwardBars, "bars past the horizon are dropped")
	assert.InDelta(t, 50.0, out.MaxGainPct, 1e-9)
}

func TestTrackNotFoundIsInsufficientData(t *testing.T) {
	tr, err := New(&fixedSource{err: dataflows.ErrNotFound}, Phase4())
	require.NoError(t, err)
	_, err = tr.Track(context.Background(), entryAt(1000), 30)
	assert.ErrorIs(t, err, dataflows.ErrInsufficientData)
}

func TestTrackRejected(t *testing.T) {
	src := &fixedSource{bars: fixtures.Forward(entryDay, []int64{2000}, []int64{1000})}
	tr, err := New(src, Backtest())
	require.NoError(t, err)

	_, err = tr.TrackRejected(context.Background(), models.Rejection{Ticker: models.Ticker{Symbol: "GEM"}}, 30)
	assert.ErrorIs(t, err, dataflows.ErrInsufficientData)

	out, err := tr.TrackRejected(context.Background(), models.Rejection{
		Ticker:     models.Ticker{Symbol: "GEM"},
		LastClose:  decimal.NewFromInt(1),
		LastDate:   entryDay,
		HasLastBar: true,
	}, 30)
	require.NoError(t, err)
	assert.Equal(t, 100.0, out.MaxGainPct)
	assert.True(t, out.Explosive)
}

func TestVerifyEntry(t *testing.T) {
	bar := models.Bar{Date: entryDay, Close: decimal.RequireFromString("1.23")}
	src := &fixedSource{bars: []models.Bar{bar}}
	res := models.ScreeningResult{Ticker: models.Ticker{Symbol: "GEM"}, EntryDate: entryDay, EntryPrice: decimal.RequireFromString("1.230")}

	assert.NoError(t, VerifyEntry(context.Background(), src, res))

	res.EntryPrice = decimal.RequireFromString("1.24")
	assert.ErrorIs(t, VerifyEntry(context.Background(), src, res), ErrEntryMismatch)

	res.EntryDate = entryDay.AddDate(0, 0, 1)
	assert.ErrorIs(t, VerifyEntry(context.Background(), src, res), ErrEntryMismatch)
}
