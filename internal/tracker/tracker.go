// Package tracker measures what happened to a ticker after its entry date and
// labels the outcome.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dyike/GemScreener/internal/dataflows"
	"github.com/dyike/GemScreener/internal/indicators"
	"github.com/dyike/GemScreener/models"
)

// ErrEntryMismatch means a re-fetched bar no longer closes at the recorded entry price.
var ErrEntryMismatch = errors.New("entry price mismatch")

var hundred = decimal.NewFromInt(100)

// Entry is where forward tracking starts.
type Entry struct {
	Symbol string
	Date   time.Time
	Price  decimal.Decimal
}

// EntryFromResult starts tracking at a selected result's entry bar.
func EntryFromResult(r models.ScreeningResult) Entry {
	return Entry{Symbol: r.Ticker.Symbol, Date: r.EntryDate, Price: r.EntryPrice}
}

// EntryFromRejection uses the last close on or before the screening date.
func EntryFromRejection(r models.Rejection) (Entry, error) {
	if !r.HasLastBar {
		return Entry{}, fmt.Errorf("%s rejected without a last bar: %w", r.Ticker.Symbol, indicators.ErrInsufficientData)
	}
	return Entry{Symbol: r.Ticker.Symbol, Date: r.LastDate, Price: r.LastClose}, nil
}

// Tracker fetches forward bars and labels outcomes under one scheme.
type Tracker struct {
	source dataflows.BarSource
	scheme Scheme
}

// New returns a Tracker reading from source. The scheme must validate.
func New(source dataflows.BarSource, scheme Scheme) (*Tracker, error) {
	if source == nil {
		return nil, errors.New("tracker needs a bar source")
	}
	if err := scheme.Validate(); err != nil {
		return nil, err
	}
	return &Tracker{source: source, scheme: scheme}, nil
}

func (t *Tracker) Scheme() Scheme { return t.scheme }

// Track fetches the horizonDays calendar days after the entry date and
// computes the outcome.
func (t *Tracker) Track(ctx context.Context, entry Entry, horizonDays int) (models.ForwardOutcome, error) {
	if horizonDays <= 0 {
		return models.ForwardOutcome{}, fmt.Errorf("horizon must be positive, got %d", horizonDays)
	}
	start := models.Day(entry.Date)
	end := start.AddDate(0, 0, horizonDays)

	bars, err := t.source.DailyBars(ctx, entry.Symbol, start.AddDate(0, 0, 1), end)
	if err != nil {
		if errors.Is(err, dataflows.ErrNotFound) {
			return models.ForwardOutcome{}, fmt.Errorf("%s: no bars after %s: %w",
				entry.Symbol, start.Format(models.DateLayout), indicators.ErrInsufficientData)
		}
		return models.ForwardOutcome{}, err
	}
	return Outcome(entry, window(bars, start, end), t.scheme)
}

// TrackRejected runs the same forward computation for a ticker the screener
// turned away.
func (t *Tracker) TrackRejected(ctx context.Context, r models.Rejection, horizonDays int) (models.ForwardOutcome, error) {
	entry, err := EntryFromRejection(r)
	if err != nil {
		return models.ForwardOutcome{}, err
	}
	return t.Track(ctx, entry, horizonDays)
}

// Outcome computes the forward outcome of entry over bars dated after it.
func Outcome(entry Entry, forward []models.Bar, scheme Scheme) (models.ForwardOutcome, error) {
	if !entry.Price.IsPositive() {
		return models.ForwardOutcome{}, fmt.Errorf("%s: entry price must be positive, got %s", entry.Symbol, entry.Price)
	}
	entryDay := models.Day(entry.Date)

	var after []models.Bar
	for _, b := range forward {
		if b.Day().After(entryDay) {
			after = append(after, b)
		}
	}
	if len(after) == 0 {
		return models.ForwardOutcome{}, fmt.Errorf("%s: no bars after %s: %w",
			entry.Symbol, entryDay.Format(models.DateLayout), indicators.ErrInsufficientData)
	}
	sort.SliceStable(after, func(i, j int) bool { return after[i].Date.Before(after[j].Date) })

	peak := after[0]
	minLow := after[0].Low
	for _, b := range after[1:] {
		if b.High.GreaterThan(peak.High) {
			peak = b
		}
		if b.Low.LessThan(minLow) {
			minLow = b.Low
		}
	}

	gain := pctChange(peak.High, entry.Price)
	drawdown := pctChange(minLow, entry.Price)

	sustainLevel := entry.Price.Mul(decimal.NewFromFloat(1 + scheme.SustainThresholdPct/100))
	daysAbove := 0
	for _, b := range after {
		if b.Close.GreaterThanOrEqual(sustainLevel) {
			daysAbove++
		}
	}

	explosive := scheme.Explosive(gain)
	return models.ForwardOutcome{
		Symbol:             entry.Symbol,
		EntryDate:          entryDay,
		EntryPrice:         entry.Price,
		MaxGainPct:         gain,
		MaxDrawdownPct:     drawdown,
		PeakDate:           peak.Day(),
		DaysToPeak:         int(peak.Day().Sub(entryDay).Hours() / 24),
		DaysAboveThreshold: daysAbove,
		Explosive:          explosive,
		PumpAndDump:        explosive && daysAbove < scheme.MinSustainDays,
		Classification:     scheme.Classify(gain),
		Scheme:             scheme.Name,
		ForwardBars:        len(after),
	}, nil
}

// VerifyEntry re-fetches the bar at the entry date and checks that it still
// closes at the recorded entry price.
func VerifyEntry(ctx context.Context, source dataflows.BarSource, r models.ScreeningResult) error {
	day := models.Day(r.EntryDate)
	bars, err := source.DailyBars(ctx, r.Ticker.Symbol, day, day)
	if err != nil {
		return err
	}
	for _, b := range bars {
		if !b.Day().Equal(day) {
			continue
		}
		if !b.Close.Equal(r.EntryPrice) {
			return fmt.Errorf("%s on %s: close %s, recorded %s: %w",
				r.Ticker.Symbol, day.Format(models.DateLayout), b.Close, r.EntryPrice, ErrEntryMismatch)
		}
		return nil
	}
	return fmt.Errorf("%s: no bar on %s: %w", r.Ticker.Symbol, day.Format(models.DateLayout), ErrEntryMismatch)
}

func pctChange(price, entry decimal.Decimal) float64 {
	return price.Sub(entry).Div(entry).Mul(hundred).InexactFloat64()
}

func window(bars []models.Bar, after, through time.Time) []models.Bar {
	out := make([]models.Bar, 0, len(bars))
	for _, b := range bars {
		d := b.Day()
		if d.After(after) && !d.After(through) {
			out = append(out, b)
		}
	}
	return out
}
