// Package screener decides whether a ticker passes a profile's filters as of a
// date and scores the ones that do.
package screener

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/dyike/GemScreener/internal/dataflows"
	"github.com/dyike/GemScreener/internal/indicators"
	"github.com/dyike/GemScreener/internal/logger"
	"github.com/dyike/GemScreener/models"
)

// FilterError is returned when a ticker fails an inclusion filter. It carries
// the last close so rejected tickers can still be tracked forward.
type FilterError struct {
	Filter    string
	Reason    string
	LastClose decimal.Decimal
	LastDate  time.Time
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("filtered by %s: %s", e.Filter, e.Reason)
}

// CatalystProvider supplies off-chart signals for tickers that passed the filters.
type CatalystProvider interface {
	Signals(ctx context.Context, ticker models.Ticker, asOf time.Time) (models.CatalystSignals, error)
}

// Profile pairs inclusion criteria with the table that scores survivors.
type Profile struct {
	Criteria Criteria     `json:"criteria"`
	Table    ScoringTable `json:"table"`
}

func (p Profile) Validate() error {
	return errors.Join(p.Criteria.Validate(), p.Table.Validate())
}

// Screener fetches bars for one profile and evaluates them.
type Screener struct {
	source   dataflows.BarSource
	profile  Profile
	catalyst CatalystProvider
	log      logrus.FieldLogger
}

// Option configures a Screener.
type Option func(*Screener)

// WithCatalyst adds off-chart signals from p to every passing ticker.
func WithCatalyst(p CatalystProvider) Option {
	return func(s *Screener) { s.catalyst = p }
}

// WithLogger replaces the screener logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Screener) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a screener over source. The profile is validated once here.
func New(source dataflows.BarSource, profile Profile, opts ...Option) (*Screener, error) {
	if source == nil {
		return nil, errors.New("screener needs a bar source")
	}
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile %s: %w", profile.Table.Name, err)
	}
	s := &Screener{source: source, profile: profile, log: logger.For("screener")}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Screener) Profile() Profile { return s.profile }

// Screen fetches enough history ending at asOf to cover both the trailing
// window and the 52-week high, then evaluates it.
func (s *Screener) Screen(ctx context.Context, ticker models.Ticker, asOf time.Time) (*models.ScreeningResult, error) {
	asOf = models.Day(asOf)
	from := asOf.AddDate(0, 0, -s.profile.Criteria.FetchDays())

	bars, err := s.source.DailyBars(ctx, ticker.Symbol, from, asOf)
	if err != nil {
		return nil, err
	}

	snap, err := s.profile.prepare(ticker, bars, asOf)
	if err != nil {
		return nil, err
	}

	if s.catalyst != nil {
		extras, err := s.catalyst.Signals(ctx, ticker, asOf)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.log.WithField("symbol", ticker.Symbol).Warnf("catalyst signals skipped: %v", err)
		} else {
			snap.apply(extras)
		}
	}
	return s.profile.result(snap), nil
}

// Evaluate is the pure form of Screen over bars already in hand. Bars older
// than the trailing lookback only feed the 52-week high.
func (p Profile) Evaluate(ticker models.Ticker, bars []models.Bar, asOf time.Time, extras *models.CatalystSignals) (*models.ScreeningResult, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile %s: %w", p.Table.Name, err)
	}
	snap, err := p.prepare(ticker, bars, models.Day(asOf))
	if err != nil {
		return nil, err
	}
	if extras != nil {
		snap.apply(*extras)
	}
	return p.result(snap), nil
}

type snapshot struct {
	ticker     models.Ticker
	last       models.Bar
	indicators models.Indicators
}

func (s *snapshot) apply(extras models.CatalystSignals) {
	s.indicators.ShortFloatPct = extras.ShortFloatPct
	s.indicators.InsiderBuys = extras.InsiderBuys
	s.indicators.CatalystHits = extras.Keywords
}

func (p Profile) result(snap *snapshot) *models.ScreeningResult {
	breakdown := p.Table.Score(snap.indicators)
	return &models.ScreeningResult{
		Ticker:     snap.ticker,
		Score:      breakdown.Total(),
		Breakdown:  breakdown,
		Indicators: snap.indicators,
		EntryPrice: snap.last.Close,
		EntryDate:  snap.last.Day(),
	}
}

func (p Profile) prepare(ticker models.Ticker, bars []models.Bar, asOf time.Time) (*snapshot, error) {
	c := p.Criteria

	history := trimAfter(bars, asOf)
	window := trailing(history, asOf.AddDate(0, 0, -c.LookbackDays))
	if len(window) == 0 || len(window) < c.MinBars {
		return nil, fmt.Errorf("%s has %d bars up to %s, need %d: %w",
			ticker.Symbol, len(window), asOf.Format(models.DateLayout), c.MinBars, indicators.ErrInsufficientData)
	}
	last := window[len(window)-1]
	series := indicators.FromBars(window)

	reject := func(filter, format string, args ...interface{}) error {
		return &FilterError{Filter: filter, Reason: fmt.Sprintf(format, args...), LastClose: last.Close, LastDate: last.Day()}
	}

	if last.Close.LessThan(c.MinPrice) {
		return nil, reject("price", "close %s below %s", last.Close, c.MinPrice)
	}
	if !c.MaxPrice.IsZero() && last.Close.GreaterThan(c.MaxPrice) {
		return nil, reject("price", "close %s above %s", last.Close, c.MaxPrice)
	}

	avgVolume, err := indicators.AverageVolume(series.Volumes, c.VolumePeriod)
	if err != nil {
		return nil, err
	}
	if avgVolume < float64(c.MinAvgVolume) {
		return nil, reject("volume", "average volume %.0f below %d", avgVolume, c.MinAvgVolume)
	}

	switch {
	case ticker.Float == nil && c.RequireFloat:
		return nil, reject("float", "float unknown")
	case ticker.Float != nil && c.MaxFloat != nil && *ticker.Float > *c.MaxFloat:
		return nil, reject("float", "float %d above %d", *ticker.Float, *c.MaxFloat)
	}

	if len(c.AllowSectors) > 0 && !sectorMatches(c.AllowSectors, ticker.Sector) {
		return nil, reject("sector", "sector %q not allowed", ticker.Sector)
	}
	if sectorMatches(c.DenySectors, ticker.Sector) {
		return nil, reject("sector", "sector %q denied", ticker.Sector)
	}

	ind, err := p.compute(series, yearHigh(history, c.HighWindow))
	if err != nil {
		return nil, err
	}
	ind.AvgVolume = avgVolume

	return &snapshot{ticker: ticker, last: last, indicators: ind}, nil
}

func (p Profile) compute(series indicators.Series, highOfYear float64) (models.Indicators, error) {
	c := p.Criteria
	var ind models.Indicators
	var err error

	if ind.RSI, err = indicators.RSI(series.Closes, c.RSIPeriod); err != nil {
		return ind, err
	}
	if ind.MinRSI, err = indicators.MinRSI(series.Closes, c.RSIPeriod, c.SignalWindow); err != nil {
		return ind, err
	}
	if ind.VolumeRatio, err = indicators.VolumeRatio(series.Volumes, c.VolumePeriod); err != nil {
		return ind, err
	}
	if ind.PeakVolumeRatio, err = indicators.PeakVolumeRatio(series.Volumes, c.VolumePeriod, c.SignalWindow); err != nil {
		return ind, err
	}

	n := len(series.Closes)
	lastClose := series.Closes[n-1]
	high, low, err := indicators.HighLow(series.Highs, series.Lows)
	if err != nil {
		return ind, err
	}
	ind.RangePosition = indicators.RangePosition(lastClose, low, high)

	if highOfYear > 0 {
		ind.HighProximity = lastClose / highOfYear
	}

	if v, err := indicators.SMA(series.Closes, 20); err == nil {
		ind.SMA20 = v
	}
	if v, err := indicators.SMA(series.Closes, 50); err == nil {
		ind.SMA50 = v
	}
	return ind, nil
}

// trimAfter returns the bars dated on or before asOf, oldest first.
func trimAfter(bars []models.Bar, asOf time.Time) []models.Bar {
	out := make([]models.Bar, 0, len(bars))
	for _, b := range bars {
		if !b.Day().After(asOf) {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// trailing returns the suffix of sorted bars dated on or after from.
func trailing(bars []models.Bar, from time.Time) []models.Bar {
	i := sort.Search(len(bars), func(i int) bool { return !bars[i].Day().Before(from) })
	return bars[i:]
}

// yearHigh is the highest high of the last window bars; zero window means all.
func yearHigh(bars []models.Bar, window int) float64 {
	if window > 0 && len(bars) > window {
		bars = bars[len(bars)-window:]
	}
	var high float64
	for _, b := range bars {
		if h := b.High.InexactFloat64(); h > high {
			high = h
		}
	}
	return high
}

// sectorMatches does a case-insensitive substring match, so "pharma" matches
// a SIC description like "PHARMACEUTICAL PREPARATIONS".
func sectorMatches(list []string, sector string) bool {
	sector = strings.ToLower(strings.TrimSpace(sector))
	if sector == "" {
		return false
	}
	for _, s := range list {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" && strings.Contains(sector, s) {
			return true
		}
	}
	return false
}
