// Package universe resolves the list of tickers a run screens.
package universe

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dyike/GemScreener/internal/dataflows"
	"github.com/dyike/GemScreener/internal/logger"
	"github.com/dyike/GemScreener/models"
)

// Source yields the tickers of one universe.
type Source interface {
	Name() string
	Tickers(ctx context.Context) ([]models.Ticker, error)
}

// Static is a fixed list from configuration.
type Static struct {
	name    string
	tickers []models.Ticker
}

// NewStatic normalizes tickers into a named fixed universe.
func NewStatic(name string, tickers []models.Ticker) (*Static, error) {
	clean, err := Normalize(tickers)
	if err != nil {
		return nil, fmt.Errorf("universe %s: %w", name, err)
	}
	if len(clean) == 0 {
		return nil, fmt.Errorf("universe %s is empty", name)
	}
	return &Static{name: name, tickers: clean}, nil
}

func (s *Static) Name() string { return s.name }

func (s *Static) Tickers(ctx context.Context) ([]models.Ticker, error) {
	out := make([]models.Ticker, len(s.tickers))
	copy(out, s.tickers)
	return out, nil
}

// Normalize validates symbols and drops later duplicates, keeping order.
func Normalize(tickers []models.Ticker) ([]models.Ticker, error) {
	seen := make(map[string]bool, len(tickers))
	out := make([]models.Ticker, 0, len(tickers))
	for _, t := range tickers {
		sym, err := models.NormalizeSymbol(t.Symbol)
		if err != nil {
			return nil, err
		}
		if seen[sym] {
			continue
		}
		seen[sym] = true
		t.Symbol = sym
		out = append(out, t)
	}
	return out, nil
}

// TickerLister is the part of the Polygon client the universe needs.
type TickerLister interface {
	ListTickers(ctx context.Context, limit int) ([]string, error)
	TickerDetails(ctx context.Context, symbol string) (*dataflows.TickerDetails, error)
}

// Polygon lists active common stocks and optionally enriches each with its
// reference details.
type Polygon struct {
	client  TickerLister
	limit   int
	enrich  bool
	workers int
	log     logrus.FieldLogger
}

// NewPolygon lists up to limit tickers; enrich adds reference details.
func NewPolygon(client TickerLister, limit int, enrich bool) *Polygon {
	return &Polygon{client: client, limit: limit, enrich: enrich, workers: 8, log: logger.For("universe")}
}

func (p *Polygon) Name() string { return "polygon" }

func (p *Polygon) Tickers(ctx context.Context) ([]models.Ticker, error) {
	symbols, err := p.client.ListTickers(ctx, p.limit)
	if err != nil {
		return nil, fmt.Errorf("list tickers: %w", err)
	}

	tickers := make([]models.Ticker, 0, len(symbols))
	for _, s := range symbols {
		if t, err := models.NewTicker(s, ""); err == nil {
			tickers = append(tickers, t)
		}
	}
	tickers, err = Normalize(tickers)
	if err != nil {
		return nil, err
	}
	if !p.enrich {
		return tickers, nil
	}

	var mu sync.Mutex
	failed := 0
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := range tickers {
		g.Go(func() error {
			details, err := p.client.TickerDetails(gctx, tickers[i].Symbol)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			tickers[i] = Enrich(tickers[i], details)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if failed > 0 {
		p.log.WithField("failed", failed).Warn("some ticker details unavailable, screening them without metadata")
	}
	return tickers, nil
}

// Enrich fills sector and share counts from reference details. Polygon has no
// float field, so weighted shares outstanding stands in for it.
func Enrich(t models.Ticker, d *dataflows.TickerDetails) models.Ticker {
	if d == nil {
		return t
	}
	if t.Sector == "" {
		t.Sector = d.SICDescription
	}
	if t.SharesOutstanding == nil && d.ShareClassSharesOutstanding > 0 {
		t.SharesOutstanding = models.Int64(d.ShareClassSharesOutstanding)
	}
	if t.Float == nil && d.WeightedSharesOutstanding > 0 {
		t.Float = models.Int64(d.WeightedSharesOutstanding)
	}
	return t
}

// SharesLookup reports total and circulating shares for a symbol.
type SharesLookup interface {
	SharesInfo(ctx context.Context, symbol string) (total, circulating int64, err error)
}

// WithShares fills missing share counts of another source's tickers.
// Lookup failures leave the ticker unchanged.
type WithShares struct {
	Source
	lookup  SharesLookup
	workers int
}

// NewWithShares wraps src with share-count backfill from lookup.
func NewWithShares(src Source, lookup SharesLookup) *WithShares {
	return &WithShares{Source: src, lookup: lookup, workers: 4}
}

func (w *WithShares) Tickers(ctx context.Context) ([]models.Ticker, error) {
	tickers, err := w.Source.Tickers(ctx)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.workers)
	for i := range tickers {
		if tickers[i].Float != nil && tickers[i].SharesOutstanding != nil {
			continue
		}
		g.Go(func() error {
			total, circulating, err := w.lookup.SharesInfo(gctx, tickers[i].Symbol)
			if err != nil {
				return gctx.Err()
			}
			if tickers[i].SharesOutstanding == nil && total > 0 {
				tickers[i].SharesOutstanding = models.Int64(total)
			}
			if tickers[i].Float == nil && circulating > 0 {
				tickers[i].Float = models.Int64(circulating)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tickers, nil
}
