// Package catalyst gathers the off-chart signals: insider buying from Form 4
// filings, keyword hits in 8-K filings and news, and short interest.
package catalyst

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dyike/GemScreener/internal/dataflows"
	"github.com/dyike/GemScreener/internal/logger"
	"github.com/dyike/GemScreener/models"
)

type Config struct {
	Keywords            []string `json:"keywords"`
	InsiderLookbackDays int      `json:"insider_lookback_days"`
	NewsLookbackDays    int      `json:"news_lookback_days"`
	MaxFilings          int      `json:"max_filings"` // per form, newest first
}

func DefaultConfig() Config {
	return Config{
		Keywords:            []string{"FDA", "approval", "merger", "acquisition", "earnings", "contract", "partnership", "offering"},
		InsiderLookbackDays: 90,
		NewsLookbackDays:    14,
		MaxFilings:          5,
	}
}

func (c Config) Validate() error {
	if c.InsiderLookbackDays < 0 || c.NewsLookbackDays < 0 || c.MaxFilings < 0 {
		return errors.New("catalyst lookbacks and max_filings cannot be negative")
	}
	for _, k := range c.Keywords {
		if strings.TrimSpace(k) == "" {
			return errors.New("catalyst keywords cannot be blank")
		}
	}
	return nil
}

// FilingSource is the EDGAR surface the provider reads.
type FilingSource interface {
	CIK(ctx context.Context, symbol string) (int, error)
	Filings(ctx context.Context, cik int, forms []string, since, until time.Time) ([]dataflows.Filing, error)
	InsiderTransactions(ctx context.Context, cik int, f dataflows.Filing) ([]dataflows.InsiderTransaction, error)
	FilingText(ctx context.Context, cik int, f dataflows.Filing) (string, error)
}

// MarketSource is the Polygon surface the provider reads.
type MarketSource interface {
	News(ctx context.Context, symbol string, from, to time.Time) ([]dataflows.NewsArticle, error)
	LatestShortInterest(ctx context.Context, symbol string, asOf time.Time) (*dataflows.ShortInterest, error)
}

// Provider implements screener.CatalystProvider. Either source may be nil.
type Provider struct {
	filings  FilingSource
	market   MarketSource
	cfg      Config
	patterns map[string]*regexp.Regexp
	log      logrus.FieldLogger
}

// NewProvider checks filings and market data against cfg.
func NewProvider(filings FilingSource, market MarketSource, cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	patterns := make(map[string]*regexp.Regexp, len(cfg.Keywords))
	for _, k := range cfg.Keywords {
		k = strings.TrimSpace(k)
		patterns[k] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(k) + `\b`)
	}
	return &Provider{
		filings:  filings,
		market:   market,
		cfg:      cfg,
		patterns: patterns,
		log:      logger.For("catalyst"),
	}, nil
}

// Signals collects whatever parts are available. It fails only when every
// configured part failed.
func (p *Provider) Signals(ctx context.Context, ticker models.Ticker, asOf time.Time) (models.CatalystSignals, error) {
	var out models.CatalystSignals
	var errs []error
	parts := 0
	hits := map[string]bool{}
	asOf = models.Day(asOf)
	log := p.log.WithField("symbol", ticker.Symbol)

	if p.filings != nil {
		parts++
		if err := p.fromFilings(ctx, ticker.Symbol, asOf, &out, hits); err != nil {
			log.Debugf("filings skipped: %v", err)
			errs = append(errs, err)
		}
	}

	if p.market != nil {
		parts++
		newsErr := p.fromNews(ctx, ticker.Symbol, asOf, hits)
		if newsErr != nil {
			log.Debugf("news skipped: %v", newsErr)
		}
		shortErr := p.fromShortInterest(ctx, ticker, asOf, &out)
		if shortErr != nil {
			log.Debugf("short interest skipped: %v", shortErr)
		}
		if newsErr != nil && shortErr != nil {
			errs = append(errs, newsErr, shortErr)
		}
	}

	for k := range hits {
		out.Keywords = append(out.Keywords, k)
	}
	sort.Strings(out.Keywords)

	if err := ctx.Err(); err != nil {
		return out, err
	}
	if parts > 0 && len(errs) >= parts {
		return out, fmt.Errorf("catalyst signals for %s: %w", ticker.Symbol, errors.Join(errs...))
	}
	return out, nil
}

func (p *Provider) fromFilings(ctx context.Context, symbol string, asOf time.Time, out *models.CatalystSignals, hits map[string]bool) error {
	cik, err := p.filings.CIK(ctx, symbol)
	if err != nil {
		return err
	}

	since := asOf.AddDate(0, 0, -p.cfg.InsiderLookbackDays)
	form4s, err := p.filings.Filings(ctx, cik, []string{"4"}, since, asOf)
	if err != nil {
		return err
	}
	buys, net := 0, 0.0
	for _, f := range newest(form4s, p.cfg.MaxFilings) {
		txns, err := p.filings.InsiderTransactions(ctx, cik, f)
		if err != nil {
			continue
		}
		for _, t := range txns {
			switch {
			case t.Code == "P" && t.Acquired:
				buys++
				net += t.Shares
			case t.Code == "S" && !t.Acquired:
				net -= t.Shares
			}
		}
	}
	out.InsiderBuys = &buys
	out.NetInsiderShares = &net

	newsSince := asOf.AddDate(0, 0, -p.cfg.NewsLookbackDays)
	eightKs, err := p.filings.Filings(ctx, cik, []string{"8-K"}, newsSince, asOf)
	if err != nil {
		return err
	}
	for _, f := range newest(eightKs, p.cfg.MaxFilings) {
		text, err := p.filings.FilingText(ctx, cik, f)
		if err != nil {
			continue
		}
		p.match(text, hits)
	}
	return nil
}

func (p *Provider) fromNews(ctx context.Context, symbol string, asOf time.Time, hits map[string]bool) error {
	articles, err := p.market.News(ctx, symbol, asOf.AddDate(0, 0, -p.cfg.NewsLookbackDays), asOf)
	if err != nil {
		return err
	}
	for _, a := range articles {
		p.match(a.Title+" "+a.Description, hits)
	}
	return nil
}

func (p *Provider) fromShortInterest(ctx context.Context, ticker models.Ticker, asOf time.Time, out *models.CatalystSignals) error {
	shares := ticker.Float
	if shares == nil {
		shares = ticker.SharesOutstanding
	}
	if shares == nil || *shares <= 0 {
		return errors.New("no float or shares outstanding to scale short interest")
	}
	si, err := p.market.LatestShortInterest(ctx, ticker.Symbol, asOf)
	if err != nil {
		return err
	}
	pct := float64(si.ShortInterest) / float64(*shares) * 100
	out.ShortFloatPct = &pct
	return nil
}

func (p *Provider) match(text string, hits map[string]bool) {
	for k, re := range p.patterns {
		if !hits[k] && re.MatchString(text) {
			hits[k] = true
		}
	}
}

func newest(filings []dataflows.Filing, limit int) []dataflows.Filing {
	sorted := append([]dataflows.Filing(nil), filings...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].FilingDate.After(sorted[j].FilingDate) })
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}
