package dataflows

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/dyike/GemScreener/models"
)

const PolygonBaseURL = "https://api.polygon.io"

// PolygonClient handles Polygon.io REST operations
type PolygonClient struct {
	client *resty.Client
	opts   ClientOptions
}

// NewPolygonClient creates a new Polygon client
func NewPolygonClient(opts ClientOptions) *PolygonClient {
	if opts.BaseURL == "" {
		opts.BaseURL = PolygonBaseURL
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseURL)
	client.SetTimeout(opts.timeout())
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}

	return &PolygonClient{
		client: client,
		opts:   opts,
	}
}

func (pc *PolygonClient) Name() string { return "polygon" }

type polygonAgg struct {
	Open      decimal.Decimal `json:"o"`
	High      decimal.Decimal `json:"h"`
	Low       decimal.Decimal `json:"l"`
	Close     decimal.Decimal `json:"c"`
	Volume    float64         `json:"v"`
	Timestamp int64           `json:"t"`
}

type polygonAggsResponse struct {
	Ticker       string       `json:"ticker"`
	Status       string       `json:"status"`
	ResultsCount int          `json:"resultsCount"`
	Results      []polygonAgg `json:"results"`
	Error        string       `json:"error"`
}

// DailyBars gets daily aggregates for a symbol
func (pc *PolygonClient) DailyBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
	symbol, err := models.NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	cacheKey := map[string]interface{}{
		"symbol": symbol,
		"from":   from.Format(models.DateLayout),
		"to":     to.Format(models.DateLayout),
	}
	var cached []models.Bar
	if pc.opts.Cache.Get("polygon", "aggs", cacheKey, &cached) {
		return cached, nil
	}

	var payload polygonAggsResponse
	err = pc.get(ctx, symbol, "/v2/aggs/ticker/{ticker}/range/1/day/{from}/{to}",
		map[string]string{
			"ticker": symbol,
			"from":   from.Format(models.DateLayout),
			"to":     to.Format(models.DateLayout),
		},
		map[string]string{
			"adjusted": "true",
			"sort":     "asc",
			"limit":    "50000",
		}, &payload)
	if err != nil {
		return nil, err
	}

	if len(payload.Results) == 0 {
		return nil, newSourceError(pc.Name(), symbol, ErrNotFound, 0,
			fmt.Errorf("no aggregates for %s", FormatDateRange(from, to)))
	}

	bars := make([]models.Bar, 0, len(payload.Results))
	for _, agg := range payload.Results {
		bars = append(bars, models.Bar{
			Date:   models.Day(time.UnixMilli(agg.Timestamp).UTC()),
			Open:   agg.Open,
			High:   agg.High,
			Low:    agg.Low,
			Close:  agg.Close,
			Volume: int64(agg.Volume),
		})
	}

	pc.opts.Cache.Set("polygon", "aggs", cacheKey, bars)
	return bars, nil
}

type polygonTickerListResponse struct {
	Results []struct {
		Ticker string `json:"ticker"`
		Name   string `json:"name"`
		Type   string `json:"type"`
		Active bool   `json:"active"`
	} `json:"results"`
	NextURL string `json:"next_url"`
}

// ListTickers pages through active common stocks. limit caps the number of
// symbols returned; zero means all.
func (pc *PolygonClient) ListTickers(ctx context.Context, limit int) ([]string, error) {
	var symbols []string
	next := "/v3/reference/tickers"
	params := map[string]string{
		"market": "stocks",
		"type":   "CS",
		"active": "true",
		"limit":  "1000",
	}

	for next != "" {
		var page polygonTickerListResponse
		if err := pc.get(ctx, "", next, nil, params, &page); err != nil {
			return nil, err
		}
		for _, t := range page.Results {
			if t.Ticker == "" {
				continue
			}
			symbols = append(symbols, t.Ticker)
			if limit > 0 && len(symbols) >= limit {
				return symbols, nil
			}
		}
		// next_url already carries the cursor and filters.
		next = page.NextURL
		params = nil
	}
	return symbols, nil
}

// TickerDetails gets reference data for one symbol
func (pc *PolygonClient) TickerDetails(ctx context.Context, symbol string) (*TickerDetails, error) {
	symbol, err := models.NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	var cached TickerDetails
	if pc.opts.Cache.Get("polygon", "details", symbol, &cached) {
		return &cached, nil
	}

	var payload struct {
		Results *TickerDetails `json:"results"`
	}
	if err := pc.get(ctx, symbol, "/v3/reference/tickers/{ticker}", map[string]string{"ticker": symbol}, nil, &payload); err != nil {
		return nil, err
	}
	if payload.Results == nil {
		return nil, newSourceError(pc.Name(), symbol, ErrNotFound, 0, nil)
	}

	pc.opts.Cache.Set("polygon", "details", symbol, payload.Results)
	return payload.Results, nil
}

// News gets headlines mentioning a symbol within [from, to]
func (pc *PolygonClient) News(ctx context.Context, symbol string, from, to time.Time) ([]NewsArticle, error) {
	symbol, err := models.NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Results []struct {
			Title        string    `json:"title"`
			Description  string    `json:"description"`
			ArticleURL   string    `json:"article_url"`
			PublishedUTC time.Time `json:"published_utc"`
			Keywords     []string  `json:"keywords"`
			Publisher    struct {
				Name string `json:"name"`
			} `json:"publisher"`
		} `json:"results"`
	}
	err = pc.get(ctx, symbol, "/v2/reference/news", nil, map[string]string{
		"ticker":            symbol,
		"published_utc.gte": from.Format(models.DateLayout),
		"published_utc.lte": to.Format(models.DateLayout),
		"order":             "desc",
		"limit":             "50",
	}, &payload)
	if err != nil {
		return nil, err
	}

	articles := make([]NewsArticle, 0, len(payload.Results))
	for _, r := range payload.Results {
		articles = append(articles, NewsArticle{
			Title:       r.Title,
			Description: r.Description,
			URL:         r.ArticleURL,
			Source:      r.Publisher.Name,
			PublishedAt: r.PublishedUTC,
			Keywords:    r.Keywords,
		})
	}
	return articles, nil
}

// LatestShortInterest returns the most recent report settled on or before asOf.
func (pc *PolygonClient) LatestShortInterest(ctx context.Context, symbol string, asOf time.Time) (*ShortInterest, error) {
	symbol, err := models.NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Results []struct {
			Ticker         string  `json:"ticker"`
			SettlementDate string  `json:"settlement_date"`
			ShortInterest  int64   `json:"short_interest"`
			AvgDailyVolume int64   `json:"avg_daily_volume"`
			DaysToCover    float64 `json:"days_to_cover"`
		} `json:"results"`
	}
	err = pc.get(ctx, symbol, "/stocks/v1/short-interest", nil, map[string]string{
		"ticker":              symbol,
		"settlement_date.lte": asOf.Format(models.DateLayout),
		"sort":                "settlement_date.desc",
		"limit":               "1",
	}, &payload)
	if err != nil {
		return nil, err
	}
	if len(payload.Results) == 0 {
		return nil, newSourceError(pc.Name(), symbol, ErrNotFound, 0, fmt.Errorf("no short interest"))
	}

	r := payload.Results[0]
	settled, err := models.ParseDate(r.SettlementDate)
	if err != nil {
		return nil, newSourceError(pc.Name(), symbol, ErrMalformed, 0, err)
	}
	return &ShortInterest{
		Symbol:         r.Ticker,
		SettlementDate: settled,
		ShortInterest:  r.ShortInterest,
		AvgDailyVolume: r.AvgDailyVolume,
		DaysToCover:    r.DaysToCover,
	}, nil
}

// get performs a rate-limited, retried GET and decodes the JSON body into out.
func (pc *PolygonClient) get(ctx context.Context, symbol, path string, pathParams, query map[string]string, out interface{}) error {
	if pc.opts.APIKey == "" {
		return newSourceError(pc.Name(), symbol, ErrUnauthorized, 0, fmt.Errorf("POLYGON_API_KEY not configured"))
	}

	return WithRetry(ctx, pc.opts.Retry, func() error {
		if err := pc.opts.wait(ctx); err != nil {
			return err
		}

		req := pc.client.R().
			SetContext(ctx).
			SetQueryParam("apiKey", pc.opts.APIKey)
		if pathParams != nil {
			req.SetPathParams(pathParams)
		}
		if query != nil {
			req.SetQueryParams(query)
		}

		resp, err := req.Get(path)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return newSourceError(pc.Name(), symbol, ErrNetwork, 0, err)
		}

		if kind := statusKind(resp.StatusCode()); kind != nil {
			return newSourceError(pc.Name(), symbol, kind, resp.StatusCode(), fmt.Errorf("%s", truncate(resp.String(), 200)))
		}

		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return newSourceError(pc.Name(), symbol, ErrMalformed, resp.StatusCode(), err)
		}
		return nil
	})
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
