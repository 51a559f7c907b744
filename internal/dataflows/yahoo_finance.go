package dataflows

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"

	"github.com/dyike/GemScreener/models"
)

// YahooFinanceClient handles Yahoo Finance data operations
type YahooFinanceClient struct {
	opts ClientOptions
}

// NewYahooFinanceClient creates a new Yahoo Finance client
func NewYahooFinanceClient(opts ClientOptions) *YahooFinanceClient {
	return &YahooFinanceClient{opts: opts}
}

func (yf *YahooFinanceClient) Name() string { return "yahoo" }

// DailyBars gets historical daily bars for a symbol
func (yf *YahooFinanceClient) DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]models.Bar, error) {
	symbol, err := models.NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	cacheKey := map[string]interface{}{
		"symbol": symbol,
		"start":  start.Format(models.DateLayout),
		"end":    end.Format(models.DateLayout),
	}
	var cached []models.Bar
	if yf.opts.Cache.Get("yahoo", "historical", cacheKey, &cached) {
		return cached, nil
	}

	// chart.Get treats End as exclusive.
	endExclusive := models.Day(end).AddDate(0, 0, 1)

	var result []models.Bar
	err = WithRetry(ctx, yf.opts.Retry, func() error {
		if err := yf.opts.wait(ctx); err != nil {
			return err
		}

		params := &chart.Params{
			Symbol:   symbol,
			Start:    datetime.New(&start),
			End:      datetime.New(&endExclusive),
			Interval: datetime.OneDay,
		}

		iter := chart.Get(params)

		result = make([]models.Bar, 0)
		for iter.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			bar := iter.Bar()
			if bar.Close.IsZero() && bar.Volume == 0 {
				continue
			}
			result = append(result, models.Bar{
				Date:   models.Day(time.Unix(int64(bar.Timestamp), 0).UTC()),
				Open:   bar.Open,
				High:   bar.High,
				Low:    bar.Low,
				Close:  bar.Close,
				Volume: int64(bar.Volume),
			})
		}

		if err := iter.Err(); err != nil {
			return yahooError(symbol, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(result) == 0 {
		return nil, newSourceError(yf.Name(), symbol, ErrNotFound, 0,
			fmt.Errorf("no bars for %s", FormatDateRange(start, end)))
	}

	yf.opts.Cache.Set("yahoo", "historical", cacheKey, result)
	return result, nil
}

// yahooError maps finance-go errors, which carry no status, onto the taxonomy.
func yahooError(symbol string, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "too many"):
		return newSourceError("yahoo", symbol, ErrRateLimited, 429, err)
	case strings.Contains(msg, "not found") || strings.Contains(msg, "no data") || strings.Contains(msg, "404"):
		return newSourceError("yahoo", symbol, ErrNotFound, 0, err)
	case strings.Contains(msg, "unmarshal") || strings.Contains(msg, "invalid character"):
		return newSourceError("yahoo", symbol, ErrMalformed, 0, err)
	default:
		return newSourceError("yahoo", symbol, ErrNetwork, 0, err)
	}
}
