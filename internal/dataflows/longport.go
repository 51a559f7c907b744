package dataflows

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	lpconfig "github.com/longportapp/openapi-go/config"
	"github.com/longportapp/openapi-go/quote"

	"github.com/dyike/GemScreener/models"
)

// maxLongportCandles is the most daily candles one request returns.
const maxLongportCandles = 1000

// LongportCredentials are the OpenAPI app key, secret and access token.
type LongportCredentials struct {
	AppKey      string
	AppSecret   string
	AccessToken string
}

func (c LongportCredentials) Complete() bool {
	return c.AppKey != "" && c.AppSecret != "" && c.AccessToken != ""
}

// LongportClient reads daily candles over the Longport quote API.
type LongportClient struct {
	quoteCtx *quote.QuoteContext
	opts     ClientOptions
}

// NewLongportClient connects a quote context with creds.
func NewLongportClient(creds LongportCredentials, opts ClientOptions) (*LongportClient, error) {
	if !creds.Complete() {
		return nil, newSourceError("longport", "", ErrUnauthorized, 0, errors.New("longport API credentials not configured"))
	}

	conf, err := lpconfig.New(lpconfig.WithConfigKey(creds.AppKey, creds.AppSecret, creds.AccessToken))
	if err != nil {
		return nil, err
	}

	quoteContext, err := quote.NewFromCfg(conf)
	if err != nil {
		return nil, err
	}

	return &LongportClient{
		quoteCtx: quoteContext,
		opts:     opts,
	}, nil
}

func (lpc *LongportClient) Name() string { return "longport" }

// Close releases the quote connection.
func (lpc *LongportClient) Close() {
	if lpc.quoteCtx != nil {
		lpc.quoteCtx.Close()
	}
}

// longportSymbol maps a US ticker onto Longport's market-suffixed form.
func longportSymbol(symbol string) string {
	if strings.Contains(symbol, ".") {
		return symbol
	}
	return symbol + ".US"
}

// longportGapSlack is how far the first candle may sit after the requested
// start before the history counts as truncated: a long weekend plus a holiday.
const longportGapSlack = 4 * 24 * time.Hour

// candleCount is how many trailing daily candles reach back to from. Capped
// reports the request hit maxLongportCandles.
func candleCount(now, from time.Time) (count int, capped bool) {
	count = int(now.Sub(from).Hours()/24) + 1
	switch {
	case count > maxLongportCandles:
		return maxLongportCandles, true
	case count < 1:
		return 1, false
	}
	return count, false
}

// DailyBars requests enough trailing daily candles to cover from and keeps
// those inside [from, to].
func (lpc *LongportClient) DailyBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
	symbol, err := models.NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if lpc.quoteCtx == nil {
		return nil, errors.New("quote context is nil")
	}

	// Candlesticks counts back from today, not from to.
	count, capped := candleCount(time.Now(), from)

	var sticks []*quote.Candlestick
	err = WithRetry(ctx, lpc.opts.Retry, func() error {
		if err := lpc.opts.wait(ctx); err != nil {
			return err
		}
		var err error
		sticks, err = lpc.quoteCtx.Candlesticks(ctx, longportSymbol(symbol), quote.PeriodDay, int32(count), quote.AdjustTypeForward)
		if err != nil {
			return longportError(symbol, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return candleBars(symbol, sticks, from, to, capped)
}

// candleBars converts candles to bars inside [from, to]. When the request was
// capped and the candles start well after from, the older part of the window
// is out of reach; that is reported as not found so a fallback can serve it.
func candleBars(symbol string, sticks []*quote.Candlestick, from, to time.Time, capped bool) ([]models.Bar, error) {
	lo, hi := models.Day(from), models.Day(to)
	bars := make([]models.Bar, 0, len(sticks))
	var earliest time.Time
	for _, s := range sticks {
		if s == nil || s.Close == nil || s.Open == nil || s.High == nil || s.Low == nil {
			continue
		}
		day := models.Day(time.Unix(s.Timestamp, 0).UTC())
		if earliest.IsZero() || day.Before(earliest) {
			earliest = day
		}
		if day.Before(lo) || day.After(hi) {
			continue
		}
		bars = append(bars, models.Bar{
			Date:   day,
			Open:   *s.Open,
			High:   *s.High,
			Low:    *s.Low,
			Close:  *s.Close,
			Volume: s.Volume,
		})
	}

	if capped && !earliest.IsZero() && earliest.Sub(lo) > longportGapSlack {
		return nil, newSourceError("longport", symbol, ErrNotFound, 0,
			fmt.Errorf("candles start %s, after requested %s", earliest.Format(models.DateLayout), lo.Format(models.DateLayout)))
	}
	if len(bars) == 0 {
		return nil, newSourceError("longport", symbol, ErrNotFound, 0,
			fmt.Errorf("no candles for %s", FormatDateRange(from, to)))
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

// SharesInfo returns total and circulating shares for a symbol.
func (lpc *LongportClient) SharesInfo(ctx context.Context, symbol string) (total, circulating int64, err error) {
	if lpc.quoteCtx == nil {
		return 0, 0, errors.New("quote context is nil")
	}
	infos, err := lpc.quoteCtx.StaticInfo(ctx, []string{longportSymbol(symbol)})
	if err != nil {
		return 0, 0, longportError(symbol, err)
	}
	if len(infos) == 0 || infos[0] == nil {
		return 0, 0, newSourceError(lpc.Name(), symbol, ErrNotFound, 0, nil)
	}
	return infos[0].TotalShares, infos[0].CirculatingShares, nil
}

func longportError(symbol string, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many"):
		return newSourceError("longport", symbol, ErrRateLimited, 0, err)
	case strings.Contains(msg, "not found") || strings.Contains(msg, "invalid symbol"):
		return newSourceError("longport", symbol, ErrNotFound, 0, err)
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "token"):
		return newSourceError("longport", symbol, ErrUnauthorized, 0, err)
	default:
		return newSourceError("longport", symbol, ErrNetwork, 0, err)
	}
}
