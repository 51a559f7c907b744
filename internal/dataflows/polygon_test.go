package dataflows

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() *RetryConfig {
	return &RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestPolygonDailyBars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/aggs/ticker/ABCD/range/1/day/2024-01-02/2024-01-03", r.URL.Path)
		assert.Equal(t, "k", r.URL.Query().Get("apiKey"))
		assert.Equal(t, "true", r.URL.Query().Get("adjusted"))
		assert.Equal(t, "asc", r.URL.Query().Get("sort"))
		w.Write([]byte(`{"ticker":"ABCD","status":"OK","resultsCount":2,"results":[
			{"o":1.10,"h":1.25,"l":1.05,"c":1.20,"v":150000,"t":1704171600000},
			{"o":1.20,"h":1.40,"l":1.18,"c":1.35,"v":420000.0,"t":1704258000000}]}`))
	}))
	defer srv.Close()

	pc := NewPolygonClient(ClientOptions{BaseURL: srv.URL, APIKey: "k", Retry: fastRetry()})
	from := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)

	bars, err := pc.DailyBars(context.Background(), "abcd", from, to)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, from, bars[0].Date)
	assert.True(t, decimal.RequireFromString("1.2").Equal(bars[0].Close))
	assert.True(t, decimal.RequireFromString("1.35").Equal(bars[1].Close))
	assert.Equal(t, int64(420000), bars[1].Volume)
}

func TestPolygonErrorKinds(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		kind   error
	}{
		{"rate limited", http.StatusTooManyRequests, `{}`, ErrRateLimited},
		{"not found", http.StatusNotFound, `{}`, ErrNotFound},
		{"unauthorized", http.StatusForbidden, `{}`, ErrUnauthorized},
		{"server error", http.StatusBadGateway, `{}`, ErrNetwork},
		{"empty results", http.StatusOK, `{"results":[]}`, ErrNotFound},
		{"bad json", http.StatusOK, `{"results":`, ErrMalformed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			pc := NewPolygonClient(ClientOptions{BaseURL: srv.URL, APIKey: "k", Retry: fastRetry()})
			_, err := pc.DailyBars(context.Background(), "ABCD", time.Now().AddDate(0, 0, -5), time.Now())
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.kind)

			var se *SourceError
			assert.True(t, errors.As(err, &se))
		})
	}
}

func TestPolygonRetriesRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"results":[{"o":1,"h":1,"l":1,"c":1,"v":10,"t":1704171600000}]}`))
	}))
	defer srv.Close()

	pc := NewPolygonClient(ClientOptions{BaseURL: srv.URL, APIKey: "k", Retry: fastRetry()})
	bars, err := pc.DailyBars(context.Background(), "ABCD", time.Now().AddDate(0, 0, -5), time.Now())
	require.NoError(t, err)
	assert.Len(t, bars, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestPolygonRequiresKey(t *testing.T) {
	pc := NewPolygonClient(ClientOptions{BaseURL: "http://127.0.0.1:1"})
	_, err := pc.DailyBars(context.Background(), "ABCD", time.Now(), time.Now())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestPolygonListTickersFollowsNextURL(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cursor") == "" {
			w.Write([]byte(`{"results":[{"ticker":"AAA"},{"ticker":""},{"ticker":"BBB"}],"next_url":"` + srv.URL + `/v3/reference/tickers?cursor=2"}`))
			return
		}
		w.Write([]byte(`{"results":[{"ticker":"CCC"}]}`))
	}))
	defer srv.Close()

	pc := NewPolygonClient(ClientOptions{BaseURL: srv.URL, APIKey: "k", Retry: fastRetry()})
	symbols, err := pc.ListTickers(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB", "CCC"}, symbols)

	limited, err := pc.ListTickers(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB"}, limited)
}

func TestPolygonTickerDetailsAndShortInterest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v3/reference/tickers/ABCD":
			w.Write([]byte(`{"results":{"ticker":"ABCD","name":"Abcd Inc","sic_description":"PHARMACEUTICAL PREPARATIONS","share_class_shares_outstanding":12000000,"weighted_shares_outstanding":11000000,"active":true}}`))
		case "/stocks/v1/short-interest":
			assert.Equal(t, "2024-03-01", r.URL.Query().Get("settlement_date.lte"))
			w.Write([]byte(`{"results":[{"ticker":"ABCD","settlement_date":"2024-02-15","short_interest":2400000,"avg_daily_volume":300000,"days_to_cover":8}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	pc := NewPolygonClient(ClientOptions{BaseURL: srv.URL, APIKey: "k", Retry: fastRetry()})
	details, err := pc.TickerDetails(context.Background(), "ABCD")
	require.NoError(t, err)
	assert.Equal(t, "PHARMACEUTICAL PREPARATIONS", details.SICDescription)
	assert.Equal(t, int64(12000000), details.ShareClassSharesOutstanding)

	si, err := pc.LatestShortInterest(context.Background(), "ABCD", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(2400000), si.ShortInterest)
	assert.Equal(t, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), si.SettlementDate)
}
