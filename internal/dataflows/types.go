package dataflows

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/dyike/GemScreener/models"
)

// BarSource returns daily bars for a symbol within [from, to], oldest first.
type BarSource interface {
	Name() string
	DailyBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error)
}

// ClientOptions are shared by the HTTP-backed providers.
type ClientOptions struct {
	BaseURL   string
	APIKey    string
	UserAgent string
	Timeout   time.Duration
	Cache     *CacheManager
	Limiter   *rate.Limiter
	Retry     *RetryConfig
}

func (o ClientOptions) timeout() time.Duration {
	if o.Timeout <= 0 {
		return 30 * time.Second
	}
	return o.Timeout
}

func (o ClientOptions) wait(ctx context.Context) error {
	if o.Limiter == nil {
		return nil
	}
	return o.Limiter.Wait(ctx)
}

// NewsArticle is a headline from a news provider.
type NewsArticle struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
	Keywords    []string  `json:"keywords,omitempty"`
}

// TickerDetails is the reference data Polygon reports for one symbol.
type TickerDetails struct {
	Symbol                      string `json:"ticker"`
	Name                        string `json:"name"`
	SICDescription              string `json:"sic_description"`
	ShareClassSharesOutstanding int64  `json:"share_class_shares_outstanding"`
	WeightedSharesOutstanding   int64  `json:"weighted_shares_outstanding"`
	Active                      bool   `json:"active"`
}

// ShortInterest is one settlement-date short interest report.
type ShortInterest struct {
	Symbol         string    `json:"ticker"`
	SettlementDate time.Time `json:"settlement_date"`
	ShortInterest  int64     `json:"short_interest"`
	AvgDailyVolume int64     `json:"avg_daily_volume"`
	DaysToCover    float64   `json:"days_to_cover"`
}

// Filing is one entry of an EDGAR submissions listing.
type Filing struct {
	Form            string    `json:"form"`
	FilingDate      time.Time `json:"filing_date"`
	AccessionNumber string    `json:"accession_number"`
	PrimaryDocument string    `json:"primary_document"`
}

// InsiderTransaction is a non-derivative Form 4 transaction.
type InsiderTransaction struct {
	Date     time.Time `json:"date"`
	Code     string    `json:"code"`
	Shares   float64   `json:"shares"`
	Acquired bool      `json:"acquired"`
}
