package catalyst

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/GemScreener/internal/dataflows"
	"github.com/dyike/GemScreener/models"
)

var asOf = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

type fakeFilings struct {
	err error
}

func (f fakeFilings) CIK(ctx context.Context, symbol string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return 42, nil
}

func (f fakeFilings) Filings(ctx context.Context, cik int, forms []string, since, until time.Time) ([]dataflows.Filing, error) {
	switch forms[0] {
	case "4":
		return []dataflows.Filing{
			{Form: "4", FilingDate: asOf.AddDate(0, 0, -3), AccessionNumber: "a"},
			{Form: "4", FilingDate: asOf.AddDate(0, 0, -20), AccessionNumber: "b"},
		}, nil
	default:
		return []dataflows.Filing{{Form: "8-K", FilingDate: asOf.AddDate(0, 0, -2), AccessionNumber: "c"}}, nil
	}
}

func (f fakeFilings) InsiderTransactions(ctx context.Context, cik int, filing dataflows.Filing) ([]dataflows.InsiderTransaction, error) {
	if filing.AccessionNumber == "a" {
		return []dataflows.InsiderTransaction{{Code: "P", Shares: 10_000, Acquired: true}, {Code: "S", Shares: 2_000}}, nil
	}
	return []dataflows.InsiderTransaction{{Code: "P", Shares: 5_000, Acquired: true}, {Code: "A", Shares: 99_999, Acquired: true}}, nil
}

func (f fakeFilings) FilingText(ctx context.Context, cik int, filing dataflows.Filing) (string, error) {
	return "The Company entered into a definitive Merger Agreement. Unrelated: approvals pending.", nil
}

type fakeMarket struct {
	newsErr, shortErr error
}

func (m fakeMarket) News(ctx context.Context, symbol string, from, to time.Time) ([]dataflows.NewsArticle, error) {
	if m.newsErr != nil {
		return nil, m.newsErr
	}
	return []dataflows.NewsArticle{{Title: "GEM wins FDA nod", Description: "shares jump"}}, nil
}

func (m fakeMarket) LatestShortInterest(ctx context.Context, symbol string, asOf time.Time) (*dataflows.ShortInterest, error) {
	if m.shortErr != nil {
		return nil, m.shortErr
	}
	return &dataflows.ShortInterest{ShortInterest: 3_000_000}, nil
}

func TestSignalsCombinesSources(t *testing.T) {
	p, err := NewProvider(fakeFilings{}, fakeMarket{}, DefaultConfig())
	require.NoError(t, err)

	ticker := models.Ticker{Symbol: "GEM", Float: models.Int64(10_000_000)}
	sig, err := p.Signals(context.Background(), ticker, asOf)
	require.NoError(t, err)

	require.NotNil(t, sig.InsiderBuys)
	assert.Equal(t, 2, *sig.InsiderBuys)
	assert.Equal(t, 13_000.0, *sig.NetInsiderShares)
	require.NotNil(t, sig.ShortFloatPct)
	assert.InDelta(t, 30.0, *sig.ShortFloatPct, 1e-9)
	// "approvals" is not the whole word "approval".
	assert.Equal(t, []string{"FDA", "merger"}, sig.Keywords)
}

func TestSignalsPartialFailure(t *testing.T) {
	p, err := NewProvider(fakeFilings{err: errors.New("edgar down")}, fakeMarket{}, DefaultConfig())
	require.NoError(t, err)

	sig, err := p.Signals(context.Background(), models.Ticker{Symbol: "GEM"}, asOf)
	require.NoError(t, err)
	assert.Nil(t, sig.InsiderBuys)
	assert.Nil(t, sig.ShortFloatPct, "no float means no short float")
	assert.Equal(t, []string{"FDA"}, sig.Keywords)
}

func TestSignalsAllSourcesFail(t *testing.T) {
	down := errors.New("down")
	p, err := NewProvider(fakeFilings{err: down}, fakeMarket{newsErr: down, shortErr: down}, DefaultConfig())
	require.NoError(t, err)

	_, err = p.Signals(context.Background(), models.Ticker{Symbol: "GEM"}, asOf)
	assert.ErrorIs(t, err, down)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	cfg := DefaultConfig()
	cfg.Keywords = append(cfg.Keywords, " ")
	assert.Error(t, cfg.Validate())
}
