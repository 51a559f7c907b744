package universe

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/GemScreener/internal/dataflows"
	"github.com/dyike/GemScreener/models"
)

func TestStaticDedupsAndNormalizes(t *testing.T) {
	s, err := NewStatic("biotech", []models.Ticker{
		{Symbol: " ocgn ", Sector: "Biotech"},
		{Symbol: "SNDL"},
		{Symbol: "OCGN", Sector: "dup"},
	})
	require.NoError(t, err)

	got, err := s.Tickers(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "OCGN", got[0].Symbol)
	assert.Equal(t, "Biotech", got[0].Sector)
	assert.Equal(t, "SNDL", got[1].Symbol)
}

func TestStaticRejectsBadInput(t *testing.T) {
	_, err := NewStatic("empty", nil)
	assert.Error(t, err)

	_, err = NewStatic("blank", []models.Ticker{{Symbol: "  "}})
	assert.Error(t, err)
}

type fakeLister struct {
	symbols []string
	details map[string]*dataflows.TickerDetails
}

func (f fakeLister) ListTickers(ctx context.Context, limit int) ([]string, error) {
	if limit > 0 && limit < len(f.symbols) {
		return f.symbols[:limit], nil
	}
	return f.symbols, nil
}

func (f fakeLister) TickerDetails(ctx context.Context, symbol string) (*dataflows.TickerDetails, error) {
	if d, ok := f.details[symbol]; ok {
		return d, nil
	}
	return nil, errors.New("no details")
}

func TestPolygonEnriches(t *testing.T) {
	lister := fakeLister{
		symbols: []string{"AAA", "BBB", "AAA"},
		details: map[string]*dataflows.TickerDetails{
			"AAA": {Symbol: "AAA", SICDescription: "PHARMACEUTICAL PREPARATIONS", ShareClassSharesOutstanding: 30_000_000, WeightedSharesOutstanding: 28_000_000},
		},
	}

	got, err := NewPolygon(lister, 0, true).Tickers(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "PHARMACEUTICAL PREPARATIONS", got[0].Sector)
	require.NotNil(t, got[0].Float)
	assert.Equal(t, int64(28_000_000), *got[0].Float)
	assert.Nil(t, got[1].Float, "missing details leave fields unknown")
}

func TestPolygonWithoutEnrichment(t *testing.T) {
	got, err := NewPolygon(fakeLister{symbols: []string{"AAA", "BBB", "CCC"}}, 2, false).Tickers(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Empty(t, got[0].Sector)
}

type fakeShares map[string][2]int64

func (f fakeShares) SharesInfo(ctx context.Context, symbol string) (int64, int64, error) {
	v, ok := f[symbol]
	if !ok {
		return 0, 0, errors.New("unknown")
	}
	return v[0], v[1], nil
}

func TestWithSharesFillsMissingCounts(t *testing.T) {
	static, err := NewStatic("mixed", []models.Ticker{
		{Symbol: "AAA"},
		{Symbol: "BBB", Float: models.Int64(7)},
		{Symbol: "CCC"},
	})
	require.NoError(t, err)

	src := NewWithShares(static, fakeShares{
		"AAA": {1000, 600},
		"BBB": {900, 800},
	})
	assert.Equal(t, "mixed", src.Name())

	got, err := src.Tickers(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)

	require.NotNil(t, got[0].Float)
	assert.Equal(t, int64(600), *got[0].Float)
	assert.Equal(t, int64(1000), *got[0].SharesOutstanding)

	assert.Equal(t, int64(7), *got[1].Float)
	assert.Equal(t, int64(900), *got[1].SharesOutstanding)

	assert.Nil(t, got[2].Float)
}
