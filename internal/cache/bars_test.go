package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/GemScreener/internal/dataflows"
	"github.com/dyike/GemScreener/models"
)

type countingSource struct {
	calls atomic.Int32
	err   error
}

func (s *countingSource) Name() string { return "counting" }

func (s *countingSource) DailyBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	time.Sleep(5 * time.Millisecond)
	return []models.Bar{{Date: from, Close: decimal.NewFromInt(1), Volume: 100}}, nil
}

var (
	from = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	to   = time.Date(2024, 3, 29, 0, 0, 0, 0, time.UTC)
)

func TestBarCacheServesRepeatsFromMemory(t *testing.T) {
	src := &countingSource{}
	c := NewBarCache(src, time.Minute)

	_, err := c.DailyBars(context.Background(), "SNDL", from, to)
	require.NoError(t, err)
	bars, err := c.DailyBars(context.Background(), "SNDL", from, to)
	require.NoError(t, err)
	require.Len(t, bars, 1)

	assert.EqualValues(t, 1, src.calls.Load())
	entries, hits, misses := c.Stats()
	assert.Equal(t, 1, entries)
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)
	assert.Equal(t, "memory(counting)", c.Name())
}

func TestBarCacheExpires(t *testing.T) {
	src := &countingSource{}
	c := NewBarCache(src, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	_, err := c.DailyBars(context.Background(), "SNDL", from, to)
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	_, err = c.DailyBars(context.Background(), "SNDL", from, to)
	require.NoError(t, err)

	assert.EqualValues(t, 2, src.calls.Load())
}

func TestBarCacheSharesConcurrentFetches(t *testing.T) {
	src := &countingSource{}
	c := NewBarCache(src, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.DailyBars(context.Background(), "OCGN", from, to)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, src.calls.Load(), int32(8))
	entries, _, _ := c.Stats()
	assert.Equal(t, 1, entries)
}

func TestBarCacheDoesNotCacheErrors(t *testing.T) {
	src := &countingSource{err: dataflows.ErrNotFound}
	c := NewBarCache(src, time.Minute)

	_, err := c.DailyBars(context.Background(), "GONE", from, to)
	assert.ErrorIs(t, err, dataflows.ErrNotFound)
	_, err = c.DailyBars(context.Background(), "GONE", from, to)
	assert.ErrorIs(t, err, dataflows.ErrNotFound)

	assert.EqualValues(t, 2, src.calls.Load())
	entries, _, _ := c.Stats()
	assert.Equal(t, 0, entries)
}

func TestBarCacheReturnsCopies(t *testing.T) {
	c := NewBarCache(&countingSource{}, time.Minute)
	bars, err := c.DailyBars(context.Background(), "SNDL", from, to)
	require.NoError(t, err)
	bars[0].Volume = 0

	again, err := c.DailyBars(context.Background(), "SNDL", from, to)
	require.NoError(t, err)
	assert.EqualValues(t, 100, again[0].Volume)

	c.Clear()
	entries, _, _ := c.Stats()
	assert.Equal(t, 0, entries)
}
