package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/dyike/GemScreener/internal/dataflows"
	"github.com/dyike/GemScreener/internal/logger"
	"github.com/dyike/GemScreener/models"
)

// DefaultBarTTL bounds how long a bar series stays in memory. Long-running
// scans refetch after this so intraday corrections are picked up.
const DefaultBarTTL = 5 * time.Minute

type cachedBars struct {
	bars      []models.Bar
	timestamp time.Time
}

// BarCache is an in-memory layer over a BarSource. Concurrent requests for
// the same series share one upstream call.
type BarCache struct {
	source dataflows.BarSource
	ttl    time.Duration
	now    func() time.Time

	mu     sync.RWMutex
	memory map[string]cachedBars
	group  singleflight.Group
	hits   int
	misses int
	log    logrus.FieldLogger
}

// NewBarCache caches source's bars for ttl.
func NewBarCache(source dataflows.BarSource, ttl time.Duration) *BarCache {
	if ttl <= 0 {
		ttl = DefaultBarTTL
	}
	return &BarCache{
		source: source,
		ttl:    ttl,
		now:    time.Now,
		memory: make(map[string]cachedBars),
		log:    logger.For("cache"),
	}
}

func (c *BarCache) Name() string { return "memory(" + c.source.Name() + ")" }

func key(symbol string, from, to time.Time) string {
	return fmt.Sprintf("%s-%s-%s", symbol, from.Format(models.DateLayout), to.Format(models.DateLayout))
}

func (c *BarCache) DailyBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
	k := key(symbol, from, to)

	c.mu.RLock()
	cached, ok := c.memory[k]
	c.mu.RUnlock()
	if ok && c.now().Sub(cached.timestamp) <= c.ttl {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return clone(cached.bars), nil
	}

	v, err, _ := c.group.Do(k, func() (interface{}, error) {
		bars, err := c.source.DailyBars(ctx, symbol, from, to)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.memory[k] = cachedBars{bars: bars, timestamp: c.now()}
		c.misses++
		c.mu.Unlock()
		c.log.WithField("symbol", symbol).Debugf("cached %d bars", len(bars))
		return bars, nil
	})
	if err != nil {
		return nil, err
	}
	return clone(v.([]models.Bar)), nil
}

// Clear drops every cached series.
func (c *BarCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memory = make(map[string]cachedBars)
}

// Stats reports the entry count and hit/miss counters.
func (c *BarCache) Stats() (entries, hits, misses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.memory), c.hits, c.misses
}

// callers may trim or reslice what they get back
func clone(bars []models.Bar) []models.Bar {
	out := make([]models.Bar, len(bars))
	copy(out, bars)
	return out
}
