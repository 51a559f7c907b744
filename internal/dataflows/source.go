package dataflows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dyike/GemScreener/internal/logger"
	"github.com/dyike/GemScreener/models"
)

// FallbackSource asks each source in turn. It moves on only when a source
// fails with a kind another provider could plausibly serve.
type FallbackSource struct {
	sources []BarSource
	log     logrus.FieldLogger
}

// NewFallbackSource tries sources in order, skipping nil ones.
func NewFallbackSource(sources ...BarSource) *FallbackSource {
	kept := make([]BarSource, 0, len(sources))
	for _, s := range sources {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &FallbackSource{sources: kept, log: logger.For("source")}
}

func (f *FallbackSource) Name() string {
	name := "fallback"
	for i, s := range f.sources {
		if i == 0 {
			name += "("
		} else {
			name += ","
		}
		name += s.Name()
	}
	if len(f.sources) > 0 {
		name += ")"
	}
	return name
}

func (f *FallbackSource) DailyBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
	if len(f.sources) == 0 {
		return nil, fmt.Errorf("no bar sources configured")
	}

	var lastErr error
	for _, s := range f.sources {
		bars, err := s.DailyBars(ctx, symbol, from, to)
		if err == nil {
			return bars, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if !fallsThrough(err) {
			return nil, err
		}
		f.log.WithFields(logrus.Fields{"source": s.Name(), "symbol": symbol}).Debugf("falling back: %v", err)
	}
	return nil, lastErr
}

func fallsThrough(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrNetwork) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrMalformed) ||
		errors.Is(err, ErrUnauthorized)
}
