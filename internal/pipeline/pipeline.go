// Package pipeline runs universe resolution, screening, ranking and forward
// tracking as one in-process pass over typed records.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/dyike/GemScreener/internal/dataflows"
	"github.com/dyike/GemScreener/internal/logger"
	"github.com/dyike/GemScreener/internal/ranker"
	"github.com/dyike/GemScreener/internal/screener"
	"github.com/dyike/GemScreener/internal/tracker"
	"github.com/dyike/GemScreener/internal/universe"
	"github.com/dyike/GemScreener/models"
)

const (
	DefaultWorkers = 16
	maxSamples     = 5

	KindFiltered = "filtered"
)

// Pipeline screens a universe concurrently and tracks what it selected.
type Pipeline struct {
	source   dataflows.BarSource
	catalyst screener.CatalystProvider
	limiter  *rate.Limiter
	workers  int
	log      logrus.FieldLogger
	now      func() time.Time
}

// Option configures New.
type Option func(*Pipeline)

// WithWorkers bounds how many tickers are screened at once.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithLimiter throttles how fast tickers are started.
func WithLimiter(l *rate.Limiter) Option {
	return func(p *Pipeline) { p.limiter = l }
}

// WithCatalyst enables the catalyst check for profiles that ask for it.
func WithCatalyst(c screener.CatalystProvider) Option {
	return func(p *Pipeline) { p.catalyst = c }
}

// WithLogger replaces the pipeline logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// New returns a Pipeline reading bars from source.
func New(source dataflows.BarSource, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:  source,
		workers: DefaultWorkers,
		log:     logger.For("pipeline"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunRequest describes one run. Track and Discard need Scheme and HorizonDays.
type RunRequest struct {
	Universe    universe.Source
	ProfileName string
	Profile     screener.Profile
	AsOf        time.Time
	TopN        int

	Track       bool
	Discard     bool
	Scheme      tracker.Scheme
	HorizonDays int
}

func (r RunRequest) validate() error {
	if r.Universe == nil {
		return errors.New("run needs a universe")
	}
	if r.ProfileName == "" {
		return errors.New("run needs a profile name")
	}
	if r.AsOf.IsZero() {
		return errors.New("run needs an as-of date")
	}
	if r.Track || r.Discard {
		if r.HorizonDays <= 0 {
			return fmt.Errorf("tracking needs a positive horizon, got %d", r.HorizonDays)
		}
		if err := r.Scheme.Validate(); err != nil {
			return err
		}
	}
	return r.Profile.Validate()
}

// run holds the state shared by the workers of one Run call.
type run struct {
	mu    sync.Mutex
	rec   *models.Run
	items map[string]*Item
}

func (r *run) fail(kind, msg string) {
	r.mu.Lock()
	r.rec.Errors.Record(kind, msg, maxSamples)
	r.mu.Unlock()
}

func (p *Pipeline) Run(ctx context.Context, req RunRequest) (*models.Run, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	asOf := models.Day(req.AsOf)

	scr, err := screener.New(p.source, req.Profile,
		screener.WithCatalyst(p.catalyst),
		screener.WithLogger(p.log))
	if err != nil {
		return nil, err
	}

	st := &run{
		rec: &models.Run{
			ID:        uuid.NewString(),
			Profile:   req.ProfileName,
			Universe:  req.Universe.Name(),
			AsOf:      asOf,
			TopN:      req.TopN,
			StartedAt: p.now().UTC(),
			Errors:    models.ErrorSummary{},
		},
		items: map[string]*Item{},
	}
	if req.Track || req.Discard {
		st.rec.Scheme = req.Scheme.Name
		st.rec.HorizonDays = req.HorizonDays
	}
	log := p.log.WithFields(logrus.Fields{"run": st.rec.ID, "profile": req.ProfileName})

	tickers, err := req.Universe.Tickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve universe %s: %w", req.Universe.Name(), err)
	}
	if tickers, err = universe.Normalize(tickers); err != nil {
		return nil, err
	}
	for _, t := range tickers {
		st.items[t.Symbol] = NewItem(t)
	}
	st.rec.Screened = len(tickers)
	log.WithField("tickers", len(tickers)).Info("screening universe")

	scored, err := p.screenAll(ctx, scr, st, tickers, asOf)
	if err != nil {
		return nil, err
	}

	st.rec.Results = ranker.Rank(scored, req.TopN)
	for _, r := range st.rec.Results {
		if err := st.items[r.Ticker.Symbol].Advance(StageSelected); err != nil {
			return nil, err
		}
	}
	log.WithFields(logrus.Fields{"scored": len(scored), "selected": len(st.rec.Results)}).Info("ranked")

	if req.Track || req.Discard {
		tr, err := tracker.New(p.source, req.Scheme)
		if err != nil {
			return nil, err
		}
		if req.Track {
			if err := p.trackSelected(ctx, tr, st, req.HorizonDays); err != nil {
				return nil, err
			}
		}
		if req.Discard {
			if err := p.trackDiscarded(ctx, tr, st, req.HorizonDays); err != nil {
				return nil, err
			}
		}
	}

	sort.Slice(st.rec.Rejected, func(i, j int) bool {
		return st.rec.Rejected[i].Ticker.Symbol < st.rec.Rejected[j].Ticker.Symbol
	})
	st.rec.Stages = make(map[string]string, len(st.items))
	for sym, it := range st.items {
		st.rec.Stages[sym] = string(it.Stage)
	}
	st.rec.FinishedAt = p.now().UTC()

	log.WithFields(logrus.Fields{
		"rejected": len(st.rec.Rejected),
		"errors":   st.rec.Errors.Total(),
		"elapsed":  st.rec.FinishedAt.Sub(st.rec.StartedAt).Round(time.Millisecond),
	}).Info("run finished")
	return st.rec, nil
}

func (p *Pipeline) screenAll(ctx context.Context, scr *screener.Screener, st *run, tickers []models.Ticker, asOf time.Time) ([]models.ScreeningResult, error) {
	var scored []models.ScreeningResult

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, t := range tickers {
		item := st.items[t.Symbol]
		g.Go(func() error {
			if p.limiter != nil {
				if err := p.limiter.Wait(gctx); err != nil {
					return err
				}
			}

			res, err := scr.Screen(gctx, item.Ticker, asOf)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if errors.Is(err, dataflows.ErrUnauthorized) {
					return err
				}
				p.reject(st, item, err)
				return nil
			}

			if err := item.AdvanceAll(StageFiltered, StageScored); err != nil {
				return err
			}
			st.mu.Lock()
			scored = append(scored, *res)
			st.mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scored, nil
}

func (p *Pipeline) reject(st *run, item *Item, err error) {
	rej := models.Rejection{Ticker: item.Ticker, Stage: string(StageUniverse), Reason: err.Error()}

	var fe *screener.FilterError
	if errors.As(err, &fe) {
		_ = item.Advance(StageFiltered)
		rej.Stage = string(StageFiltered)
		rej.Kind = KindFiltered
		rej.LastClose = fe.LastClose
		rej.LastDate = fe.LastDate
		rej.HasLastBar = true
	} else {
		rej.Kind = dataflows.Kind(err)
	}
	_ = item.Advance(StageRejected)

	p.log.WithFields(logrus.Fields{"symbol": item.Ticker.Symbol, "kind": rej.Kind}).Debug(rej.Reason)

	st.mu.Lock()
	st.rec.Rejected = append(st.rec.Rejected, rej)
	st.rec.Errors.Record(rej.Kind, item.Ticker.Symbol+": "+rej.Reason, maxSamples)
	st.mu.Unlock()
}

func (p *Pipeline) trackSelected(ctx context.Context, tr *tracker.Tracker, st *run, horizon int) error {
	outcomes := make([]models.ForwardOutcome, len(st.rec.Results))
	tracked := make([]bool, len(st.rec.Results))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, res := range st.rec.Results {
		item := st.items[res.Ticker.Symbol]
		g.Go(func() error {
			out, err := tr.Track(gctx, tracker.EntryFromResult(res), horizon)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				st.fail(dataflows.Kind(err), "track "+res.Ticker.Symbol+": "+err.Error())
				return nil
			}
			if err := item.AdvanceAll(StageTracked, StageClassified); err != nil {
				return err
			}
			outcomes[i], tracked[i] = out, true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, ok := range tracked {
		if ok {
			st.rec.Outcomes = append(st.rec.Outcomes, outcomes[i])
		}
	}
	return nil
}

func (p *Pipeline) trackDiscarded(ctx context.Context, tr *tracker.Tracker, st *run, horizon int) error {
	var candidates []models.Rejection
	for _, r := range st.rec.Rejected {
		if r.Kind == KindFiltered && r.HasLastBar {
			candidates = append(candidates, r)
		}
	}
	outcomes := make([]*models.ForwardOutcome, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, r := range candidates {
		g.Go(func() error {
			out, err := tr.TrackRejected(gctx, r, horizon)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				st.fail(dataflows.Kind(err), "discard "+r.Ticker.Symbol+": "+err.Error())
				return nil
			}
			outcomes[i] = &out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, o := range outcomes {
		if o != nil {
			st.rec.DiscardOutcomes = append(st.rec.DiscardOutcomes, *o)
		}
	}
	sort.SliceStable(st.rec.DiscardOutcomes, func(i, j int) bool {
		return st.rec.DiscardOutcomes[i].MaxGainPct > st.rec.DiscardOutcomes[j].MaxGainPct
	})
	return nil
}
