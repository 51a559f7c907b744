package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/dyike/GemScreener/config"
	"github.com/dyike/GemScreener/internal/cache"
	"github.com/dyike/GemScreener/internal/catalyst"
	"github.com/dyike/GemScreener/internal/dataflows"
	"github.com/dyike/GemScreener/internal/logger"
	"github.com/dyike/GemScreener/internal/storage"
	"github.com/dyike/GemScreener/internal/storage/postgres"
	"github.com/dyike/GemScreener/internal/storage/sqlite"
	"github.com/dyike/GemScreener/internal/universe"
)

// ErrMissingKey is returned when an online command lacks a credential.
var ErrMissingKey = errors.New("missing credentials")

// PolygonUniverse names the universe listed live from Polygon.
const PolygonUniverse = "polygon"

// app carries the state every command shares.
type app struct {
	configPath string
	debug      bool

	mgr       *config.Manager
	cfg       config.Config
	logCloser io.Closer
	out       io.Writer
	log       logrus.FieldLogger
}

func newApp() *app {
	return &app{out: os.Stdout, log: logger.For("cli")}
}

func (a *app) load() error {
	mgr, err := config.NewManager(config.WithConfigPath(a.configPath))
	if err != nil {
		return err
	}
	a.mgr = mgr
	if err := config.LoadDotEnv(".env", filepath.Join(filepath.Dir(mgr.Path()), ".env")); err != nil {
		return err
	}
	a.apply(mgr.Get())

	if err := a.cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}
	closer, err := logger.Setup(logger.Options{Level: a.cfg.LogLevel, File: a.cfg.LogFile, Debug: a.cfg.Debug})
	if err != nil {
		return err
	}
	a.logCloser = closer
	return nil
}

// apply installs a config snapshot with env overrides and flags on top.
func (a *app) apply(cfg config.Config) {
	a.cfg = cfg.WithEnv()
	if a.debug {
		a.cfg.Debug = true
	}
}

func (a *app) close() {
	if a.logCloser != nil {
		_ = a.logCloser.Close()
	}
}

func (a *app) requireOnline() error {
	if !a.cfg.OnlineTools {
		return fmt.Errorf("online tools are disabled in %s", a.mgr.Path())
	}
	return nil
}

func (a *app) clientOptions() dataflows.ClientOptions {
	opts := dataflows.ClientOptions{
		Timeout: a.cfg.HTTPTimeout,
		Cache:   dataflows.NewCacheManager(a.cfg.DataCacheDir, a.cfg.CacheTTL, a.cfg.CacheEnabled),
		Retry:   dataflows.DefaultRetryConfig(),
	}
	if a.cfg.RequestsPerSecond > 0 {
		opts.Limiter = rate.NewLimiter(rate.Limit(a.cfg.RequestsPerSecond), 1)
	}
	return opts
}

func (a *app) polygon() (*dataflows.PolygonClient, error) {
	if a.cfg.PolygonAPIKey == "" {
		return nil, fmt.Errorf("POLYGON_API_KEY is not set: %w", ErrMissingKey)
	}
	opts := a.clientOptions()
	opts.APIKey = a.cfg.PolygonAPIKey
	return dataflows.NewPolygonClient(opts), nil
}

func (a *app) longport() *dataflows.LongportClient {
	creds := dataflows.LongportCredentials{
		AppKey:      a.cfg.LongportAppKey,
		AppSecret:   a.cfg.LongportAppSecret,
		AccessToken: a.cfg.LongportAccessToken,
	}
	if !creds.Complete() {
		return nil
	}
	client, err := dataflows.NewLongportClient(creds, a.clientOptions())
	if err != nil {
		a.log.Warnf("longport disabled: %v", err)
		return nil
	}
	return client
}

// marketData holds the providers one command uses.
type marketData struct {
	bars     dataflows.BarSource
	polygon  *dataflows.PolygonClient
	longport *dataflows.LongportClient
}

func (m *marketData) Close() {
	if m.longport != nil {
		m.longport.Close()
	}
}

// marketData chains Polygon, Longport and Yahoo, skipping what is not
// configured. Yahoo needs no key, so a chain always exists.
func (a *app) marketData() (*marketData, error) {
	if err := a.requireOnline(); err != nil {
		return nil, err
	}
	md := &marketData{}
	var chain []dataflows.BarSource
	if pc, err := a.polygon(); err == nil {
		md.polygon = pc
		chain = append(chain, pc)
	}
	if lp := a.longport(); lp != nil {
		md.longport = lp
		chain = append(chain, lp)
	}
	chain = append(chain, dataflows.NewYahooFinanceClient(a.clientOptions()))
	md.bars = cache.NewBarCache(dataflows.NewFallbackSource(chain...), cache.DefaultBarTTL)
	a.log.Debugf("bar source: %s", md.bars.Name())
	return md, nil
}

// universe resolves a configured universe, or the live Polygon listing.
func (a *app) universe(name string, md *marketData, limit int) (universe.Source, error) {
	var src universe.Source
	if strings.EqualFold(name, PolygonUniverse) {
		if md.polygon == nil {
			return nil, fmt.Errorf("universe %s needs POLYGON_API_KEY: %w", PolygonUniverse, ErrMissingKey)
		}
		src = universe.NewPolygon(md.polygon, limit, true)
	} else {
		tickers, err := a.cfg.Universe(name)
		if err != nil {
			return nil, err
		}
		static, err := universe.NewStatic(name, tickers)
		if err != nil {
			return nil, err
		}
		src = static
	}
	if md.longport != nil {
		src = universe.NewWithShares(src, md.longport)
	}
	return src, nil
}

// catalysts builds the EDGAR/Polygon catalyst provider.
func (a *app) catalysts(md *marketData) (*catalyst.Provider, error) {
	if a.cfg.SECUserAgent == "" {
		return nil, fmt.Errorf("SEC_USER_AGENT is not set (EDGAR requires \"Name email\"): %w", ErrMissingKey)
	}
	opts := a.clientOptions()
	opts.UserAgent = a.cfg.SECUserAgent
	edgar, err := dataflows.NewEdgarClient(opts)
	if err != nil {
		return nil, err
	}
	// A typed nil would defeat the provider's nil checks.
	if md.polygon == nil {
		return catalyst.NewProvider(edgar, nil, a.cfg.Catalyst)
	}
	return catalyst.NewProvider(edgar, md.polygon, a.cfg.Catalyst)
}

func (a *app) openStore(ctx context.Context) (storage.Store, error) {
	if a.cfg.DatabaseURL != "" {
		return postgres.Open(ctx, a.cfg.DatabaseURL, postgres.PoolConfigFromEnv())
	}
	return sqlite.Open(ctx, a.cfg.DatabasePath)
}

func (a *app) tickerLimiter() *rate.Limiter {
	if a.cfg.TickersPerSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(a.cfg.TickersPerSecond), 1)
}
