package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dyike/GemScreener/internal/catalyst"
	"github.com/dyike/GemScreener/internal/screener"
	"github.com/dyike/GemScreener/internal/tracker"
	"github.com/dyike/GemScreener/models"
)

const MaxWorkers = 256

type Config struct {
	ProjectDir   string `json:"project_dir"`
	ResultsDir   string `json:"results_dir"`
	DataDir      string `json:"data_dir"`
	DataCacheDir string `json:"data_cache_dir"`

	// Storage: DatabaseURL selects postgres, otherwise sqlite at DatabasePath.
	DatabasePath string `json:"database_path"`
	DatabaseURL  string `json:"database_url,omitempty"`

	PolygonAPIKey string `json:"polygon_api_key,omitempty"`
	SECUserAgent  string `json:"sec_user_agent,omitempty"` // "Name email", required by EDGAR

	// Longport API Configuration
	LongportAppKey      string `json:"longport_app_key,omitempty"`
	LongportAppSecret   string `json:"longport_app_secret,omitempty"`
	LongportAccessToken string `json:"longport_access_token,omitempty"`

	OnlineTools  bool          `json:"online_tools"`
	CacheEnabled bool          `json:"cache_enabled"`
	CacheTTL     time.Duration `json:"cache_ttl"`
	Debug        bool          `json:"debug"`
	LogLevel     string        `json:"log_level"`
	LogFile      string        `json:"log_file,omitempty"`

	Workers           int           `json:"workers"`
	RequestsPerSecond float64       `json:"requests_per_second"` // per provider; 0 disables
	TickersPerSecond  float64       `json:"tickers_per_second"`  // ticker starts; 0 disables
	HTTPTimeout       time.Duration `json:"http_timeout"`

	Universes map[string][]models.Ticker  `json:"universes"`
	Profiles  map[string]screener.Profile `json:"profiles"`
	Schemes   map[string]tracker.Scheme   `json:"schemes"`
	Catalyst  catalyst.Config             `json:"catalyst"`
}

// LoadDotEnv exports the KEY=VALUE pairs of every existing file in paths.
// Variables already set in the environment win, as do earlier files.
func LoadDotEnv(paths ...string) error {
	var existing []string
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		if info, err := os.Stat(abs); err == nil && !info.IsDir() {
			existing = append(existing, abs)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// DefaultConfigWithRoot lays every directory out under root and ships the
// built-in universes, profiles and schemes.
func DefaultConfigWithRoot(root string) *Config {
	return &Config{
		ProjectDir:   root,
		ResultsDir:   filepath.Join(root, "results"),
		DataDir:      filepath.Join(root, "data"),
		DataCacheDir: filepath.Join(root, "data", "cache"),
		DatabasePath: filepath.Join(root, "data", "gem.db"),

		OnlineTools:  true,
		CacheEnabled: true,
		CacheTTL:     12 * time.Hour,
		LogLevel:     "info",

		Workers:           16,
		RequestsPerSecond: 5,
		HTTPTimeout:       30 * time.Second,

		Universes: DefaultUniverses(),
		Profiles:  DefaultProfiles(),
		Schemes:   tracker.BuiltinSchemes(),
		Catalyst:  catalyst.DefaultConfig(),
	}
}

// WithEnv returns a copy with environment overrides applied. Secrets are kept
// out of the config file this way.
func (c Config) WithEnv() Config {
	c.loadFromEnv()
	return c
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("GEM_PROJECT_DIR"); val != "" {
		c.ProjectDir = val
	}
	if val := os.Getenv("GEM_RESULTS_DIR"); val != "" {
		c.ResultsDir = val
	}
	if val := os.Getenv("GEM_DATA_DIR"); val != "" {
		c.DataDir = val
		c.DataCacheDir = filepath.Join(val, "cache")
		c.DatabasePath = filepath.Join(val, "gem.db")
	}
	if val := os.Getenv("GEM_DATABASE_PATH"); val != "" {
		c.DatabasePath = val
	}
	if val := os.Getenv("DATABASE_URL"); val != "" {
		c.DatabaseURL = val
	}

	if val := os.Getenv("POLYGON_API_KEY"); val != "" {
		c.PolygonAPIKey = val
	}
	if val := os.Getenv("SEC_USER_AGENT"); val != "" {
		c.SECUserAgent = val
	}

	if val := os.Getenv("LONGPORT_APP_KEY"); val != "" {
		c.LongportAppKey = val
	}
	if val := os.Getenv("LONGPORT_APP_SECRET"); val != "" {
		c.LongportAppSecret = val
	}
	if val := os.Getenv("LONGPORT_ACCESS_TOKEN"); val != "" {
		c.LongportAccessToken = val
	}

	if val := os.Getenv("GEM_CACHE_ENABLED"); val != "" {
		if cache, err := strconv.ParseBool(val); err == nil {
			c.CacheEnabled = cache
		}
	}
	if val := os.Getenv("GEM_ONLINE_TOOLS"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.OnlineTools = enabled
		}
	}
	if val := os.Getenv("GEM_DEBUG"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Debug = enabled
		}
	}
	if val := os.Getenv("GEM_LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}
	if val := os.Getenv("GEM_LOG_FILE"); val != "" {
		c.LogFile = val
	}
	if val := os.Getenv("GEM_WORKERS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.Workers = v
		}
	}
	if val := os.Getenv("GEM_REQUESTS_PER_SECOND"); val != "" {
		if v, err := strconv.ParseFloat(val, 64); err == nil {
			c.RequestsPerSecond = v
		}
	}
	if val := os.Getenv("GEM_HTTP_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.HTTPTimeout = d
		}
	}
}

func (c Config) Validate() error {
	var errs []error
	for name, dir := range map[string]string{
		"project_dir":    c.ProjectDir,
		"results_dir":    c.ResultsDir,
		"data_dir":       c.DataDir,
		"data_cache_dir": c.DataCacheDir,
	} {
		if strings.TrimSpace(dir) == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}
	if c.DatabaseURL == "" && strings.TrimSpace(c.DatabasePath) == "" {
		errs = append(errs, errors.New("database_path is required without database_url"))
	}
	if c.Workers < 1 || c.Workers > MaxWorkers {
		errs = append(errs, fmt.Errorf("workers must be within [1,%d], got %d", MaxWorkers, c.Workers))
	}
	if c.RequestsPerSecond < 0 || c.TickersPerSecond < 0 {
		errs = append(errs, errors.New("rate limits cannot be negative"))
	}
	if c.HTTPTimeout < 0 || c.CacheTTL < 0 {
		errs = append(errs, errors.New("http_timeout and cache_ttl cannot be negative"))
	}
	for name, tickers := range c.Universes {
		for _, t := range tickers {
			if _, err := models.NormalizeSymbol(t.Symbol); err != nil {
				errs = append(errs, fmt.Errorf("universe %s: %w", name, err))
			}
		}
	}
	for name, p := range c.Profiles {
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("profile %s: %w", name, err))
		}
	}
	for name, s := range c.Schemes {
		if err := s.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("scheme %s: %w", name, err))
		}
	}
	if err := c.Catalyst.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Config) EnsureDirectories() error {
	dirs := []string{c.ProjectDir, c.ResultsDir, c.DataDir, c.DataCacheDir}
	if c.DatabaseURL == "" && c.DatabasePath != "" {
		dirs = append(dirs, filepath.Dir(c.DatabasePath))
	}
	for _, dir := range dirs {
		path := strings.TrimSpace(dir)
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", path, err)
		}
	}
	return nil
}

// Profile looks a profile up by name.
func (c Config) Profile(name string) (screener.Profile, error) {
	p, ok := c.Profiles[name]
	if !ok {
		return screener.Profile{}, fmt.Errorf("unknown profile %q (have %s)", name, strings.Join(sortedKeys(c.Profiles), ", "))
	}
	return p, nil
}

func (c Config) Scheme(name string) (tracker.Scheme, error) {
	s, ok := c.Schemes[name]
	if !ok {
		return tracker.Scheme{}, fmt.Errorf("unknown scheme %q (have %s)", name, strings.Join(sortedKeys(c.Schemes), ", "))
	}
	return s, nil
}

func (c Config) Universe(name string) ([]models.Ticker, error) {
	u, ok := c.Universes[name]
	if !ok {
		return nil, fmt.Errorf("unknown universe %q (have %s)", name, strings.Join(sortedKeys(c.Universes), ", "))
	}
	return u, nil
}
