package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyike/GemScreener/config"
	"github.com/dyike/GemScreener/internal/dataflows"
	"github.com/dyike/GemScreener/internal/pipeline"
	"github.com/dyike/GemScreener/internal/tracker"
	"github.com/dyike/GemScreener/models"
)

// Version is set at build time.
var Version = "dev"

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	return newRootCmd(newApp())
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gem",
		Short: "GemScreener - small-cap momentum screener and backtester",
		Long: `GemScreener screens a stock universe for volume spikes, oversold RSI and
breakouts, ranks the candidates, and tracks how they performed afterwards.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.out = cmd.OutOrStdout()
			if cmd.Name() == "version" {
				return nil
			}
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	rootCmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Configuration file path")

	rootCmd.AddCommand(
		newScreenCmd(a),
		newBacktestCmd(a),
		newTrackCmd(a),
		newVerifyCmd(a),
		newScanCmd(a),
		newRunsCmd(a),
		newInteractiveCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

// runFlags are shared by screen, backtest and scan.
type runFlags struct {
	universe  string
	profile   string
	asOf      string
	top       int
	limit     int
	catalysts bool
	noSave    bool
}

func (f *runFlags) register(cmd *cobra.Command, withDate bool) {
	cmd.Flags().StringVarP(&f.universe, "universe", "u", "", `Universe name from config, or "polygon" for the live listing`)
	cmd.Flags().StringVarP(&f.profile, "profile", "p", "", "Scoring profile (v6, v4final, phase4, backtest_v6, ...)")
	cmd.Flags().IntVar(&f.top, "top", 20, "Keep the top N results (0 keeps all)")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "Cap on tickers listed from the polygon universe (0 is unlimited)")
	cmd.Flags().BoolVar(&f.catalysts, "catalysts", false, "Score EDGAR/news catalysts, insider buying and short interest")
	cmd.Flags().BoolVar(&f.noSave, "no-save", false, "Do not store the run")
	if withDate {
		cmd.Flags().StringVar(&f.asOf, "as-of", "", "Screen as of YYYY-MM-DD (default today)")
	}
	_ = cmd.MarkFlagRequired("universe")
	_ = cmd.MarkFlagRequired("profile")
}

func parseAsOf(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return models.Day(time.Now()), nil
	}
	return models.ParseDate(s)
}

// signalContext cancels on SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// execute builds the request from flags and config, runs it and stores it.
func (a *app) execute(ctx context.Context, f runFlags, track *trackFlags) (*models.Run, error) {
	profile, err := a.cfg.Profile(f.profile)
	if err != nil {
		return nil, err
	}
	asOf, err := parseAsOf(f.asOf)
	if err != nil {
		return nil, err
	}

	md, err := a.marketData()
	if err != nil {
		return nil, err
	}
	defer md.Close()

	src, err := a.universe(f.universe, md, f.limit)
	if err != nil {
		return nil, err
	}

	opts := []pipeline.Option{
		pipeline.WithWorkers(a.cfg.Workers),
		pipeline.WithLimiter(a.tickerLimiter()),
	}
	if f.catalysts {
		provider, err := a.catalysts(md)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pipeline.WithCatalyst(provider))
	}

	req := pipeline.RunRequest{
		Universe:    src,
		ProfileName: f.profile,
		Profile:     profile,
		AsOf:        asOf,
		TopN:        f.top,
	}
	if track != nil {
		scheme, err := a.cfg.Scheme(track.scheme)
		if err != nil {
			return nil, err
		}
		req.Track = true
		req.Discard = track.discard
		req.Scheme = scheme
		req.HorizonDays = track.horizon
	}

	run, err := pipeline.New(md.bars, opts...).Run(ctx, req)
	if err != nil {
		return nil, err
	}
	if !f.noSave {
		if err := a.save(ctx, run); err != nil {
			return run, err
		}
	}
	return run, nil
}

func (a *app) save(ctx context.Context, run *models.Run) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	if err := store.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	a.log.WithField("run", run.ID).Debug("run stored")
	return nil
}

func newScreenCmd(a *app) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "screen",
		Short: "Screen and rank a universe",
		Example: `  gem screen --universe sample --profile v6
  gem screen -u polygon --limit 500 -p phase4 --catalysts`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			run, err := a.execute(ctx, f, nil)
			if run != nil {
				fmt.Fprintln(a.out, RenderRun(run))
			}
			return err
		},
	}
	f.register(cmd, true)
	return cmd
}

type trackFlags struct {
	scheme  string
	horizon int
	discard bool
}

func newBacktestCmd(a *app) *cobra.Command {
	var f runFlags
	var t trackFlags
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Screen as of a past date, then classify what happened next",
		Example: `  gem backtest -u sample -p backtest_v6 --as-of 2024-03-01 --scheme backtest --horizon 30 --discard`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.asOf == "" {
				return errors.New("backtest needs --as-of")
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			run, err := a.execute(ctx, f, &t)
			if run != nil {
				fmt.Fprintln(a.out, RenderRun(run))
			}
			return err
		},
	}
	f.register(cmd, true)
	cmd.Flags().StringVar(&t.scheme, "scheme", "backtest", "Classification scheme")
	cmd.Flags().IntVar(&t.horizon, "horizon", 30, "Forward window in calendar days")
	cmd.Flags().BoolVar(&t.discard, "discard", false, "Also track the rejected tickers")
	return cmd
}

func newTrackCmd(a *app) *cobra.Command {
	var entryDate, scheme string
	var horizon int
	cmd := &cobra.Command{
		Use:   "track SYMBOL",
		Short: "Forward outcome of one symbol from an entry date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol, err := models.NormalizeSymbol(args[0])
			if err != nil {
				return err
			}
			date, err := models.ParseDate(entryDate)
			if err != nil {
				return err
			}
			sch, err := a.cfg.Scheme(scheme)
			if err != nil {
				return err
			}
			md, err := a.marketData()
			if err != nil {
				return err
			}
			defer md.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			entry, err := entryAt(ctx, md.bars, symbol, date)
			if err != nil {
				return err
			}
			tr, err := tracker.New(md.bars, sch)
			if err != nil {
				return err
			}
			outcome, err := tr.Track(ctx, entry, horizon)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, RenderOutcome(outcome))
			return nil
		},
	}
	cmd.Flags().StringVar(&entryDate, "entry-date", "", "Entry date YYYY-MM-DD; the close of the last bar on or before it is the entry")
	cmd.Flags().StringVar(&scheme, "scheme", "backtest", "Classification scheme")
	cmd.Flags().IntVar(&horizon, "horizon", 30, "Forward window in calendar days")
	_ = cmd.MarkFlagRequired("entry-date")
	return cmd
}

// entryAt finds the last bar on or before date within the prior two weeks.
func entryAt(ctx context.Context, src dataflows.BarSource, symbol string, date time.Time) (tracker.Entry, error) {
	bars, err := src.DailyBars(ctx, symbol, date.AddDate(0, 0, -14), date)
	if err != nil {
		return tracker.Entry{}, err
	}
	for i := len(bars) - 1; i >= 0; i-- {
		if !bars[i].Date.After(date) {
			return tracker.Entry{Symbol: symbol, Date: bars[i].Date, Price: bars[i].Close}, nil
		}
	}
	return tracker.Entry{}, fmt.Errorf("%s: no bar on or before %s: %w", symbol, date.Format(models.DateLayout), dataflows.ErrInsufficientData)
}

func newVerifyCmd(a *app) *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Re-fetch the entry bars of a stored run and report mismatches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			run, err := store.LoadRun(ctx, runID)
			if err != nil {
				return err
			}

			md, err := a.marketData()
			if err != nil {
				return err
			}
			defer md.Close()

			mismatches := 0
			for _, r := range run.Results {
				if err := tracker.VerifyEntry(ctx, md.bars, r); err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					mismatches++
					fmt.Fprintln(a.out, DisplayError(err))
				}
			}
			if mismatches > 0 {
				return fmt.Errorf("%d of %d entries failed verification", mismatches, len(run.Results))
			}
			fmt.Fprintln(a.out, DisplaySuccess(fmt.Sprintf("All %d entries match their source bars.", len(run.Results))))
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "Stored run ID")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}

func newScanCmd(a *app) *cobra.Command {
	var f runFlags
	var every time.Duration
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Screen repeatedly, picking up config file changes between passes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if every < time.Minute {
				return fmt.Errorf("--every must be at least 1m, got %s", every)
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			var mu sync.Mutex
			if err := a.mgr.Watch(ctx, func(cfg config.Config) {
				mu.Lock()
				a.apply(cfg)
				mu.Unlock()
				a.log.Info("configuration changed, next pass uses it")
			}); err != nil {
				return err
			}

			ticker := time.NewTicker(every)
			defer ticker.Stop()
			for {
				mu.Lock()
				run, err := a.execute(ctx, f, nil)
				mu.Unlock()
				switch {
				case ctx.Err() != nil:
					return nil
				case errors.Is(err, dataflows.ErrUnauthorized), errors.Is(err, ErrMissingKey):
					return err
				case err != nil:
					a.log.Errorf("scan pass failed: %v", err)
				}
				if run != nil {
					fmt.Fprintln(a.out, RenderRun(run))
				}

				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}
	f.register(cmd, false)
	cmd.Flags().DurationVar(&every, "every", 15*time.Minute, "Interval between passes")
	return cmd
}

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gem %s\n", Version)
		},
	}
}

// newConfigCmd creates the config command
func newConfigCmd(a *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			masked := a.cfg
			masked.PolygonAPIKey = mask(masked.PolygonAPIKey)
			masked.LongportAppSecret = mask(masked.LongportAppSecret)
			masked.LongportAccessToken = mask(masked.LongportAccessToken)
			masked.DatabaseURL = mask(masked.DatabaseURL)
			data, err := json.MarshalIndent(masked, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "# %s\n%s\n", a.mgr.Path(), data)
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and report missing credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(a)
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "set KEY=VALUE...",
		Short: "Change top-level settings in the config file",
		Long: "Change top-level settings in the config file, e.g. workers=8 or http_timeout=45s.\n" +
			"Credentials are refused; keep them in the environment or a .env file.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.mgr.Set(args...); err != nil {
				return err
			}
			fmt.Fprintln(a.out, DisplaySuccess(fmt.Sprintf("Updated %s", a.mgr.Path())))
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the config file with built-in defaults if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			// load already created the file when it was missing.
			fmt.Fprintln(a.out, DisplaySuccess("Config file: "+a.mgr.Path()))
			return nil
		},
	})

	return configCmd
}

func validateConfig(a *app) error {
	if err := a.cfg.Validate(); err != nil {
		fmt.Fprintln(a.out, DisplayError(err))
		return err
	}
	fmt.Fprintln(a.out, DisplaySuccess(fmt.Sprintf("Configuration valid: %d universes, %d profiles, %d schemes",
		len(a.cfg.Universes), len(a.cfg.Profiles), len(a.cfg.Schemes))))

	checks := []struct {
		name string
		ok   bool
		note string
	}{
		{"Polygon", a.cfg.PolygonAPIKey != "", "POLYGON_API_KEY; needed for the polygon universe and news/short interest"},
		{"EDGAR", a.cfg.SECUserAgent != "", "SEC_USER_AGENT; needed for --catalysts"},
		{"Longport", a.cfg.LongportAppKey != "" && a.cfg.LongportAppSecret != "" && a.cfg.LongportAccessToken != "", "LONGPORT_*; optional bar source and share counts"},
		{"Postgres", a.cfg.DatabaseURL != "", "DATABASE_URL; sqlite at " + a.cfg.DatabasePath + " otherwise"},
	}
	for _, c := range checks {
		if c.ok {
			fmt.Fprintf(a.out, "  %-9s %s\n", c.name, successStyle.Render("configured"))
		} else {
			fmt.Fprintf(a.out, "  %-9s %s %s\n", c.name, warnStyle.Render("not configured"), dimStyle.Render(c.note))
		}
	}
	return nil
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
