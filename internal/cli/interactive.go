package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// Selections are the answers collected by the interactive flow.
type Selections struct {
	Mode      string
	Universe  string
	Profile   string
	AsOf      time.Time
	Top       int
	Catalysts bool
	Scheme    string
	Horizon   int
	Discard   bool
}

const (
	modeScreen   = "screen"
	modeBacktest = "backtest"
)

func newInteractiveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "interactive",
		Short: "Pick universe, profile and dates through prompts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sel, err := a.ask()
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			f := runFlags{
				universe:  sel.Universe,
				profile:   sel.Profile,
				asOf:      sel.AsOf.Format("2006-01-02"),
				top:       sel.Top,
				catalysts: sel.Catalysts,
			}
			var t *trackFlags
			if sel.Mode == modeBacktest {
				t = &trackFlags{scheme: sel.Scheme, horizon: sel.Horizon, discard: sel.Discard}
			}

			run, err := a.execute(ctx, f, t)
			if run != nil {
				fmt.Fprintln(a.out, RenderRun(run))
			}
			return err
		},
	}
}

func (a *app) ask() (Selections, error) {
	var sel Selections
	var err error

	if sel.Mode, err = PromptForChoice("What do you want to run?", "",
		[]string{modeScreen, modeBacktest}, modeScreen); err != nil {
		return sel, err
	}

	universes := append(sortedNames(a.cfg.Universes), PolygonUniverse)
	if sel.Universe, err = PromptForChoice("Universe:", "Configured ticker lists, or the live Polygon listing",
		universes, ""); err != nil {
		return sel, err
	}

	// No default profile: the scoring tables disagree and the choice matters.
	if sel.Profile, err = PromptForChoice("Scoring profile:", "Each profile weighs the signals differently",
		sortedNames(a.cfg.Profiles), ""); err != nil {
		return sel, err
	}

	def := time.Now()
	if sel.Mode == modeBacktest {
		def = def.AddDate(0, -3, 0)
	}
	if sel.AsOf, err = PromptForDate("As-of date:", def); err != nil {
		return sel, err
	}
	if sel.Top, err = PromptForInt("Keep top N (0 keeps all):", 20); err != nil {
		return sel, err
	}
	if sel.Catalysts, err = PromptForConfirm("Score catalysts from EDGAR and news?", false); err != nil {
		return sel, err
	}

	if sel.Mode == modeBacktest {
		schemeDef := ""
		if _, ok := a.cfg.Schemes["backtest"]; ok {
			schemeDef = "backtest"
		}
		if sel.Scheme, err = PromptForChoice("Classification scheme:", "", sortedNames(a.cfg.Schemes), schemeDef); err != nil {
			return sel, err
		}
		if sel.Horizon, err = PromptForInt("Forward horizon in days:", 30); err != nil {
			return sel, err
		}
		if sel.Discard, err = PromptForConfirm("Also track rejected tickers?", false); err != nil {
			return sel, err
		}
	}
	return sel, nil
}
