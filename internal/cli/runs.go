package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dyike/GemScreener/internal/storage"
)

func newRunsCmd(a *app) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Stored runs",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, RenderRunList(runs))
			return nil
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list")

	show := &cobra.Command{
		Use:   "show ID",
		Short: "Show one stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.LoadRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, RenderRun(run))
			return nil
		},
	}

	var out, format string
	export := &cobra.Command{
		Use:   "export ID",
		Short: "Write a stored run as versioned JSON or a CSV table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			format = strings.ToLower(format)
			if format != "json" && format != "csv" {
				return fmt.Errorf("unknown format %q (have csv, json)", format)
			}
			run, err := store.LoadRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			path := out
			if path == "" {
				path = filepath.Join(a.cfg.ResultsDir, run.ID+"."+format)
			}
			if format == "csv" {
				if err := storage.ExportCSV(path, run); err != nil {
					return err
				}
				fmt.Fprintln(a.out, DisplaySuccess(fmt.Sprintf("Exported run %s to %s", run.ID, path)))
				return nil
			}
			if err := storage.ExportJSON(path, run); err != nil {
				return err
			}
			fmt.Fprintln(a.out, DisplaySuccess(fmt.Sprintf("Exported run %s (schema v%d) to %s", run.ID, storage.SchemaVersion, path)))
			return nil
		},
	}
	export.Flags().StringVarP(&out, "out", "o", "", "Output file (default <results_dir>/<id>.<format>)")
	export.Flags().StringVar(&format, "format", "json", "Export format: json or csv")

	importCmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Load a run from versioned JSON into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := storage.ImportJSON(args[0])
			if err != nil {
				return err
			}
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.SaveRun(cmd.Context(), run); err != nil {
				return err
			}
			fmt.Fprintln(a.out, DisplaySuccess(fmt.Sprintf("Imported run %s", run.ID)))
			return nil
		},
	}

	runsCmd.AddCommand(list, show, export, importCmd)
	return runsCmd
}
