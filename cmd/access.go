package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/access-cli/internal/access"
	"github.com/sells-group/access-cli/internal/report"
	"github.com/sells-group/access-cli/internal/store"
)

var accessCmd = &cobra.Command{
	Use:   "access",
	Short: "Compute nearest-destination and in-range tables",
	Long:  "Scans every source/destination pair, writes the near_nbr, n_dests_in_range and time tables, and optionally records the run in the store.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if f := cmd.Flags(); f.Changed("out") {
			cfg.Output.Dir, _ = f.GetString("out")
		}
		if f := cmd.Flags(); f.Changed("format") {
			cfg.Output.Format, _ = f.GetString("format")
		}

		res, in, err := runModel(cmd)
		if err != nil {
			return err
		}
		defer in.Close() //nolint:errcheck

		edges, _ := cmd.Flags().GetBool("edges")
		written, err := writeResult(res, edges)
		if err != nil {
			return err
		}

		save, _ := cmd.Flags().GetBool("save")
		if save && cfg.Store.Driver != "none" {
			label, _ := cmd.Flags().GetString("label")
			run, err := saveResult(ctx, res, in.Dests.Len(), label)
			if err != nil {
				return err
			}
			zap.L().Info("run saved", zap.String("run_id", run.ID))
		}

		zap.L().Info("access complete",
			zap.Strings("files", written),
			zap.Int("sources", len(res.SourceIDs())),
			zap.Strings("categories", res.Categories()),
			zap.Int("voided", len(res.Voided())),
			zap.Duration("elapsed", res.Elapsed),
		)
		return nil
	},
}

// writeResult exports res in the configured format and returns the paths written.
func writeResult(res *access.Result, edges bool) ([]string, error) {
	marker := cfg.Output.UnknownMarker
	switch cfg.Output.Format {
	case "xlsx":
		path, err := report.OutputFilename(cfg.Output.Dir, "access", "xlsx")
		if err != nil {
			return nil, err
		}
		if err := report.WriteXLSX(path, res, marker); err != nil {
			return nil, err
		}
		return []string{path}, nil
	case "csv", "":
		paths, err := report.WriteTablesCSV(cfg.Output.Dir, res, marker, edges)
		if err != nil {
			return nil, err
		}
		out := []string{paths.Nearest, paths.InRange, paths.Time}
		if paths.Edges != "" {
			out = append(out, paths.Edges)
		}
		return out, nil
	default:
		return nil, eris.Errorf("unsupported output format: %s", cfg.Output.Format)
	}
}

func saveResult(ctx context.Context, res *access.Result, dests int, label string) (*store.Run, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	defer st.Close() //nolint:errcheck
	if err := st.Migrate(ctx); err != nil {
		return nil, err
	}
	run, err := store.Save(ctx, st, res, dests, label)
	if err != nil {
		return nil, eris.Wrap(err, "save run")
	}
	return run, nil
}

func init() {
	addModelFlags(accessCmd)
	accessCmd.Flags().String("out", "", "output directory (default from config)")
	accessCmd.Flags().String("format", "", "output format: csv or xlsx")
	accessCmd.Flags().Bool("edges", false, "also write the in-range source/dest edge list")
	accessCmd.Flags().Bool("save", false, "record the run in the store")
	accessCmd.Flags().String("label", "", "label stored with the run")
	rootCmd.AddCommand(accessCmd)
}
