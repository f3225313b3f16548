package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/access-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect stored accessibility runs",
	Long:  "Commands for listing runs, viewing a run, and exporting its cells.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accessibility runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		mode, _ := cmd.Flags().GetString("mode")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		runs, err := st.ListRuns(ctx, store.RunFilter{Mode: mode, Limit: limit, Offset: offset})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs cells --

var runsCellsCmd = &cobra.Command{
	Use:   "cells <run-id>",
	Short: "Export the cells of a run as CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		cells, err := st.Cells(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs cells")
		}
		return writeCellsCSV(os.Stdout, cells, cfg.Output.UnknownMarker)
	},
}

func init() {
	runsListCmd.Flags().String("mode", "", "filter by mode of transit")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsListCmd.Flags().Int("offset", 0, "number of runs to skip")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsCellsCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []store.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tMODE\tUPPER\tPOLICY\tSOURCES\tDESTS\tVOIDED\tCATEGORIES\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t----\t-----\t------\t-------\t-----\t------\t----------\t-------")

	for _, r := range runs {
		cats := strings.Join(r.Categories, ",")
		if len(cats) > 30 {
			cats = cats[:27] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%g\t%s\t%d\t%d\t%d\t%s\t%s\n",
			truncateID(r.ID),
			r.Mode,
			r.UpperMinutes,
			r.Policy,
			r.Sources,
			r.Dests,
			r.Voided,
			cats,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// writeCellsCSV writes cells with unknown values as marker.
func writeCellsCSV(out io.Writer, cells []store.Cell, marker string) error {
	w := csv.NewWriter(out)
	if err := w.Write([]string{"source_id", "category", "nearest_minutes", "in_range", "raw_seconds"}); err != nil {
		return eris.Wrap(err, "write cells header")
	}
	for _, c := range cells {
		rec := []string{c.SourceID, c.Category, marker, marker, marker}
		if c.NearestMinutes != nil {
			rec[2] = strconv.FormatFloat(*c.NearestMinutes, 'f', -1, 64)
		}
		if c.InRange != nil {
			rec[3] = strconv.Itoa(*c.InRange)
		}
		if c.RawSeconds != nil {
			rec[4] = strconv.FormatFloat(*c.RawSeconds, 'f', -1, 64)
		}
		if err := w.Write(rec); err != nil {
			return eris.Wrap(err, "write cell")
		}
	}
	w.Flush()
	return eris.Wrap(w.Error(), "flush cells")
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
