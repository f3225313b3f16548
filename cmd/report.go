package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/access-cli/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summaries of accessibility results",
}

var reportCDFCmd = &cobra.Command{
	Use:   "cdf",
	Short: "Cumulative distribution of nearest-destination minutes per category",
	RunE: func(cmd *cobra.Command, _ []string) error {
		resName, _ := cmd.Flags().GetString("resolution")
		resolution, err := report.ParseResolution(resName)
		if err != nil {
			return err
		}

		res, in, err := runModel(cmd)
		if err != nil {
			return err
		}
		defer in.Close() //nolint:errcheck

		categories, _ := cmd.Flags().GetStringSlice("categories")
		if len(categories) == 0 {
			categories = res.Categories()
		}

		series, err := report.CDF(res, categories, resolution, in.Sources.Population)
		if err != nil {
			return eris.Wrap(err, "report cdf")
		}

		var w io.Writer = os.Stdout
		if path, _ := cmd.Flags().GetString("out"); path != "" {
			f, err := os.Create(path)
			if err != nil {
				return eris.Wrapf(err, "create %s", path)
			}
			defer f.Close() //nolint:errcheck
			w = f
		}
		if err := report.WriteCDFCSV(w, series); err != nil {
			return err
		}

		for _, s := range series {
			zap.L().Info("cdf series",
				zap.String("category", s.Category),
				zap.Int("samples", s.Samples),
				zap.Int("unknown", s.Unknown),
				zap.Float64("mean_minutes", s.Mean),
			)
		}
		return nil
	},
}

func init() {
	addModelFlags(reportCDFCmd)
	reportCDFCmd.Flags().String("resolution", string(report.ResolutionBlock), "block or population")
	reportCDFCmd.Flags().StringSlice("categories", nil, "categories to plot (default all)")
	reportCDFCmd.Flags().String("out", "", "CSV output path (default stdout)")
	reportCmd.AddCommand(reportCDFCmd)
	rootCmd.AddCommand(reportCmd)
}
