package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/access-cli/internal/agency"
)

var agenciesCmd = &cobra.Command{
	Use:   "agencies",
	Short: "Link contract vendors to service agencies and split dollars per location",
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := cmd.Flags()
		if f.Changed("threshold") {
			cfg.Agency.LinkThreshold, _ = f.GetFloat64("threshold")
		}
		if err := cfg.Validate("agencies"); err != nil {
			return err
		}

		hqPath, _ := f.GetString("hq")
		linksPath, _ := f.GetString("links")
		svcPath, _ := f.GetString("svc")
		charset, _ := f.GetString("charset")

		records, err := agency.ReadDeduplicated(linksPath, cfg.Agency.LinkThreshold, charset)
		if err != nil {
			return err
		}
		hq, err := agency.ReadHQ(hqPath, charset)
		if err != nil {
			return err
		}
		svc, err := agency.ReadServiceLocations(svcPath, charset, agency.NormalizedComparer{})
		if err != nil {
			return err
		}

		links := agency.Link(records)
		rows := agency.DollarsPerLocation(hq, links, svc)

		out, _ := f.GetString("out")
		if err := writeTo(out, func(w io.Writer) error { return agency.WriteDollarsCSV(w, rows) }); err != nil {
			return err
		}

		geocodeOut, _ := f.GetString("geocode-out")
		geocode, _ := f.GetBool("geocode")
		reqs := agency.NeedsGeocoding(svc)
		switch {
		case geocodeOut == "":
		case geocode:
			g := agency.NewCensusGeocoder(cfg.Agency.GeocodeURL, cfg.Agency.GeocodeRPS, nil)
			results, err := agency.GeocodeAll(cmd.Context(), g, reqs)
			if err != nil {
				return err
			}
			if err := writeTo(geocodeOut, func(w io.Writer) error { return agency.WriteGeocodeResultsCSV(w, results) }); err != nil {
				return err
			}
		default:
			if err := writeTo(geocodeOut, func(w io.Writer) error { return agency.WriteGeocodeCSV(w, reqs) }); err != nil {
				return err
			}
		}

		zap.L().Info("agencies complete",
			zap.Int("links", len(links)),
			zap.Int("rows", len(rows)),
			zap.Int("needs_geocoding", len(reqs)),
		)
		return nil
	},
}

// writeTo runs fn against path, or stdout when path is empty.
func writeTo(path string, fn func(io.Writer) error) error {
	if path == "" {
		return fn(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "close %s", path)
}

func init() {
	agenciesCmd.Flags().String("hq", "", "contracts with headquarters CSV (required)")
	agenciesCmd.Flags().String("links", "", "deduplicated vendor link CSV (required)")
	agenciesCmd.Flags().String("svc", "", "service agency locations CSV (required)")
	agenciesCmd.Flags().String("out", "", "dollars per location CSV (default stdout)")
	agenciesCmd.Flags().String("geocode-out", "", "write service addresses lacking coordinates to this CSV")
	agenciesCmd.Flags().Bool("geocode", false, "resolve addresses lacking coordinates with the Census geocoder before writing --geocode-out")
	agenciesCmd.Flags().Float64("threshold", agency.DefaultLinkThreshold, "minimum LinkScore kept")
	agenciesCmd.Flags().String("charset", "", "input encoding, e.g. windows-1252 (default utf-8)")
	_ = agenciesCmd.MarkFlagRequired("hq")
	_ = agenciesCmd.MarkFlagRequired("links")
	_ = agenciesCmd.MarkFlagRequired("svc")
	rootCmd.AddCommand(agenciesCmd)
}
