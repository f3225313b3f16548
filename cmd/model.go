package main

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/access-cli/internal/access"
	"github.com/sells-group/access-cli/internal/points"
	"github.com/sells-group/access-cli/internal/traveltime"
)

// defaultColumns is used when no column map file is configured.
func defaultColumns() *points.ColumnMap {
	return &points.ColumnMap{
		Sources: points.SourceColumns{
			ID: "id", Lat: "lat", Lon: "lon",
			Population: points.Skip, LowerArealUnit: points.Skip,
		},
		Dests: points.DestColumns{
			ID: "id", Lat: "lat", Lon: "lon",
			Target: points.Skip, Category: "category", LowerArealUnit: points.Skip,
		},
	}
}

// addModelFlags registers the flags shared by commands that run the model.
func addModelFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("sources", "", "source points file: CSV, .xlsx or .shp (required)")
	f.String("dests", "", "destination points file: CSV, .xlsx or .shp (required)")
	f.String("columns", "", "YAML column map with sources and dests keys")
	f.String("mode", "", "mode of transit: drive, walk or bike")
	f.Float64("upper", 0, "upper bound in minutes")
	f.String("policy", "", "sentinel policy: last or any")
	f.Int("workers", 0, "concurrent source shards (0 or 1 runs inline)")
	f.StringSlice("subset", nil, "destination categories to keep")
	f.String("provider", "", "travel time provider: matrix, sqlite, crowflies or osrm")
	f.String("matrix", "", "travel time matrix CSV")
	f.String("matrix-format", "", "matrix layout: wide or long")
	f.String("matrix-db", "", "SQLite travel time database")
	_ = cmd.MarkFlagRequired("sources")
	_ = cmd.MarkFlagRequired("dests")
}

// applyModelFlags copies explicitly set flags over the loaded configuration.
func applyModelFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("columns") {
		cfg.Model.ColumnsFile, _ = f.GetString("columns")
	}
	if f.Changed("mode") {
		cfg.Model.Mode, _ = f.GetString("mode")
	}
	if f.Changed("upper") {
		cfg.Model.UpperMinutes, _ = f.GetFloat64("upper")
	}
	if f.Changed("policy") {
		cfg.Model.Policy, _ = f.GetString("policy")
	}
	if f.Changed("workers") {
		cfg.Model.Workers, _ = f.GetInt("workers")
	}
	if f.Changed("subset") {
		cfg.Model.Subset, _ = f.GetStringSlice("subset")
	}
	if f.Changed("provider") {
		cfg.Provider.Kind, _ = f.GetString("provider")
	}
	if f.Changed("matrix") {
		cfg.Provider.MatrixFile, _ = f.GetString("matrix")
	}
	if f.Changed("matrix-format") {
		cfg.Provider.MatrixFormat, _ = f.GetString("matrix-format")
	}
	if f.Changed("matrix-db") {
		cfg.Provider.MatrixDB, _ = f.GetString("matrix-db")
	}

	// Validation and the processor compare modes and policies exactly.
	cfg.Model.Mode = strings.ToLower(strings.TrimSpace(cfg.Model.Mode))
	cfg.Model.Policy = strings.ToLower(strings.TrimSpace(cfg.Model.Policy))
}

// modelInputs holds everything a Process call needs.
type modelInputs struct {
	Sources  *points.SourceSet
	Dests    *points.DestSet
	Provider traveltime.Provider
	close    func() error
}

// Close releases provider resources.
func (m *modelInputs) Close() error {
	if m.close == nil {
		return nil
	}
	return m.close()
}

func loadColumns() (*points.ColumnMap, error) {
	if cfg.Model.ColumnsFile == "" {
		return defaultColumns(), nil
	}
	return points.LoadColumnMap(cfg.Model.ColumnsFile)
}

func loadSources(path string, cols points.SourceColumns) (*points.SourceSet, error) {
	switch {
	case points.IsShapefile(path):
		return points.LoadSourcesShapefile(path, cols)
	case points.IsWorkbook(path):
		return points.LoadSourcesXLSX(path, "", cols)
	}
	return points.LoadSourcesCSV(path, cols)
}

func loadDests(path string, cols points.DestColumns, subset []string) (*points.DestSet, error) {
	switch {
	case points.IsShapefile(path):
		return points.LoadDestsShapefile(path, cols, subset)
	case points.IsWorkbook(path):
		return points.LoadDestsXLSX(path, "", cols, subset)
	}
	return points.LoadDestsCSV(path, cols, subset)
}

// newProvider builds the configured travel time provider.
func newProvider(ctx context.Context, mode traveltime.Mode, sources *points.SourceSet, dests *points.DestSet) (traveltime.Provider, func() error, error) {
	pc := cfg.Provider
	switch pc.Kind {
	case "matrix":
		m, err := traveltime.LoadMatrixCSV(pc.MatrixFile, traveltime.Format(pc.MatrixFormat))
		if err != nil {
			return nil, nil, err
		}
		return m, nil, nil
	case "sqlite":
		m, err := traveltime.OpenSQLiteMatrix(ctx, pc.MatrixDB)
		if err != nil {
			return nil, nil, err
		}
		return m, m.Close, nil
	case "crowflies":
		c, err := traveltime.NewCrowFlies(mode, sources, dests, pc.BBox)
		if err != nil {
			return nil, nil, err
		}
		return c, nil, nil
	case "osrm":
		o, err := traveltime.NewOSRM(traveltime.OSRMOptions{
			BaseURL:    pc.OSRM.BaseURL,
			RatePerSec: pc.OSRM.RatePerSec,
			Timeout:    time.Duration(pc.OSRM.TimeoutSecs) * time.Second,
		}, mode, sources, dests)
		if err != nil {
			return nil, nil, err
		}
		return o, nil, nil
	default:
		return nil, nil, eris.Errorf("unsupported travel time provider: %s", pc.Kind)
	}
}

// loadInputs reads both point files and opens the provider.
func loadInputs(ctx context.Context, sourcesPath, destsPath string) (*modelInputs, error) {
	mode, err := traveltime.ParseMode(cfg.Model.Mode)
	if err != nil {
		return nil, err
	}
	cols, err := loadColumns()
	if err != nil {
		return nil, err
	}

	sources, err := loadSources(sourcesPath, cols.Sources)
	if err != nil {
		return nil, eris.Wrap(err, "load sources")
	}
	dests, err := loadDests(destsPath, cols.Dests, cfg.Model.Subset)
	if err != nil {
		return nil, eris.Wrap(err, "load dests")
	}

	provider, closeFn, err := newProvider(ctx, mode, sources, dests)
	if err != nil {
		return nil, eris.Wrap(err, "init provider")
	}

	zap.L().Info("model inputs loaded",
		zap.Int("sources", sources.Len()),
		zap.Int("dests", dests.Len()),
		zap.Strings("categories", dests.Categories()),
		zap.String("provider", cfg.Provider.Kind),
	)
	return &modelInputs{Sources: sources, Dests: dests, Provider: provider, close: closeFn}, nil
}

// runModel validates configuration, loads inputs and processes them.
func runModel(cmd *cobra.Command) (*access.Result, *modelInputs, error) {
	ctx := cmd.Context()
	applyModelFlags(cmd)
	if err := cfg.Validate("access"); err != nil {
		return nil, nil, err
	}

	sourcesPath, _ := cmd.Flags().GetString("sources")
	destsPath, _ := cmd.Flags().GetString("dests")
	in, err := loadInputs(ctx, sourcesPath, destsPath)
	if err != nil {
		return nil, nil, err
	}

	proc, err := access.NewProcessor(access.Options{
		Mode:         traveltime.Mode(cfg.Model.Mode),
		UpperMinutes: cfg.Model.UpperMinutes,
		Policy:       access.Policy(cfg.Model.Policy),
		Workers:      cfg.Model.Workers,
	})
	if err != nil {
		_ = in.Close()
		return nil, nil, err
	}

	res, err := proc.Process(ctx, in.Sources, in.Dests, in.Provider)
	if err != nil {
		_ = in.Close()
		return nil, nil, eris.Wrap(err, "process")
	}
	return res, in, nil
}
