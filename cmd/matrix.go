package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/access-cli/internal/traveltime"
)

var matrixCmd = &cobra.Command{
	Use:   "matrix",
	Short: "Manage stored travel time matrices",
}

var matrixImportCmd = &cobra.Command{
	Use:   "import <matrix.csv>",
	Short: "Import a travel time matrix CSV into a SQLite database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if f := cmd.Flags(); f.Changed("matrix-db") {
			cfg.Provider.MatrixDB, _ = f.GetString("matrix-db")
		}
		if f := cmd.Flags(); f.Changed("matrix-format") {
			cfg.Provider.MatrixFormat, _ = f.GetString("matrix-format")
		}
		if err := cfg.Validate("matrix"); err != nil {
			return err
		}

		m, err := traveltime.LoadMatrixCSV(args[0], traveltime.Format(cfg.Provider.MatrixFormat))
		if err != nil {
			return err
		}

		db, err := traveltime.OpenSQLiteMatrix(ctx, cfg.Provider.MatrixDB)
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck

		n, err := db.Import(ctx, m)
		if err != nil {
			return eris.Wrap(err, "matrix import")
		}
		total, err := db.Count(ctx)
		if err != nil {
			return err
		}

		zap.L().Info("matrix import complete",
			zap.String("file", args[0]),
			zap.String("db", cfg.Provider.MatrixDB),
			zap.Int("imported", n),
			zap.Int("total", total),
		)
		return nil
	},
}

func init() {
	matrixImportCmd.Flags().String("matrix-db", "", "SQLite travel time database (default from config)")
	matrixImportCmd.Flags().String("matrix-format", "", "matrix layout: wide or long")
	matrixCmd.AddCommand(matrixImportCmd)
	rootCmd.AddCommand(matrixCmd)
}
