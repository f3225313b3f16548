package traveltime

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteMatrix serves travel times from a SQLite database so matrices larger
// than memory can be queried by pair.
type SQLiteMatrix struct {
	db *sql.DB
}

// OpenSQLiteMatrix opens (or creates) a matrix database and ensures the schema.
func OpenSQLiteMatrix(ctx context.Context, dsn string) (*SQLiteMatrix, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "matrixdb: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "matrixdb: exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, matrixMigration); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "matrixdb: migrate")
	}
	return &SQLiteMatrix{db: db}, nil
}

const matrixMigration = `
CREATE TABLE IF NOT EXISTS travel_times (
	source_id TEXT NOT NULL,
	dest_id   TEXT NOT NULL,
	seconds   REAL NOT NULL,
	PRIMARY KEY (source_id, dest_id)
) WITHOUT ROWID;
`

// Import writes every pair of m in one transaction, replacing existing pairs.
func (s *SQLiteMatrix) Import(ctx context.Context, m *Matrix) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "matrixdb: begin import")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO travel_times (source_id, dest_id, seconds) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "matrixdb: prepare import")
	}
	defer stmt.Close() //nolint:errcheck

	var n int
	var execErr error
	m.Each(func(src, dst string, seconds float64) {
		if execErr != nil {
			return
		}
		if _, execErr = stmt.ExecContext(ctx, src, dst, seconds); execErr == nil {
			n++
		}
	})
	if execErr != nil {
		return 0, eris.Wrap(execErr, "matrixdb: insert pair")
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "matrixdb: commit import")
	}

	zap.L().Info("matrixdb: imported pairs", zap.Int("pairs", n))
	return n, nil
}

// Time implements Provider.
func (s *SQLiteMatrix) Time(ctx context.Context, sourceID, destID string) (float64, error) {
	var seconds float64
	err := s.db.QueryRowContext(ctx,
		`SELECT seconds FROM travel_times WHERE source_id = ? AND dest_id = ?`,
		sourceID, destID,
	).Scan(&seconds)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, eris.Wrapf(ErrPairNotFound, "matrixdb: %s -> %s", sourceID, destID)
	}
	if err != nil {
		return 0, eris.Wrap(err, "matrixdb: query time")
	}
	return seconds, nil
}

// Count returns the number of stored pairs.
func (s *SQLiteMatrix) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM travel_times`).Scan(&n)
	return n, eris.Wrap(err, "matrixdb: count")
}

// Close closes the database.
func (s *SQLiteMatrix) Close() error {
	return s.db.Close()
}
