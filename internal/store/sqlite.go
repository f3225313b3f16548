package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	mode          TEXT NOT NULL,
	upper_minutes REAL NOT NULL,
	policy        TEXT NOT NULL,
	sources       INTEGER NOT NULL,
	dests         INTEGER NOT NULL,
	categories    TEXT NOT NULL,
	voided        INTEGER NOT NULL DEFAULT 0,
	elapsed_ms    INTEGER NOT NULL DEFAULT 0,
	label         TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_cells (
	run_id          TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq             INTEGER NOT NULL,
	source_id       TEXT NOT NULL,
	category        TEXT NOT NULL,
	nearest_minutes REAL,
	in_range        INTEGER,
	raw_seconds     REAL,
	PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_runs_mode ON runs(mode);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run, cells []Cell) error {
	categories, err := json.Marshal(run.Categories)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal categories")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save run")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, mode, upper_minutes, policy, sources, dests, categories, voided, elapsed_ms, label, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Mode, run.UpperMinutes, run.Policy, run.Sources, run.Dests,
		string(categories), run.Voided, run.ElapsedMS, run.Label, run.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_cells (run_id, seq, source_id, category, nearest_minutes, in_range, raw_seconds)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare cells")
	}
	defer stmt.Close() //nolint:errcheck

	for i, c := range cells {
		if _, err := stmt.ExecContext(ctx, run.ID, i, c.SourceID, c.Category, c.NearestMinutes, c.InRange, c.RawSeconds); err != nil {
			return eris.Wrapf(err, "sqlite: insert cell %s/%s", c.SourceID, c.Category)
		}
	}
	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit save run")
	}

	zap.L().Info("sqlite: saved run", zap.String("run_id", run.ID), zap.Int("cells", len(cells)))
	return nil
}

const runColumns = `id, mode, upper_minutes, policy, sources, dests, categories, voided, elapsed_ms, label, created_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get run %s", runID)
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Mode != "" {
		query += ` AND mode = ?`
		args = append(args, filter.Mode)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, listLimit(filter))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) Cells(ctx context.Context, runID string) ([]Cell, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, category, nearest_minutes, in_range, raw_seconds FROM run_cells WHERE run_id = ? ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query cells %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var cells []Cell
	for rows.Next() {
		var c Cell
		var nearest, raw sql.NullFloat64
		var inRange sql.NullInt64
		if err := rows.Scan(&c.SourceID, &c.Category, &nearest, &inRange, &raw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cell")
		}
		if nearest.Valid {
			c.NearestMinutes = &nearest.Float64
		}
		if inRange.Valid {
			n := int(inRange.Int64)
			c.InRange = &n
		}
		if raw.Valid {
			c.RawSeconds = &raw.Float64
		}
		cells = append(cells, c)
	}
	return cells, eris.Wrap(rows.Err(), "sqlite: cells iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*Run, error) {
	var r Run
	var categories string

	err := row.Scan(&r.ID, &r.Mode, &r.UpperMinutes, &r.Policy, &r.Sources, &r.Dests,
		&categories, &r.Voided, &r.ElapsedMS, &r.Label, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if err := json.Unmarshal([]byte(categories), &r.Categories); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal categories")
	}
	return &r, nil
}
