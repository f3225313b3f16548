package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/access-cli/internal/db"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	mode          TEXT NOT NULL,
	upper_minutes DOUBLE PRECISION NOT NULL,
	policy        TEXT NOT NULL,
	sources       INTEGER NOT NULL,
	dests         INTEGER NOT NULL,
	categories    TEXT[] NOT NULL,
	voided        INTEGER NOT NULL DEFAULT 0,
	elapsed_ms    BIGINT NOT NULL DEFAULT 0,
	label         TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_cells (
	run_id          TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq             INTEGER NOT NULL,
	source_id       TEXT NOT NULL,
	category        TEXT NOT NULL,
	nearest_minutes DOUBLE PRECISION,
	in_range        INTEGER,
	raw_seconds     DOUBLE PRECISION,
	PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_runs_mode ON runs(mode);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
`

// cellColumns is the COPY column list for run_cells.
var cellColumns = []string{"run_id", "seq", "source_id", "category", "nearest_minutes", "in_range", "raw_seconds"}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, run *Run, cells []Cell) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save run")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO runs (id, mode, upper_minutes, policy, sources, dests, categories, voided, elapsed_ms, label, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		run.ID, run.Mode, run.UpperMinutes, run.Policy, run.Sources, run.Dests,
		run.Categories, run.Voided, run.ElapsedMS, run.Label, run.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert run %s", run.ID)
	}

	rows := make([][]any, len(cells))
	for i, c := range cells {
		rows[i] = []any{run.ID, i, c.SourceID, c.Category, c.NearestMinutes, c.InRange, c.RawSeconds}
	}
	if _, err := db.CopyFrom(ctx, tx, "run_cells", cellColumns, rows); err != nil {
		return eris.Wrapf(err, "postgres: copy cells for run %s", run.ID)
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit save run")
	}
	zap.L().Info("postgres: saved run", zap.String("run_id", run.ID), zap.Int("cells", len(cells)))
	return nil
}

const pgRunColumns = `id, mode, upper_minutes, policy, sources, dests, categories, voided, elapsed_ms, label, created_at`

func scanPgRun(row pgx.Row) (*Run, error) {
	var r Run
	err := row.Scan(&r.ID, &r.Mode, &r.UpperMinutes, &r.Policy, &r.Sources, &r.Dests,
		&r.Categories, &r.Voided, &r.ElapsedMS, &r.Label, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	r, err := scanPgRun(s.pool.QueryRow(ctx, `SELECT `+pgRunColumns+` FROM runs WHERE id = $1`, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT ` + pgRunColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Mode != "" {
		query += fmt.Sprintf(` AND mode = $%d`, argIdx)
		args = append(args, filter.Mode)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) Cells(ctx context.Context, runID string) ([]Cell, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT source_id, category, nearest_minutes, in_range, raw_seconds FROM run_cells WHERE run_id = $1 ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query cells %s", runID)
	}
	defer rows.Close()

	var cells []Cell
	for rows.Next() {
		var c Cell
		if err := rows.Scan(&c.SourceID, &c.Category, &c.NearestMinutes, &c.InRange, &c.RawSeconds); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cell")
		}
		cells = append(cells, c)
	}
	return cells, eris.Wrap(rows.Err(), "postgres: cells iterate")
}
