package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var runCols = []string{"id", "mode", "upper_minutes", "policy", "sources", "dests", "categories", "voided", "elapsed_ms", "label", "created_at"}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS runs`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	res := testResult(t)
	run := NewRun(res, 2, "pg")
	cells := CellsFromResult(res)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(run.ID, "drive", 30.0, "last", 2, 2, []string{"X", "Y"}, 1, run.ElapsedMS, "pg", run.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"run_cells"}, cellColumns).WillReturnResult(int64(len(cells)))
	mock.ExpectCommit()

	require.NoError(t, s.SaveRun(context.Background(), run, cells))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRun_CopyFails(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	res := testResult(t)
	run := NewRun(res, 2, "")

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(run.ID, "drive", 30.0, "last", 2, 2, []string{"X", "Y"}, 1, run.ElapsedMS, "", run.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"run_cells"}, cellColumns).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.SaveRun(context.Background(), run, CellsFromResult(res))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy cells")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, mode, upper_minutes.* FROM runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows(runCols).
			AddRow("run-1", "walk", 30.0, "any", 10, 4, []string{"clinic", "school"}, 2, int64(15), "", created))

	got, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "walk", got.Mode)
	assert.Equal(t, "any", got.Policy)
	assert.Equal(t, []string{"clinic", "school"}, got.Categories)
	assert.Equal(t, 2, got.Voided)
	assert.Equal(t, created, got.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM runs WHERE true AND mode = \$1 ORDER BY created_at DESC, id LIMIT \$2 OFFSET \$3`).
		WithArgs("bike", 5, 10).
		WillReturnRows(pgxmock.NewRows(runCols).
			AddRow("a", "bike", 15.0, "last", 1, 1, []string{"X"}, 0, int64(1), "", now).
			AddRow("b", "bike", 15.0, "last", 1, 1, []string{"X"}, 0, int64(1), "", now))

	runs, err := s.ListRuns(context.Background(), RunFilter{Mode: "bike", Limit: 5, Offset: 10})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "b", runs[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_DefaultLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM runs WHERE true ORDER BY created_at DESC, id LIMIT \$1`).
		WithArgs(100).
		WillReturnRows(pgxmock.NewRows(runCols))

	runs, err := s.ListRuns(context.Background(), RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Cells_RunMissing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM runs WHERE id = \$1`).
		WithArgs("gone").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.Cells(context.Background(), "gone")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Close(t *testing.T) {
	called := false
	s := &PostgresStore{closeFn: func() { called = true }}
	require.NoError(t, s.Close())
	assert.True(t, called)
}
