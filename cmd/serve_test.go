package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/access-cli/internal/access"
	"github.com/sells-group/access-cli/internal/points"
	"github.com/sells-group/access-cli/internal/store"
	"github.com/sells-group/access-cli/internal/traveltime"
)

func seededStore(t *testing.T) (store.Store, *store.Run) {
	t.Helper()
	ctx := context.Background()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	sources, err := points.NewSourceSet("sources.csv", []points.SourcePoint{{ID: "S1"}, {ID: "S2"}})
	require.NoError(t, err)
	dests, err := points.NewDestSet("dests.csv", []points.DestPoint{{ID: "D1", Category: "X"}}, nil)
	require.NoError(t, err)

	m := traveltime.NewMatrix()
	m.Set("S1", "D1", 120)
	m.Set("S2", "D1", -1)

	proc, err := access.NewProcessor(access.Options{Mode: traveltime.ModeWalk, UpperMinutes: 30})
	require.NoError(t, err)
	res, err := proc.Process(ctx, sources, dests, m)
	require.NoError(t, err)

	run, err := store.Save(ctx, st, res, dests.Len(), "served")
	require.NoError(t, err)
	return st, run
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestBuildRouter_Health(t *testing.T) {
	rr := get(t, buildRouter(nil), "/healthz")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestBuildRouter_Runs(t *testing.T) {
	st, run := seededStore(t)
	h := buildRouter(st)

	rr := get(t, h, "/runs")
	require.Equal(t, http.StatusOK, rr.Code)
	var runs []store.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)

	rr = get(t, h, "/runs?mode=drive")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())

	rr = get(t, h, "/runs/"+run.ID)
	require.Equal(t, http.StatusOK, rr.Code)
	var got store.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "served", got.Label)
	assert.Equal(t, 1, got.Voided)

	rr = get(t, h, "/runs/"+run.ID+"/cells")
	require.Equal(t, http.StatusOK, rr.Code)
	var cells []store.Cell
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &cells))
	require.Len(t, cells, 2)
	require.NotNil(t, cells[0].NearestMinutes)
	assert.InDelta(t, 2.0, *cells[0].NearestMinutes, 1e-9)
	assert.Nil(t, cells[1].NearestMinutes)
	assert.Nil(t, cells[1].InRange)
}

func TestBuildRouter_Errors(t *testing.T) {
	st, _ := seededStore(t)
	h := buildRouter(st)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/runs/missing").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/runs/missing/cells").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/runs?limit=abc").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/runs?offset=-1").Code)
}

func TestBuildRouter_CORS(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://example.com")
	rr := httptest.NewRecorder()
	buildRouter(nil).ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
