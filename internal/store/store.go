// Package store persists accessibility runs and their table cells.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/access-cli/internal/access"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: run not found")

// Run summarizes one Process call.
type Run struct {
	ID           string    `json:"id"`
	Mode         string    `json:"mode"`
	UpperMinutes float64   `json:"upper_minutes"`
	Policy       string    `json:"policy"`
	Sources      int       `json:"sources"`
	Dests        int       `json:"dests"`
	Categories   []string  `json:"categories"`
	Voided       int       `json:"voided"`
	ElapsedMS    int64     `json:"elapsed_ms"`
	Label        string    `json:"label,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Cell is one (source, category) entry of a run. Nil pointers are unknown.
type Cell struct {
	SourceID       string   `json:"source_id"`
	Category       string   `json:"category"`
	NearestMinutes *float64 `json:"nearest_minutes"`
	InRange        *int     `json:"in_range"`
	RawSeconds     *float64 `json:"raw_seconds"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Mode   string `json:"mode,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for accessibility runs.
type Store interface {
	SaveRun(ctx context.Context, run *Run, cells []Cell) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)
	Cells(ctx context.Context, runID string) ([]Cell, error)

	Migrate(ctx context.Context) error
	Close() error
}

// NewRun builds a Run record for res with a fresh id.
func NewRun(res *access.Result, dests int, label string) *Run {
	return &Run{
		ID:           uuid.New().String(),
		Mode:         string(res.Mode),
		UpperMinutes: res.UpperMinutes(),
		Policy:       string(res.Policy),
		Sources:      len(res.SourceIDs()),
		Dests:        dests,
		Categories:   res.Categories(),
		Voided:       len(res.Voided()),
		ElapsedMS:    res.Elapsed.Milliseconds(),
		Label:        label,
		CreatedAt:    time.Now().UTC(),
	}
}

// CellsFromResult flattens the result tables into cells in source, then
// category, order.
func CellsFromResult(res *access.Result) []Cell {
	categories := res.Categories()
	cells := make([]Cell, 0, len(res.SourceIDs())*len(categories))
	for _, src := range res.SourceIDs() {
		var raw *float64
		if t, ok := res.RawTime(src); ok {
			raw = &t
		}
		for _, c := range categories {
			cell := Cell{SourceID: src, Category: c, RawSeconds: raw}
			if v, ok := res.Nearest.Value(src, c); ok {
				cell.NearestMinutes = &v
			}
			if n, ok := res.InRange.Value(src, c); ok {
				cell.InRange = &n
			}
			cells = append(cells, cell)
		}
	}
	return cells
}

// Save stores res as a new run and returns its record.
func Save(ctx context.Context, s Store, res *access.Result, dests int, label string) (*Run, error) {
	run := NewRun(res, dests, label)
	if err := s.SaveRun(ctx, run, CellsFromResult(res)); err != nil {
		return nil, err
	}
	return run, nil
}

func listLimit(f RunFilter) int {
	if f.Limit <= 0 {
		return 100
	}
	return f.Limit
}
