package access

import (
	"time"

	"github.com/sells-group/access-cli/internal/traveltime"
)

// Edge is one in-range pair recorded during the scan. ID is the dest for a
// source adjacency list and the source for a dest adjacency list.
type Edge struct {
	ID      string  `json:"id"`
	Seconds float64 `json:"seconds"`
}

// Result is the immutable output of one Process call.
type Result struct {
	Mode         traveltime.Mode
	UpperSeconds float64
	Policy       Policy
	// Nearest holds minutes to the nearest dest per category.
	Nearest *Table[float64]
	// InRange holds the count of dests within the upper bound per category.
	InRange *Table[int]
	Elapsed time.Duration

	categories  []string
	sourceIDs   []string
	raw         map[string]float64
	voided      []string
	sourceEdges map[string][]Edge
	destEdges   map[string][]Edge
}

// Categories returns the categories (table columns) in order.
func (r *Result) Categories() []string {
	return append([]string(nil), r.categories...)
}

// SourceIDs returns the source ids (table rows) in order.
func (r *Result) SourceIDs() []string {
	return append([]string(nil), r.sourceIDs...)
}

// RawTime returns the last travel time scanned for a source, in seconds. ok is
// false when the source was never scanned against any dest.
func (r *Result) RawTime(sourceID string) (float64, bool) {
	t, ok := r.raw[sourceID]
	return t, ok
}

// RawTimes returns the raw per-source times as a single-column table.
func (r *Result) RawTimes() []Cell[float64] {
	out := make([]Cell[float64], len(r.sourceIDs))
	for i, id := range r.sourceIDs {
		t, ok := r.raw[id]
		out[i] = Cell[float64]{Row: id, Value: t, Known: ok}
	}
	return out
}

// Voided returns the sources whose rows were replaced by unknown values
// because they fall outside the provider's routable network.
func (r *Result) Voided() []string {
	return append([]string(nil), r.voided...)
}

// SourceEdges returns the in-range dests of a source in scan order.
func (r *Result) SourceEdges(sourceID string) []Edge {
	return append([]Edge(nil), r.sourceEdges[sourceID]...)
}

// DestEdges returns the sources that reach a dest within range, in source order.
func (r *Result) DestEdges(destID string) []Edge {
	return append([]Edge(nil), r.destEdges[destID]...)
}

// UpperMinutes returns the upper bound in minutes.
func (r *Result) UpperMinutes() float64 {
	return r.UpperSeconds / 60
}
