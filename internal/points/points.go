// Package points loads and validates the source and destination point sets
// consumed by the accessibility model.
package points

import (
	"math"
	"sort"
)

// UndefinedCategory is assigned to destinations when no category column is mapped.
const UndefinedCategory = "CAT_UNDEFINED"

// DefaultLowerArealUnit is assigned when no lower areal unit column is mapped.
const DefaultLowerArealUnit = "1"

// SourcePoint is an origin location (e.g. a census block) with a population.
type SourcePoint struct {
	ID             string  `json:"id"`
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	Population     int     `json:"population"`
	LowerArealUnit string  `json:"lower_areal_unit"`
}

// DestPoint is a facility location with a category and an optional target value.
type DestPoint struct {
	ID             string  `json:"id"`
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	Category       string  `json:"category"`
	Target         float64 `json:"target"`
	LowerArealUnit string  `json:"lower_areal_unit"`
}

// HasTarget reports whether the destination carries a target value.
func (d DestPoint) HasTarget() bool {
	return !math.IsNaN(d.Target)
}

// SourceSet is an immutable, id-indexed collection of source points in file order.
type SourceSet struct {
	File                string
	ValidPopulation     bool
	ValidLowerArealUnit bool

	points []SourcePoint
	index  map[string]int
}

// NewSourceSet builds a SourceSet, rejecting duplicate ids.
func NewSourceSet(file string, pts []SourcePoint) (*SourceSet, error) {
	s := &SourceSet{
		File:                file,
		ValidPopulation:     true,
		ValidLowerArealUnit: true,
		points:              make([]SourcePoint, 0, len(pts)),
		index:               make(map[string]int, len(pts)),
	}
	for _, p := range pts {
		if _, dup := s.index[p.ID]; dup {
			return nil, &LoadError{File: file, Field: "id", Reason: "duplicate id " + p.ID}
		}
		s.index[p.ID] = len(s.points)
		s.points = append(s.points, p)
	}
	return s, nil
}

// Len returns the number of sources.
func (s *SourceSet) Len() int { return len(s.points) }

// IDs returns source ids in load order.
func (s *SourceSet) IDs() []string {
	ids := make([]string, len(s.points))
	for i, p := range s.points {
		ids[i] = p.ID
	}
	return ids
}

// Get returns the source with the given id.
func (s *SourceSet) Get(id string) (SourcePoint, bool) {
	i, ok := s.index[id]
	if !ok {
		return SourcePoint{}, false
	}
	return s.points[i], true
}

// Population returns the population of a source, or 0 when the id is unknown.
func (s *SourceSet) Population(id string) int {
	p, ok := s.Get(id)
	if !ok {
		return 0
	}
	return p.Population
}

// Points returns a copy of the sources in load order.
func (s *SourceSet) Points() []SourcePoint {
	out := make([]SourcePoint, len(s.points))
	copy(out, s.points)
	return out
}

// DestSet is an immutable, id-indexed collection of destination points in file order.
type DestSet struct {
	File                string
	ValidTarget         bool
	ValidCategory       bool
	ValidLowerArealUnit bool

	points     []DestPoint
	index      map[string]int
	categories []string
}

// NewDestSet builds a DestSet, rejecting duplicate ids. When subset is non-empty,
// destinations whose category is not in it are dropped before the category set
// is derived.
func NewDestSet(file string, pts []DestPoint, subset []string) (*DestSet, error) {
	keep := make(map[string]bool, len(subset))
	for _, c := range subset {
		keep[c] = true
	}

	d := &DestSet{
		File:                file,
		ValidTarget:         true,
		ValidCategory:       true,
		ValidLowerArealUnit: true,
		points:              make([]DestPoint, 0, len(pts)),
		index:               make(map[string]int, len(pts)),
	}
	ids := make(map[string]bool, len(pts))
	seen := make(map[string]bool)
	for _, p := range pts {
		if ids[p.ID] {
			return nil, &LoadError{File: file, Field: "id", Reason: "duplicate id " + p.ID}
		}
		ids[p.ID] = true
		if len(keep) > 0 && !keep[p.Category] {
			continue
		}
		d.index[p.ID] = len(d.points)
		d.points = append(d.points, p)
		if !seen[p.Category] {
			seen[p.Category] = true
			d.categories = append(d.categories, p.Category)
		}
	}
	sort.Strings(d.categories)
	return d, nil
}

// Len returns the number of destinations.
func (d *DestSet) Len() int { return len(d.points) }

// IDs returns destination ids in load order.
func (d *DestSet) IDs() []string {
	ids := make([]string, len(d.points))
	for i, p := range d.points {
		ids[i] = p.ID
	}
	return ids
}

// Get returns the destination with the given id.
func (d *DestSet) Get(id string) (DestPoint, bool) {
	i, ok := d.index[id]
	if !ok {
		return DestPoint{}, false
	}
	return d.points[i], true
}

// Category returns the category of a destination, or "" when the id is unknown.
func (d *DestSet) Category(id string) string {
	p, ok := d.Get(id)
	if !ok {
		return ""
	}
	return p.Category
}

// Target returns the target value of a destination. The bool is false when the
// id is unknown or the destination has no target.
func (d *DestSet) Target(id string) (float64, bool) {
	p, ok := d.Get(id)
	if !ok || !p.HasTarget() {
		return 0, false
	}
	return p.Target, true
}

// Categories returns the sorted set of distinct categories.
func (d *DestSet) Categories() []string {
	out := make([]string, len(d.categories))
	copy(out, d.categories)
	return out
}

// Points returns a copy of the destinations in load order.
func (d *DestSet) Points() []DestPoint {
	out := make([]DestPoint, len(d.points))
	copy(out, d.points)
	return out
}
