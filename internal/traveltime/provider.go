// Package traveltime provides travel time lookups between source and
// destination points. Providers return seconds, or Sentinel when a pair lies
// outside the routable network.
package traveltime

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Sentinel marks a pair outside the routable network. Any negative value
// returned by a Provider carries the same meaning.
const Sentinel = -1.0

// ErrPairNotFound is returned when a provider has no entry for a pair.
var ErrPairNotFound = eris.New("traveltime: pair not found")

// Provider returns the travel time in seconds from a source to a destination.
// Implementations must be safe for concurrent use.
type Provider interface {
	Time(ctx context.Context, sourceID, destID string) (float64, error)
}

// IsReachable reports whether t is a computed travel time rather than a sentinel.
func IsReachable(t float64) bool {
	return t >= 0
}

// Mode is a mode of transit.
type Mode string

// Supported modes.
const (
	ModeDrive Mode = "drive"
	ModeWalk  Mode = "walk"
	ModeBike  Mode = "bike"
)

// Modes lists every supported mode.
var Modes = []Mode{ModeDrive, ModeWalk, ModeBike}

// Valid reports whether m is a supported mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeDrive, ModeWalk, ModeBike:
		return true
	}
	return false
}

// ParseMode parses a mode name, case-insensitively.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", eris.Errorf("traveltime: invalid mode of transit %q, must be one of: drive, walk, bike", s)
	}
	return m, nil
}

// MalformedTimeError reports a travel time cell that is not a number.
type MalformedTimeError struct {
	File  string
	Row   int
	Col   int
	Value string
}

func (e *MalformedTimeError) Error() string {
	return fmt.Sprintf("traveltime: malformed time %q in %s at row %d col %d", e.Value, e.File, e.Row, e.Col)
}

// FuncProvider adapts a function to the Provider interface.
type FuncProvider func(ctx context.Context, sourceID, destID string) (float64, error)

// Time calls f.
func (f FuncProvider) Time(ctx context.Context, sourceID, destID string) (float64, error) {
	return f(ctx, sourceID, destID)
}
