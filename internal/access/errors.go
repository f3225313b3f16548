package access

import (
	"fmt"
	"strings"
)

// PreconditionError is returned when Process is called without its inputs.
type PreconditionError struct {
	Missing []string
}

func (e *PreconditionError) Error() string {
	return "access: process called before loading " + strings.Join(e.Missing, ", ")
}

// ProviderError is returned when the travel time provider fails or returns a
// non-numeric time. The whole run is abandoned.
type ProviderError struct {
	SourceID string
	DestID   string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("access: travel time %s -> %s: %v", e.SourceID, e.DestID, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
