package points

import "fmt"

// LoadError reports a point file that could not be accepted: unreadable input,
// a missing required column, an unparseable value, or a duplicate id.
type LoadError struct {
	File   string
	Field  string
	Row    int // 1-based data row, 0 when not row specific
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	msg := "points: load " + e.File
	if e.Field != "" {
		msg += ": " + e.Field
	}
	if e.Row > 0 {
		msg += fmt.Sprintf(" (row %d)", e.Row)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
