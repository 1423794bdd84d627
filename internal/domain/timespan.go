package domain

import (
	"errors"
	"time"
)

var ErrInvalidTimespan = errors.New("timespan end must be after start")

// TimeSpan is a half-open window [Start, End) in UTC.
type TimeSpan struct {
	Start time.Time
	End   time.Time
}

// NewTimeSpan validates that the window is non-empty.
func NewTimeSpan(start, end time.Time) (TimeSpan, error) {
	if !end.After(start) {
		return TimeSpan{}, ErrInvalidTimespan
	}
	return TimeSpan{Start: start.UTC(), End: end.UTC()}, nil
}

// Duration returns the length of the window.
func (t TimeSpan) Duration() time.Duration {
	return t.End.Sub(t.Start)
}

// GreaterThan reports whether the window exceeds the given limit.
func (t TimeSpan) GreaterThan(limit time.Duration) bool {
	return t.Duration() > limit
}

// Contains reports whether the instant lies in [Start, End).
func (t TimeSpan) Contains(at time.Time) bool {
	return !at.Before(t.Start) && at.Before(t.End)
}
