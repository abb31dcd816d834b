// Package system provides the wall clock used to stamp harvested items.
package system

import "time"

// Clock implements harvest.Clock.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time truncated to microseconds, the precision
// kept by a postgres timestamptz column.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
