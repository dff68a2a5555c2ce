// Package clock abstracts wall-clock time so run timestamps can be fixed in tests.
package clock

import "time"

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// System implements Clock using time.Now.
type System struct{}

// Now returns the current time in UTC.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always reports the same instant.
type Fixed time.Time

// Now implements Clock.
func (f Fixed) Now() time.Time {
	return time.Time(f)
}
