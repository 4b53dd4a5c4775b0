package timeutil

import "time"

// Clock returns the current time; components take one so tests can pin it.
type Clock func() time.Time

// Now returns the current UTC time.
func Now() time.Time {
	return time.Now().UTC()
}

// OrNow returns c, or Now when c is nil.
func OrNow(c Clock) Clock {
	if c == nil {
		return Now
	}
	return c
}
