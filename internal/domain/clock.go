package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock is a package-level time source so tests can freeze run dates via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source for run dates. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// RunDate returns today's date stamp as YYYYMMDD, used to name issue files.
func RunDate() string {
	return clock.Now().Format("20060102")
}

// Now returns the current time from the package clock.
func Now() time.Time {
	return clock.Now()
}
