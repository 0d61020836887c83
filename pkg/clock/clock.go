// Package clock abstracts the time source so the refresh schedule and the
// freshness timestamps can be driven deterministically in tests.
package clock

import "time"

// Clock supplies the current time and one-shot timers.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

// Timer is a pending one-shot timer.
type Timer interface {
	// C delivers the fire time once the timer expires.
	C() <-chan time.Time
	// Stop prevents the timer from firing. It reports whether the call stopped it.
	Stop() bool
}

type realClock struct{}

// New returns a Clock backed by the time package.
func New() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) NewTimer(d time.Duration) Timer {
	return realTimer{timer: time.NewTimer(d)}
}

type realTimer struct {
	timer *time.Timer
}

func (t realTimer) C() <-chan time.Time {
	return t.timer.C
}

func (t realTimer) Stop() bool {
	return t.timer.Stop()
}
