package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually advanced Clock. Timers fire only when Advance or Set
// moves the current time to or past their deadline.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

// NewFake creates a Fake clock reading start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) NewTimer(d time.Duration) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := &fakeTimer{
		fake:     f,
		deadline: f.now.Add(d),
		c:        make(chan time.Time, 1),
	}
	if d <= 0 {
		t.c <- f.now
		return t
	}
	f.timers = append(f.timers, t)
	return t
}

// Advance moves the clock forward by d and fires every timer that is due.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setLocked(f.now.Add(d))
}

// Set moves the clock to t. Moving backwards never fires timers.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setLocked(t)
}

func (f *Fake) setLocked(t time.Time) {
	f.now = t

	pending := f.timers[:0]
	for _, timer := range f.timers {
		if timer.deadline.After(f.now) {
			pending = append(pending, timer)
			continue
		}
		timer.c <- f.now
	}
	f.timers = pending
}

// Deadlines returns the deadlines of timers that have not fired or been stopped,
// earliest first.
func (f *Fake) Deadlines() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	deadlines := make([]time.Time, 0, len(f.timers))
	for _, timer := range f.timers {
		deadlines = append(deadlines, timer.deadline)
	}
	sort.Slice(deadlines, func(i, j int) bool {
		return deadlines[i].Before(deadlines[j])
	})
	return deadlines
}

type fakeTimer struct {
	fake     *Fake
	deadline time.Time
	c        chan time.Time
}

func (t *fakeTimer) C() <-chan time.Time {
	return t.c
}

func (t *fakeTimer) Stop() bool {
	t.fake.mu.Lock()
	defer t.fake.mu.Unlock()

	for i, timer := range t.fake.timers {
		if timer == t {
			t.fake.timers = append(t.fake.timers[:i], t.fake.timers[i+1:]...)
			return true
		}
	}
	return false
}
