// Package clock is the time source for step pulses and echo timing, with a
// fake for tests.
package clock

import (
	"sync"
	"time"
)

// Clock is the time source used by the pulse and echo timing code.
//
// Sleep must not return before d has elapsed on the clock's own timeline.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// spinBelow is the threshold under which System busy-waits instead of
// handing the goroutine to the scheduler. time.Sleep cannot honor
// microsecond pulse widths on a stock Linux kernel.
const spinBelow = time.Millisecond

// System is the wall clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

func (System) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	if d >= spinBelow {
		time.Sleep(d)
		return
	}
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
	}
}

// Fake is a manually advanced clock. Sleep advances the fake time instantly,
// so code under test that waits on the clock runs at CPU speed.
//
// Safe for concurrent use.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

func NewFake(start time.Time) *Fake {
	if start.IsZero() {
		start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Sleep(d time.Duration) {
	f.Advance(d)
}

func (f *Fake) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}
