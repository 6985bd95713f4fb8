package testutil

import (
	"sync"
	"time"

	"github.com/r2p2/r2p2d/internal/r2p2"
)

// armedTimer records one Arm call so a test can fire or disarm it later.
type armedTimer struct {
	fire    func()
	fired   bool
	stopped bool
}

func (a *armedTimer) Stop() bool {
	if a.stopped || a.fired {
		return false
	}
	a.stopped = true
	return true
}

// FakeTimer is a deterministic r2p2.Timer: nothing fires on its own. Tests
// drive time by calling FireAll or FireLast explicitly.
type FakeTimer struct {
	mu     sync.Mutex
	timers []*armedTimer
}

// NewFakeTimer returns an empty FakeTimer.
func NewFakeTimer() *FakeTimer {
	return &FakeTimer{}
}

// Arm implements r2p2.Timer.
func (f *FakeTimer) Arm(_ time.Duration, fire func()) r2p2.TimerToken {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &armedTimer{fire: fire}
	f.timers = append(f.timers, t)
	return t
}

// Disarm implements r2p2.Timer.
func (f *FakeTimer) Disarm(tok r2p2.TimerToken) {
	if tok != nil {
		tok.Stop()
	}
}

// Pending returns the number of armed timers that have neither fired nor
// been disarmed.
func (f *FakeTimer) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

// FireAll fires every still-live armed timer, in arming order.
func (f *FakeTimer) FireAll() {
	f.mu.Lock()
	pending := make([]*armedTimer, len(f.timers))
	copy(pending, f.timers)
	f.mu.Unlock()

	for _, t := range pending {
		if t.stopped || t.fired {
			continue
		}
		t.fired = true
		t.fire()
	}
}

// FireLast fires only the most recently armed, still-live timer.
func (f *FakeTimer) FireLast() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.timers) - 1; i >= 0; i-- {
		t := f.timers[i]
		if !t.stopped && !t.fired {
			t.fired = true
			t.fire()
			return
		}
	}
}
