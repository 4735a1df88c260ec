// ABOUTME: Manually advanced Clock for deterministic tests
// ABOUTME: Timers fire synchronously from Advance in deadline order

package clock

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Clock whose time only moves when Set or Advance is called.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	owner   *Manual
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

// NewManual creates a Manual clock starting at t.
func NewManual(t time.Time) *Manual {
	return &Manual{now: t}
}

// Now returns the clock's current time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc schedules f to run once the clock has advanced by d.
func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &manualTimer{owner: m, at: m.now.Add(d), f: f}
	m.timers = append(m.timers, t)
	return t
}

// Set moves the clock to t, firing any timers that became due.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	due := m.collectDueLocked()
	m.mu.Unlock()

	for _, tm := range due {
		tm.f()
	}
}

// Advance moves the clock forward by d, firing any timers that became due.
func (m *Manual) Advance(d time.Duration) {
	m.Set(m.Now().Add(d))
}

// Pending returns the number of scheduled timers that have neither fired nor been stopped.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// collectDueLocked removes due timers from the schedule. Must be called with mu held.
func (m *Manual) collectDueLocked() []*manualTimer {
	var due, rest []*manualTimer
	for _, t := range m.timers {
		switch {
		case t.stopped || t.fired:
		case !t.at.After(m.now):
			t.fired = true
			due = append(due, t)
		default:
			rest = append(rest, t)
		}
	}
	m.timers = rest

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].at.Before(due[j].at)
	})
	return due
}

func (t *manualTimer) Stop() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()

	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}
