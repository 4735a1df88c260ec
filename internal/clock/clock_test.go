// ABOUTME: Tests for local date derivation and the manual test clock
// ABOUTME: Covers timer ordering, Stop semantics, and zone boundaries

package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalDateUsesFixedOffset(t *testing.T) {
	// 16:30 UTC is already the next day at +08:00.
	ts := time.Date(2025, 3, 17, 16, 30, 0, 0, time.UTC)
	assert.Equal(t, "2025-03-18", LocalDate(ts))

	ts = time.Date(2025, 3, 17, 15, 59, 59, 0, time.UTC)
	assert.Equal(t, "2025-03-17", LocalDate(ts))
}

func TestManualAdvanceFiresDueTimers(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, Zone)
	m := NewManual(start)

	var fired []string
	m.AfterFunc(3*time.Second, func() { fired = append(fired, "b") })
	m.AfterFunc(time.Second, func() { fired = append(fired, "a") })
	m.AfterFunc(10*time.Second, func() { fired = append(fired, "c") })

	m.Advance(5 * time.Second)
	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, 1, m.Pending())
	assert.Equal(t, start.Add(5*time.Second), m.Now())

	m.Advance(5 * time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, fired)
	assert.Equal(t, 0, m.Pending())
}

func TestManualStop(t *testing.T) {
	m := NewManual(time.Date(2025, 1, 1, 0, 0, 0, 0, Zone))

	called := false
	timer := m.AfterFunc(time.Second, func() { called = true })

	require.True(t, timer.Stop())
	assert.False(t, timer.Stop(), "second stop should report already stopped")

	m.Advance(time.Minute)
	assert.False(t, called)
}

func TestManualStopAfterFire(t *testing.T) {
	m := NewManual(time.Date(2025, 1, 1, 0, 0, 0, 0, Zone))
	timer := m.AfterFunc(time.Second, func() {})
	m.Advance(time.Second)
	assert.False(t, timer.Stop())
}

func TestRealClockTimer(t *testing.T) {
	c := Real()
	done := make(chan struct{})
	c.AfterFunc(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
}
