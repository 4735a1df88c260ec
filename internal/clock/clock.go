// ABOUTME: Time source and cancellable timer abstraction shared by the ledger core
// ABOUTME: Also fixes the +08:00 zone used to derive local calendar dates

package clock

import "time"

// Zone is the fixed +08:00 offset that defines a "local day" for every user,
// independent of the server's own time zone.
var Zone = time.FixedZone("UTC+8", 8*60*60)

// DateLayout is the canonical format of a local calendar date.
const DateLayout = "2006-01-02"

// Clock supplies the current time and schedules delayed callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a handle to a scheduled callback.
// Stop reports whether the call stopped the callback before it ran.
type Timer interface {
	Stop() bool
}

type realClock struct{}

// Real returns a Clock backed by the time package.
func Real() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// LocalDate returns the calendar date of t in Zone.
func LocalDate(t time.Time) string {
	return t.In(Zone).Format(DateLayout)
}

// Today returns the current local calendar date according to c.
func Today(c Clock) string {
	return LocalDate(c.Now())
}

// Local converts t to Zone.
func Local(t time.Time) time.Time {
	return t.In(Zone)
}
