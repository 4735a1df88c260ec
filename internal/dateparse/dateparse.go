// ABOUTME: Lenient parser for user-supplied back-fill dates and times
// ABOUTME: Accepts several separator styles and a compact YYYYMMDD form

package dateparse

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/2389/goal-tracker/internal/clock"
)

// ErrUnrecognized is returned when no accepted format matches the input.
var ErrUnrecognized = errors.New("unrecognized date format")

// DefaultHour is the local hour assigned to inputs that carry only a date.
const DefaultHour = 12

// Examples lists one input per accepted style, for help and error text.
var Examples = []string{
	"2025-03-17",
	"2025-03-17 08:30",
	"2025-03-17 08:30:00",
	"2025/03/17 08:30",
	"2025.03.17 08:30",
	"2025-03-17T08:30",
	"20250317 0830",
}

// layouts are tried in order against the normalized input.
var layouts = []struct {
	layout  string
	hasTime bool
}{
	{"2006-1-2 15:04:05", true},
	{"2006-1-2 15:04", true},
	{"2006-1-2", false},
}

var (
	compactPattern = regexp.MustCompile(`^(\d{8})(?:\s+(\d{2}):?(\d{2}))?$`)
	spaceRun       = regexp.MustCompile(`\s+`)
)

// Parse interprets s as a local (+08:00) time. Inputs without a time of day
// resolve to DefaultHour on that date. An explicit RFC 3339 offset is honored
// and the result converted to the local zone.
func Parse(s string) (time.Time, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: empty input", ErrUnrecognized)
	}

	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(clock.Zone), nil
	}

	if m := compactPattern.FindStringSubmatch(raw); m != nil {
		return parseCompact(raw, m)
	}

	if mixedSeparators(raw) {
		return time.Time{}, fmt.Errorf("%w: mixed date separators in %q", ErrUnrecognized, s)
	}

	norm := normalize(raw)
	for _, l := range layouts {
		t, err := time.ParseInLocation(l.layout, norm, clock.Zone)
		if err != nil {
			continue
		}
		if !l.hasTime {
			t = t.Add(DefaultHour * time.Hour)
		}
		return t, nil
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrUnrecognized, s)
}

// mixedSeparators reports whether the date part of s uses more than one of
// '-', '/' and '.'.
func mixedSeparators(s string) bool {
	date := s
	if i := strings.IndexAny(s, " T"); i >= 0 {
		date = s[:i]
	}
	var seen rune
	for _, r := range date {
		if r != '-' && r != '/' && r != '.' {
			continue
		}
		if seen != 0 && r != seen {
			return true
		}
		seen = r
	}
	return false
}

func normalize(s string) string {
	s = strings.NewReplacer("/", "-", ".", "-", "T", " ").Replace(s)
	return spaceRun.ReplaceAllString(s, " ")
}

// parseCompact handles YYYYMMDD with an optional HHMM or HH:MM suffix.
func parseCompact(raw string, m []string) (time.Time, error) {
	if m[2] == "" {
		t, err := time.ParseInLocation("20060102", m[1], clock.Zone)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrUnrecognized, raw)
		}
		return t.Add(DefaultHour * time.Hour), nil
	}

	t, err := time.ParseInLocation("20060102 1504", m[1]+" "+m[2]+m[3], clock.Zone)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnrecognized, raw)
	}
	return t, nil
}
