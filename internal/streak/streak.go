// ABOUTME: Consecutive-day streak computation over local check-in dates
// ABOUTME: Pure functions, no storage access

package streak

import (
	"sort"
	"time"

	"github.com/2389/goal-tracker/internal/clock"
)

// Count returns the length of the run of consecutive calendar dates ending
// at today. Dates are "YYYY-MM-DD" strings in any order; duplicates and
// unparsable entries are ignored. A history whose latest date is not today
// has a streak of zero, even if it ended yesterday.
func Count(dates []string, today string) int {
	days := distinctDesc(dates)
	if len(days) == 0 {
		return 0
	}

	anchor, err := time.Parse(clock.DateLayout, today)
	if err != nil || !days[0].Equal(anchor) {
		return 0
	}

	n := 1
	for i := 1; i < len(days); i++ {
		if !days[i-1].AddDate(0, 0, -1).Equal(days[i]) {
			break
		}
		n++
	}
	return n
}

// Longest returns the longest run of consecutive dates anywhere in the history.
func Longest(dates []string) int {
	days := distinctDesc(dates)
	if len(days) == 0 {
		return 0
	}

	best, run := 1, 1
	for i := 1; i < len(days); i++ {
		if days[i-1].AddDate(0, 0, -1).Equal(days[i]) {
			run++
			if run > best {
				best = run
			}
			continue
		}
		run = 1
	}
	return best
}

func distinctDesc(dates []string) []time.Time {
	seen := make(map[string]bool, len(dates))
	days := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		if seen[d] {
			continue
		}
		seen[d] = true

		t, err := time.Parse(clock.DateLayout, d)
		if err != nil {
			continue
		}
		days = append(days, t)
	}

	sort.Slice(days, func(i, j int) bool {
		return days[i].After(days[j])
	})
	return days
}
