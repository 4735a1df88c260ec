// ABOUTME: Mock Ledger implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject storage failures

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/goal-tracker/internal/clock"
)

// MockLedger is an in-memory Ledger implementation for testing.
type MockLedger struct {
	mu       sync.RWMutex
	clock    clock.Clock
	goals    map[string]*Goal // keyed by goal ID
	checkins []*CheckinEvent  // in insertion order
	err      error
}

var _ Ledger = (*MockLedger)(nil)

// NewMockLedger creates a new MockLedger reading the time from clk.
func NewMockLedger(clk clock.Clock) *MockLedger {
	return &MockLedger{
		clock: clk,
		goals: make(map[string]*Goal),
	}
}

// FailWith makes every subsequent call return err. Passing nil restores
// normal behaviour.
func (m *MockLedger) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// findGoal returns the user's goal named name, or nil.
func (m *MockLedger) findGoal(userID, name string) *Goal {
	for _, g := range m.goals {
		if g.UserID == userID && g.Name == name {
			return g
		}
	}
	return nil
}

func (m *MockLedger) ensureGoal(userID, name string, now time.Time) *Goal {
	if g := m.findGoal(userID, name); g != nil {
		return g
	}
	g := &Goal{ID: uuid.New().String(), UserID: userID, Name: name, CreatedAt: now}
	m.goals[g.ID] = g
	return g
}

func (m *MockLedger) hasCheckin(goalID, localDate string) bool {
	for _, c := range m.checkins {
		if c.GoalID == goalID && c.LocalDate == localDate {
			return true
		}
	}
	return false
}

// RecordCheckin stores one check-in per goal under a shared batch ID.
func (m *MockLedger) RecordCheckin(ctx context.Context, userID string, goalNames []string) (*RecordResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}

	now := clock.Local(m.clock.Now())
	result := &RecordResult{BatchID: uuid.New().String()}
	for _, name := range goalNames {
		g := m.ensureGoal(userID, name, now)
		if m.hasCheckin(g.ID, clock.LocalDate(now)) {
			result.Duplicates = append(result.Duplicates, name)
			continue
		}
		ev := &CheckinEvent{
			ID:        uuid.New().String(),
			UserID:    userID,
			GoalID:    g.ID,
			GoalName:  name,
			BatchID:   result.BatchID,
			CheckedAt: now,
			LocalDate: clock.LocalDate(now),
			CreatedAt: now,
		}
		m.checkins = append(m.checkins, ev)

		cp := *ev
		result.Events = append(result.Events, &cp)
	}
	return result, nil
}

// SupplementCheckin back-fills a single check-in.
func (m *MockLedger) SupplementCheckin(ctx context.Context, userID, goalName string, at time.Time) (*CheckinEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}

	now := clock.Local(m.clock.Now())
	at = clock.Local(at)
	if at.After(now) {
		return nil, ErrFutureTime
	}

	g := m.ensureGoal(userID, goalName, now)
	if m.hasCheckin(g.ID, clock.LocalDate(at)) {
		return nil, ErrDuplicateCheckin
	}
	ev := &CheckinEvent{
		ID:        uuid.New().String(),
		UserID:    userID,
		GoalID:    g.ID,
		GoalName:  goalName,
		CheckedAt: at,
		LocalDate: clock.LocalDate(at),
		CreatedAt: now,
	}
	m.checkins = append(m.checkins, ev)

	cp := *ev
	return &cp, nil
}

// ListCheckins returns the user's check-ins, newest first.
func (m *MockLedger) ListCheckins(ctx context.Context, userID string) ([]*CheckinEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}

	var out []*CheckinEvent
	for i := len(m.checkins) - 1; i >= 0; i-- {
		if c := m.checkins[i]; c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CheckedAt.After(out[j].CheckedAt)
	})
	return out, nil
}

// GoalName resolves the goal a check-in belongs to.
func (m *MockLedger) GoalName(ctx context.Context, checkinID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return "", m.err
	}

	for _, c := range m.checkins {
		if c.ID == checkinID {
			return m.goals[c.GoalID].Name, nil
		}
	}
	return "", ErrNotFound
}

// HasCheckedInToday reports whether goalName has a check-in on today's local date.
func (m *MockLedger) HasCheckedInToday(ctx context.Context, userID, goalName string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return false, m.err
	}

	g := m.findGoal(userID, goalName)
	return g != nil && m.hasCheckin(g.ID, clock.Today(m.clock)), nil
}

// CheckinDates returns distinct local dates, newest first.
func (m *MockLedger) CheckinDates(ctx context.Context, userID, goalName string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}

	seen := make(map[string]bool)
	var dates []string
	for _, c := range m.checkins {
		if c.UserID != userID || (goalName != "" && m.goals[c.GoalID].Name != goalName) {
			continue
		}
		if !seen[c.LocalDate] {
			seen[c.LocalDate] = true
			dates = append(dates, c.LocalDate)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}

// LastBatchGoals returns the goal names of the most recent live batch.
func (m *MockLedger) LastBatchGoals(ctx context.Context, userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}

	var last *CheckinEvent
	for _, c := range m.checkins {
		if c.UserID != userID || c.BatchID == "" {
			continue
		}
		if last == nil || !c.CreatedAt.Before(last.CreatedAt) {
			last = c
		}
	}
	if last == nil {
		return nil, nil
	}

	var names []string
	for _, c := range m.checkins {
		if c.BatchID == last.BatchID {
			names = append(names, m.goals[c.GoalID].Name)
		}
	}
	return names, nil
}

// RecentCheckins groups the last days days of check-ins by goal name.
func (m *MockLedger) RecentCheckins(ctx context.Context, userID string, days int) ([]GoalHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}

	cutoff := clock.Local(m.clock.Now()).AddDate(0, 0, -days)
	byGoal := make(map[string][]time.Time)
	for _, c := range m.checkins {
		if c.UserID == userID && !c.CheckedAt.Before(cutoff) {
			name := m.goals[c.GoalID].Name
			byGoal[name] = append(byGoal[name], c.CheckedAt)
		}
	}

	history := make([]GoalHistory, 0, len(byGoal))
	for name, times := range byGoal {
		sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
		history = append(history, GoalHistory{Goal: name, Times: times})
	}
	sort.Slice(history, func(i, j int) bool { return history[i].Goal < history[j].Goal })
	if len(history) == 0 {
		return nil, nil
	}
	return history, nil
}

// GoalTotals counts check-ins per goal, largest first.
func (m *MockLedger) GoalTotals(ctx context.Context, userID string) ([]GoalTotal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}

	counts := make(map[string]int)
	for _, c := range m.checkins {
		if c.UserID == userID {
			counts[m.goals[c.GoalID].Name]++
		}
	}

	var totals []GoalTotal
	for name, n := range counts {
		totals = append(totals, GoalTotal{Goal: name, Total: n})
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].Total != totals[j].Total {
			return totals[i].Total > totals[j].Total
		}
		return totals[i].Goal < totals[j].Goal
	})
	return totals, nil
}

// ListGoals returns the user's goals ordered by name.
func (m *MockLedger) ListGoals(ctx context.Context, userID string) ([]*Goal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}

	goals := make([]*Goal, 0)
	for _, g := range m.goals {
		if g.UserID == userID {
			cp := *g
			goals = append(goals, &cp)
		}
	}
	sort.Slice(goals, func(i, j int) bool { return goals[i].Name < goals[j].Name })
	return goals, nil
}

// DeleteGoal removes a goal and its check-ins.
func (m *MockLedger) DeleteGoal(ctx context.Context, userID, goalName string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}

	g := m.findGoal(userID, goalName)
	if g == nil {
		return 0, nil
	}
	removed := m.removeCheckins(func(c *CheckinEvent) bool { return c.GoalID == g.ID })
	delete(m.goals, g.ID)
	return removed, nil
}

// DeleteAllCheckins removes every check-in of the user, keeping the goals.
func (m *MockLedger) DeleteAllCheckins(ctx context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	return m.removeCheckins(func(c *CheckinEvent) bool { return c.UserID == userID }), nil
}

// PruneOlderThan drops old check-ins and then goals left without any.
func (m *MockLedger) PruneOlderThan(ctx context.Context, days int) (*PruneResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}

	cutoff := clock.Local(m.clock.Now()).AddDate(0, 0, -days)
	res := &PruneResult{
		Checkins: m.removeCheckins(func(c *CheckinEvent) bool { return c.CheckedAt.Before(cutoff) }),
	}

	used := make(map[string]bool)
	for _, c := range m.checkins {
		used[c.GoalID] = true
	}
	for id := range m.goals {
		if !used[id] {
			delete(m.goals, id)
			res.Goals++
		}
	}
	return res, nil
}

// ClearAll removes everything.
func (m *MockLedger) ClearAll(ctx context.Context) (*ClearResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}

	res := &ClearResult{Checkins: int64(len(m.checkins)), Goals: int64(len(m.goals))}
	m.checkins = nil
	m.goals = make(map[string]*Goal)
	return res, nil
}

// Close is a no-op.
func (m *MockLedger) Close() error {
	return nil
}

// removeCheckins deletes the check-ins matching drop and returns how many went.
func (m *MockLedger) removeCheckins(drop func(*CheckinEvent) bool) int64 {
	kept := m.checkins[:0]
	var removed int64
	for _, c := range m.checkins {
		if drop(c) {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	m.checkins = kept
	return removed
}
