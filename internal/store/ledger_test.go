// ABOUTME: Tests for check-in ledger operations
// ABOUTME: Covers batching, duplicates, back-fill, history queries, deletion, and pruning

package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCheckin(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	res, err := s.RecordCheckin(ctx, "alice", []string{"run", "read"})
	require.NoError(t, err)
	require.Len(t, res.Events, 2)
	assert.Empty(t, res.Duplicates)
	assert.NotEmpty(t, res.BatchID)

	for _, ev := range res.Events {
		assert.Equal(t, res.BatchID, ev.BatchID)
		assert.Equal(t, "2025-03-17", ev.LocalDate)
		assert.True(t, testStart.Equal(ev.CheckedAt))
	}

	events, err := s.ListCheckins(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestRecordCheckin_SameDayIsDuplicate(t *testing.T) {
	s, clk := newTestStore(t)
	ctx := context.Background()

	_, err := s.RecordCheckin(ctx, "alice", []string{"run"})
	require.NoError(t, err)

	clk.Advance(3 * time.Hour)
	res, err := s.RecordCheckin(ctx, "alice", []string{"run", "read"})
	require.NoError(t, err)
	assert.Equal(t, []string{"run"}, res.Duplicates)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "read", res.Events[0].GoalName)

	// The next local day accepts the goal again.
	clk.Advance(15 * time.Hour)
	res, err = s.RecordCheckin(ctx, "alice", []string{"run"})
	require.NoError(t, err)
	assert.Len(t, res.Events, 1)
	assert.Equal(t, "2025-03-18", res.Events[0].LocalDate)
}

func TestRecordCheckin_RepeatedNameInBatch(t *testing.T) {
	s, _ := newTestStore(t)

	res, err := s.RecordCheckin(context.Background(), "alice", []string{"run", "run"})
	require.NoError(t, err)
	assert.Len(t, res.Events, 1)
	assert.Equal(t, []string{"run"}, res.Duplicates)
}

func TestRecordCheckin_UsersAreIsolated(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.RecordCheckin(ctx, "alice", []string{"run"})
	require.NoError(t, err)
	res, err := s.RecordCheckin(ctx, "bob", []string{"run"})
	require.NoError(t, err)
	assert.Len(t, res.Events, 1)

	goals, err := s.ListGoals(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.Equal(t, "bob", goals[0].UserID)
}

func TestRecordCheckin_ConcurrentSameGoal(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	written := make(chan int, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.RecordCheckin(ctx, "alice", []string{"run"})
			if err != nil {
				t.Errorf("RecordCheckin failed: %v", err)
				return
			}
			written <- len(res.Events)
		}()
	}
	wg.Wait()
	close(written)

	total := 0
	for n := range written {
		total += n
	}
	assert.Equal(t, 1, total)
}

func TestHasCheckedInToday(t *testing.T) {
	s, clk := newTestStore(t)
	ctx := context.Background()

	ok, err := s.HasCheckedInToday(ctx, "alice", "run")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.RecordCheckin(ctx, "alice", []string{"run"})
	require.NoError(t, err)

	ok, err = s.HasCheckedInToday(ctx, "alice", "run")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.HasCheckedInToday(ctx, "alice", "read")
	require.NoError(t, err)
	assert.False(t, ok)

	clk.Advance(24 * time.Hour)
	ok, err = s.HasCheckedInToday(ctx, "alice", "run")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSupplementCheckin(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	at := testStart.AddDate(0, 0, -2)
	ev, err := s.SupplementCheckin(ctx, "alice", "run", at)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-15", ev.LocalDate)
	assert.Empty(t, ev.BatchID)

	_, err = s.SupplementCheckin(ctx, "alice", "run", at.Add(time.Hour))
	assert.True(t, errors.Is(err, ErrDuplicateCheckin))

	_, err = s.SupplementCheckin(ctx, "alice", "run", testStart.Add(time.Minute))
	assert.True(t, errors.Is(err, ErrFutureTime))

	dates, err := s.CheckinDates(ctx, "alice", "run")
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-03-15"}, dates)
}

func TestGoalName(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	res, err := s.RecordCheckin(ctx, "alice", []string{"meditate"})
	require.NoError(t, err)

	name, err := s.GoalName(ctx, res.Events[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "meditate", name)

	_, err = s.GoalName(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCheckinDates(t *testing.T) {
	s, clk := newTestStore(t)
	ctx := context.Background()

	_, err := s.RecordCheckin(ctx, "alice", []string{"run", "read"})
	require.NoError(t, err)
	clk.Advance(24 * time.Hour)
	_, err = s.RecordCheckin(ctx, "alice", []string{"read"})
	require.NoError(t, err)

	all, err := s.CheckinDates(ctx, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-03-18", "2025-03-17"}, all)

	run, err := s.CheckinDates(ctx, "alice", "run")
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-03-17"}, run)
}

func TestLastBatchGoals(t *testing.T) {
	s, clk := newTestStore(t)
	ctx := context.Background()

	names, err := s.LastBatchGoals(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, names)

	_, err = s.RecordCheckin(ctx, "alice", []string{"run"})
	require.NoError(t, err)
	clk.Advance(time.Hour)
	_, err = s.RecordCheckin(ctx, "alice", []string{"read", "stretch"})
	require.NoError(t, err)

	// Back-fills are not a batch.
	clk.Advance(time.Hour)
	_, err = s.SupplementCheckin(ctx, "alice", "swim", testStart.AddDate(0, 0, -1))
	require.NoError(t, err)

	names, err = s.LastBatchGoals(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"read", "stretch"}, names)
}

func TestRecentCheckins(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.SupplementCheckin(ctx, "alice", "run", testStart.AddDate(0, 0, -40))
	require.NoError(t, err)
	_, err = s.SupplementCheckin(ctx, "alice", "run", testStart.AddDate(0, 0, -3))
	require.NoError(t, err)
	_, err = s.SupplementCheckin(ctx, "alice", "read", testStart.AddDate(0, 0, -1))
	require.NoError(t, err)
	_, err = s.RecordCheckin(ctx, "alice", []string{"run"})
	require.NoError(t, err)

	history, err := s.RecentCheckins(ctx, "alice", 30)
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, "read", history[0].Goal)
	assert.Len(t, history[0].Times, 1)
	assert.Equal(t, "run", history[1].Goal)
	require.Len(t, history[1].Times, 2)
	assert.True(t, history[1].Times[0].Before(history[1].Times[1]))
}

func TestGoalTotals(t *testing.T) {
	s, clk := newTestStore(t)
	ctx := context.Background()

	_, err := s.RecordCheckin(ctx, "alice", []string{"run", "read"})
	require.NoError(t, err)
	clk.Advance(24 * time.Hour)
	_, err = s.RecordCheckin(ctx, "alice", []string{"run"})
	require.NoError(t, err)

	totals, err := s.GoalTotals(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []GoalTotal{{Goal: "run", Total: 2}, {Goal: "read", Total: 1}}, totals)
}

func TestDeleteGoal(t *testing.T) {
	s, clk := newTestStore(t)
	ctx := context.Background()

	_, err := s.RecordCheckin(ctx, "alice", []string{"run", "read"})
	require.NoError(t, err)
	clk.Advance(24 * time.Hour)
	_, err = s.RecordCheckin(ctx, "alice", []string{"run"})
	require.NoError(t, err)

	n, err := s.DeleteGoal(ctx, "alice", "run")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	goals, err := s.ListGoals(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.Equal(t, "read", goals[0].Name)

	n, err = s.DeleteGoal(ctx, "alice", "run")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteAllCheckins(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.RecordCheckin(ctx, "alice", []string{"run", "read"})
	require.NoError(t, err)
	_, err = s.RecordCheckin(ctx, "bob", []string{"run"})
	require.NoError(t, err)

	n, err := s.DeleteAllCheckins(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	events, err := s.ListCheckins(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, events, 1)

	// Orphaned goals survive until the next prune.
	goals, err := s.ListGoals(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, goals, 2)

	res, err := s.PruneOlderThan(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Goals)
}

func TestPruneOlderThan(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.SupplementCheckin(ctx, "alice", "old", testStart.AddDate(0, 0, -31))
	require.NoError(t, err)
	_, err = s.SupplementCheckin(ctx, "alice", "run", testStart.AddDate(0, 0, -45))
	require.NoError(t, err)
	_, err = s.SupplementCheckin(ctx, "alice", "run", testStart.AddDate(0, 0, -29))
	require.NoError(t, err)

	res, err := s.PruneOlderThan(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Checkins)
	assert.Equal(t, int64(1), res.Goals)

	goals, err := s.ListGoals(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.Equal(t, "run", goals[0].Name)

	dates, err := s.CheckinDates(ctx, "alice", "run")
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-02-16"}, dates)
}

func TestClearAll(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.RecordCheckin(ctx, "alice", []string{"run", "read"})
	require.NoError(t, err)
	_, err = s.RecordCheckin(ctx, "bob", []string{"run"})
	require.NoError(t, err)

	res, err := s.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Checkins)
	assert.Equal(t, int64(3), res.Goals)

	for _, user := range []string{"alice", "bob"} {
		events, err := s.ListCheckins(ctx, user)
		require.NoError(t, err)
		assert.Empty(t, events)
	}
}
