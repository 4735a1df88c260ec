// ABOUTME: Check-in guard and streak reporting on top of the ledger store
// ABOUTME: Normalizes goal lists, filters same-day duplicates, and classifies failures

package checkin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/2389/goal-tracker/internal/apperror"
	"github.com/2389/goal-tracker/internal/clock"
	"github.com/2389/goal-tracker/internal/dateparse"
	"github.com/2389/goal-tracker/internal/store"
	"github.com/2389/goal-tracker/internal/streak"
)

// Service guards writes to the ledger and derives streaks from it.
type Service struct {
	ledger store.Ledger
	clock  clock.Clock
	logger *slog.Logger
}

// GoalStreak pairs a goal with the user's current streak for it.
type GoalStreak struct {
	Goal   string
	Streak int
}

// Result is the outcome of a check-in request.
type Result struct {
	Accepted   []GoalStreak
	Duplicates []string

	// Repeated is set when the goals were taken from the user's previous batch.
	Repeated bool
}

// GoalSummary is one line of a user's record.
type GoalSummary struct {
	Goal    string
	Total   int
	Streak  int
	Longest int
}

// NewService creates a check-in service backed by ledger.
func NewService(ledger store.Ledger, clk clock.Clock, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		ledger: ledger,
		clock:  clk,
		logger: logger.With("component", "checkin"),
	}
}

// SplitGoals splits a comma separated goal list. ASCII commas, full-width
// commas and the ideographic enumeration comma are all accepted.
func SplitGoals(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '，' || r == '、'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, strings.TrimSpace(f))
	}
	return out
}

// normalizeGoals trims names, drops empty ones, and removes repeats while
// preserving order.
func normalizeGoals(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// Checkin records today's check-in for each goal. A nil or empty goals
// slice repeats the user's most recent batch. Goals already checked in today
// are reported as duplicates and not written again.
func (s *Service) Checkin(ctx context.Context, userID string, goals []string) (*Result, error) {
	const op = "checkin"

	result := &Result{}

	if len(goals) == 0 {
		last, err := s.ledger.LastBatchGoals(ctx, userID)
		if err != nil {
			return nil, apperror.Storage(op, err)
		}
		if len(last) == 0 {
			return nil, apperror.NoHistory(op, "no previous check-in to repeat")
		}
		goals = last
		result.Repeated = true
	}

	names := normalizeGoals(goals)
	if len(names) == 0 {
		return nil, apperror.Validation(op, "goal list is empty")
	}

	var fresh []string
	for _, name := range names {
		done, err := s.ledger.HasCheckedInToday(ctx, userID, name)
		if err != nil {
			return nil, apperror.Storage(op, err)
		}
		if done {
			result.Duplicates = append(result.Duplicates, name)
			continue
		}
		fresh = append(fresh, name)
	}

	if len(fresh) > 0 {
		rec, err := s.ledger.RecordCheckin(ctx, userID, fresh)
		if err != nil {
			return nil, apperror.Storage(op, err)
		}
		// A concurrent request may have won the race for some goals.
		result.Duplicates = append(result.Duplicates, rec.Duplicates...)

		for _, ev := range rec.Events {
			n, err := s.ConsecutiveDays(ctx, userID, ev.GoalName)
			if err != nil {
				return nil, err
			}
			result.Accepted = append(result.Accepted, GoalStreak{Goal: ev.GoalName, Streak: n})
		}
	}

	s.logger.Info("check-in",
		"user_id", userID,
		"accepted", len(result.Accepted),
		"duplicates", len(result.Duplicates),
		"repeated", result.Repeated)
	return result, nil
}

// ConsecutiveDays returns the user's current streak for goalName, or across
// all goals when goalName is empty.
func (s *Service) ConsecutiveDays(ctx context.Context, userID, goalName string) (int, error) {
	dates, err := s.ledger.CheckinDates(ctx, userID, goalName)
	if err != nil {
		return 0, apperror.Storage("streak", err)
	}
	return streak.Count(dates, clock.Today(s.clock)), nil
}

// Record summarizes every goal of the user, ordered by total check-ins and
// then current streak, both descending.
func (s *Service) Record(ctx context.Context, userID string) ([]GoalSummary, error) {
	const op = "record"

	totals, err := s.ledger.GoalTotals(ctx, userID)
	if err != nil {
		return nil, apperror.Storage(op, err)
	}

	today := clock.Today(s.clock)
	summaries := make([]GoalSummary, 0, len(totals))
	for _, t := range totals {
		dates, err := s.ledger.CheckinDates(ctx, userID, t.Goal)
		if err != nil {
			return nil, apperror.Storage(op, err)
		}
		summaries = append(summaries, GoalSummary{
			Goal:    t.Goal,
			Total:   t.Total,
			Streak:  streak.Count(dates, today),
			Longest: streak.Longest(dates),
		})
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		if summaries[i].Total != summaries[j].Total {
			return summaries[i].Total > summaries[j].Total
		}
		return summaries[i].Streak > summaries[j].Streak
	})
	return summaries, nil
}

// Supplement back-fills a check-in for goalName at the time described by when.
func (s *Service) Supplement(ctx context.Context, userID, goalName, when string) (*store.CheckinEvent, error) {
	const op = "supplement"

	goalName = strings.TrimSpace(goalName)
	if goalName == "" {
		return nil, apperror.Validation(op, "goal name is required")
	}

	at, err := dateparse.Parse(when)
	if err != nil {
		return nil, apperror.Validation(op, fmt.Sprintf(
			"cannot read %q as a date, try a format like %s",
			when, strings.Join(dateparse.Examples[:2], " or ")))
	}

	ev, err := s.ledger.SupplementCheckin(ctx, userID, goalName, at)
	switch {
	case errors.Is(err, store.ErrFutureTime):
		return nil, apperror.Validation(op, "cannot back-fill a check-in in the future")
	case errors.Is(err, store.ErrDuplicateCheckin):
		return nil, apperror.Conflict(op, fmt.Sprintf("already checked in %s on %s", goalName, clock.LocalDate(at)))
	case err != nil:
		return nil, apperror.Storage(op, err)
	}

	s.logger.Info("back-filled check-in", "user_id", userID, "goal", goalName, "date", ev.LocalDate)
	return ev, nil
}

// DeleteGoal removes a goal and its history, returning how many check-ins were removed.
func (s *Service) DeleteGoal(ctx context.Context, userID, goalName string) (int64, error) {
	n, err := s.ledger.DeleteGoal(ctx, userID, strings.TrimSpace(goalName))
	if err != nil {
		return 0, apperror.Storage("delete goal", err)
	}
	s.logger.Info("deleted goal", "user_id", userID, "goal", goalName, "checkins", n)
	return n, nil
}

// DeleteAll removes every check-in of the user.
func (s *Service) DeleteAll(ctx context.Context, userID string) (int64, error) {
	n, err := s.ledger.DeleteAllCheckins(ctx, userID)
	if err != nil {
		return 0, apperror.Storage("delete all", err)
	}
	s.logger.Info("deleted all check-ins", "user_id", userID, "checkins", n)
	return n, nil
}

// Prune applies the retention window to the whole ledger.
func (s *Service) Prune(ctx context.Context, days int) (*store.PruneResult, error) {
	res, err := s.ledger.PruneOlderThan(ctx, days)
	if err != nil {
		return nil, apperror.Storage("prune", err)
	}
	return res, nil
}
