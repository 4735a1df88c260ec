// ABOUTME: Check-in ledger operations on SQLiteStore
// ABOUTME: Batch recording, back-fill, history queries, deletion, and retention pruning

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/2389/goal-tracker/internal/clock"
)

type checkinRow struct {
	ID        string `db:"id"`
	UserID    string `db:"user_id"`
	GoalID    string `db:"goal_id"`
	GoalName  string `db:"goal_name"`
	BatchID   string `db:"batch_id"`
	CheckedAt string `db:"checked_at"`
	LocalDate string `db:"local_date"`
	CreatedAt string `db:"created_at"`
}

func (r checkinRow) toEvent() (*CheckinEvent, error) {
	checkedAt, err := parseTime(r.CheckedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing checked_at of %s: %w", r.ID, err)
	}
	createdAt, err := parseTime(r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at of %s: %w", r.ID, err)
	}
	return &CheckinEvent{
		ID:        r.ID,
		UserID:    r.UserID,
		GoalID:    r.GoalID,
		GoalName:  r.GoalName,
		BatchID:   r.BatchID,
		CheckedAt: checkedAt,
		LocalDate: r.LocalDate,
		CreatedAt: createdAt,
	}, nil
}

type goalRow struct {
	ID        string `db:"id"`
	UserID    string `db:"user_id"`
	Name      string `db:"name"`
	CreatedAt string `db:"created_at"`
}

const selectCheckinColumns = `
	SELECT c.id, c.user_id, c.goal_id, g.name AS goal_name, c.batch_id,
	       c.checked_at, c.local_date, c.created_at
	FROM checkins c
	JOIN goals g ON g.id = c.goal_id`

// ensureGoal returns the ID of the user's goal with the given name, creating it if needed.
func ensureGoal(ctx context.Context, tx *sqlx.Tx, userID, name string, now time.Time) (string, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO goals (id, user_id, name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, name) DO NOTHING
	`, uuid.New().String(), userID, name, formatTime(now))
	if err != nil {
		return "", fmt.Errorf("inserting goal %q: %w", name, err)
	}

	var id string
	if err := tx.GetContext(ctx, &id, `SELECT id FROM goals WHERE user_id = ? AND name = ?`, userID, name); err != nil {
		return "", fmt.Errorf("looking up goal %q: %w", name, err)
	}
	return id, nil
}

// insertCheckin writes ev unless the user already has a check-in for that
// goal on ev.LocalDate. It reports whether a row was written.
func insertCheckin(ctx context.Context, tx *sqlx.Tx, ev *CheckinEvent) (bool, error) {
	result, err := tx.ExecContext(ctx, `
		INSERT INTO checkins (id, user_id, goal_id, batch_id, checked_at, local_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, goal_id, local_date) DO NOTHING
	`, ev.ID, ev.UserID, ev.GoalID, ev.BatchID, formatTime(ev.CheckedAt), ev.LocalDate, formatTime(ev.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("inserting check-in: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n > 0, nil
}

// RecordCheckin writes one check-in per goal name at the current time, all
// under a shared batch ID and within one transaction. Goals that already have
// a check-in for today are returned in Duplicates instead of failing the batch.
func (s *SQLiteStore) RecordCheckin(ctx context.Context, userID string, goalNames []string) (*RecordResult, error) {
	now := clock.Local(s.clock.Now())
	result := &RecordResult{BatchID: uuid.New().String()}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, name := range goalNames {
		goalID, err := ensureGoal(ctx, tx, userID, name, now)
		if err != nil {
			return nil, err
		}

		ev := &CheckinEvent{
			ID:        uuid.New().String(),
			UserID:    userID,
			GoalID:    goalID,
			GoalName:  name,
			BatchID:   result.BatchID,
			CheckedAt: now,
			LocalDate: clock.LocalDate(now),
			CreatedAt: now,
		}

		written, err := insertCheckin(ctx, tx, ev)
		if err != nil {
			return nil, err
		}
		if !written {
			result.Duplicates = append(result.Duplicates, name)
			continue
		}
		result.Events = append(result.Events, ev)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing check-in: %w", err)
	}

	s.logger.Debug("recorded check-in",
		"user_id", userID,
		"batch_id", result.BatchID,
		"written", len(result.Events),
		"duplicates", len(result.Duplicates))
	return result, nil
}

// SupplementCheckin back-fills a single check-in at a past time.
// Returns ErrFutureTime if at is after now and ErrDuplicateCheckin if the
// goal already has a check-in on that local date.
func (s *SQLiteStore) SupplementCheckin(ctx context.Context, userID, goalName string, at time.Time) (*CheckinEvent, error) {
	now := clock.Local(s.clock.Now())
	at = clock.Local(at)
	if at.After(now) {
		return nil, ErrFutureTime
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	goalID, err := ensureGoal(ctx, tx, userID, goalName, now)
	if err != nil {
		return nil, err
	}

	ev := &CheckinEvent{
		ID:        uuid.New().String(),
		UserID:    userID,
		GoalID:    goalID,
		GoalName:  goalName,
		CheckedAt: at,
		LocalDate: clock.LocalDate(at),
		CreatedAt: now,
	}

	written, err := insertCheckin(ctx, tx, ev)
	if err != nil {
		return nil, err
	}
	if !written {
		return nil, ErrDuplicateCheckin
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing supplement: %w", err)
	}
	return ev, nil
}

// ListCheckins returns all of a user's check-ins, newest first
func (s *SQLiteStore) ListCheckins(ctx context.Context, userID string) ([]*CheckinEvent, error) {
	var rows []checkinRow
	err := s.db.SelectContext(ctx, &rows, selectCheckinColumns+`
		WHERE c.user_id = ?
		ORDER BY c.checked_at DESC, c.rowid DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying check-ins: %w", err)
	}

	events := make([]*CheckinEvent, 0, len(rows))
	for _, r := range rows {
		ev, err := r.toEvent()
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// GoalName resolves the goal a check-in belongs to
func (s *SQLiteStore) GoalName(ctx context.Context, checkinID string) (string, error) {
	var name string
	err := s.db.GetContext(ctx, &name, `
		SELECT g.name FROM checkins c JOIN goals g ON g.id = c.goal_id WHERE c.id = ?
	`, checkinID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying goal name: %w", err)
	}
	return name, nil
}

// HasCheckedInToday reports whether the user has a check-in for goalName on
// the current local date.
func (s *SQLiteStore) HasCheckedInToday(ctx context.Context, userID, goalName string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM checkins c
		JOIN goals g ON g.id = c.goal_id
		WHERE c.user_id = ? AND g.name = ? AND c.local_date = ?
	`, userID, goalName, clock.Today(s.clock))
	if err != nil {
		return false, fmt.Errorf("querying today's check-in: %w", err)
	}
	return n > 0, nil
}

// CheckinDates returns the distinct local dates on which the user checked in,
// newest first. An empty goalName covers all of the user's goals.
func (s *SQLiteStore) CheckinDates(ctx context.Context, userID, goalName string) ([]string, error) {
	query := `
		SELECT DISTINCT c.local_date FROM checkins c
		JOIN goals g ON g.id = c.goal_id
		WHERE c.user_id = ?`
	args := []any{userID}
	if goalName != "" {
		query += ` AND g.name = ?`
		args = append(args, goalName)
	}
	query += ` ORDER BY c.local_date DESC`

	var dates []string
	if err := s.db.SelectContext(ctx, &dates, query, args...); err != nil {
		return nil, fmt.Errorf("querying check-in dates: %w", err)
	}
	return dates, nil
}

// LastBatchGoals returns the goal names of the user's most recent live
// check-in batch, in the order they were recorded. Back-filled check-ins
// carry no batch and are not considered.
func (s *SQLiteStore) LastBatchGoals(ctx context.Context, userID string) ([]string, error) {
	var names []string
	err := s.db.SelectContext(ctx, &names, `
		SELECT g.name FROM checkins c
		JOIN goals g ON g.id = c.goal_id
		WHERE c.user_id = ? AND c.batch_id = (
			SELECT batch_id FROM checkins
			WHERE user_id = ? AND batch_id != ''
			ORDER BY created_at DESC, rowid DESC
			LIMIT 1
		)
		ORDER BY c.rowid
	`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("querying last batch: %w", err)
	}
	return names, nil
}

// RecentCheckins returns the user's check-in times from the last days days,
// grouped by goal name in alphabetical order.
func (s *SQLiteStore) RecentCheckins(ctx context.Context, userID string, days int) ([]GoalHistory, error) {
	cutoff := clock.Local(s.clock.Now()).AddDate(0, 0, -days)

	var rows []struct {
		Name      string `db:"name"`
		CheckedAt string `db:"checked_at"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT g.name, c.checked_at FROM checkins c
		JOIN goals g ON g.id = c.goal_id
		WHERE c.user_id = ? AND c.checked_at >= ?
		ORDER BY g.name, c.checked_at
	`, userID, formatTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("querying recent check-ins: %w", err)
	}

	var history []GoalHistory
	for _, r := range rows {
		t, err := parseTime(r.CheckedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing checked_at: %w", err)
		}
		if n := len(history); n > 0 && history[n-1].Goal == r.Name {
			history[n-1].Times = append(history[n-1].Times, t)
			continue
		}
		history = append(history, GoalHistory{Goal: r.Name, Times: []time.Time{t}})
	}
	return history, nil
}

// GoalTotals returns the number of check-ins per goal, largest first
func (s *SQLiteStore) GoalTotals(ctx context.Context, userID string) ([]GoalTotal, error) {
	var totals []GoalTotal
	err := s.db.SelectContext(ctx, &totals, `
		SELECT g.name, COUNT(c.id) AS total FROM goals g
		JOIN checkins c ON c.goal_id = g.id
		WHERE g.user_id = ?
		GROUP BY g.id, g.name
		ORDER BY total DESC, g.name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying goal totals: %w", err)
	}
	return totals, nil
}

// ListGoals returns the user's goals ordered by name
func (s *SQLiteStore) ListGoals(ctx context.Context, userID string) ([]*Goal, error) {
	var rows []goalRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, name, created_at FROM goals WHERE user_id = ? ORDER BY name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying goals: %w", err)
	}

	goals := make([]*Goal, 0, len(rows))
	for _, r := range rows {
		createdAt, err := parseTime(r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing goal created_at: %w", err)
		}
		goals = append(goals, &Goal{ID: r.ID, UserID: r.UserID, Name: r.Name, CreatedAt: createdAt})
	}
	return goals, nil
}

// DeleteGoal removes a goal and all of its check-ins. It returns the number
// of check-ins removed; a missing goal removes nothing and is not an error.
func (s *SQLiteStore) DeleteGoal(ctx context.Context, userID, goalName string) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var goalID string
	err = tx.GetContext(ctx, &goalID, `SELECT id FROM goals WHERE user_id = ? AND name = ?`, userID, goalName)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("looking up goal: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM checkins WHERE goal_id = ?`, goalID)
	if err != nil {
		return 0, fmt.Errorf("deleting check-ins: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM goals WHERE id = ?`, goalID); err != nil {
		return 0, fmt.Errorf("deleting goal: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing goal deletion: %w", err)
	}
	return removed, nil
}

// DeleteAllCheckins removes every check-in of the user. The user's goals are
// left in place and collected by the next PruneOlderThan.
func (s *SQLiteStore) DeleteAllCheckins(ctx context.Context, userID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM checkins WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("deleting check-ins: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// PruneOlderThan deletes check-ins older than days days, then deletes every
// goal left without check-ins.
func (s *SQLiteStore) PruneOlderThan(ctx context.Context, days int) (*PruneResult, error) {
	cutoff := clock.Local(s.clock.Now()).AddDate(0, 0, -days)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res := &PruneResult{}

	result, err := tx.ExecContext(ctx, `DELETE FROM checkins WHERE checked_at < ?`, formatTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("pruning check-ins: %w", err)
	}
	if res.Checkins, err = result.RowsAffected(); err != nil {
		return nil, fmt.Errorf("checking rows affected: %w", err)
	}

	result, err = tx.ExecContext(ctx, `
		DELETE FROM goals
		WHERE NOT EXISTS (SELECT 1 FROM checkins c WHERE c.goal_id = goals.id)
	`)
	if err != nil {
		return nil, fmt.Errorf("pruning orphaned goals: %w", err)
	}
	if res.Goals, err = result.RowsAffected(); err != nil {
		return nil, fmt.Errorf("checking rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing prune: %w", err)
	}

	s.logger.Info("pruned ledger",
		"cutoff", formatTime(cutoff),
		"checkins", res.Checkins,
		"goals", res.Goals)
	return res, nil
}

// ClearAll deletes every check-in and goal of every user
func (s *SQLiteStore) ClearAll(ctx context.Context) (*ClearResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res := &ClearResult{}

	result, err := tx.ExecContext(ctx, `DELETE FROM checkins`)
	if err != nil {
		return nil, fmt.Errorf("clearing check-ins: %w", err)
	}
	if res.Checkins, err = result.RowsAffected(); err != nil {
		return nil, fmt.Errorf("checking rows affected: %w", err)
	}

	result, err = tx.ExecContext(ctx, `DELETE FROM goals`)
	if err != nil {
		return nil, fmt.Errorf("clearing goals: %w", err)
	}
	if res.Goals, err = result.RowsAffected(); err != nil {
		return nil, fmt.Errorf("checking rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing clear: %w", err)
	}

	s.logger.Warn("cleared ledger", "checkins", res.Checkins, "goals", res.Goals)
	return res, nil
}
