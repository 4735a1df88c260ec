// ABOUTME: Ledger interface and data types for goal-tracker persistence
// ABOUTME: Defines Goal, CheckinEvent and the query result shapes used by the core

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateCheckin is returned when a user already has a check-in for a
// goal on the same local date.
var ErrDuplicateCheckin = errors.New("already checked in on that date")

// ErrFutureTime is returned when a back-filled check-in lies after the current time.
var ErrFutureTime = errors.New("check-in time is in the future")

// Goal is a named habit owned by one user. Names are unique per user.
type Goal struct {
	ID        string
	UserID    string
	Name      string
	CreatedAt time.Time
}

// CheckinEvent records that a user completed a goal at a point in time.
// LocalDate is the +08:00 calendar date of CheckedAt.
type CheckinEvent struct {
	ID        string
	UserID    string
	GoalID    string
	GoalName  string
	BatchID   string
	CheckedAt time.Time
	LocalDate string
	CreatedAt time.Time
}

// RecordResult reports which goals of a check-in batch were written and which
// were skipped because a check-in for that local date already existed.
type RecordResult struct {
	BatchID    string
	Events     []*CheckinEvent
	Duplicates []string
}

// GoalTotal is the number of check-ins a user has for one goal.
type GoalTotal struct {
	Goal  string `db:"name"`
	Total int    `db:"total"`
}

// GoalHistory lists the check-in times of one goal, oldest first.
type GoalHistory struct {
	Goal  string
	Times []time.Time
}

// PruneResult counts what a retention sweep removed.
type PruneResult struct {
	Checkins int64
	Goals    int64
}

// ClearResult counts what a full reset removed.
type ClearResult struct {
	Checkins int64
	Goals    int64
}

// Ledger defines the persistence operations of the check-in ledger
type Ledger interface {
	// Check-ins
	RecordCheckin(ctx context.Context, userID string, goalNames []string) (*RecordResult, error)
	SupplementCheckin(ctx context.Context, userID, goalName string, at time.Time) (*CheckinEvent, error)
	ListCheckins(ctx context.Context, userID string) ([]*CheckinEvent, error)
	GoalName(ctx context.Context, checkinID string) (string, error)
	HasCheckedInToday(ctx context.Context, userID, goalName string) (bool, error)

	// History queries
	CheckinDates(ctx context.Context, userID, goalName string) ([]string, error)
	LastBatchGoals(ctx context.Context, userID string) ([]string, error)
	RecentCheckins(ctx context.Context, userID string, days int) ([]GoalHistory, error)
	GoalTotals(ctx context.Context, userID string) ([]GoalTotal, error)
	ListGoals(ctx context.Context, userID string) ([]*Goal, error)

	// Deletion
	DeleteGoal(ctx context.Context, userID, goalName string) (int64, error)
	DeleteAllCheckins(ctx context.Context, userID string) (int64, error)
	PruneOlderThan(ctx context.Context, days int) (*PruneResult, error)
	ClearAll(ctx context.Context) (*ClearResult, error)

	Close() error
}
