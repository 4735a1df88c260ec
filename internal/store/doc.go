// Package store persists the check-in ledger in SQLite.
//
// # Interfaces
//
//   - Ledger: goals, check-in events and the history queries behind streaks
//   - AuditLog: privileged actions such as clearing the ledger or pruning
//
// SQLiteStore implements both. MockLedger is an in-memory Ledger for tests
// that need to inject storage failures.
//
// # Data Model
//
//   - Goal: a named goal owned by one user, unique per (user, name)
//   - CheckinEvent: one check-in of a goal, stored with its local date
//   - AuditEntry: who did what to whom, newest first
//
// A user can check in a goal at most once per local date. The unique index
// on (user_id, goal_id, local_date) enforces this, so concurrent duplicates surface as
// ErrDuplicateCheckin rather than a second row.
//
// # Time
//
// Timestamps are stored as RFC 3339 strings in the fixed UTC+8 zone and
// dates as YYYY-MM-DD in that zone. See package clock.
//
// # Migrations
//
// Migrations are embedded and applied with goose when the store opens.
// Files live in internal/store/migrations/ with numeric prefixes.
//
// # Testing
//
// Use NewSQLiteStore(MemoryPath, clk) with a clock.Manual for integration
// tests against real SQLite.
package store
