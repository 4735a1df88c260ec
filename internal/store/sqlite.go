// ABOUTME: SQLite implementation of the Ledger interface using modernc.org/sqlite and sqlx
// ABOUTME: Opens the database, applies embedded goose migrations, and exposes snapshots

package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/2389/goal-tracker/internal/clock"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MemoryPath opens a private in-memory database, used by tests.
const MemoryPath = ":memory:"

// SQLiteStore implements the Ledger interface using SQLite
type SQLiteStore struct {
	db     *sqlx.DB
	clock  clock.Clock
	path   string
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// Migrations are applied automatically and parent directories are created if needed.
func NewSQLiteStore(path string, clk clock.Clock) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != MemoryPath {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection serializes writers and keeps :memory: databases
	// alive across calls.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := migrateUp(db.DB); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	if clk == nil {
		clk = clock.Real()
	}

	return &SQLiteStore{
		db:     db,
		clock:  clk,
		path:   path,
		logger: logger,
	}, nil
}

// dsn appends the connection pragmas understood by modernc.org/sqlite.
func dsn(path string) string {
	pragmas := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
	}
	if path != MemoryPath {
		pragmas = append(pragmas, "_pragma=journal_mode(WAL)")
	}
	return path + "?" + strings.Join(pragmas, "&")
}

// setupGoose points goose at the embedded migrations directory
func setupGoose() error {
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting dialect: %w", err)
	}

	dir, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("opening migrations directory: %w", err)
	}

	goose.SetBaseFS(dir)
	goose.SetLogger(goose.NopLogger())
	return nil
}

func migrateUp(db *sql.DB) error {
	if err := setupGoose(); err != nil {
		return err
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// SchemaVersion returns the most recently applied migration version.
func (s *SQLiteStore) SchemaVersion() (int64, error) {
	if err := setupGoose(); err != nil {
		return 0, err
	}
	v, err := goose.GetDBVersion(s.db.DB)
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

// Path returns the file the store was opened from.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Snapshot writes a consistent copy of the live database to dest.
// dest must not already exist.
func (s *SQLiteStore) Snapshot(ctx context.Context, dest string) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return fmt.Errorf("vacuum into %s: %w", dest, err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// formatTime stores instants as RFC 3339 in the local zone. Every stored
// value shares the same offset, so text ordering matches time ordering.
func formatTime(t time.Time) string {
	return t.In(clock.Zone).Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(clock.Zone), nil
}

// Ensure SQLiteStore implements Ledger
var _ Ledger = (*SQLiteStore)(nil)
