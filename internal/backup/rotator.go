// ABOUTME: Timestamped database snapshots with bounded retention
// ABOUTME: Prefers VACUUM INTO through the live store and falls back to a file copy

package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/goal-tracker/internal/clock"
)

const (
	// DefaultMaxBackups is how many snapshots are kept when none is configured.
	DefaultMaxBackups = 3
	// FilePrefix is the prefix of every snapshot file name.
	FilePrefix = "checkin_backup_"
	// FileSuffix is the extension of every snapshot file.
	FileSuffix = ".db"
	// TimestampLayout is the local-time stamp embedded in snapshot names.
	TimestampLayout = "20060102_150405"
)

var (
	// ErrSourceMissing is returned when the database file does not exist.
	ErrSourceMissing = errors.New("source database does not exist")
	// ErrEmptySnapshot is returned when the written snapshot has no content.
	ErrEmptySnapshot = errors.New("snapshot is empty")
)

// Snapshotter writes a consistent copy of a live database to a new file.
type Snapshotter interface {
	Snapshot(ctx context.Context, dest string) error
}

// Info describes one snapshot on disk.
type Info struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Rotator creates snapshots of one database and keeps only the newest few.
type Rotator struct {
	source     string
	dir        string
	maxBackups int
	snap       Snapshotter
	clock      clock.Clock
	logger     *slog.Logger
}

// NewRotator creates a rotator for the database at source, writing into dir.
// snap may be nil, in which case snapshots are taken by copying the file.
func NewRotator(source, dir string, maxBackups int, snap Snapshotter, clk clock.Clock, logger *slog.Logger) *Rotator {
	if maxBackups <= 0 {
		maxBackups = DefaultMaxBackups
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Rotator{
		source:     source,
		dir:        dir,
		maxBackups: maxBackups,
		snap:       snap,
		clock:      clk,
		logger:     logger.With("component", "backup"),
	}
}

// Dir returns the snapshot directory.
func (r *Rotator) Dir() string {
	return r.dir
}

// MaxBackups returns the retention limit.
func (r *Rotator) MaxBackups() int {
	return r.maxBackups
}

// Backup writes a new snapshot and prunes the oldest ones beyond the
// retention limit. It returns the snapshot path. Failures to delete old
// snapshots are logged and do not fail the backup.
func (r *Rotator) Backup(ctx context.Context) (string, error) {
	if _, err := os.Stat(r.source); errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrSourceMissing, r.source)
	} else if err != nil {
		return "", fmt.Errorf("checking source database: %w", err)
	}

	if err := os.MkdirAll(r.dir, 0700); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}

	now := r.clock.Now()
	dest, err := r.nextPath(now)
	if err != nil {
		return "", err
	}

	if err := r.snapshot(ctx, dest); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("writing snapshot: %w", err)
	}

	if err := verify(dest); err != nil {
		os.Remove(dest)
		return "", err
	}

	// Stamp the file with the clock's time so ordering follows creation
	// order even when the filesystem's own clock disagrees.
	if err := os.Chtimes(dest, now, now); err != nil {
		r.logger.Warn("setting snapshot time failed", "path", dest, "error", err)
	}

	r.rotate()

	r.logger.Info("created backup", "path", dest)
	return dest, nil
}

// nextPath picks an unused snapshot name for t, adding a counter on collision.
func (r *Rotator) nextPath(t time.Time) (string, error) {
	stamp := clock.Local(t).Format(TimestampLayout)
	path := filepath.Join(r.dir, FilePrefix+stamp+FileSuffix)

	for counter := 1; ; counter++ {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
		if counter > 100 {
			return "", errors.New("failed to generate unique backup filename")
		}
		path = filepath.Join(r.dir, fmt.Sprintf("%s%s_%d%s", FilePrefix, stamp, counter, FileSuffix))
	}
}

func (r *Rotator) snapshot(ctx context.Context, dest string) error {
	if r.snap != nil {
		err := r.snap.Snapshot(ctx, dest)
		if err == nil {
			return nil
		}
		r.logger.Warn("vacuum snapshot failed, copying file", "error", err)
		os.Remove(dest)
	}
	return copyFile(r.source, dest)
}

// verify checks that path is a non-empty, readable SQLite database.
func verify(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("checking snapshot: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: %s", ErrEmptySnapshot, path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer db.Close()

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master").Scan(&count); err != nil {
		return fmt.Errorf("snapshot is not a valid database: %w", err)
	}
	return nil
}

// List returns the snapshots in the directory, newest first by modification
// time. Files with equal times are ordered by name, newest name first.
func (r *Rotator) List() ([]Info, error) {
	entries, err := os.ReadDir(r.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []Info{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var backups []Info
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, FilePrefix) || !strings.HasSuffix(name, FileSuffix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, Info{
			Path:    filepath.Join(r.dir, name),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		if !backups[i].ModTime.Equal(backups[j].ModTime) {
			return backups[i].ModTime.After(backups[j].ModTime)
		}
		return backups[i].Path > backups[j].Path
	})
	return backups, nil
}

// rotate deletes snapshots beyond the retention limit, logging failures.
func (r *Rotator) rotate() {
	backups, err := r.List()
	if err != nil {
		r.logger.Warn("listing backups for rotation failed", "error", err)
		return
	}

	for i := r.maxBackups; i < len(backups); i++ {
		if err := os.Remove(backups[i].Path); err != nil {
			r.logger.Warn("removing old backup failed", "path", backups[i].Path, "error", err)
			continue
		}
		r.logger.Info("removed old backup", "path", backups[i].Path)
	}
}

// copyFile copies a file from src to dst
func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := destFile.ReadFrom(sourceFile); err != nil {
		return err
	}

	return destFile.Sync()
}
