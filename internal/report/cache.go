// ABOUTME: File-backed per-user report cache with a freshness window
// ABOUTME: All reads and writes go through one mutex and atomic file replacement

package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/natefinch/atomic"

	"github.com/2389/goal-tracker/internal/clock"
)

// DefaultTTL is how long a generated report is served from cache.
const DefaultTTL = 24 * time.Hour

// Entry is one cached report.
type Entry struct {
	Text        string    `json:"text"`
	GeneratedAt time.Time `json:"generated_at"`
}

type cacheFile struct {
	Entries map[string]Entry `json:"entries"`
}

// FileCache stores reports in a single JSON file keyed by user ID.
type FileCache struct {
	mu    sync.Mutex
	path  string
	ttl   time.Duration
	clock clock.Clock
}

// NewFileCache returns a cache persisted at path. A non-positive ttl selects DefaultTTL.
func NewFileCache(path string, ttl time.Duration, clk clock.Clock) *FileCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &FileCache{path: path, ttl: ttl, clock: clk}
}

// Get returns the user's cached report if it is younger than the TTL.
// Stale entries are reported as misses and left for Put to overwrite.
func (c *FileCache) Get(userID string) (*Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := c.readLocked()
	if err != nil {
		return nil, false, err
	}

	e, ok := f.Entries[userID]
	if !ok || !c.fresh(e) {
		return nil, false, nil
	}
	return &e, true, nil
}

// Put stores a report for the user, replacing any previous entry.
// An unreadable cache file is discarded rather than blocking the write.
func (c *FileCache) Put(userID string, e Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := c.readLocked()
	if err != nil {
		f = &cacheFile{Entries: make(map[string]Entry)}
	}
	f.Entries[userID] = e

	// Drop entries nobody will ever be served again.
	for id, old := range f.Entries {
		if !c.fresh(old) {
			delete(f.Entries, id)
		}
	}

	return c.writeLocked(f)
}

func (c *FileCache) fresh(e Entry) bool {
	return c.clock.Now().Sub(e.GeneratedAt) < c.ttl
}

func (c *FileCache) readLocked() (*cacheFile, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return &cacheFile{Entries: make(map[string]Entry)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading report cache: %w", err)
	}

	var f cacheFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding report cache: %w", err)
	}
	if f.Entries == nil {
		f.Entries = make(map[string]Entry)
	}
	return &f, nil
}

func (c *FileCache) writeLocked(f *cacheFile) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("creating report cache directory: %w", err)
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report cache: %w", err)
	}
	if err := atomic.WriteFile(c.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing report cache: %w", err)
	}
	return nil
}
