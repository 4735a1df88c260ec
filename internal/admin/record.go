// ABOUTME: Durable administrator record stored as a small JSON file
// ABOUTME: Writes go through natefinch/atomic so a crash never leaves a torn file

package admin

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
)

// ErrCorruptRecord is returned when the record file exists but cannot be decoded.
var ErrCorruptRecord = errors.New("corrupt admin record")

// Record is the persisted administrator identity.
type Record struct {
	AdminID      string    `json:"admin_id"`
	RegisteredAt time.Time `json:"registered_at"`
}

// RecordFile reads and writes the administrator record at a fixed path.
type RecordFile struct {
	path string
}

// NewRecordFile returns a RecordFile for path. The file need not exist yet.
func NewRecordFile(path string) *RecordFile {
	return &RecordFile{path: path}
}

// Path returns the location of the record.
func (f *RecordFile) Path() string {
	return f.path
}

// Load returns the stored record, or nil if no administrator is registered.
// A file that exists but cannot be decoded is reported as an error.
func (f *RecordFile) Load() (*Record, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading admin record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if rec.AdminID == "" {
		return nil, nil
	}
	return &rec, nil
}

// Save replaces the stored record.
func (f *RecordFile) Save(rec *Record) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("creating admin record directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding admin record: %w", err)
	}

	if err := atomic.WriteFile(f.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing admin record: %w", err)
	}
	return nil
}
