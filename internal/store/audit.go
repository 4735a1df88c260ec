// ABOUTME: Audit log of privileged ledger actions
// ABOUTME: Records which caller cleared, pruned, backed up, or edited someone else's records

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents an auditable action.
type AuditAction string

const (
	AuditRegisterAdmin AuditAction = "register_admin"
	AuditClearAll      AuditAction = "clear_all"
	AuditBackup        AuditAction = "backup"
	AuditPrune         AuditAction = "prune"
	AuditManageOthers  AuditAction = "manage_others"
)

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID        string
	ActorID   string // who performed the action
	Action    AuditAction
	Target    string // affected user, or empty for ledger-wide actions
	Timestamp time.Time
	Detail    map[string]any
}

// AuditFilter narrows ListAuditLog results. Zero fields match everything.
type AuditFilter struct {
	ActorID string
	Action  AuditAction
	Limit   int // default 100, max 1000
}

// AuditLog appends and lists audit entries.
type AuditLog interface {
	AppendAuditLog(ctx context.Context, e *AuditEntry) error
	ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}

var _ AuditLog = (*SQLiteStore)(nil)

type auditRow struct {
	ID         string  `db:"id"`
	ActorID    string  `db:"actor_id"`
	Action     string  `db:"action"`
	Target     string  `db:"target"`
	Timestamp  string  `db:"ts"`
	DetailJSON *string `db:"detail_json"`
}

// AppendAuditLog appends e, filling in its ID and timestamp when unset.
func (s *SQLiteStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.clock.Now()
	}

	var detailJSON *string
	if e.Detail != nil {
		data, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("marshaling audit detail: %w", err)
		}
		str := string(data)
		detailJSON = &str
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, actor_id, action, target, ts, detail_json)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.ActorID, string(e.Action), e.Target, formatTime(e.Timestamp), detailJSON)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	s.logger.Debug("appended audit log",
		"id", e.ID,
		"actor_id", e.ActorID,
		"action", e.Action,
		"target", e.Target,
	)
	return nil
}

// normalizeAuditLimit applies default (100) and cap (1000) to audit limit.
func normalizeAuditLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

// ListAuditLog returns audit entries matching f, newest first.
func (s *SQLiteStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	var rows []auditRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, actor_id, action, target, ts, detail_json
		FROM audit_log
		WHERE (? = '' OR actor_id = ?)
		  AND (? = '' OR action = ?)
		ORDER BY ts DESC, rowid DESC
		LIMIT ?
	`, f.ActorID, f.ActorID, string(f.Action), string(f.Action), normalizeAuditLimit(f.Limit))
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}

	entries := make([]AuditEntry, 0, len(rows))
	for _, r := range rows {
		ts, err := parseTime(r.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("parsing audit timestamp: %w", err)
		}
		e := AuditEntry{
			ID:        r.ID,
			ActorID:   r.ActorID,
			Action:    AuditAction(r.Action),
			Target:    r.Target,
			Timestamp: ts,
		}
		if r.DetailJSON != nil {
			if err := json.Unmarshal([]byte(*r.DetailJSON), &e.Detail); err != nil {
				return nil, fmt.Errorf("unmarshaling detail: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}
