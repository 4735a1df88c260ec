// ABOUTME: Single-administrator authority guarding privileged ledger operations
// ABOUTME: Owns the two-step clear-all confirmation with a cancellable expiry timer

package admin

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/goal-tracker/internal/apperror"
	"github.com/2389/goal-tracker/internal/clock"
	"github.com/2389/goal-tracker/internal/store"
)

// DefaultConfirmTimeout is how long a clear-all request waits for confirmation.
const DefaultConfirmTimeout = 7 * time.Second

var (
	// ErrUnregistered means no administrator has been registered yet.
	ErrUnregistered = errors.New("no administrator registered")
	// ErrNotAdmin means the caller is not the registered administrator.
	ErrNotAdmin = errors.New("caller is not the administrator")
	// ErrNoPending means there is no live confirmation to act on.
	ErrNoPending = errors.New("no pending confirmation")
	// ErrWrongRequester means the confirmation was requested by someone else.
	ErrWrongRequester = errors.New("confirmation requested by another caller")
)

// Action names a privileged operation, for logging.
type Action string

const (
	ActionClearAll     Action = "clear_all"
	ActionBackup       Action = "backup"
	ActionManageOthers Action = "manage_others"
)

// Clearer wipes the entire ledger.
type Clearer interface {
	ClearAll(ctx context.Context) (*store.ClearResult, error)
}

// Confirmation describes a pending clear-all request.
type Confirmation struct {
	ID          string
	RequesterID string
	Deadline    time.Time
}

type pendingConfirmation struct {
	Confirmation
	timer    clock.Timer
	onExpire func(Confirmation)
}

// Authority tracks the registered administrator and at most one pending
// clear-all confirmation.
type Authority struct {
	mu      sync.Mutex
	records *RecordFile
	current *Record
	pending *pendingConfirmation

	clearer Clearer
	clock   clock.Clock
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures an Authority.
type Option func(*Authority)

// WithConfirmTimeout overrides DefaultConfirmTimeout.
func WithConfirmTimeout(d time.Duration) Option {
	return func(a *Authority) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithLogger sets the logger used for authority events.
func WithLogger(l *slog.Logger) Option {
	return func(a *Authority) {
		a.logger = l
	}
}

// NewAuthority loads the administrator record and returns an Authority.
// An unreadable record is an error; a record that exists but cannot be
// decoded is logged and treated as unregistered.
func NewAuthority(records *RecordFile, clearer Clearer, clk clock.Clock, opts ...Option) (*Authority, error) {
	a := &Authority{
		records: records,
		clearer: clearer,
		clock:   clk,
		timeout: DefaultConfirmTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "admin")

	rec, err := records.Load()
	switch {
	case errors.Is(err, ErrCorruptRecord):
		a.logger.Warn("ignoring unreadable admin record", "path", records.Path(), "error", err)
	case err != nil:
		return nil, err
	default:
		a.current = rec
	}
	return a, nil
}

// AdminID returns the registered administrator, if any.
func (a *Authority) AdminID() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current == nil {
		return "", false
	}
	return a.current.AdminID, true
}

// Register makes callerID the administrator if none exists. It reports
// whether an administrator already existed and who it is. The first
// registrant wins; later calls never overwrite the record.
func (a *Authority) Register(callerID string) (bool, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current != nil {
		return true, a.current.AdminID, nil
	}

	rec := &Record{AdminID: callerID, RegisteredAt: a.clock.Now().UTC()}
	if err := a.records.Save(rec); err != nil {
		return false, "", apperror.Storage("register admin", err)
	}
	a.current = rec

	a.logger.Info("registered administrator", "admin_id", callerID)
	return false, callerID, nil
}

// Authorize returns nil if callerID may perform action. Otherwise it returns
// a permission error wrapping ErrUnregistered or ErrNotAdmin; for the latter
// the error's Required field names the administrator.
func (a *Authority) Authorize(callerID string, action Action) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.authorizeLocked(callerID, action)
}

func (a *Authority) authorizeLocked(callerID string, action Action) error {
	const op = "authorize"

	if a.current == nil {
		return apperror.Permission(op, "no administrator is registered", "", ErrUnregistered)
	}
	if a.current.AdminID != callerID {
		a.logger.Warn("denied privileged action", "caller_id", callerID, "action", string(action))
		return apperror.Permission(op, "administrator required", a.current.AdminID, ErrNotAdmin)
	}
	return nil
}

// RequestConfirmation starts the clear-all confirmation window for the
// administrator. Any earlier pending request is cancelled first. If the
// window closes unconfirmed, onExpire is called once from the timer's
// goroutine; callbacks of superseded requests are never called.
func (a *Authority) RequestConfirmation(callerID string, onExpire func(Confirmation)) (*Confirmation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.authorizeLocked(callerID, ActionClearAll); err != nil {
		return nil, err
	}

	if a.pending != nil {
		a.pending.timer.Stop()
		a.logger.Info("replaced pending confirmation", "confirmation_id", a.pending.ID)
		a.pending = nil
	}

	conf := Confirmation{
		ID:          uuid.New().String(),
		RequesterID: callerID,
		Deadline:    a.clock.Now().Add(a.timeout),
	}
	p := &pendingConfirmation{Confirmation: conf, onExpire: onExpire}
	p.timer = a.clock.AfterFunc(a.timeout, func() { a.expire(conf.ID) })
	a.pending = p

	a.logger.Info("awaiting clear-all confirmation",
		"confirmation_id", conf.ID,
		"deadline", conf.Deadline)
	return &conf, nil
}

// expire drops the pending confirmation if it is still the one identified by id.
func (a *Authority) expire(id string) {
	a.mu.Lock()
	p := a.pending
	if p == nil || p.ID != id {
		a.mu.Unlock()
		return
	}
	a.pending = nil
	a.mu.Unlock()

	a.logger.Info("clear-all confirmation expired", "confirmation_id", id)
	if p.onExpire != nil {
		p.onExpire(p.Confirmation)
	}
}

// Pending returns the live confirmation, if any.
func (a *Authority) Pending() (Confirmation, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pending == nil {
		return Confirmation{}, false
	}
	return a.pending.Confirmation, true
}

// Cancel discards the pending confirmation without running its expiry callback.
func (a *Authority) Cancel() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pending == nil {
		return false
	}
	a.pending.timer.Stop()
	a.pending = nil
	return true
}

// Confirm completes a pending clear-all. Only the requester may confirm, and
// only before the deadline. The confirmation is consumed before the ledger is
// cleared, so a storage failure requires a fresh request.
func (a *Authority) Confirm(ctx context.Context, callerID string) (*store.ClearResult, error) {
	const op = "confirm"

	a.mu.Lock()
	p := a.pending
	if p == nil {
		a.mu.Unlock()
		return nil, noPending(op)
	}
	if a.clock.Now().After(p.Deadline) {
		// Late confirm: expire here. The timer callback finds nothing pending,
		// so the expiry notice is delivered once either way.
		p.timer.Stop()
		a.pending = nil
		a.mu.Unlock()

		a.logger.Info("clear-all confirmation expired", "confirmation_id", p.ID)
		if p.onExpire != nil {
			p.onExpire(p.Confirmation)
		}
		return nil, noPending(op)
	}
	if p.RequesterID != callerID {
		a.mu.Unlock()
		return nil, apperror.Permission(op, "only the requesting administrator can confirm", p.RequesterID, ErrWrongRequester)
	}
	p.timer.Stop()
	a.pending = nil
	a.mu.Unlock()

	res, err := a.clearer.ClearAll(ctx)
	if err != nil {
		return nil, apperror.Storage(op, err)
	}

	a.logger.Warn("ledger cleared by administrator",
		"admin_id", callerID,
		"checkins", res.Checkins,
		"goals", res.Goals)
	return res, nil
}

func noPending(op string) error {
	return &apperror.Error{
		Kind:    apperror.KindValidation,
		Op:      op,
		Message: "nothing to confirm, the request may have expired",
		Err:     ErrNoPending,
	}
}
