// ABOUTME: Typed error kinds surfaced by the ledger core to the command layer
// ABOUTME: Each kind has a sentinel so callers can classify failures with errors.Is

package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies an Error.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidation
	KindConflict
	KindPermission
	KindNoHistory
	KindNoData
	KindStorage
	KindExternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindPermission:
		return "permission"
	case KindNoHistory:
		return "no_history"
	case KindNoData:
		return "no_data"
	case KindStorage:
		return "storage"
	case KindExternal:
		return "external"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching on kind alone.
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrPermission = &Error{Kind: KindPermission}
	ErrNoHistory  = &Error{Kind: KindNoHistory}
	ErrNoData     = &Error{Kind: KindNoData}
	ErrStorage    = &Error{Kind: KindStorage}
	ErrExternal   = &Error{Kind: KindExternal}
)

// Error is a classified failure. Message is safe to show to the caller;
// Err carries the underlying cause for logs.
type Error struct {
	Kind    Kind
	Op      string
	Message string

	// Required names the identity the caller must be, for permission failures.
	Required string

	Err error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches bare kind sentinels, so errors.Is(err, ErrStorage) holds for
// any storage Error regardless of its op or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op != "" || t.Message != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

// Validation builds an error for malformed input. message is shown to the caller.
func Validation(op, message string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

// Conflict builds an error for a duplicate check-in or date.
func Conflict(op, message string) *Error {
	return &Error{Kind: KindConflict, Op: op, Message: message}
}

// Permission builds a permission failure. required may be empty when no
// identity can satisfy the check yet.
func Permission(op, message, required string, cause error) *Error {
	return &Error{Kind: KindPermission, Op: op, Message: message, Required: required, Err: cause}
}

// NoHistory builds an error for a repeat check-in with nothing to repeat.
func NoHistory(op, message string) *Error {
	return &Error{Kind: KindNoHistory, Op: op, Message: message}
}

// NoData builds an error for a report window with no check-ins.
func NoData(op, message string) *Error {
	return &Error{Kind: KindNoData, Op: op, Message: message}
}

// Storage wraps a database or file failure. The caller only sees a generic retry message.
func Storage(op string, err error) *Error {
	return &Error{Kind: KindStorage, Op: op, Message: "storage failure", Err: err}
}

// External wraps a report generator failure that outlasted its retries.
func External(op string, err error) *Error {
	return &Error{Kind: KindExternal, Op: op, Message: "external service failure", Err: err}
}

// KindOf returns the kind of the first Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// MessageOf returns the caller-facing message of the first Error in err's chain.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}

// Wrap classifies err as a storage failure unless it already carries a kind.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return Storage(op, err)
}
