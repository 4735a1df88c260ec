// Package apperror defines the classified errors returned by the ledger core.
//
// Every failure that reaches a command handler is an *Error with one of the
// kinds below. Handlers switch on the kind to pick a reply, and log the
// wrapped cause for storage and external failures.
//
//   - KindValidation: malformed input such as an empty goal list or an unparsable date
//   - KindConflict: the write would duplicate an existing check-in
//   - KindPermission: the caller is not the registered administrator
//   - KindNoHistory: a repeat check-in was requested but none exists
//   - KindNoData: a report was requested for a user with no recent check-ins
//   - KindStorage: the database or a state file could not be read or written
//   - KindExternal: the report generator failed after its retries
package apperror
