// Package checkin implements the check-in guard.
//
// # Check-in Flow
//
// A request carries zero or more goal names. With none, the goals of the
// user's most recent batch are reused. Names are trimmed and de-duplicated,
// goals already checked in today are set aside as duplicates, and the rest
// are written in one ledger batch. The store's unique constraint on
// (user, goal, local date) settles races between concurrent requests, so a
// losing request reports the goal as a duplicate.
//
// # Errors
//
// Every error returned by Service is an *apperror.Error. Store failures are
// wrapped as storage errors so callers never see driver messages.
package checkin
