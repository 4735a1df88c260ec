// Package admin implements the single-administrator authority.
//
// # Registration
//
// The first caller to register becomes the administrator. The identity is
// persisted to a JSON record file and survives restarts; there is no way to
// replace it from a chat command.
//
// # Authorization
//
// Authorize distinguishes two failures so replies can be specific:
//
//   - ErrUnregistered: nobody has registered yet
//   - ErrNotAdmin: someone else is the administrator (named in Required)
//
// # Clear-all Confirmation
//
// Clearing the whole ledger takes two steps. RequestConfirmation opens a
// window (7 seconds by default) and Confirm, called by the same
// administrator inside that window, performs the wipe. A new request
// replaces the old one and stops its timer; the timer callback also checks
// the confirmation ID, so a superseded window can never fire its expiry
// notice or close a newer window.
package admin
