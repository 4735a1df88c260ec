// Package streak counts consecutive check-in days.
//
// A streak is anchored at today: a user who last checked in yesterday has a
// current streak of zero until they check in again.
package streak
