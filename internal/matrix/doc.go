// Package matrix bridges Matrix rooms to the command dispatcher.
//
// The bridge syncs with the homeserver using an access token, ignores its own
// messages and anything sent before it started, applies the room and user
// allow lists, and strips the optional command prefix. Each accepted message
// is handled on its own goroutine and the reply is posted back to the same
// room as an m.notice, rendered from Markdown when the reply asks for it.
package matrix
