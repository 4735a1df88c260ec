// Package report produces the per-user habit analysis.
//
// # Caching
//
// Reports live in a JSON file keyed by user ID and are served for 24 hours
// after generation. FileCache serializes every read and write through one
// mutex and replaces the file atomically, so concurrent commands never see
// a half-written cache. A stale entry is simply overwritten by the next
// generation.
//
// # Generation
//
// The last 30 days of check-ins are grouped by goal and sent as JSON to a
// Generator. Failures are retried up to three attempts with a fixed pause,
// after which an external-service error is returned. Concurrent requests for
// the same user share one generation through singleflight.
//
// ChatClient is the production Generator; it talks to any OpenAI-compatible
// chat completions endpoint.
package report
