// Package logging configures slog for the goal-tracker binaries.
//
// Console output is either colorized single lines or JSON. A log file, when
// configured, always receives JSON and is rotated by lumberjack.
package logging
