// Package config handles configuration loading for goal-tracker.
//
// # Configuration File
//
// Default location (first match wins):
//
//  1. Path from GOAL_TRACKER_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/goal-tracker/config.yaml
//  3. ~/.config/goal-tracker/config.yaml
//
// A file ending in .toml is decoded as TOML; anything else is YAML. A .env
// file in the same directory is loaded first, without overriding variables
// already set in the environment.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	matrix:
//	  access_token: "${MATRIX_ACCESS_TOKEN}"
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	ledger:
//	  prune_interval: "6h"
//	admin:
//	  confirm_timeout: "7s"
//	report:
//	  ttl: "24h"
//	  retry_delay: "2s"
//
// # Defaults
//
// Only database.path is required. State files default to siblings of the
// database: admin_data.json, report_cache.json and a backups/ directory.
// Retention is 30 days, the confirmation window 7 seconds, reports are
// cached for 24 hours and three backups are kept.
package config
