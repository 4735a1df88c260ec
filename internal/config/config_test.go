// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
database:
  path: "/var/lib/goal-tracker/checkin.db"

ledger:
  retention_days: 45
  prune_interval: "1h"

admin:
  confirm_timeout: "10s"

report:
  endpoint: "https://api.example.com/v1"
  api_key: "sk-test"
  model: "coach"
  ttl: "12h"
  retry_delay: "500ms"
  max_attempts: 5

backup:
  max_backups: 7

matrix:
  enabled: true
  homeserver: "https://matrix.org"
  user_id: "@tracker:matrix.org"
  access_token: "matrix-token"
  allowed_rooms:
    - "!room1:matrix.org"
  command_prefix: "!"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/var/lib/goal-tracker/checkin.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Ledger.RetentionDays != 45 {
		t.Errorf("Ledger.RetentionDays = %d, want 45", cfg.Ledger.RetentionDays)
	}
	if cfg.Ledger.PruneInterval != time.Hour {
		t.Errorf("Ledger.PruneInterval = %v, want 1h", cfg.Ledger.PruneInterval)
	}
	if cfg.Admin.ConfirmTimeout != 10*time.Second {
		t.Errorf("Admin.ConfirmTimeout = %v, want 10s", cfg.Admin.ConfirmTimeout)
	}
	if cfg.Report.TTL != 12*time.Hour {
		t.Errorf("Report.TTL = %v, want 12h", cfg.Report.TTL)
	}
	if cfg.Report.RetryDelay != 500*time.Millisecond {
		t.Errorf("Report.RetryDelay = %v, want 500ms", cfg.Report.RetryDelay)
	}
	if cfg.Report.MaxAttempts != 5 {
		t.Errorf("Report.MaxAttempts = %d, want 5", cfg.Report.MaxAttempts)
	}
	if !cfg.Report.Enabled() {
		t.Error("Report.Enabled() = false, want true")
	}
	if cfg.Backup.MaxBackups != 7 {
		t.Errorf("Backup.MaxBackups = %d, want 7", cfg.Backup.MaxBackups)
	}
	if cfg.Matrix.CommandPrefix != "!" {
		t.Errorf("Matrix.CommandPrefix = %q, want !", cfg.Matrix.CommandPrefix)
	}
	if len(cfg.Matrix.AllowedRooms) != 1 || cfg.Matrix.AllowedRooms[0] != "!room1:matrix.org" {
		t.Errorf("Matrix.AllowedRooms = %v", cfg.Matrix.AllowedRooms)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
database:
  path: "/data/checkin.db"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Ledger.RetentionDays != 30 {
		t.Errorf("RetentionDays = %d, want 30", cfg.Ledger.RetentionDays)
	}
	if cfg.Admin.ConfirmTimeout != 7*time.Second {
		t.Errorf("ConfirmTimeout = %v, want 7s", cfg.Admin.ConfirmTimeout)
	}
	if cfg.Report.TTL != 24*time.Hour {
		t.Errorf("Report.TTL = %v, want 24h", cfg.Report.TTL)
	}
	if cfg.Report.WindowDays != 30 {
		t.Errorf("Report.WindowDays = %d, want 30", cfg.Report.WindowDays)
	}
	if cfg.Report.MaxAttempts != 3 {
		t.Errorf("Report.MaxAttempts = %d, want 3", cfg.Report.MaxAttempts)
	}
	if cfg.Report.RetryDelay != 2*time.Second {
		t.Errorf("Report.RetryDelay = %v, want 2s", cfg.Report.RetryDelay)
	}
	if cfg.Report.Enabled() {
		t.Error("Report.Enabled() = true without endpoint")
	}
	if cfg.Backup.MaxBackups != 3 {
		t.Errorf("Backup.MaxBackups = %d, want 3", cfg.Backup.MaxBackups)
	}
	if cfg.Admin.RecordPath != "/data/admin_data.json" {
		t.Errorf("Admin.RecordPath = %q", cfg.Admin.RecordPath)
	}
	if cfg.Report.CachePath != "/data/report_cache.json" {
		t.Errorf("Report.CachePath = %q", cfg.Report.CachePath)
	}
	if cfg.Backup.Dir != "/data/backups" {
		t.Errorf("Backup.Dir = %q", cfg.Backup.Dir)
	}
	if cfg.Matrix.CommandPrefix != "/" {
		t.Errorf("Matrix.CommandPrefix = %q, want /", cfg.Matrix.CommandPrefix)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "config.toml", `
[database]
path = "/data/checkin.db"

[admin]
confirm_timeout = "3s"

[matrix]
enabled = true
homeserver = "https://matrix.example.org"
user_id = "@tracker:example.org"
access_token = "tok"
allowed_users = ["@alice:example.org"]
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Admin.ConfirmTimeout != 3*time.Second {
		t.Errorf("ConfirmTimeout = %v, want 3s", cfg.Admin.ConfirmTimeout)
	}
	if len(cfg.Matrix.AllowedUsers) != 1 {
		t.Errorf("AllowedUsers = %v", cfg.Matrix.AllowedUsers)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_MATRIX_TOKEN", "secret-token")

	configPath := writeConfig(t, "config.yaml", `
database:
  path: "./checkin.db"
matrix:
  enabled: true
  homeserver: "https://matrix.org"
  user_id: "@bot:matrix.org"
  access_token: "${TEST_MATRIX_TOKEN}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Matrix.AccessToken != "secret-token" {
		t.Errorf("AccessToken = %q, want secret-token", cfg.Matrix.AccessToken)
	}
}

func TestLoad_DotEnvNextToConfig(t *testing.T) {
	dir := t.TempDir()
	const key = "GOAL_TRACKER_TEST_DOTENV_KEY"
	os.Unsetenv(key)
	t.Cleanup(func() { os.Unsetenv(key) })

	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(key+"=from-dotenv\n"), 0644); err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(dir, "config.yaml")
	content := `
database:
  path: "./checkin.db"
report:
  endpoint: "https://llm.example.com"
  api_key: "${` + key + `}"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Report.APIKey != "from-dotenv" {
		t.Errorf("APIKey = %q, want from-dotenv", cfg.Report.APIKey)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing database path",
			content: "ledger:\n  retention_days: 3\n",
			wantErr: "database.path is required",
		},
		{
			name:    "bad duration",
			content: "database:\n  path: x.db\nadmin:\n  confirm_timeout: soon\n",
			wantErr: "admin.confirm_timeout",
		},
		{
			name:    "negative duration",
			content: "database:\n  path: x.db\nreport:\n  ttl: -1h\n",
			wantErr: "report.ttl must not be negative",
		},
		{
			name:    "matrix without token",
			content: "database:\n  path: x.db\nmatrix:\n  enabled: true\n  homeserver: https://m.org\n  user_id: \"@a:m.org\"\n",
			wantErr: "matrix.access_token is required",
		},
		{
			name:    "report endpoint scheme",
			content: "database:\n  path: x.db\nreport:\n  endpoint: ftp://example.com\n",
			wantErr: "http or https",
		},
		{
			name:    "bad log level",
			content: "database:\n  path: x.db\nlogging:\n  level: loud\n",
			wantErr: "logging.level",
		},
		{
			name:    "invalid yaml",
			content: "database: [\n",
			wantErr: "parsing config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "config.yaml", tt.content)
			_, err := Load(path)
			if err == nil {
				t.Fatalf("Load() error = nil, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() error = nil for missing file")
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	if got := DefaultPath(); got != "/tmp/xdg/goal-tracker/config.yaml" {
		t.Errorf("DefaultPath() = %q", got)
	}

	t.Setenv(EnvConfigPath, "/etc/goal-tracker.toml")
	if got := DefaultPath(); got != "/etc/goal-tracker.toml" {
		t.Errorf("DefaultPath() = %q", got)
	}
}
