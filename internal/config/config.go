// ABOUTME: Configuration loading and parsing for goal-tracker
// ABOUTME: Supports YAML or TOML files with .env preloading, env var expansion, and duration parsing

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults applied to fields left empty in the file.
const (
	DefaultRetentionDays  = 30
	DefaultPruneInterval  = 6 * time.Hour
	DefaultConfirmTimeout = 7 * time.Second
	DefaultReportTTL      = 24 * time.Hour
	DefaultReportWindow   = 30
	DefaultReportAttempts = 3
	DefaultReportDelay    = 2 * time.Second
	DefaultReportTimeout  = 60 * time.Second
	DefaultMaxBackups     = 3
	DefaultCommandPrefix  = "/"
	DefaultLogLevel       = "info"
	DefaultLogFileMaxSize = 10
	DefaultLogFileBackups = 3
	DefaultLogFileMaxAge  = 28
)

// Config represents the complete goal-tracker configuration
type Config struct {
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Ledger   LedgerConfig   `yaml:"ledger" toml:"ledger"`
	Admin    AdminConfig    `yaml:"admin" toml:"admin"`
	Report   ReportConfig   `yaml:"report" toml:"report"`
	Backup   BackupConfig   `yaml:"backup" toml:"backup"`
	Matrix   MatrixConfig   `yaml:"matrix" toml:"matrix"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LedgerConfig holds retention settings
type LedgerConfig struct {
	RetentionDays int           `yaml:"retention_days" toml:"retention_days"`
	PruneInterval time.Duration `yaml:"-" toml:"-"`

	PruneIntervalRaw string `yaml:"prune_interval" toml:"prune_interval"`
}

// AdminConfig holds administrator record and confirmation settings
type AdminConfig struct {
	RecordPath     string        `yaml:"record_path" toml:"record_path"`
	ConfirmTimeout time.Duration `yaml:"-" toml:"-"`

	ConfirmTimeoutRaw string `yaml:"confirm_timeout" toml:"confirm_timeout"`
}

// ReportConfig holds report cache and generator settings
type ReportConfig struct {
	CachePath   string `yaml:"cache_path" toml:"cache_path"`
	WindowDays  int    `yaml:"window_days" toml:"window_days"`
	Endpoint    string `yaml:"endpoint" toml:"endpoint"`
	APIKey      string `yaml:"api_key" toml:"api_key"`
	Model       string `yaml:"model" toml:"model"`
	MaxAttempts int    `yaml:"max_attempts" toml:"max_attempts"`

	TTL        time.Duration `yaml:"-" toml:"-"`
	RetryDelay time.Duration `yaml:"-" toml:"-"`
	Timeout    time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	TTLRaw        string `yaml:"ttl" toml:"ttl"`
	RetryDelayRaw string `yaml:"retry_delay" toml:"retry_delay"`
	TimeoutRaw    string `yaml:"timeout" toml:"timeout"`
}

// Enabled reports whether a generator endpoint is configured.
func (r ReportConfig) Enabled() bool {
	return r.Endpoint != ""
}

// BackupConfig holds snapshot settings
type BackupConfig struct {
	Dir        string `yaml:"dir" toml:"dir"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
}

// MatrixConfig holds Matrix integration configuration
type MatrixConfig struct {
	Enabled       bool     `yaml:"enabled" toml:"enabled"`
	Homeserver    string   `yaml:"homeserver" toml:"homeserver"`
	UserID        string   `yaml:"user_id" toml:"user_id"`
	AccessToken   string   `yaml:"access_token" toml:"access_token"`
	AllowedUsers  []string `yaml:"allowed_users" toml:"allowed_users"`
	AllowedRooms  []string `yaml:"allowed_rooms" toml:"allowed_rooms"`
	CommandPrefix string   `yaml:"command_prefix" toml:"command_prefix"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`

	// File, when set, receives JSON logs with size-based rotation.
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
}

// EnvConfigPath names the environment variable that overrides DefaultPath.
const EnvConfigPath = "GOAL_TRACKER_CONFIG"

// DefaultPath returns the config file location: $GOAL_TRACKER_CONFIG if set,
// otherwise goal-tracker/config.yaml under $XDG_CONFIG_HOME or ~/.config.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "goal-tracker", "config.yaml")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// A .env file next to the config is loaded first without overriding the
// existing environment. Environment variables in the format ${VAR_NAME} are
// expanded. Files ending in .toml are decoded as TOML, anything else as YAML.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills unset fields. State files default to siblings of the database.
func (c *Config) applyDefaults() {
	dataDir := filepath.Dir(c.Database.Path)

	if c.Ledger.RetentionDays == 0 {
		c.Ledger.RetentionDays = DefaultRetentionDays
	}
	if c.Ledger.PruneInterval == 0 {
		c.Ledger.PruneInterval = DefaultPruneInterval
	}

	if c.Admin.RecordPath == "" {
		c.Admin.RecordPath = filepath.Join(dataDir, "admin_data.json")
	}
	if c.Admin.ConfirmTimeout == 0 {
		c.Admin.ConfirmTimeout = DefaultConfirmTimeout
	}

	if c.Report.CachePath == "" {
		c.Report.CachePath = filepath.Join(dataDir, "report_cache.json")
	}
	if c.Report.TTL == 0 {
		c.Report.TTL = DefaultReportTTL
	}
	if c.Report.WindowDays == 0 {
		c.Report.WindowDays = DefaultReportWindow
	}
	if c.Report.MaxAttempts == 0 {
		c.Report.MaxAttempts = DefaultReportAttempts
	}
	if c.Report.RetryDelay == 0 {
		c.Report.RetryDelay = DefaultReportDelay
	}
	if c.Report.Timeout == 0 {
		c.Report.Timeout = DefaultReportTimeout
	}

	if c.Backup.Dir == "" {
		c.Backup.Dir = filepath.Join(dataDir, "backups")
	}
	if c.Backup.MaxBackups == 0 {
		c.Backup.MaxBackups = DefaultMaxBackups
	}

	if c.Matrix.CommandPrefix == "" {
		c.Matrix.CommandPrefix = DefaultCommandPrefix
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = DefaultLogFileMaxSize
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = DefaultLogFileBackups
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = DefaultLogFileMaxAge
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Ledger.RetentionDays < 0 {
		return fmt.Errorf("ledger.retention_days must not be negative")
	}
	if c.Backup.MaxBackups < 0 {
		return fmt.Errorf("backup.max_backups must not be negative")
	}
	if c.Report.MaxAttempts < 0 {
		return fmt.Errorf("report.max_attempts must not be negative")
	}

	if c.Report.Endpoint != "" {
		u, err := url.Parse(c.Report.Endpoint)
		if err != nil {
			return fmt.Errorf("report.endpoint is not a valid URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("report.endpoint must use http or https scheme")
		}
	}

	if c.Matrix.Enabled {
		if c.Matrix.Homeserver == "" {
			return fmt.Errorf("matrix.homeserver is required when matrix is enabled")
		}
		if _, err := url.Parse(c.Matrix.Homeserver); err != nil {
			return fmt.Errorf("matrix.homeserver is not a valid URL: %w", err)
		}
		if c.Matrix.UserID == "" {
			return fmt.Errorf("matrix.user_id is required when matrix is enabled")
		}
		if c.Matrix.AccessToken == "" {
			return fmt.Errorf("matrix.access_token is required when matrix is enabled")
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"ledger.prune_interval", cfg.Ledger.PruneIntervalRaw, &cfg.Ledger.PruneInterval},
		{"admin.confirm_timeout", cfg.Admin.ConfirmTimeoutRaw, &cfg.Admin.ConfirmTimeout},
		{"report.ttl", cfg.Report.TTLRaw, &cfg.Report.TTL},
		{"report.retry_delay", cfg.Report.RetryDelayRaw, &cfg.Report.RetryDelay},
		{"report.timeout", cfg.Report.TimeoutRaw, &cfg.Report.Timeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative", f.name)
		}
		*f.dst = d
	}
	return nil
}
