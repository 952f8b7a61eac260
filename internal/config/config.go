package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/teemow/busymirror/internal/datewindow"
	"github.com/teemow/busymirror/internal/properties"
)

// Defaults.
const (
	DefaultAccount         = "default"
	DefaultPageSize        = 100
	DefaultLockTimeout     = 60 * time.Second
	DefaultSchedule        = "*/15 * * * *"
	DefaultMetricsAddr     = ":9090"
	DefaultHealthAddr      = ":8080"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultStateScope      = "busymirror"

	// maxPageSize is the largest page the Calendar API accepts.
	maxPageSize = 2500
)

// Config is the top-level configuration.
type Config struct {
	// Source is the private calendar busy time is read from.
	Source SourceConfig `yaml:"source"`

	// Mirror is the public calendar placeholders are written to.
	Mirror MirrorConfig `yaml:"mirror"`

	// Sync tunes delta listing.
	Sync SyncConfig `yaml:"sync"`

	// Lock configures the single-writer lock.
	Lock LockConfig `yaml:"lock"`

	// State selects where sync tokens are persisted.
	State StateConfig `yaml:"state"`

	// Watch configures the long-running scheduler.
	Watch WatchConfig `yaml:"watch"`
}

// SourceConfig describes the private calendar.
type SourceConfig struct {
	// CalendarID is used when no calendar is passed on the command line.
	CalendarID string `yaml:"calendar_id"`

	// Account names the stored OAuth token used to read it.
	Account string `yaml:"account"`
}

// MirrorConfig describes the public calendar.
type MirrorConfig struct {
	// CalendarID defaults to the primary calendar of Account.
	CalendarID string `yaml:"calendar_id"`

	// Account names the stored OAuth token used to write it.
	Account string `yaml:"account"`

	// WindowBackDays and WindowForwardDays bound the search for existing
	// placeholders around now.
	WindowBackDays    int `yaml:"window_back_days"`
	WindowForwardDays int `yaml:"window_forward_days"`

	// DryRun logs mutations instead of performing them.
	DryRun bool `yaml:"dry_run"`
}

// SyncConfig tunes delta listing.
type SyncConfig struct {
	// PageSize is the maxResults value of each listing request.
	PageSize int `yaml:"page_size"`

	// LookbackDays is how far back a full resync starts.
	LookbackDays int `yaml:"lookback_days"`
}

// LockConfig configures the single-writer lock.
type LockConfig struct {
	// Timeout bounds how long a cycle waits for the lock.
	Timeout time.Duration `yaml:"timeout"`

	// File enables a host-wide flock on this path. Empty means the lock only
	// serializes cycles within one process.
	File string `yaml:"file"`
}

// StateConfig selects the property store backend.
type StateConfig struct {
	// Type is "memory", "sqlite" or "valkey".
	Type string `yaml:"type"`

	// Path is the SQLite database file.
	Path string `yaml:"path"`

	// Scope prefixes every key, so several deployments can share a backend.
	Scope string `yaml:"scope"`

	Valkey ValkeyConfig `yaml:"valkey"`
}

// ValkeyConfig configures the valkey backend.
type ValkeyConfig struct {
	URL        string `yaml:"url"`
	Password   string `yaml:"password"`
	TLSEnabled bool   `yaml:"tls_enabled"`
	TLSCAFile  string `yaml:"tls_ca_file"`
	KeyPrefix  string `yaml:"key_prefix"`
	DB         int    `yaml:"db"`
}

// WatchConfig configures the watch command.
type WatchConfig struct {
	// Schedule is a standard five-field cron expression.
	Schedule string `yaml:"schedule"`

	// MetricsAddr serves /metrics. Empty disables the metrics server.
	MetricsAddr string `yaml:"metrics_addr"`

	// HealthAddr serves /healthz and /readyz. Empty disables it.
	HealthAddr string `yaml:"health_addr"`

	// ShutdownTimeout is the grace period given to a running cycle.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Dir returns the busymirror configuration directory.
func Dir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "busymirror")
	}
	return ".busymirror"
}

// DefaultPath returns the default configuration file location.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Default returns the values a configuration file starts from. Call
// Normalize to fill in the remaining defaults.
func Default() *Config {
	return &Config{
		Watch: WatchConfig{
			MetricsAddr: DefaultMetricsAddr,
			HealthAddr:  DefaultHealthAddr,
		},
	}
}

// Load reads the YAML file at path, applies environment overrides and fills
// defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return cfg, nil
}

// ApplyEnv overrides fields from BUSYMIRROR_* environment variables.
func (c *Config) ApplyEnv() error {
	c.Source.CalendarID = getEnvOrDefault("BUSYMIRROR_SOURCE_CALENDAR_ID", c.Source.CalendarID)
	c.Source.Account = getEnvOrDefault("BUSYMIRROR_SOURCE_ACCOUNT", c.Source.Account)
	c.Mirror.CalendarID = getEnvOrDefault("BUSYMIRROR_MIRROR_CALENDAR_ID", c.Mirror.CalendarID)
	c.Mirror.Account = getEnvOrDefault("BUSYMIRROR_MIRROR_ACCOUNT", c.Mirror.Account)
	c.State.Type = getEnvOrDefault("BUSYMIRROR_STATE_TYPE", c.State.Type)
	c.State.Path = getEnvOrDefault("BUSYMIRROR_STATE_PATH", c.State.Path)
	c.State.Valkey.URL = getEnvOrDefault("BUSYMIRROR_VALKEY_URL", c.State.Valkey.URL)
	c.State.Valkey.Password = getEnvOrDefault("BUSYMIRROR_VALKEY_PASSWORD", c.State.Valkey.Password)
	c.Lock.File = getEnvOrDefault("BUSYMIRROR_LOCK_FILE", c.Lock.File)
	c.Watch.Schedule = getEnvOrDefault("BUSYMIRROR_SCHEDULE", c.Watch.Schedule)
	c.Watch.MetricsAddr = getEnvOrDefault("BUSYMIRROR_METRICS_ADDR", c.Watch.MetricsAddr)
	c.Watch.HealthAddr = getEnvOrDefault("BUSYMIRROR_HEALTH_ADDR", c.Watch.HealthAddr)

	var err error
	if c.Mirror.DryRun, err = getEnvBoolOrDefault("BUSYMIRROR_DRY_RUN", c.Mirror.DryRun); err != nil {
		return err
	}
	if c.Lock.Timeout, err = getEnvDurationOrDefault("BUSYMIRROR_LOCK_TIMEOUT", c.Lock.Timeout); err != nil {
		return err
	}
	if c.Sync.PageSize, err = getEnvIntOrDefault("BUSYMIRROR_PAGE_SIZE", c.Sync.PageSize); err != nil {
		return err
	}
	return nil
}

// Normalize fills zero values with defaults.
func (c *Config) Normalize() {
	if c.Source.Account == "" {
		c.Source.Account = DefaultAccount
	}
	if c.Mirror.Account == "" {
		c.Mirror.Account = c.Source.Account
	}
	if c.Mirror.WindowBackDays <= 0 {
		c.Mirror.WindowBackDays = datewindow.DefaultDays
	}
	if c.Mirror.WindowForwardDays <= 0 {
		c.Mirror.WindowForwardDays = datewindow.DefaultDays
	}
	if c.Sync.PageSize <= 0 {
		c.Sync.PageSize = DefaultPageSize
	}
	if c.Sync.LookbackDays <= 0 {
		c.Sync.LookbackDays = datewindow.DefaultDays
	}
	if c.Lock.Timeout <= 0 {
		c.Lock.Timeout = DefaultLockTimeout
	}
	if c.State.Type == "" {
		c.State.Type = properties.TypeSQLite
	}
	if c.State.Type == properties.TypeSQLite && c.State.Path == "" {
		c.State.Path = filepath.Join(Dir(), "state.db")
	}
	if c.State.Scope == "" {
		c.State.Scope = DefaultStateScope
	}
	if c.Watch.Schedule == "" {
		c.Watch.Schedule = DefaultSchedule
	}
	if c.Watch.ShutdownTimeout <= 0 {
		c.Watch.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Sync.PageSize > maxPageSize {
		return fmt.Errorf("sync.page_size must be at most %d, got %d", maxPageSize, c.Sync.PageSize)
	}

	switch c.State.Type {
	case properties.TypeMemory, properties.TypeSQLite:
	case properties.TypeValkey:
		if c.State.Valkey.URL == "" {
			return fmt.Errorf("state.valkey.url is required when state.type is valkey")
		}
	default:
		return fmt.Errorf("invalid state.type %q, must be one of: memory, sqlite, valkey", c.State.Type)
	}

	if _, err := cron.ParseStandard(c.Watch.Schedule); err != nil {
		return fmt.Errorf("invalid watch.schedule %q: %w", c.Watch.Schedule, err)
	}

	if c.Source.CalendarID != "" && c.Source.CalendarID == c.Mirror.CalendarID {
		return fmt.Errorf("source and mirror calendar must differ, both are %q", c.Source.CalendarID)
	}
	return nil
}

// Properties returns the property store configuration.
func (c *Config) Properties() properties.Config {
	return properties.Config{
		Type:  c.State.Type,
		Scope: c.State.Scope,
		Path:  c.State.Path,
		Valkey: properties.ValkeyConfig{
			URL:        c.State.Valkey.URL,
			Password:   c.State.Valkey.Password,
			TLSEnabled: c.State.Valkey.TLSEnabled,
			TLSCAFile:  c.State.Valkey.TLSCAFile,
			KeyPrefix:  c.State.Valkey.KeyPrefix,
			DB:         c.State.Valkey.DB,
		},
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return parsed, nil
}

func getEnvIntOrDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return parsed, nil
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return parsed, nil
}
