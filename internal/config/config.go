// Package config provides configuration management for Pressline.
package config

import (
	"time"
)

// Config is the root configuration structure for Pressline.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Retention RetentionConfig `mapstructure:"retention"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// DatabaseConfig holds database settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string `mapstructure:"path"`

	// Enable WAL mode (recommended)
	WALMode bool `mapstructure:"wal_mode"`

	// Cache size in KB (negative for KB, positive for pages)
	CacheSize int `mapstructure:"cache_size"`

	// Busy timeout in milliseconds
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`

	// Enable foreign keys
	ForeignKeys bool `mapstructure:"foreign_keys"`

	// Maximum open connections
	MaxOpenConns int `mapstructure:"max_open_conns"`

	// Maximum idle connections
	MaxIdleConns int `mapstructure:"max_idle_conns"`

	// Connection max lifetime
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig holds schedule-engine settings.
type SchedulerConfig struct {
	// How often the processor polls for due rules
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// How long a per-rule claim is honored before it is considered stale
	ClaimTimeout time.Duration `mapstructure:"claim_timeout"`

	// Maximum rules fetched per tick
	BatchLimit int `mapstructure:"batch_limit"`

	// Maximum rules processed concurrently within one tick
	MaxConcurrent int `mapstructure:"max_concurrent"`

	// Restrict processing to a single owner (empty = all owners)
	Owner string `mapstructure:"owner"`
}

// GeneratorConfig holds text-generation API settings.
type GeneratorConfig struct {
	// Base URL of the generation API
	BaseURL string `mapstructure:"base_url"`

	// API key sent as a bearer token
	APIKey string `mapstructure:"api_key"`

	// Model identifier
	Model string `mapstructure:"model"`

	// Per-request timeout
	Timeout time.Duration `mapstructure:"timeout"`

	// Outbound requests per minute
	RatePerMinute int `mapstructure:"rate_per_minute"`
}

// PublisherConfig holds content-management-system settings.
type PublisherConfig struct {
	// Base URL of the CMS REST API
	BaseURL string `mapstructure:"base_url"`

	// Basic-auth username
	Username string `mapstructure:"username"`

	// Application password
	AppPassword string `mapstructure:"app_password"`

	// Per-request timeout
	Timeout time.Duration `mapstructure:"timeout"`

	// Outbound requests per minute
	RatePerMinute int `mapstructure:"rate_per_minute"`

	// Post status assigned on publish ("publish" or "draft")
	PostStatus string `mapstructure:"post_status"`
}

// RetentionConfig holds publication-log housekeeping settings.
type RetentionConfig struct {
	// Delete publication records older than this
	MaxAge time.Duration `mapstructure:"max_age"`

	// Cron expression for the prune job
	PruneSchedule string `mapstructure:"prune_schedule"`

	// Timezone the prune schedule runs in
	Timezone string `mapstructure:"timezone"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	// Enable the metrics listener
	Enabled bool `mapstructure:"enabled"`

	// Address for the metrics listener
	Addr string `mapstructure:"addr"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Log level: debug, info, warn, error
	Level string `mapstructure:"level"`

	// Output format: console or json
	Format string `mapstructure:"format"`

	// Include caller information
	Caller bool `mapstructure:"caller"`

	// Include timestamps
	Timestamp bool `mapstructure:"timestamp"`
}
