package config

import "time"

// Default configuration values.
const (
	// Database defaults.
	DefaultDBPath       = "pressline.db"
	DefaultCacheSize    = -64000 // 64MB
	DefaultBusyTimeout  = 5 * time.Second
	DefaultMaxOpenConns = 1 // SQLite works best with single writer
	DefaultMaxIdleConns = 1

	// Scheduler defaults.
	DefaultPollInterval  = 60 * time.Second
	DefaultClaimTimeout  = 5 * time.Minute
	DefaultBatchLimit    = 100
	DefaultMaxConcurrent = 4

	// Pipeline defaults.
	DefaultGeneratorTimeout = 90 * time.Second
	DefaultPublisherTimeout = 30 * time.Second
	DefaultGeneratorRate    = 20 // requests per minute
	DefaultPublisherRate    = 30

	// Retention defaults.
	DefaultRetentionMaxAge = 90 * 24 * time.Hour
	DefaultPruneSchedule   = "0 3 * * *"

	// Metrics defaults.
	DefaultMetricsAddr = "localhost:9097"

	// Logging defaults.
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            DefaultDBPath,
			WALMode:         true,
			CacheSize:       DefaultCacheSize,
			BusyTimeout:     DefaultBusyTimeout,
			ForeignKeys:     true,
			MaxOpenConns:    DefaultMaxOpenConns,
			MaxIdleConns:    DefaultMaxIdleConns,
			ConnMaxLifetime: 0, // No limit
		},
		Scheduler: SchedulerConfig{
			PollInterval:  DefaultPollInterval,
			ClaimTimeout:  DefaultClaimTimeout,
			BatchLimit:    DefaultBatchLimit,
			MaxConcurrent: DefaultMaxConcurrent,
		},
		Generator: GeneratorConfig{
			BaseURL:       "https://api.openai.com/v1",
			Model:         "gpt-4o-mini",
			Timeout:       DefaultGeneratorTimeout,
			RatePerMinute: DefaultGeneratorRate,
		},
		Publisher: PublisherConfig{
			Timeout:       DefaultPublisherTimeout,
			RatePerMinute: DefaultPublisherRate,
			PostStatus:    "publish",
		},
		Retention: RetentionConfig{
			MaxAge:        DefaultRetentionMaxAge,
			PruneSchedule: DefaultPruneSchedule,
			Timezone:      "UTC",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    DefaultMetricsAddr,
		},
		Logging: LoggingConfig{
			Level:     DefaultLogLevel,
			Format:    DefaultLogFormat,
			Caller:    false,
			Timestamp: true,
		},
	}
}
