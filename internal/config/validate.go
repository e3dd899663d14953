package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString("  - ")
		sb.WriteString(err.Error())
		sb.WriteString("\n")
	}
	return sb.String()
}

func Validate(cfg *Config) error {
	var errs ValidationErrors

	errs = append(errs, validateDatabase(&cfg.Database)...)
	errs = append(errs, validateScheduler(&cfg.Scheduler)...)
	errs = append(errs, validateGenerator(&cfg.Generator)...)
	errs = append(errs, validatePublisher(&cfg.Publisher)...)
	errs = append(errs, validateRetention(&cfg.Retention)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateDatabase(cfg *DatabaseConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "database.path",
			Message: "must not be empty",
		})
	}

	if cfg.BusyTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "database.busy_timeout",
			Message: "must be non-negative",
		})
	}

	if cfg.MaxOpenConns < 1 {
		errs = append(errs, ValidationError{
			Field:   "database.max_open_conns",
			Message: "must be at least 1",
		})
	}

	return errs
}

func validateScheduler(cfg *SchedulerConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.PollInterval < time.Second {
		errs = append(errs, ValidationError{
			Field:   "scheduler.poll_interval",
			Message: "must be at least 1s",
		})
	}

	if cfg.ClaimTimeout <= cfg.PollInterval {
		errs = append(errs, ValidationError{
			Field:   "scheduler.claim_timeout",
			Message: "must exceed scheduler.poll_interval",
		})
	}

	if cfg.BatchLimit < 1 {
		errs = append(errs, ValidationError{
			Field:   "scheduler.batch_limit",
			Message: "must be at least 1",
		})
	}

	if cfg.MaxConcurrent < 1 {
		errs = append(errs, ValidationError{
			Field:   "scheduler.max_concurrent",
			Message: "must be at least 1",
		})
	}

	return errs
}

func validateGenerator(cfg *GeneratorConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.BaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "generator.base_url",
			Message: "must not be empty",
		})
	}

	if cfg.Timeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "generator.timeout",
			Message: "must be positive",
		})
	}

	if cfg.RatePerMinute < 1 {
		errs = append(errs, ValidationError{
			Field:   "generator.rate_per_minute",
			Message: "must be at least 1",
		})
	}

	return errs
}

func validatePublisher(cfg *PublisherConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.BaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "publisher.base_url",
			Message: "must not be empty",
		})
	}

	if cfg.Timeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "publisher.timeout",
			Message: "must be positive",
		})
	}

	if cfg.RatePerMinute < 1 {
		errs = append(errs, ValidationError{
			Field:   "publisher.rate_per_minute",
			Message: "must be at least 1",
		})
	}

	if cfg.PostStatus != "publish" && cfg.PostStatus != "draft" {
		errs = append(errs, ValidationError{
			Field:   "publisher.post_status",
			Message: "must be \"publish\" or \"draft\"",
		})
	}

	return errs
}

func validateRetention(cfg *RetentionConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.MaxAge <= 0 {
		errs = append(errs, ValidationError{
			Field:   "retention.max_age",
			Message: "must be positive",
		})
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(cfg.PruneSchedule); err != nil {
		errs = append(errs, ValidationError{
			Field:   "retention.prune_schedule",
			Message: fmt.Sprintf("invalid cron expression: %v", err),
		})
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		errs = append(errs, ValidationError{
			Field:   "retention.timezone",
			Message: fmt.Sprintf("unresolvable timezone %q", cfg.Timezone),
		})
	}

	return errs
}

func validateLogging(cfg *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch cfg.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: "must be one of: debug, info, warn, error",
		})
	}

	switch cfg.Format {
	case "console", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: "must be \"console\" or \"json\"",
		})
	}

	return errs
}
