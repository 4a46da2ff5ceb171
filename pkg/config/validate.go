package config

import (
	"fmt"
	"net"
	"strings"
)

// FieldError represents a validation error for a specific configuration
// field.
type FieldError struct {
	// Field is the dotted path to the field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects all field errors found in a configuration.
type ValidationError struct {
	Errors []FieldError
}

func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate checks the entire configuration and returns a ValidationError
// when any rule fails. All errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validatePolicy(&cfg.Policy)...)
	errs = append(errs, validateStore(&cfg.Store)...)
	errs = append(errs, validateConsent(&cfg.Consent)...)
	errs = append(errs, validateTimeline(&cfg.Timeline)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{"server.listen_address", "must not be empty"})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{"server.listen_address", fmt.Sprintf("invalid host:port: %v", err)})
	}
	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{"server.max_header_bytes", "must not be negative"})
	}

	return errs
}

func validatePolicy(cfg *PolicyConfig) []FieldError {
	var errs []FieldError

	if cfg.Path == "" {
		errs = append(errs, FieldError{"policy.path", "must not be empty"})
	}
	if cfg.MatchBudget < 0 {
		errs = append(errs, FieldError{"policy.match_budget", "must not be negative"})
	}
	if cfg.Chaos != nil {
		if cfg.Chaos.BlockRate < 0 || cfg.Chaos.BlockRate > 1 {
			errs = append(errs, FieldError{"policy.chaos.block_rate", "must be within [0, 1]"})
		}
		if cfg.Chaos.LatencyMS < 0 {
			errs = append(errs, FieldError{"policy.chaos.latency_ms", "must not be negative"})
		}
	}

	return errs
}

func validateStore(cfg *StoreConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "file", "sqlite":
	default:
		errs = append(errs, FieldError{"store.backend", fmt.Sprintf("unknown backend %q (expected \"file\" or \"sqlite\")", cfg.Backend)})
	}
	if cfg.Path == "" {
		errs = append(errs, FieldError{"store.path", "must not be empty"})
	}

	return errs
}

func validateConsent(cfg *ConsentConfig) []FieldError {
	var errs []FieldError

	if cfg.Deadline <= 0 {
		errs = append(errs, FieldError{"consent.deadline", "must be positive"})
	}

	return errs
}

func validateTimeline(cfg *TimelineConfig) []FieldError {
	var errs []FieldError

	if cfg.Capacity <= 0 {
		errs = append(errs, FieldError{"timeline.capacity", "must be positive"})
	}
	if cfg.QueryLimit <= 0 {
		errs = append(errs, FieldError{"timeline.query_limit", "must be positive"})
	}
	if cfg.QueryLimit > cfg.Capacity {
		errs = append(errs, FieldError{"timeline.query_limit", "must not exceed timeline.capacity"})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{"telemetry.logging.level", fmt.Sprintf("unknown level %q", cfg.Logging.Level)})
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{"telemetry.logging.format", fmt.Sprintf("unknown format %q", cfg.Logging.Format)})
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Namespace == "" {
		errs = append(errs, FieldError{"telemetry.metrics.namespace", "must not be empty when metrics are enabled"})
	}

	return errs
}
