package config

import (
	"time"

	"github.com/kagehq/echos-sub001/pkg/chaos"
)

// Config is the root configuration structure for the decision daemon.
type Config struct {
	// Server contains HTTP server configuration including listen address,
	// timeouts, and connection limits.
	Server ServerConfig `yaml:"server"`

	// Policy contains the template directory, hot-reload, matcher, and
	// baseline policy settings.
	Policy PolicyConfig `yaml:"policy"`

	// Store contains role assignment persistence settings.
	Store StoreConfig `yaml:"store"`

	// Tokens contains scoped token settings.
	Tokens TokensConfig `yaml:"tokens"`

	// Consent contains human consent settings.
	Consent ConsentConfig `yaml:"consent"`

	// Timeline contains timeline log bounds.
	Timeline TimelineConfig `yaml:"timeline"`

	// Retention contains background pruning settings.
	Retention RetentionConfig `yaml:"retention"`

	// Telemetry contains logging and metrics settings.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:8077"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response. It must
	// exceed the consent deadline or long-poll waiters get cut off early.
	// Default: 150s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle bound.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 15s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes caps request header size.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`
}

// PolicyConfig contains configuration for templates and evaluation.
type PolicyConfig struct {
	// Path is the directory holding policy template YAML files.
	// Default: "./templates"
	Path string `yaml:"path"`

	// Watch enables hot reload of the template directory.
	// Default: true
	Watch bool `yaml:"watch"`

	// DebounceInterval coalesces bursts of file events into one reload.
	// Default: 500ms
	DebounceInterval time.Duration `yaml:"debounce_interval"`

	// MatchBudget is the wall-clock budget per rule list evaluation.
	// Default: 100ms
	MatchBudget time.Duration `yaml:"match_budget"`

	// Baseline applies to agents with no role assignment. Empty lists mean
	// every unmatched signature blocks.
	Baseline BaselineConfig `yaml:"baseline"`

	// Chaos is the daemon-level fault injection config, used when an
	// agent's role carries none.
	Chaos *chaos.Config `yaml:"chaos,omitempty"`
}

// BaselineConfig is the fallback rule set for unassigned agents.
type BaselineConfig struct {
	Allow []string `yaml:"allow"`
	Ask   []string `yaml:"ask"`
	Block []string `yaml:"block"`
}

// StoreConfig contains configuration for role assignment persistence.
type StoreConfig struct {
	// Backend selects the persistence backend: "file" or "sqlite".
	// Default: "file"
	Backend string `yaml:"backend"`

	// Path is the store file path.
	// Default: "./data/assignments.json" (file), "./data/echos.db" (sqlite)
	Path string `yaml:"path"`
}

// TokensConfig contains configuration for scoped tokens.
type TokensConfig struct {
	// SigningKey signs bearer values. Empty means a random per-process key.
	SigningKey string `yaml:"signing_key"`
}

// ConsentConfig contains configuration for human consent.
type ConsentConfig struct {
	// Deadline is the per-request resolution window; a request still
	// pending at the deadline resolves to block.
	// Default: 120s
	Deadline time.Duration `yaml:"deadline"`
}

// TimelineConfig contains configuration for the timeline log.
type TimelineConfig struct {
	// Capacity is the internal entry cap.
	// Default: 5000
	Capacity int `yaml:"capacity"`

	// QueryLimit is the maximum entries returned per query.
	// Default: 1000
	QueryLimit int `yaml:"query_limit"`

	// SubscriberBuffer is the per-observer channel buffer.
	// Default: 64
	SubscriberBuffer int `yaml:"subscriber_buffer"`
}

// RetentionConfig contains configuration for background pruning of terminal
// token records.
type RetentionConfig struct {
	// Enabled turns the pruning schedule on.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Schedule is a cron expression for pruning runs.
	// Default: "@hourly"
	Schedule string `yaml:"schedule"`

	// MaxAge keeps expired records around for inspection before pruning.
	// Default: 24h
	MaxAge time.Duration `yaml:"max_age"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains configuration for structured logging.
type LoggingConfig struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the output format ("json", "text").
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in logs.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains configuration for Prometheus metrics.
type MetricsConfig struct {
	// Enabled exposes /metrics.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Namespace prefixes every metric name.
	// Default: "echos"
	Namespace string `yaml:"namespace"`

	// Subsystem is an optional second prefix component.
	Subsystem string `yaml:"subsystem"`
}
