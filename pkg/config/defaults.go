package config

import "time"

// Default values applied by ApplyDefaults.
const (
	DefaultListenAddress   = "127.0.0.1:8077"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 150 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultMaxHeaderBytes  = 1 << 20

	DefaultTemplatePath     = "./templates"
	DefaultDebounceInterval = 500 * time.Millisecond
	DefaultMatchBudget      = 100 * time.Millisecond

	DefaultStoreBackend = "file"
	DefaultFilePath     = "./data/assignments.json"
	DefaultSQLitePath   = "./data/echos.db"

	DefaultConsentDeadline = 120 * time.Second

	DefaultTimelineCapacity   = 5000
	DefaultTimelineQueryLimit = 1000
	DefaultSubscriberBuffer   = 64

	DefaultRetentionSchedule = "@hourly"
	DefaultRetentionMaxAge   = 24 * time.Hour

	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
	DefaultMetricsNamespace = "echos"
)

// DefaultConfig returns a fully defaulted configuration.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Policy.Watch = true
	cfg.Retention.Enabled = true
	cfg.Telemetry.Metrics.Enabled = true
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every zero-valued field with its default. Booleans
// that default to true (policy.watch, retention.enabled, metrics.enabled)
// cannot be distinguished from an explicit false after YAML decoding, so
// they are defaulted through LoadConfig's pre-parse step, not here.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}

	if cfg.Policy.Path == "" {
		cfg.Policy.Path = DefaultTemplatePath
	}
	if cfg.Policy.DebounceInterval == 0 {
		cfg.Policy.DebounceInterval = DefaultDebounceInterval
	}
	if cfg.Policy.MatchBudget == 0 {
		cfg.Policy.MatchBudget = DefaultMatchBudget
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = DefaultStoreBackend
	}
	if cfg.Store.Path == "" {
		if cfg.Store.Backend == "sqlite" {
			cfg.Store.Path = DefaultSQLitePath
		} else {
			cfg.Store.Path = DefaultFilePath
		}
	}

	if cfg.Consent.Deadline == 0 {
		cfg.Consent.Deadline = DefaultConsentDeadline
	}

	if cfg.Timeline.Capacity == 0 {
		cfg.Timeline.Capacity = DefaultTimelineCapacity
	}
	if cfg.Timeline.QueryLimit == 0 {
		cfg.Timeline.QueryLimit = DefaultTimelineQueryLimit
	}
	if cfg.Timeline.SubscriberBuffer == 0 {
		cfg.Timeline.SubscriberBuffer = DefaultSubscriberBuffer
	}

	if cfg.Retention.Schedule == "" {
		cfg.Retention.Schedule = DefaultRetentionSchedule
	}
	if cfg.Retention.MaxAge == 0 {
		cfg.Retention.MaxAge = DefaultRetentionMaxAge
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLogLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLogFormat
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
}
