// Package logging builds the daemon's structured slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/kagehq/echos-sub001/pkg/config"
)

// New creates a structured logger per the logging configuration, writing to
// stdout.
func New(cfg *config.LoggingConfig) *slog.Logger {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter creates a structured logger writing to w.
func NewWithWriter(cfg *config.LoggingConfig, w io.Writer) *slog.Logger {
	if cfg == nil {
		cfg = &config.LoggingConfig{Level: config.DefaultLogLevel, Format: config.DefaultLogFormat}
	}

	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}

// ParseLevel maps a level name to its slog level. Unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
