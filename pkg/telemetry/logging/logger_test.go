package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/kagehq/echos-sub001/pkg/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewWithWriter_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&config.LoggingConfig{Level: "info", Format: "json"}, &buf)

	logger.Info("decision rendered", "status", "allow")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if line["msg"] != "decision rendered" {
		t.Errorf("msg = %v, want decision rendered", line["msg"])
	}
	if line["status"] != "allow" {
		t.Errorf("status = %v, want allow", line["status"])
	}
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&config.LoggingConfig{Level: "error", Format: "text"}, &buf)

	logger.Info("suppressed")
	if buf.Len() != 0 {
		t.Errorf("info line emitted at error level: %q", buf.String())
	}

	logger.Error("emitted")
	if buf.Len() == 0 {
		t.Error("error line not emitted at error level")
	}
}
