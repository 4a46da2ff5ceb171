package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kagehq/echos-sub001/pkg/chaos"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, "policy:\n  path: ./templates\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v, want nil", err)
	}

	if cfg.Server.ListenAddress != DefaultListenAddress {
		t.Errorf("listen address = %s, want default %s", cfg.Server.ListenAddress, DefaultListenAddress)
	}
	if cfg.Consent.Deadline != DefaultConsentDeadline {
		t.Errorf("consent deadline = %v, want %v", cfg.Consent.Deadline, DefaultConsentDeadline)
	}
	if !cfg.Policy.Watch {
		t.Error("policy.watch = false, want true by default")
	}
	if !cfg.Retention.Enabled {
		t.Error("retention.enabled = false, want true by default")
	}
	if cfg.Store.Backend != "file" || cfg.Store.Path != DefaultFilePath {
		t.Errorf("store = %s/%s, want file/%s", cfg.Store.Backend, cfg.Store.Path, DefaultFilePath)
	}
}

func TestLoadConfig_ExplicitFalseSurvivesDefaults(t *testing.T) {
	path := writeConfig(t, "policy:\n  path: ./templates\n  watch: false\nretention:\n  enabled: false\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v, want nil", err)
	}
	if cfg.Policy.Watch {
		t.Error("policy.watch = true, want explicit false preserved")
	}
	if cfg.Retention.Enabled {
		t.Error("retention.enabled = true, want explicit false preserved")
	}
}

func TestLoadConfig_SQLiteDefaultPath(t *testing.T) {
	path := writeConfig(t, "store:\n  backend: sqlite\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v, want nil", err)
	}
	if cfg.Store.Path != DefaultSQLitePath {
		t.Errorf("store.path = %s, want %s", cfg.Store.Path, DefaultSQLitePath)
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfig(t, ": not yaml [")

	if _, err := LoadConfig(path); err == nil {
		t.Error("LoadConfig() error = nil for invalid YAML")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadConfig() error = nil for a missing file")
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  listen_address: 127.0.0.1:9000\n")

	t.Setenv("ECHOS_SERVER_LISTEN_ADDRESS", "0.0.0.0:7070")
	t.Setenv("ECHOS_CONSENT_DEADLINE", "90s")
	t.Setenv("ECHOS_POLICY_WATCH", "false")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides() error = %v, want nil", err)
	}
	if cfg.Server.ListenAddress != "0.0.0.0:7070" {
		t.Errorf("listen address = %s, want the env override", cfg.Server.ListenAddress)
	}
	if cfg.Consent.Deadline != 90*time.Second {
		t.Errorf("consent deadline = %v, want 90s", cfg.Consent.Deadline)
	}
	if cfg.Policy.Watch {
		t.Error("policy.watch = true, want env override false")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.ListenAddress = "not-a-host-port"
	cfg.Store.Backend = "redis"
	cfg.Telemetry.Logging.Level = "loud"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() error = nil, want validation errors")
	}

	verr, ok := err.(ValidationError)
	if !ok {
		t.Fatalf("Validate() error type = %T, want ValidationError", err)
	}
	if len(verr.Errors) != 3 {
		t.Errorf("Validate() collected %d errors, want 3: %v", len(verr.Errors), verr)
	}
	if !strings.Contains(verr.Error(), "store.backend") {
		t.Errorf("error text %q does not name the failing field", verr.Error())
	}
}

func TestValidate_ChaosBlockRateBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy.Chaos = &chaos.Config{Enabled: true, BlockRate: 1.5}

	if err := Validate(cfg); err == nil {
		t.Error("Validate() error = nil for block_rate > 1")
	}
}
