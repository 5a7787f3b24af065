package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
log_level: debug
lifecycle:
  tick_interval: 10s
sensor:
  shake_threshold: 3.0
storage:
  driver: postgres
  dsn: postgres://localhost/smartalarm
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log_level = %q", cfg.LogLevel)
	}
	if cfg.Lifecycle.TickInterval != 10*time.Second {
		t.Errorf("tick_interval = %v", cfg.Lifecycle.TickInterval)
	}
	if cfg.Sensor.ShakeThreshold != 3.0 {
		t.Errorf("shake_threshold = %v", cfg.Sensor.ShakeThreshold)
	}
	if cfg.Storage.Driver != "postgres" {
		t.Errorf("driver = %q", cfg.Storage.Driver)
	}
	// Untouched sections keep their defaults.
	if cfg.Sensor.SampleInterval != 100*time.Millisecond {
		t.Errorf("sample_interval = %v", cfg.Sensor.SampleInterval)
	}
	if !cfg.API.Enabled || cfg.API.Addr != ":8080" {
		t.Errorf("api defaults lost: %+v", cfg.API)
	}
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"log_level": "warn", "history": {"store_limit": 50}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "warn" || cfg.History.StoreLimit != 50 {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Errorf("default config should validate: %v", err)
	}

	cfg = DefaultConfig()
	cfg.Storage.Driver = "cassandra"
	if err := Validate(cfg); err == nil {
		t.Error("expected error for unsupported driver")
	}

	cfg = DefaultConfig()
	cfg.Events.Kafka.Enabled = true
	if err := Validate(cfg); err == nil {
		t.Error("expected error for kafka without brokers")
	}

	cfg = DefaultConfig()
	cfg.Lifecycle.TickInterval = 100 * time.Millisecond
	if err := Validate(cfg); err == nil {
		t.Error("expected error for sub-second tick interval")
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for empty config")
	}
}
