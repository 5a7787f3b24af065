package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel  string          `json:"log_level" yaml:"log_level"`
	Lifecycle LifecycleConfig `json:"lifecycle" yaml:"lifecycle"`
	Sensor    SensorConfig    `json:"sensor" yaml:"sensor"`
	Audio     AudioConfig     `json:"audio" yaml:"audio"`
	API       APIConfig       `json:"api" yaml:"api"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Events    EventsConfig    `json:"events" yaml:"events"`
	History   HistoryConfig   `json:"history" yaml:"history"`
}

type LifecycleConfig struct {
	// TickInterval is the in-process polling fallback used when the
	// scheduler callback is missed.
	TickInterval  time.Duration `json:"tick_interval" yaml:"tick_interval"`
	MaxDifficulty int           `json:"max_difficulty" yaml:"max_difficulty"`
}

type SensorConfig struct {
	// ShakeThreshold is the acceleration magnitude above which a sample
	// counts as one shake.
	ShakeThreshold float64       `json:"shake_threshold" yaml:"shake_threshold"`
	SampleInterval time.Duration `json:"sample_interval" yaml:"sample_interval"`
}

type AudioConfig struct {
	Source string `json:"source" yaml:"source"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Driver string `json:"driver" yaml:"driver"`
	DSN    string `json:"dsn" yaml:"dsn"`
}

type EventsConfig struct {
	Kafka KafkaConfig `json:"kafka" yaml:"kafka"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
}

type HistoryConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Lifecycle: LifecycleConfig{
			TickInterval:  30 * time.Second,
			MaxDifficulty: 5,
		},
		Sensor: SensorConfig{
			ShakeThreshold: 2.5,
			SampleInterval: 100 * time.Millisecond,
		},
		Audio:   AudioConfig{Source: "alarm.mp3"},
		API:     APIConfig{Enabled: true, Addr: ":8080"},
		Storage: StorageConfig{Driver: "sqlite", DSN: "file:smartalarm.db?_pragma=busy_timeout(5000)"},
		Events:  EventsConfig{Kafka: KafkaConfig{Enabled: false}},
		History: HistoryConfig{StoreLimit: 1000},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Lifecycle.TickInterval <= 0 {
		cfg.Lifecycle.TickInterval = 30 * time.Second
	}
	if cfg.Lifecycle.MaxDifficulty <= 0 {
		cfg.Lifecycle.MaxDifficulty = 5
	}
	if cfg.Sensor.ShakeThreshold <= 0 {
		cfg.Sensor.ShakeThreshold = 2.5
	}
	if cfg.Sensor.SampleInterval <= 0 {
		cfg.Sensor.SampleInterval = 100 * time.Millisecond
	}
	if cfg.Audio.Source == "" {
		cfg.Audio.Source = "alarm.mp3"
	}
	if cfg.History.StoreLimit <= 0 {
		cfg.History.StoreLimit = 1000
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	switch strings.ToLower(cfg.Storage.Driver) {
	case "sqlite", "postgres", "postgresql":
	default:
		return fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
	if cfg.Events.Kafka.Enabled {
		if len(cfg.Events.Kafka.Brokers) == 0 || cfg.Events.Kafka.Topic == "" {
			return errors.New("events.kafka requires brokers and topic")
		}
	}
	if cfg.Lifecycle.TickInterval < time.Second {
		return errors.New("lifecycle.tick_interval must be at least 1s")
	}
	return nil
}

// Manager holds the live config behind an atomic.Value so background loops
// can pick up reloads without locking.
type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	if info, err := os.Stat(path); err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

// NewStaticManager wraps a fixed config, for tests and for running without
// a config file.
func NewStaticManager(cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m := &Manager{}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) NeedsReload() (bool, error) {
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}
