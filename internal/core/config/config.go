// Package config loads the application configuration from YAML. Every
// field has a default so an absent or partial file still yields a
// runnable configuration.
package config

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log      LogConfig      `yaml:"log"`
	API      APIConfig      `yaml:"api"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Storage  StorageConfig  `yaml:"storage"`
	Sync     SyncConfig     `yaml:"sync"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type RealtimeConfig struct {
	URL               string        `yaml:"url"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	InitialBackoff    time.Duration `yaml:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
}

type StorageConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

type SyncConfig struct {
	ProbeInterval   time.Duration `yaml:"probe_interval"`
	DrainInterval   time.Duration `yaml:"drain_interval"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

func Default() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		API: APIConfig{
			BaseURL: "http://localhost:5000/api",
			Timeout: 10 * time.Second,
		},
		Realtime: RealtimeConfig{
			URL:               "ws://localhost:5000/ws/events",
			HeartbeatInterval: 30 * time.Second,
			InitialBackoff:    5 * time.Second,
			MaxBackoff:        60 * time.Second,
		},
		Storage: StorageConfig{Path: "camsync-data"},
		Sync: SyncConfig{
			ProbeInterval:   15 * time.Second,
			DrainInterval:   30 * time.Second,
			RefreshInterval: 5 * time.Minute,
		},
	}
}

// Load reads YAML config from r over the defaults.
func Load(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return cfg, errors.Wrap(err, "decode config")
	}
	return cfg, nil
}

// LoadFile reads YAML config from path. A missing file is not an error;
// it yields the defaults.
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Default(), errors.Wrap(err, "open config")
	}
	defer func() { _ = f.Close() }()
	return Load(f)
}
