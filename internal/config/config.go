// Package config loads marketd configuration from a yaml file with
// environment variable overrides applied on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// Config is the full marketd configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Engine   EngineConfig   `yaml:"engine"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"MARKETD_ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"MARKETD_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"MARKETD_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"MARKETD_SHUTDOWN_TIMEOUT"`
}

// UnmarshalYAML accepts "15s" style duration strings and leaves fields the
// file does not mention at their current (default) values.
func (s *ServerConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Addr            string `yaml:"addr"`
		ReadTimeout     string `yaml:"read_timeout"`
		WriteTimeout    string `yaml:"write_timeout"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if strings.TrimSpace(raw.Addr) != "" {
		s.Addr = raw.Addr
	}
	for _, field := range []struct {
		raw string
		dst *time.Duration
	}{
		{raw.ReadTimeout, &s.ReadTimeout},
		{raw.WriteTimeout, &s.WriteTimeout},
		{raw.ShutdownTimeout, &s.ShutdownTimeout},
	} {
		if strings.TrimSpace(field.raw) == "" {
			continue
		}
		d, err := time.ParseDuration(field.raw)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", field.raw, err)
		}
		*field.dst = d
	}
	return nil
}

// DatabaseConfig selects the persistence backend. An empty DSN runs the
// in-memory store.
type DatabaseConfig struct {
	DSN string `yaml:"dsn" env:"MARKETD_DATABASE_DSN"`
}

// LoggingConfig mirrors pkg/logger's construction surface.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"MARKETD_LOG_LEVEL"`
	Format     string `yaml:"format" env:"MARKETD_LOG_FORMAT"`
	Output     string `yaml:"output" env:"MARKETD_LOG_OUTPUT"`
	FilePrefix string `yaml:"file_prefix" env:"MARKETD_LOG_FILE_PREFIX"`
}

// EngineConfig tunes the marketplace engine.
type EngineConfig struct {
	Operator        string `yaml:"operator" env:"MARKETD_OPERATOR"`
	EventBufferSize int    `yaml:"event_buffer_size" env:"MARKETD_EVENT_BUFFER_SIZE"`
}

// DefaultPath is where Load looks when MARKETD_CONFIG is unset.
var DefaultPath = filepath.Join("config", "marketd.yaml")

// Default returns the configuration used when no file or env overrides exist.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Engine: EngineConfig{
			Operator:        "marketd",
			EventBufferSize: 1024,
		},
	}
}

// Load reads the yaml file at MARKETD_CONFIG (or DefaultPath when unset, in
// which case a missing file is not an error) and applies environment
// overrides on top of it.
func Load() (Config, error) {
	path := strings.TrimSpace(os.Getenv("MARKETD_CONFIG"))
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	return load(path, explicit)
}

// LoadFromPath reads the yaml file at path and applies environment overrides.
func LoadFromPath(path string) (Config, error) {
	return load(path, true)
}

func load(path string, mustExist bool) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err) && !mustExist:
		// Defaults plus env overrides.
	default:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	// envdecode reports an error when no env var matched anything; that is
	// the normal case for a file-driven deployment.
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("apply env overrides: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("server addr is required")
	}
	if c.Engine.EventBufferSize < 0 {
		return fmt.Errorf("event buffer size cannot be negative")
	}
	return nil
}
