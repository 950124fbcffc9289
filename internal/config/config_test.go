package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "marketd.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	t.Setenv("MARKETD_CONFIG", "")
	cfg, err := load(filepath.Join(t.TempDir(), "absent.yaml"), false)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("addr = %s, want :8080", cfg.Server.Addr)
	}
	if cfg.Engine.Operator != "marketd" {
		t.Fatalf("operator = %s, want marketd", cfg.Engine.Operator)
	}
	if cfg.Database.DSN != "" {
		t.Fatalf("dsn = %s, want empty", cfg.Database.DSN)
	}
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoadFromYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
  read_timeout: 5s
database:
  dsn: postgres://localhost/market
logging:
  level: debug
  format: json
engine:
  operator: custody-1
  event_buffer_size: 16
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Fatalf("addr = %s", cfg.Server.Addr)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Fatalf("read timeout = %s", cfg.Server.ReadTimeout)
	}
	// Unset fields keep their defaults.
	if cfg.Server.WriteTimeout != 30*time.Second {
		t.Fatalf("write timeout = %s", cfg.Server.WriteTimeout)
	}
	if cfg.Database.DSN != "postgres://localhost/market" {
		t.Fatalf("dsn = %s", cfg.Database.DSN)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Engine.Operator != "custody-1" || cfg.Engine.EventBufferSize != 16 {
		t.Fatalf("engine = %+v", cfg.Engine)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
engine:
  operator: from-file
`)
	t.Setenv("MARKETD_OPERATOR", "from-env")
	t.Setenv("MARKETD_ADDR", ":7070")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine.Operator != "from-env" {
		t.Fatalf("operator = %s, want from-env", cfg.Engine.Operator)
	}
	if cfg.Server.Addr != ":7070" {
		t.Fatalf("addr = %s, want :7070", cfg.Server.Addr)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ""
`)
	if _, err := LoadFromPath(path); err == nil {
		t.Fatal("expected validation error for empty addr")
	}

	path = writeConfig(t, `
engine:
  event_buffer_size: -1
`)
	if _, err := LoadFromPath(path); err == nil {
		t.Fatal("expected validation error for negative buffer size")
	}
}
