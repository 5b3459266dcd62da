package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "api:\n  base_url: https://api.example.com\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Push.Transport != "websocket" {
		t.Fatalf("expected websocket default transport, got %q", cfg.Push.Transport)
	}
	if cfg.Push.ReconnectDelay != 3*time.Second || cfg.Push.MaxRetries != 3 {
		t.Fatalf("unexpected reconnect defaults: %v/%d", cfg.Push.ReconnectDelay, cfg.Push.MaxRetries)
	}
	if cfg.Resume.MaxAge != 30*time.Minute {
		t.Fatalf("unexpected resume max age: %v", cfg.Resume.MaxAge)
	}
	if cfg.History.PageSize != 20 {
		t.Fatalf("unexpected page size: %d", cfg.History.PageSize)
	}
}

func TestLoadParsesFileValues(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: https://api.example.com
  timeout: 5s
push:
  transport: nats
  url: nats://localhost:4222
  reconnect_delay: 1s
  max_retries: 5
log:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.Timeout != 5*time.Second {
		t.Fatalf("unexpected api timeout: %v", cfg.API.Timeout)
	}
	if cfg.Push.Transport != "nats" || cfg.Push.URL != "nats://localhost:4222" {
		t.Fatalf("unexpected push config: %+v", cfg.Push)
	}
	if cfg.Push.ReconnectDelay != time.Second || cfg.Push.MaxRetries != 5 {
		t.Fatalf("unexpected retry config: %v/%d", cfg.Push.ReconnectDelay, cfg.Push.MaxRetries)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("unexpected log level: %q", cfg.Log.Level)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "api:\n  base_url: https://api.example.com\n")
	t.Setenv("LIVEAUCTION_API_TOKEN", "secret-token")
	t.Setenv("LIVEAUCTION_PUSH_TRANSPORT", "nats")
	t.Setenv("LIVEAUCTION_PUSH_MAX_RETRIES", "7")
	t.Setenv("LIVEAUCTION_PUSH_RECONNECT_DELAY", "10s")
	t.Setenv("LIVEAUCTION_RESUME_MAX_AGE", "1h")
	t.Setenv("LIVEAUCTION_HISTORY_PAGE_SIZE", "50")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.Token != "secret-token" {
		t.Fatalf("env token not applied: %q", cfg.API.Token)
	}
	if cfg.Push.Transport != "nats" || cfg.Push.MaxRetries != 7 {
		t.Fatalf("env push overrides not applied: %+v", cfg.Push)
	}
	if cfg.Push.ReconnectDelay != 10*time.Second {
		t.Fatalf("env reconnect delay not applied: %v", cfg.Push.ReconnectDelay)
	}
	if cfg.Resume.MaxAge != time.Hour {
		t.Fatalf("env resume max age not applied: %v", cfg.Resume.MaxAge)
	}
	if cfg.History.PageSize != 50 {
		t.Fatalf("env page size not applied: %d", cfg.History.PageSize)
	}
}

func TestLoadRequiresBaseURL(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error without api.base_url")
	}
}

func TestLoadMissingFileUsesEnv(t *testing.T) {
	t.Setenv("LIVEAUCTION_API_URL", "https://api.example.com")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.BaseURL != "https://api.example.com" {
		t.Fatalf("env base url not applied: %q", cfg.API.BaseURL)
	}
}
