package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"greeks-dashboard/internal/errors"
	"greeks-dashboard/internal/greeks"
)

func TestLoadWritesTemplatesAndUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	for _, name := range []string{"config.toml", "credentials.toml"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s template: %v", name, err)
		}
	}

	if cfg.Dashboard.Index != "NIFTY" {
		t.Errorf("Dashboard.Index = %q, want NIFTY", cfg.Dashboard.Index)
	}
	if cfg.Dashboard.PollInterval != time.Minute {
		t.Errorf("PollInterval = %v, want 1m", cfg.Dashboard.PollInterval)
	}
	if cfg.Session.IdleTimeout != 30*time.Minute {
		t.Errorf("IdleTimeout = %v, want 30m", cfg.Session.IdleTimeout)
	}
	if cfg.Cache.ClosedTTL != 24*time.Hour {
		t.Errorf("ClosedTTL = %v, want 24h", cfg.Cache.ClosedTTL)
	}
	if cfg.StorePath() != filepath.Join(dir, "samples.db") {
		t.Errorf("StorePath = %q", cfg.StorePath())
	}
}

func TestLoadReadsFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	content := `
[dashboard]
index = "BANKNIFTY"
baseline = true
truncate = "now"
poll_interval = "30s"

[export]
order = "asc"
precision = 4
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GREEKS_BACKEND_URL", "https://greeks.example.com")
	t.Setenv("GREEKS_REDIS_ADDR", "redis:6379")
	t.Setenv("GREEKS_USERNAME", "analyst")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Dashboard.Index != "BANKNIFTY" || !cfg.Dashboard.Baseline {
		t.Errorf("dashboard = %+v", cfg.Dashboard)
	}
	if cfg.Truncation() != greeks.TruncateAtNow {
		t.Errorf("Truncation = %v, want now", cfg.Truncation())
	}
	if cfg.Export.Order != "asc" || cfg.Export.Precision != 4 {
		t.Errorf("export = %+v", cfg.Export)
	}
	// Untouched keys keep defaults.
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Backend.URL != "https://greeks.example.com" {
		t.Errorf("Backend.URL = %q", cfg.Backend.URL)
	}
	if cfg.Cache.Backend != "redis" || cfg.Cache.RedisAddr != "redis:6379" {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Credentials.Backend.Username != "analyst" {
		t.Errorf("username = %q", cfg.Credentials.Backend.Username)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{"bad url", func(c *Config) { c.Backend.URL = "ftp://x" }, "backend.url"},
		{"bad index", func(c *Config) { c.Dashboard.Index = "DOW" }, "dashboard.index"},
		{"bad source", func(c *Config) { c.Dashboard.Source = "replay" }, "dashboard.source"},
		{"bad truncate", func(c *Config) { c.Dashboard.Truncate = "half" }, "dashboard.truncate"},
		{"fast poll", func(c *Config) { c.Dashboard.PollInterval = time.Second }, "dashboard.poll_interval"},
		{"warn too long", func(c *Config) { c.Session.WarnBefore = time.Hour }, "session.warn_before"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad cache", func(c *Config) { c.Cache.Backend = "memcached" }, "cache.backend"},
		{"bad order", func(c *Config) { c.Export.Order = "random" }, "export.order"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()

			var cfgErr *errors.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("err = %v, want ConfigError", err)
			}
			if cfgErr.Key != tt.key {
				t.Errorf("Key = %q, want %q", cfgErr.Key, tt.key)
			}
			if !errors.Is(err, errors.ErrConfigInvalid) {
				t.Error("expected ErrConfigInvalid in chain")
			}
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("GREEKS_TEST_DOTENV=loaded\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GREEKS_TEST_DOTENV", "")
	os.Unsetenv("GREEKS_TEST_DOTENV")

	if err := LoadEnvFile(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}
	if got := os.Getenv("GREEKS_TEST_DOTENV"); got != "loaded" {
		t.Errorf("GREEKS_TEST_DOTENV = %q", got)
	}
}
