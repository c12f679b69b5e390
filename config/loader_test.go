package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flowcraft.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(LoaderOptions{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Executor.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d", cfg.Executor.MaxRetries)
	}
	if cfg.Executor.Timeout().Seconds() != 10 {
		t.Errorf("Timeout = %v", cfg.Executor.Timeout())
	}
	if cfg.Security.RateLimit.MaxLoginAttempts != 5 {
		t.Errorf("MaxLoginAttempts = %d", cfg.Security.RateLimit.MaxLoginAttempts)
	}
	if cfg.Security.RateLimit.LoginLockout().Minutes() != 15 {
		t.Errorf("LoginLockout = %v", cfg.Security.RateLimit.LoginLockout())
	}
	if cfg.Security.CSRFTokenTTL().Hours() != 24 {
		t.Errorf("CSRFTokenTTL = %v", cfg.Security.CSRFTokenTTL())
	}
	if cfg.Cache.Driver != "memory" {
		t.Errorf("Cache.Driver = %q", cfg.Cache.Driver)
	}
}

func TestLoadFileThenEnvPrecedence(t *testing.T) {
	path := writeConfigFile(t, `
[backend]
url = "https://file.example.supabase.co"
anon_key = "file-key"

[executor]
max_retries = 5
`)
	t.Setenv("FLOWCRAFT_BACKEND_ANON_KEY", "env-key")

	cfg, err := Load(LoaderOptions{ConfigPath: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Backend.URL != "https://file.example.supabase.co" {
		t.Errorf("URL = %q, file value should win over default", cfg.Backend.URL)
	}
	if cfg.Backend.AnonKey != "env-key" {
		t.Errorf("AnonKey = %q, env should win over file", cfg.Backend.AnonKey)
	}
	if cfg.Executor.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, file value should win over default", cfg.Executor.MaxRetries)
	}
	// Untouched settings keep their defaults.
	if cfg.Executor.TimeoutMS != 10000 {
		t.Errorf("TimeoutMS = %d", cfg.Executor.TimeoutMS)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(LoaderOptions{ConfigPath: "/nonexistent/flowcraft.toml"}); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(*Config) {}, ""},
		{"missing url", func(c *Config) { c.Backend.URL = "" }, "backend.url is required"},
		{"non http url", func(c *Config) { c.Backend.URL = "ftp://x" }, "must be an http(s) origin"},
		{"zero retries", func(c *Config) { c.Executor.MaxRetries = 0 }, "max_retries"},
		{"zero timeout", func(c *Config) { c.Executor.TimeoutMS = 0 }, "timeout_ms"},
		{"zero login attempts", func(c *Config) { c.Security.RateLimit.MaxLoginAttempts = 0 }, "attempt counts"},
		{"unknown cache driver", func(c *Config) { c.Cache.Driver = "memcached" }, "cache.driver"},
		{"valkey without addr", func(c *Config) { c.Cache.Driver = "valkey" }, "valkey_addr"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Validate = %v, want substring %q", err, tc.wantErr)
			}
		})
	}
}

func TestRedactedMasksKeyMaterial(t *testing.T) {
	cfg := Default()
	cfg.Backend.AnonKey = "super-secret"

	red := cfg.Redacted()
	if red.Backend.AnonKey != "[REDACTED]" {
		t.Fatalf("AnonKey = %q", red.Backend.AnonKey)
	}
	if cfg.Backend.AnonKey != "super-secret" {
		t.Fatal("Redacted must not mutate the original")
	}
}
