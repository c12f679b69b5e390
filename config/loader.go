package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// LoaderOptions controls how configuration is loaded.
type LoaderOptions struct {
	// ConfigPath is the path to a TOML config file (optional).
	// If provided but missing or invalid, loading fails.
	ConfigPath string

	// Logger is used for warning messages (e.g., undecoded keys).
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Load builds the effective configuration with precedence:
// defaults -> TOML file -> environment variables.
func Load(opts LoaderOptions) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg := Default()

	if opts.ConfigPath != "" {
		meta, err := toml.DecodeFile(opts.ConfigPath, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			logger.Warn("unknown keys in config file", "path", opts.ConfigPath, "keys", strings.Join(keys, ", "))
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants the rest of the SDK relies on.
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return errors.New("backend.url is required")
	}
	if !strings.HasPrefix(c.Backend.URL, "http://") && !strings.HasPrefix(c.Backend.URL, "https://") {
		return fmt.Errorf("backend.url %q must be an http(s) origin", c.Backend.URL)
	}
	if c.Executor.MaxRetries < 1 {
		return errors.New("executor.max_retries must be at least 1")
	}
	if c.Executor.TimeoutMS <= 0 {
		return errors.New("executor.timeout_ms must be positive")
	}
	if c.Security.RateLimit.MaxLoginAttempts < 1 || c.Security.RateLimit.MaxPasswordResetAttempts < 1 {
		return errors.New("rate limit attempt counts must be at least 1")
	}
	switch c.Cache.Driver {
	case "", "memory", "valkey":
	default:
		return fmt.Errorf("cache.driver %q must be one of memory, valkey", c.Cache.Driver)
	}
	if c.Cache.Driver == "valkey" && c.Cache.ValkeyAddr == "" {
		return errors.New("cache.valkey_addr is required when cache.driver is valkey")
	}
	return nil
}
