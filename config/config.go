// Package config provides configuration loading and validation for the
// FlowCraft client SDK.
package config

import "time"

// Config holds the full client configuration.
type Config struct {
	Backend  BackendConfig  `toml:"backend"`
	Email    EmailConfig    `toml:"email"`
	Security SecurityConfig `toml:"security"`
	Executor ExecutorConfig `toml:"executor"`
	Session  SessionConfig  `toml:"session"`
	Cache    CacheConfig    `toml:"cache"`
	State    StateConfig    `toml:"state"`
}

// BackendConfig holds settings for the hosted backend (PostgREST + RPC).
type BackendConfig struct {
	// URL is the backend base origin. Example: "https://example.supabase.co"
	URL string `toml:"url" env:"FLOWCRAFT_BACKEND_URL"`

	// AnonKey is the public least-privilege API key. It is the only
	// credential the client ever holds; row-level security on the server
	// is what actually protects data.
	AnonKey string `toml:"anon_key" env:"FLOWCRAFT_BACKEND_ANON_KEY"`

	// Schema is the PostgREST schema name. Empty means the default schema.
	Schema string `toml:"schema" env:"FLOWCRAFT_BACKEND_SCHEMA"`
}

// EmailConfig holds settings for the invitation-email endpoint.
// The endpoint owns the transactional-email provider credential; the
// client authenticates with the public anon key only.
type EmailConfig struct {
	// EndpointURL is the invitation-email HTTP endpoint.
	EndpointURL string `toml:"endpoint_url" env:"FLOWCRAFT_EMAIL_ENDPOINT_URL"`

	// FromEmail and FromName identify the sender in outgoing mail.
	FromEmail string `toml:"from_email" env:"FLOWCRAFT_FROM_EMAIL"`
	FromName  string `toml:"from_name" env:"FLOWCRAFT_FROM_NAME"`

	// SiteURL is the public site origin used in invitation links.
	SiteURL string `toml:"site_url" env:"FLOWCRAFT_SITE_URL"`
}

// SecurityConfig groups the client-side security policy constants.
type SecurityConfig struct {
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Password  PasswordConfig  `toml:"password"`

	// CSRFTokenTTLHours is how long an issued CSRF token stays valid.
	CSRFTokenTTLHours int `toml:"csrf_token_ttl_hours" env:"FLOWCRAFT_CSRF_TOKEN_TTL_HOURS"`
}

// CSRFTokenTTL returns the CSRF token lifetime as a duration.
func (s SecurityConfig) CSRFTokenTTL() time.Duration {
	return time.Duration(s.CSRFTokenTTLHours) * time.Hour
}

// RateLimitConfig holds attempt/lockout policy for authentication flows.
type RateLimitConfig struct {
	MaxLoginAttempts int `toml:"max_login_attempts" env:"FLOWCRAFT_MAX_LOGIN_ATTEMPTS"`
	LoginLockoutMS   int `toml:"login_lockout_ms" env:"FLOWCRAFT_LOGIN_LOCKOUT_MS"`

	MaxPasswordResetAttempts int `toml:"max_password_reset_attempts" env:"FLOWCRAFT_MAX_PASSWORD_RESET_ATTEMPTS"`
	PasswordResetCooldownMS  int `toml:"password_reset_cooldown_ms" env:"FLOWCRAFT_PASSWORD_RESET_COOLDOWN_MS"`
}

// LoginLockout returns the login lockout window as a duration.
func (r RateLimitConfig) LoginLockout() time.Duration {
	return time.Duration(r.LoginLockoutMS) * time.Millisecond
}

// PasswordResetCooldown returns the reset cooldown window as a duration.
func (r RateLimitConfig) PasswordResetCooldown() time.Duration {
	return time.Duration(r.PasswordResetCooldownMS) * time.Millisecond
}

// PasswordConfig holds the password policy.
type PasswordConfig struct {
	MinLength          int      `toml:"min_length"`
	ForbiddenPasswords []string `toml:"forbidden_passwords"`
}

// ExecutorConfig holds retry/timeout defaults for backend requests.
type ExecutorConfig struct {
	MaxRetries  int `toml:"max_retries" env:"FLOWCRAFT_MAX_RETRIES"`
	TimeoutMS   int `toml:"timeout_ms" env:"FLOWCRAFT_REQUEST_TIMEOUT_MS"`
	BaseDelayMS int `toml:"base_delay_ms" env:"FLOWCRAFT_RETRY_BASE_DELAY_MS"`
}

// Timeout returns the per-attempt timeout as a duration.
func (e ExecutorConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutMS) * time.Millisecond
}

// BaseDelay returns the first retry delay as a duration.
func (e ExecutorConfig) BaseDelay() time.Duration {
	return time.Duration(e.BaseDelayMS) * time.Millisecond
}

// SessionConfig holds idle-session settings.
type SessionConfig struct {
	IdleTimeoutMinutes int `toml:"idle_timeout_minutes" env:"FLOWCRAFT_SESSION_IDLE_TIMEOUT_MINUTES"`
	WarningMinutes     int `toml:"warning_minutes" env:"FLOWCRAFT_SESSION_WARNING_MINUTES"`
}

// IdleTimeout returns the inactivity limit as a duration.
func (s SessionConfig) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutMinutes) * time.Minute
}

// Warning returns how long before expiry the warning fires.
func (s SessionConfig) Warning() time.Duration {
	return time.Duration(s.WarningMinutes) * time.Minute
}

// CacheConfig selects and configures the cache driver used for rate
// limiting and other transient state.
type CacheConfig struct {
	// Driver is "memory" or "valkey".
	Driver string `toml:"driver" env:"FLOWCRAFT_CACHE_DRIVER"`

	// ValkeyAddr is the valkey host:port, used when Driver is "valkey".
	ValkeyAddr string `toml:"valkey_addr" env:"FLOWCRAFT_CACHE_VALKEY_ADDR"`
}

// StateConfig locates the durable client-local state store.
type StateConfig struct {
	// Path is the sqlite database file for client-local state
	// (CSRF token and issue time). Empty disables persistence.
	Path string `toml:"path" env:"FLOWCRAFT_STATE_PATH"`
}

// Default returns a Config with the stock FlowCraft policy.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			URL: "https://flowcraft.example.supabase.co",
		},
		Email: EmailConfig{
			EndpointURL: "https://flowcraft.example.supabase.co/functions/v1/send-invitation-email",
			FromEmail:   "noreply@flowcraft.app",
			FromName:    "FlowCraft",
			SiteURL:     "https://flowcraft.app",
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				MaxLoginAttempts:         5,
				LoginLockoutMS:           int((15 * time.Minute).Milliseconds()),
				MaxPasswordResetAttempts: 3,
				PasswordResetCooldownMS:  int((5 * time.Minute).Milliseconds()),
			},
			Password: PasswordConfig{
				MinLength: 12,
				ForbiddenPasswords: []string{
					"password", "flowcraft", "123456", "qwerty", "admin", "user",
					"password123", "admin123", "flowcraft123", "test123",
				},
			},
			CSRFTokenTTLHours: 24,
		},
		Executor: ExecutorConfig{
			MaxRetries:  3,
			TimeoutMS:   10000,
			BaseDelayMS: 1000,
		},
		Session: SessionConfig{
			IdleTimeoutMinutes: 30,
			WarningMinutes:     5,
		},
		Cache: CacheConfig{
			Driver: "memory",
		},
	}
}

// Redacted returns a copy safe for logging: key material is masked.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Backend.AnonKey != "" {
		out.Backend.AnonKey = "[REDACTED]"
	}
	return &out
}
