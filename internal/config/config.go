// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Issuer is the iss claim and the base of the OIDC discovery document (e.g. https://accounts.example.com).
	Issuer string `mapstructure:"ISSUER"`
	// SigningKeyFile is the path where the ES256 signing key is persisted as PKCS#8 PEM.
	// Generated on first boot if absent.
	SigningKeyFile string `mapstructure:"SIGNING_KEY_FILE"`
	// SigningKeyID is the stable kid published in JWKS and set on token headers.
	SigningKeyID string `mapstructure:"SIGNING_KEY_ID"`
	// AccessTTLRaw is the access token lifetime (e.g. "15m").
	AccessTTLRaw string `mapstructure:"ACCESS_TTL"`
	// RefreshTTLRaw is the refresh token lifetime (e.g. "168h").
	RefreshTTLRaw string `mapstructure:"REFRESH_TTL"`
	// SessionTTLRaw is the session row lifetime; defaults to the refresh TTL when empty.
	SessionTTLRaw string `mapstructure:"SESSION_TTL"`
	// CacheTTLRaw is the session/user cache entry lifetime (e.g. "1h").
	CacheTTLRaw string `mapstructure:"CACHE_TTL"`
	// CacheMaxEntries bounds the in-memory session cache.
	CacheMaxEntries int `mapstructure:"CACHE_MAX_ENTRIES"`

	// Argon2Memory is the argon2id memory cost in KiB (default 64 MiB).
	Argon2Memory uint32 `mapstructure:"ARGON2_MEMORY"`
	// Argon2Iterations is the argon2id time cost.
	Argon2Iterations uint32 `mapstructure:"ARGON2_ITERATIONS"`
	// Argon2Parallelism is the argon2id thread count.
	Argon2Parallelism uint8 `mapstructure:"ARGON2_PARALLELISM"`

	// GoogleClientID is the audience expected on Google ID tokens for social login.
	GoogleClientID string `mapstructure:"GOOGLE_CLIENT_ID"`
	// AppleClientID is the audience expected on Apple ID tokens for social login.
	AppleClientID string `mapstructure:"APPLE_CLIENT_ID"`

	// LoginRatePerMinute limits credential-endpoint requests per client IP.
	LoginRatePerMinute int `mapstructure:"LOGIN_RATE_PER_MINUTE"`
	// LoginRateBurst is the burst size for the login rate limiter.
	LoginRateBurst int `mapstructure:"LOGIN_RATE_BURST"`

	// NotifyWebhookURL receives fire-and-forget auth event notifications; empty disables dispatch.
	NotifyWebhookURL string `mapstructure:"NOTIFY_WEBHOOK_URL"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint (e.g. localhost:4317); empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext export regardless of endpoint scheme.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// SweepIntervalRaw is how often expired sessions are deleted (e.g. "10m").
	SweepIntervalRaw string `mapstructure:"SESSION_SWEEP_INTERVAL"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("ISSUER", "http://localhost:8080")
	v.SetDefault("SIGNING_KEY_FILE", "signing_key.pem")
	v.SetDefault("SIGNING_KEY_ID", "idp-es256-1")
	v.SetDefault("ACCESS_TTL", "15m")
	v.SetDefault("REFRESH_TTL", "168h") // 7d
	v.SetDefault("SESSION_TTL", "")
	v.SetDefault("CACHE_TTL", "1h")
	v.SetDefault("CACHE_MAX_ENTRIES", 10000)
	v.SetDefault("ARGON2_MEMORY", 64*1024)
	v.SetDefault("ARGON2_ITERATIONS", 3)
	v.SetDefault("ARGON2_PARALLELISM", 2)
	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("APPLE_CLIENT_ID", "")
	v.SetDefault("LOGIN_RATE_PER_MINUTE", 30)
	v.SetDefault("LOGIN_RATE_BURST", 10)
	v.SetDefault("NOTIFY_WEBHOOK_URL", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("APP_ENV", "")
	v.SetDefault("SESSION_SWEEP_INTERVAL", "10m")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("config: ISSUER must be set")
	}
	if cfg.SigningKeyID == "" {
		return nil, errors.New("config: SIGNING_KEY_ID must be set")
	}
	if cfg.Argon2Memory < 8*1024 {
		return nil, errors.New("config: ARGON2_MEMORY must be at least 8192 KiB")
	}
	if cfg.Argon2Iterations == 0 {
		return nil, errors.New("config: ARGON2_ITERATIONS must be positive")
	}
	if cfg.LoginRatePerMinute <= 0 {
		return nil, errors.New("config: LOGIN_RATE_PER_MINUTE must be positive")
	}

	return &cfg, nil
}

// AccessTTL parses ACCESS_TTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseTTL(c.AccessTTLRaw, 15*time.Minute)
}

// RefreshTTL parses REFRESH_TTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parseTTL(c.RefreshTTLRaw, 168*time.Hour)
}

// SessionTTL parses SESSION_TTL, falling back to the refresh TTL so a session
// outlives every refresh token bound to it.
func (c *Config) SessionTTL() time.Duration {
	if c.SessionTTLRaw == "" {
		return c.RefreshTTL()
	}
	return parseTTL(c.SessionTTLRaw, c.RefreshTTL())
}

// CacheTTL parses CACHE_TTL as a time.Duration. Returns 1h if unset or invalid.
func (c *Config) CacheTTL() time.Duration {
	return parseTTL(c.CacheTTLRaw, time.Hour)
}

// SweepInterval parses SESSION_SWEEP_INTERVAL. Returns 10m if unset or invalid.
func (c *Config) SweepInterval() time.Duration {
	return parseTTL(c.SweepIntervalRaw, 10*time.Minute)
}

func parseTTL(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
