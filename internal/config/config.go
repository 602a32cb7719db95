// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :3000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address the gRPC health server listens on; empty disables it.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN. When empty, in-memory stores are used.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// AllowedWallets is the comma-separated wallet allow-list. Empty means public mode.
	AllowedWallets string `mapstructure:"ALLOWED_WALLETS"`
	// AdminWallets is the comma-separated list of addresses granted admin on first login.
	AdminWallets string `mapstructure:"ADMIN_WALLETS"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file.
	// When both keys are empty outside production, an ephemeral key is generated at startup.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// SessionTTLRaw is the session token lifetime (e.g. "24h").
	SessionTTLRaw string `mapstructure:"SESSION_TTL"`

	// TokenCacheTTLRaw is the freshness window of a cached token resolution (default "60s").
	TokenCacheTTLRaw string `mapstructure:"TOKEN_CACHE_TTL"`
	// TokenCacheSize bounds the number of cached token resolutions.
	TokenCacheSize int `mapstructure:"TOKEN_CACHE_SIZE"`

	// NonceTTLRaw is how long a login challenge stays valid.
	NonceTTLRaw string `mapstructure:"NONCE_TTL"`
	// RequireNonce makes login fail unless the signed message carries an issued challenge.
	RequireNonce bool `mapstructure:"REQUIRE_NONCE"`

	// ProxyTimeoutRaw bounds a single forwarded call to a remote device.
	ProxyTimeoutRaw string `mapstructure:"PROXY_TIMEOUT"`
	// DeviceStaleAfterRaw is how long after the last heartbeat a device is reported offline.
	DeviceStaleAfterRaw string `mapstructure:"DEVICE_STALE_AFTER"`
	// MainDeviceName is the display name of the local (main) device record.
	MainDeviceName string `mapstructure:"MAIN_DEVICE_NAME"`
	// MainDevicePort is the port recorded on the main device; defaults to the HTTP_ADDR port.
	MainDevicePort int `mapstructure:"MAIN_DEVICE_PORT"`

	// NodeDeviceID and NodeAPIKey identify this process when it runs as a remote device.
	// Both set: heartbeats are sent to MainURL and proxied calls carrying this credential are accepted.
	NodeDeviceID string `mapstructure:"NODE_DEVICE_ID"`
	NodeAPIKey   string `mapstructure:"NODE_API_KEY"`
	// MainURL is the base URL of the main node (e.g. http://10.0.0.1:3000).
	MainURL string `mapstructure:"MAIN_URL"`
	// HeartbeatIntervalRaw is the period between heartbeats sent to MainURL.
	HeartbeatIntervalRaw string `mapstructure:"HEARTBEAT_INTERVAL"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces a plaintext connection to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// PolicyFile is an optional Rego file replacing the built-in fleet.authz policy.
	PolicyFile string `mapstructure:"POLICY_FILE"`

	// LogFile, when set, routes process logs to a rotating file.
	LogFile string `mapstructure:"LOG_FILE"`
	// LogMaxSizeMB is the rotation threshold for LogFile.
	LogMaxSizeMB int `mapstructure:"LOG_MAX_SIZE_MB"`

	// Debug exposes diagnostic fields (e.g. allow-list size on /auth/check-mode).
	Debug bool `mapstructure:"DEBUG"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":3000")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("ALLOWED_WALLETS", "")
	v.SetDefault("ADMIN_WALLETS", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "fleet-auth")
	v.SetDefault("JWT_AUDIENCE", "fleet-api")
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("TOKEN_CACHE_TTL", "60s")
	v.SetDefault("TOKEN_CACHE_SIZE", 10000)
	v.SetDefault("NONCE_TTL", "5m")
	v.SetDefault("REQUIRE_NONCE", false)
	v.SetDefault("PROXY_TIMEOUT", "30s")
	v.SetDefault("DEVICE_STALE_AFTER", "2m")
	v.SetDefault("MAIN_DEVICE_NAME", "main")
	v.SetDefault("MAIN_DEVICE_PORT", 0)
	v.SetDefault("NODE_DEVICE_ID", "")
	v.SetDefault("NODE_API_KEY", "")
	v.SetDefault("MAIN_URL", "")
	v.SetDefault("HEARTBEAT_INTERVAL", "30s")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("POLICY_FILE", "")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("LOG_MAX_SIZE_MB", 100)
	v.SetDefault("DEBUG", false)
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if (cfg.JWTPrivateKey == "") != (cfg.JWTPublicKey == "") {
		return nil, errors.New("config: JWT_PRIVATE_KEY and JWT_PUBLIC_KEY must be set together")
	}
	if cfg.JWTPrivateKey == "" && cfg.IsProduction() {
		return nil, errors.New("config: JWT_PRIVATE_KEY must be set when APP_ENV=production")
	}
	if (cfg.NodeDeviceID == "") != (cfg.NodeAPIKey == "") {
		return nil, errors.New("config: NODE_DEVICE_ID and NODE_API_KEY must be set together")
	}
	if cfg.TokenCacheSize <= 0 {
		cfg.TokenCacheSize = 10000
	}
	if cfg.MainDevicePort < 0 || cfg.MainDevicePort > 65535 {
		return nil, errors.New("config: MAIN_DEVICE_PORT must be between 0 and 65535")
	}

	return &cfg, nil
}

// IsProduction reports whether APP_ENV is "production".
func (c *Config) IsProduction() bool {
	return c != nil && strings.EqualFold(c.Env, "production")
}

// SessionTTL parses SessionTTLRaw. Returns 24h if unset or invalid.
func (c *Config) SessionTTL() time.Duration {
	return parseDuration(c.SessionTTLRaw, 24*time.Hour)
}

// TokenCacheTTL parses TokenCacheTTLRaw. Returns 60s if unset or invalid.
func (c *Config) TokenCacheTTL() time.Duration {
	return parseDuration(c.TokenCacheTTLRaw, 60*time.Second)
}

// NonceTTL parses NonceTTLRaw. Returns 5m if unset or invalid.
func (c *Config) NonceTTL() time.Duration {
	return parseDuration(c.NonceTTLRaw, 5*time.Minute)
}

// ProxyTimeout parses ProxyTimeoutRaw. Returns 30s if unset or invalid.
func (c *Config) ProxyTimeout() time.Duration {
	return parseDuration(c.ProxyTimeoutRaw, 30*time.Second)
}

// DeviceStaleAfter parses DeviceStaleAfterRaw. Returns 2m if unset or invalid.
func (c *Config) DeviceStaleAfter() time.Duration {
	return parseDuration(c.DeviceStaleAfterRaw, 2*time.Minute)
}

// HeartbeatInterval parses HeartbeatIntervalRaw. Returns 30s if unset or invalid.
func (c *Config) HeartbeatInterval() time.Duration {
	return parseDuration(c.HeartbeatIntervalRaw, 30*time.Second)
}

// AdminWalletsList returns admin addresses from the comma-separated config.
func (c *Config) AdminWalletsList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.AdminWallets)
}

// IsNode reports whether this process has a device identity of its own.
func (c *Config) IsNode() bool {
	return c != nil && c.NodeDeviceID != "" && c.NodeAPIKey != ""
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
