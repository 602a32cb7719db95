package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.HTTPAddr != ":3000" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":3000")
	}
	if cfg.GRPCAddr != ":9090" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":9090")
	}
	if cfg.JWTIssuer != "fleet-auth" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "fleet-auth")
	}
	if cfg.JWTAudience != "fleet-api" {
		t.Errorf("JWTAudience = %q, want %q", cfg.JWTAudience, "fleet-api")
	}
	if cfg.TokenCacheTTL() != 60*time.Second {
		t.Errorf("TokenCacheTTL = %v, want 60s", cfg.TokenCacheTTL())
	}
	if cfg.TokenCacheSize != 10000 {
		t.Errorf("TokenCacheSize = %d, want 10000", cfg.TokenCacheSize)
	}
	if cfg.SessionTTL() != 24*time.Hour {
		t.Errorf("SessionTTL = %v, want 24h", cfg.SessionTTL())
	}
	if cfg.AllowedWallets != "" {
		t.Errorf("AllowedWallets = %q, want empty", cfg.AllowedWallets)
	}
	if cfg.RequireNonce {
		t.Error("RequireNonce should default to false")
	}
	if cfg.IsNode() {
		t.Error("IsNode should be false without node credentials")
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":8081")
	os.Setenv("ALLOWED_WALLETS", "0xabc, 0xdef")
	os.Setenv("TOKEN_CACHE_TTL", "30s")
	os.Setenv("TOKEN_CACHE_SIZE", "50")
	os.Setenv("DEBUG", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8081" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8081")
	}
	if cfg.AllowedWallets != "0xabc, 0xdef" {
		t.Errorf("AllowedWallets = %q", cfg.AllowedWallets)
	}
	if cfg.TokenCacheTTL() != 30*time.Second {
		t.Errorf("TokenCacheTTL = %v, want 30s", cfg.TokenCacheTTL())
	}
	if cfg.TokenCacheSize != 50 {
		t.Errorf("TokenCacheSize = %d, want 50", cfg.TokenCacheSize)
	}
	if !cfg.Debug {
		t.Error("Debug should be true")
	}
}

func TestLoad_JWTKeysMustBePaired(t *testing.T) {
	os.Clearenv()
	os.Setenv("JWT_PRIVATE_KEY", "/tmp/key.pem")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when only JWT_PRIVATE_KEY is set")
	}
}

func TestLoad_ProductionRequiresKeys(t *testing.T) {
	os.Clearenv()
	os.Setenv("APP_ENV", "production")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when production has no JWT keys")
	}
}

func TestLoad_NodeCredentialsMustBePaired(t *testing.T) {
	os.Clearenv()
	os.Setenv("NODE_DEVICE_ID", "d2")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when NODE_API_KEY is missing")
	}

	os.Setenv("NODE_API_KEY", "secret")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.IsNode() {
		t.Error("IsNode should be true with both node credentials")
	}
}

func TestLoad_InvalidMainDevicePort(t *testing.T) {
	os.Clearenv()
	os.Setenv("MAIN_DEVICE_PORT", "70000")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for out-of-range MAIN_DEVICE_PORT")
	}
}

func TestDurations_FallbackOnInvalid(t *testing.T) {
	cfg := &Config{
		SessionTTLRaw:        "bogus",
		TokenCacheTTLRaw:     "-1s",
		NonceTTLRaw:          "",
		ProxyTimeoutRaw:      "0",
		DeviceStaleAfterRaw:  "x",
		HeartbeatIntervalRaw: "",
	}
	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"SessionTTL", cfg.SessionTTL(), 24 * time.Hour},
		{"TokenCacheTTL", cfg.TokenCacheTTL(), 60 * time.Second},
		{"NonceTTL", cfg.NonceTTL(), 5 * time.Minute},
		{"ProxyTimeout", cfg.ProxyTimeout(), 30 * time.Second},
		{"DeviceStaleAfter", cfg.DeviceStaleAfter(), 2 * time.Minute},
		{"HeartbeatInterval", cfg.HeartbeatInterval(), 30 * time.Second},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestAdminWalletsList(t *testing.T) {
	cfg := &Config{AdminWallets: " 0xA ,,0xB, "}
	got := cfg.AdminWalletsList()
	if len(got) != 2 || got[0] != "0xA" || got[1] != "0xB" {
		t.Errorf("AdminWalletsList = %v, want [0xA 0xB]", got)
	}
	var nilCfg *Config
	if nilCfg.AdminWalletsList() != nil {
		t.Error("nil config should return nil list")
	}
}
