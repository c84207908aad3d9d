package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":8080")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.Issuer != "http://localhost:8080" {
		t.Errorf("Issuer = %q, want default", cfg.Issuer)
	}
	if cfg.SigningKeyID != "idp-es256-1" {
		t.Errorf("SigningKeyID = %q, want %q", cfg.SigningKeyID, "idp-es256-1")
	}
	if cfg.AccessTTLRaw != "15m" {
		t.Errorf("AccessTTLRaw = %q, want %q", cfg.AccessTTLRaw, "15m")
	}
	if cfg.RefreshTTLRaw != "168h" {
		t.Errorf("RefreshTTLRaw = %q, want %q", cfg.RefreshTTLRaw, "168h")
	}
	if cfg.Argon2Memory != 64*1024 {
		t.Errorf("Argon2Memory = %d, want %d", cfg.Argon2Memory, 64*1024)
	}
	if cfg.CacheMaxEntries != 10000 {
		t.Errorf("CacheMaxEntries = %d, want 10000", cfg.CacheMaxEntries)
	}
	if cfg.LoginRatePerMinute != 30 {
		t.Errorf("LoginRatePerMinute = %d, want 30", cfg.LoginRatePerMinute)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":9090")
	os.Setenv("ISSUER", "https://accounts.example.com")
	os.Setenv("ACCESS_TTL", "24h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9090")
	}
	if cfg.Issuer != "https://accounts.example.com" {
		t.Errorf("Issuer = %q, want override", cfg.Issuer)
	}
	if cfg.AccessTTL() != 24*time.Hour {
		t.Errorf("AccessTTL = %v, want 24h", cfg.AccessTTL())
	}
}

func TestLoad_InvalidArgon2Memory(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":8080")
	os.Setenv("ARGON2_MEMORY", "1024")

	if _, err := Load(); err == nil {
		t.Fatal("Load should fail when ARGON2_MEMORY is below the floor")
	}
}

func TestTTLAccessors_Fallbacks(t *testing.T) {
	cfg := &Config{AccessTTLRaw: "garbage", RefreshTTLRaw: "", CacheTTLRaw: "-5m"}
	if cfg.AccessTTL() != 15*time.Minute {
		t.Errorf("AccessTTL fallback = %v, want 15m", cfg.AccessTTL())
	}
	if cfg.RefreshTTL() != 168*time.Hour {
		t.Errorf("RefreshTTL fallback = %v, want 168h", cfg.RefreshTTL())
	}
	if cfg.CacheTTL() != time.Hour {
		t.Errorf("CacheTTL fallback = %v, want 1h", cfg.CacheTTL())
	}
	if cfg.SessionTTL() != cfg.RefreshTTL() {
		t.Errorf("SessionTTL should fall back to refresh TTL")
	}
	if cfg.SweepInterval() != 10*time.Minute {
		t.Errorf("SweepInterval fallback = %v, want 10m", cfg.SweepInterval())
	}
}
