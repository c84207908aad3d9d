package security

import (
	"path/filepath"
	"testing"
	"time"
)

// These mirror the securitytest fixtures. The securitytest package imports
// this one, so tests here cannot use it without an import cycle.

func newTestKeyManager(t *testing.T) *KeyManager {
	t.Helper()
	km := NewKeyManager(filepath.Join(t.TempDir(), "signing_key.pem"), "test-key-1")
	if err := km.Init(); err != nil {
		t.Fatalf("init key manager: %v", err)
	}
	return km
}

func newTestTokenProvider(t *testing.T) *TokenProvider {
	t.Helper()
	return NewTokenProvider(newTestKeyManager(t), "test-issuer", 15*time.Minute, 24*time.Hour)
}
