// Package securitytest provides ready-made key and token fixtures for tests
// in other packages. It imports testing, so it must only be linked from
// _test.go files.
package securitytest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/devcoda25/myaccounts-bk-sub000/internal/security"
)

// NewKeyManager returns an initialized key manager backed by a throwaway
// key file under t.TempDir().
func NewKeyManager(t *testing.T) *security.KeyManager {
	t.Helper()
	km := security.NewKeyManager(filepath.Join(t.TempDir(), "signing_key.pem"), "test-key-1")
	if err := km.Init(); err != nil {
		t.Fatalf("init key manager: %v", err)
	}
	return km
}

// NewTokenProvider returns a token provider with short, test-friendly TTLs.
func NewTokenProvider(t *testing.T) *security.TokenProvider {
	t.Helper()
	return security.NewTokenProvider(NewKeyManager(t), "test-issuer", 15*time.Minute, 24*time.Hour)
}
