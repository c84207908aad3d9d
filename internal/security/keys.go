package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

var (
	// ErrInvalidKey is returned when PEM or key type is invalid.
	ErrInvalidKey = errors.New("invalid key")
	// ErrKeyManagerNotReady is returned when the signing key is requested before
	// Init has succeeded and lazy initialization also fails.
	ErrKeyManagerNotReady = errors.New("key manager not initialized")
)

// KeyManager owns the process-wide ES256 signing key pair. Init generates a
// P-256 key on first boot and persists it as PKCS#8 PEM; later boots reload
// the same key. The public half is published as a JWK under a stable kid so
// clients can pin to a JWKS entry across rotation windows.
//
// Read-mostly after Init; safe for unlimited concurrent readers.
type KeyManager struct {
	path  string
	keyID string

	mu  sync.RWMutex
	key *ecdsa.PrivateKey
}

// NewKeyManager returns a KeyManager persisting its key at path under the given kid.
func NewKeyManager(path, keyID string) *KeyManager {
	return &KeyManager{path: path, keyID: keyID}
}

// Init loads the persisted key pair, generating and persisting a new P-256
// pair if none exists. Idempotent; subsequent calls are no-ops.
func (m *KeyManager) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.key != nil {
		return nil
	}

	pemBytes, err := os.ReadFile(m.path)
	switch {
	case err == nil:
		key, err := parseECPrivatePEM(pemBytes)
		if err != nil {
			return fmt.Errorf("load signing key %s: %w", m.path, err)
		}
		m.key = key
		return nil
	case errors.Is(err, os.ErrNotExist):
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return fmt.Errorf("generate signing key: %w", err)
		}
		if err := writeECPrivatePEM(m.path, key); err != nil {
			return fmt.Errorf("persist signing key %s: %w", m.path, err)
		}
		m.key = key
		return nil
	default:
		return fmt.Errorf("read signing key %s: %w", m.path, err)
	}
}

// PrivateKey returns the signing key, lazily initializing if needed.
func (m *KeyManager) PrivateKey() (*ecdsa.PrivateKey, error) {
	m.mu.RLock()
	key := m.key
	m.mu.RUnlock()
	if key != nil {
		return key, nil
	}
	if err := m.Init(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyManagerNotReady, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.key, nil
}

// KeyID returns the stable kid set on token headers and JWKS entries.
func (m *KeyManager) KeyID() string { return m.keyID }

// PublicJWK returns the public half as a JWK with kid, use=sig, alg=ES256.
func (m *KeyManager) PublicJWK() (jwk.Key, error) {
	priv, err := m.PrivateKey()
	if err != nil {
		return nil, err
	}
	key, err := jwk.Import(priv.Public())
	if err != nil {
		return nil, fmt.Errorf("import public key: %w", err)
	}
	if err := key.Set(jwk.KeyIDKey, m.keyID); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.KeyUsageKey, jwk.ForSignature); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.ES256()); err != nil {
		return nil, err
	}
	return key, nil
}

// JWKS returns the published key set. Currently one key; during rotation the
// outgoing key would be appended until all outstanding tokens expire.
func (m *KeyManager) JWKS() (jwk.Set, error) {
	key, err := m.PublicJWK()
	if err != nil {
		return nil, err
	}
	set := jwk.NewSet()
	if err := set.AddKey(key); err != nil {
		return nil, err
	}
	return set, nil
}

func parseECPrivatePEM(pemBytes []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrInvalidKey
	}
	switch block.Type {
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		ec, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, ErrInvalidKey
		}
		return ec, nil
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	default:
		return nil, ErrInvalidKey
	}
}

func writeECPrivatePEM(path string, key *ecdsa.PrivateKey) error {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return err
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	return os.WriteFile(path, pemBytes, 0o600)
}
