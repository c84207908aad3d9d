package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired, or fails
	// signature verification.
	ErrInvalidToken = errors.New("invalid token")
)

// ClockSkewLeeway absorbs clock drift between nodes when validating iat/exp.
const ClockSkewLeeway = 30 * time.Second

// AccessClaims holds JWT claims for bearer tokens. The jti is the session id;
// the session, not the token, is the unit of revocation.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	Nonce string `json:"nonce,omitempty"`
}

// SessionID returns the session id carried in jti, or "" for tokens that are
// not bound to a session (legacy/dev tokens, OAuth access tokens).
func (c *AccessClaims) SessionID() string { return c.ID }

// RefreshClaims holds JWT claims for refresh tokens. ID is a per-rotation jti
// stored on the session so reuse of an old refresh token is detectable.
type RefreshClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}

// TokenProvider mints and verifies ES256-signed tokens using the KeyManager's
// signing key. Tokens are stateless; callers cross-check jti against the
// session store for revocation.
type TokenProvider struct {
	keys       *KeyManager
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenProvider returns a TokenProvider signing with keys under the given issuer.
func NewTokenProvider(keys *KeyManager, issuer string, accessTTL, refreshTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		keys:       keys,
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Issuer returns the iss claim set on minted tokens.
func (p *TokenProvider) Issuer() string { return p.issuer }

// AccessTTL returns the access token lifetime.
func (p *TokenProvider) AccessTTL() time.Duration { return p.accessTTL }

// Mint signs a bearer token bound to the given session: sub is the user id,
// jti the session id. Returns the token and its expiry.
func (p *TokenProvider) Mint(sessionID, userID, email, role string) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(p.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   userID,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: email,
		Role:  role,
	}
	token, err := p.sign(claims)
	return token, expiresAt, err
}

// MintForAudience signs a token for an OAuth client: aud is the client id and
// no session jti is set. Used for access and ID tokens issued at /token.
// nonce is echoed into ID tokens when the authorization request carried one.
func (p *TokenProvider) MintForAudience(userID, email, role, audience, nonce string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: email,
		Role:  role,
		Nonce: nonce,
	}
	token, err := p.sign(claims)
	return token, expiresAt, err
}

// MintRefresh signs a refresh token for the session and returns the token and
// its rotation jti. The caller stores the jti (and the token's hash) on the
// session row; presenting a refresh token whose jti no longer matches is
// treated as reuse.
func (p *TokenProvider) MintRefresh(sessionID, userID string) (token, jti string, expiresAt time.Time, err error) {
	jti, err = generateJTI()
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt = now.Add(p.refreshTTL)
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		SessionID: sessionID,
	}
	token, err = p.sign(claims)
	return token, jti, expiresAt, err
}

// Verify checks signature, expiry, and issuer with a fixed clock-skew leeway.
// Returns ErrInvalidToken on any failure.
func (p *TokenProvider) Verify(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := p.parse(tokenString, claims); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyRefresh validates a refresh token and returns its claims.
func (p *TokenProvider) VerifyRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := p.parse(tokenString, claims); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (p *TokenProvider) parse(tokenString string, claims jwt.Claims) error {
	pub, err := p.publicKey()
	if err != nil {
		return err
	}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
				return nil, ErrInvalidToken
			}
			return pub, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(ClockSkewLeeway),
	)
	if err != nil {
		return err
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	key, err := p.keys.PrivateKey()
	if err != nil {
		return "", err
	}
	t := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	t.Header["kid"] = p.keys.KeyID()
	return t.SignedString(key)
}

func (p *TokenProvider) publicKey() (interface{}, error) {
	key, err := p.keys.PrivateKey()
	if err != nil {
		return nil, err
	}
	return key.Public(), nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
