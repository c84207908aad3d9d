package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/devcoda25/myaccounts-bk-sub000/internal/credential/domain"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/security"
)

const (
	providerFetchTimeout = 5 * time.Second
	jwksCacheTTL         = 15 * time.Minute
)

// ErrUnknownProvider is returned when no provider is registered under the given name.
var ErrUnknownProvider = errors.New("unknown social provider")

// ProviderConfig describes one upstream identity provider.
type ProviderConfig struct {
	Name domain.ProviderType
	// ClientID is the audience a token must have been issued to.
	ClientID string
	// Issuers lists the acceptable iss values on ID tokens.
	Issuers []string
	// JWKSURL serves the provider's public signing keys.
	JWKSURL string
	// TokenInfoURL resolves opaque access tokens; empty disables the opaque path.
	TokenInfoURL string
}

// GoogleProvider returns the config for Google ID tokens and access tokens.
func GoogleProvider(clientID string) ProviderConfig {
	return ProviderConfig{
		Name:         domain.ProviderGoogle,
		ClientID:     clientID,
		Issuers:      []string{"accounts.google.com", "https://accounts.google.com"},
		JWKSURL:      "https://www.googleapis.com/oauth2/v3/certs",
		TokenInfoURL: "https://oauth2.googleapis.com/tokeninfo",
	}
}

// AppleProvider returns the config for Sign in with Apple ID tokens.
// Apple does not issue opaque tokens usable here, so there is no tokeninfo URL.
func AppleProvider(clientID string) ProviderConfig {
	return ProviderConfig{
		Name:     domain.ProviderApple,
		ClientID: clientID,
		Issuers:  []string{"https://appleid.apple.com"},
		JWKSURL:  "https://appleid.apple.com/auth/keys",
	}
}

// SocialVerifier verifies third-party tokens against provider keys and
// tokeninfo endpoints. Provider key sets are memoized for a short window so a
// burst of logins does not refetch the JWKS on every request.
type SocialVerifier struct {
	providers map[domain.ProviderType]ProviderConfig
	client    *http.Client

	mu   sync.Mutex
	keys map[string]cachedKeySet

	nowF func() time.Time
}

type cachedKeySet struct {
	set     jwk.Set
	fetched time.Time
}

// NewSocialVerifier returns a verifier for the given providers. Providers with
// an empty client id are skipped so unconfigured login methods stay disabled.
func NewSocialVerifier(providers ...ProviderConfig) *SocialVerifier {
	v := &SocialVerifier{
		providers: make(map[domain.ProviderType]ProviderConfig),
		client:    &http.Client{Timeout: providerFetchTimeout},
		keys:      make(map[string]cachedKeySet),
		nowF:      time.Now,
	}
	for _, p := range providers {
		if p.ClientID == "" {
			continue
		}
		v.providers[p.Name] = p
	}
	return v
}

// VerifyToken verifies a social token and returns the asserted profile.
// A three-segment token is treated as a JWT and checked against the provider's
// JWKS; anything else is treated as an opaque access token and resolved via
// the provider's tokeninfo endpoint. Both paths enforce the audience.
func (v *SocialVerifier) VerifyToken(ctx context.Context, provider domain.ProviderType, token string) (*domain.Profile, error) {
	cfg, ok := v.providers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	if strings.Count(token, ".") == 2 {
		return v.verifyIDToken(ctx, cfg, token)
	}
	return v.verifyOpaque(ctx, cfg, token)
}

type idTokenClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

func (v *SocialVerifier) verifyIDToken(ctx context.Context, cfg ProviderConfig, token string) (*domain.Profile, error) {
	set, err := v.keySet(ctx, cfg.JWKSURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s keys: %w", cfg.Name, err)
	}
	claims := &idTokenClaims{}
	_, err = jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		key, ok := set.LookupKeyID(kid)
		if !ok {
			return nil, fmt.Errorf("no key %q in provider jwks", kid)
		}
		var raw any
		if err := jwk.Export(key, &raw); err != nil {
			return nil, err
		}
		return raw, nil
	},
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
		jwt.WithAudience(cfg.ClientID),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(security.ClockSkewLeeway),
	)
	if err != nil {
		return nil, fmt.Errorf("verify %s id token: %w", cfg.Name, err)
	}
	if len(cfg.Issuers) > 0 && !contains(cfg.Issuers, claims.Issuer) {
		return nil, fmt.Errorf("verify %s id token: unexpected issuer %q", cfg.Name, claims.Issuer)
	}
	p := &domain.Profile{
		Provider:      cfg.Name,
		ProviderID:    claims.Subject,
		Email:         strings.ToLower(strings.TrimSpace(claims.Email)),
		Name:          claims.Name,
		EmailVerified: claims.EmailVerified,
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%s id token: %w", cfg.Name, err)
	}
	return p, nil
}

// tokenInfo is the tokeninfo response shape. Google reports booleans as
// strings on this endpoint, hence the string email_verified.
type tokenInfo struct {
	Audience      string `json:"aud"`
	Subject       string `json:"sub"`
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	EmailVerified string `json:"email_verified"`
	Name          string `json:"name"`
}

func (v *SocialVerifier) verifyOpaque(ctx context.Context, cfg ProviderConfig, token string) (*domain.Profile, error) {
	if cfg.TokenInfoURL == "" {
		return nil, fmt.Errorf("%s does not support opaque tokens", cfg.Name)
	}
	ctx, cancel := context.WithTimeout(ctx, providerFetchTimeout)
	defer cancel()

	u := cfg.TokenInfoURL + "?access_token=" + url.QueryEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s tokeninfo: %w", cfg.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s tokeninfo: status %d", cfg.Name, resp.StatusCode)
	}
	var info tokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%s tokeninfo: %w", cfg.Name, err)
	}
	if info.Audience != cfg.ClientID {
		return nil, fmt.Errorf("%s tokeninfo: audience %q not issued to this app", cfg.Name, info.Audience)
	}
	sub := info.Subject
	if sub == "" {
		sub = info.UserID
	}
	p := &domain.Profile{
		Provider:      cfg.Name,
		ProviderID:    sub,
		Email:         strings.ToLower(strings.TrimSpace(info.Email)),
		Name:          info.Name,
		EmailVerified: info.EmailVerified == "true",
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%s tokeninfo: %w", cfg.Name, err)
	}
	return p, nil
}

func (v *SocialVerifier) keySet(ctx context.Context, jwksURL string) (jwk.Set, error) {
	v.mu.Lock()
	cached, ok := v.keys[jwksURL]
	v.mu.Unlock()
	if ok && v.nowF().Sub(cached.fetched) < jwksCacheTTL {
		return cached.set, nil
	}

	ctx, cancel := context.WithTimeout(ctx, providerFetchTimeout)
	defer cancel()
	set, err := jwk.Fetch(ctx, jwksURL, jwk.WithHTTPClient(v.client))
	if err != nil {
		if ok {
			// Stale keys beat no keys while the provider endpoint is down.
			return cached.set, nil
		}
		return nil, err
	}

	v.mu.Lock()
	v.keys[jwksURL] = cachedKeySet{set: set, fetched: v.nowF()}
	v.mu.Unlock()
	return set, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
