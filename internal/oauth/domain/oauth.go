package domain

import (
	"strings"
	"time"
)

// Client is a registered OAuth2/OIDC relying party.
type Client struct {
	ID   string
	Name string
	// SecretHash is the argon2id hash of the client secret; empty for public clients.
	SecretHash   string
	RedirectURIs []string
	// FirstParty clients skip the consent gate.
	FirstParty bool
	// Public clients authenticate with PKCE only, no secret.
	Public     bool
	GrantTypes []string
	CreatedAt  time.Time
}

// AllowsRedirect reports whether uri exactly matches a registered redirect URI.
// No prefix or wildcard matching; an attacker-controlled path suffix must not pass.
func (c *Client) AllowsRedirect(uri string) bool {
	for _, r := range c.RedirectURIs {
		if r == uri {
			return true
		}
	}
	return false
}

// AllowsGrant reports whether the client may use the given grant type.
func (c *Client) AllowsGrant(grant string) bool {
	for _, g := range c.GrantTypes {
		if g == grant {
			return true
		}
	}
	return false
}

// AuthorizationCode is a single-use code binding a user, client, redirect URI,
// and PKCE challenge for ten minutes.
type AuthorizationCode struct {
	Code                string
	UserID              string
	ClientID            string
	RedirectURI         string
	Scope               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
	Used                bool
	CreatedAt           time.Time
	ExpiresAt           time.Time
}

// Expired reports whether the code's lifetime has passed at now.
func (c *AuthorizationCode) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Consent records that a user approved a client for a set of scopes.
type Consent struct {
	UserID    string
	ClientID  string
	Scopes    []string
	GrantedAt time.Time
}

// Covers reports whether every scope in want was granted.
func (c *Consent) Covers(want []string) bool {
	granted := make(map[string]struct{}, len(c.Scopes))
	for _, s := range c.Scopes {
		granted[s] = struct{}{}
	}
	for _, s := range want {
		if _, ok := granted[s]; !ok {
			return false
		}
	}
	return true
}

// AccessTokenRecord is a durable record of an issued access token, keyed by
// jti for JWTs or by the opaque token value for interaction-issued grants.
// The authentication gate falls back to it for tokens that resolve to no session.
type AccessTokenRecord struct {
	ID        string
	UserID    string
	ClientID  string
	GrantID   string
	Scope     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token record's lifetime has passed at now.
func (r *AccessTokenRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// SplitScope splits a space-delimited scope string, dropping empty segments.
func SplitScope(scope string) []string {
	return strings.Fields(scope)
}
