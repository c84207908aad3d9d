package domain

import "time"

// Session represents one authenticated device or browser instance. Its id is
// the jti carried by bearer tokens; deleting the row (or marking its cache
// entry invalid) revokes every token minted for it.
type Session struct {
	ID               string
	UserID           string
	ClientID         string // OAuth client that initiated the session; empty for direct login
	RefreshJti       string // current refresh token jti for rotation; empty if not set
	RefreshTokenHash string // SHA-256 hash of current refresh token
	IPAddress        string
	UserAgent        string
	Location         string // coarse geolocation derived from IP at login
	PasskeyChallenge string // transient WebAuthn registration challenge
	CreatedAt        time.Time
	LastUsedAt       *time.Time
	ExpiresAt        time.Time
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// DeviceInfo captures request metadata recorded on session creation.
type DeviceInfo struct {
	IPAddress string
	UserAgent string
	Location  string
}
