package auth

// Cookie names shared by the login handlers and the authentication gate.
const (
	// AccessTokenCookie carries the bearer token for browser clients.
	AccessTokenCookie = "access_token"
	// RefreshTokenCookie carries the refresh token. It is path-scoped to the
	// refresh endpoint so the browser never sends it anywhere else.
	RefreshTokenCookie = "refresh_token"
	// RefreshCookiePath is the only path the refresh cookie is sent to.
	RefreshCookiePath = "/auth/refresh"
)
