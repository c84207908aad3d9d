// Package principal carries the authenticated principal through the request context.
package principal

import "context"

// Principal is the authenticated identity the gate attaches on allow.
// SessionID is empty for tokens not bound to a session (OAuth access tokens,
// legacy tokens resolved by subject).
type Principal struct {
	UserID    string
	Email     string
	Role      string
	SessionID string
}

type contextKey struct{}

// WithPrincipal returns a context with the principal set.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the principal and true if set; otherwise a zero
// Principal and false.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}
