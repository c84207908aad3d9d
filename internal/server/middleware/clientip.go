package middleware

import (
	"context"
	"net/http"
)

type ipContextKey struct{}

// ClientIP stores the client IP in the request context so layers that only
// see a context (the audit logger) can record it.
func ClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), ipContextKey{}, clientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IPFromContext returns the client IP stored by ClientIP, or "".
func IPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(ipContextKey{}).(string)
	return ip
}
