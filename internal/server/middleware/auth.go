// Package middleware holds the HTTP middleware stack: the authentication
// gate, per-IP rate limiting, request logging, and panic recovery.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/devcoda25/myaccounts-bk-sub000/internal/apperr"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/auth"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/httpx"
	oauthdomain "github.com/devcoda25/myaccounts-bk-sub000/internal/oauth/domain"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/security"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/server/principal"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/session"
	sessiondomain "github.com/devcoda25/myaccounts-bk-sub000/internal/session/domain"
	userdomain "github.com/devcoda25/myaccounts-bk-sub000/internal/user/domain"
)

const bearerPrefix = "bearer "

// SessionResolver is the cache-aside session read path.
type SessionResolver interface {
	Resolve(ctx context.Context, id string) (*sessiondomain.Session, *userdomain.User, error)
}

// UserResolver looks up users by id for the legacy no-jti path.
type UserResolver interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// TokenRecordStore looks up externally-issued access-token records.
type TokenRecordStore interface {
	GetByID(ctx context.Context, id string) (*oauthdomain.AccessTokenRecord, error)
}

// Gate authenticates requests. Two token surfaces feed it: session-bound
// JWTs from the direct login path and interaction-issued tokens (JWT or
// opaque), so a verified token walks a fallback chain before rejection.
type Gate struct {
	tokens   *security.TokenProvider
	sessions SessionResolver
	users    UserResolver
	records  TokenRecordStore
	nowF     func() time.Time
}

// NewGate returns an authentication gate.
func NewGate(tokens *security.TokenProvider, sessions SessionResolver, users UserResolver, records TokenRecordStore) *Gate {
	return &Gate{
		tokens:   tokens,
		sessions: sessions,
		users:    users,
		records:  records,
		nowF:     time.Now,
	}
}

// Require rejects requests without a resolvable principal.
func (g *Gate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := g.authenticate(r)
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(principal.WithPrincipal(r.Context(), p)))
	})
}

// Optional attaches a principal when the request carries a valid token and
// continues anonymously otherwise. Used on routes like /authorize that must
// answer login_required instead of rejecting outright.
func (g *Gate) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, err := g.authenticate(r); err == nil {
			r = r.WithContext(principal.WithPrincipal(r.Context(), p))
		}
		next.ServeHTTP(w, r)
	})
}

// authenticate runs the gate state machine for one request.
func (g *Gate) authenticate(r *http.Request) (principal.Principal, error) {
	token := extractToken(r)
	if token == "" {
		return principal.Principal{}, apperr.Unauthorized("authentication required")
	}

	// Shape, not failure, picks the path: three segments is a JWT, anything
	// else is an opaque token from the interaction flow.
	if strings.Count(token, ".") != 2 {
		return g.resolveOpaque(r.Context(), token)
	}

	claims, err := g.tokens.Verify(token)
	if err != nil {
		return principal.Principal{}, apperr.Unauthorized("invalid token")
	}

	jti := claims.SessionID()
	if jti == "" {
		// Legacy/dev tokens and OAuth access tokens carry no session;
		// resolve the user directly by subject.
		return g.resolveBySubject(r.Context(), claims)
	}

	sess, user, err := g.sessions.Resolve(r.Context(), jti)
	switch {
	case err == nil:
		return principal.Principal{
			UserID:    user.ID,
			Email:     user.Email,
			Role:      string(user.EffectiveRole()),
			SessionID: sess.ID,
		}, nil
	case errors.Is(err, session.ErrSessionNotFound):
		// The jti may be an interaction-issued token record rather than a
		// session; absent from both stores is a rejection.
		return g.resolveRecord(r.Context(), jti)
	case errors.Is(err, session.ErrSessionRevoked), errors.Is(err, session.ErrSessionExpired):
		return principal.Principal{}, apperr.Unauthorized("session no longer valid")
	default:
		return principal.Principal{}, apperr.Internal(err)
	}
}

func (g *Gate) resolveOpaque(ctx context.Context, token string) (principal.Principal, error) {
	return g.resolveRecord(ctx, token)
}

func (g *Gate) resolveRecord(ctx context.Context, id string) (principal.Principal, error) {
	rec, err := g.records.GetByID(ctx, id)
	if err != nil {
		return principal.Principal{}, apperr.Internal(err)
	}
	if rec == nil || rec.Expired(g.nowF().UTC()) {
		return principal.Principal{}, apperr.Unauthorized("invalid token")
	}
	user, err := g.users.GetByID(ctx, rec.UserID)
	if err != nil {
		return principal.Principal{}, apperr.Internal(err)
	}
	if user == nil {
		return principal.Principal{}, apperr.Unauthorized("invalid token")
	}
	return principal.Principal{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      string(user.EffectiveRole()),
		SessionID: "",
	}, nil
}

func (g *Gate) resolveBySubject(ctx context.Context, claims *security.AccessClaims) (principal.Principal, error) {
	user, err := g.users.GetByID(ctx, claims.Subject)
	if err != nil {
		return principal.Principal{}, apperr.Internal(err)
	}
	if user == nil {
		return principal.Principal{}, apperr.Unauthorized("invalid token")
	}
	return principal.Principal{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      string(user.EffectiveRole()),
		SessionID: "",
	}, nil
}

// extractToken returns the bearer token from the Authorization header, or
// from the access-token cookie for browser clients.
func extractToken(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) >= len(bearerPrefix) && strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(v[len(bearerPrefix):])
	}
	if c, err := r.Cookie(auth.AccessTokenCookie); err == nil {
		return c.Value
	}
	return ""
}
