// Package server assembles the HTTP surface: the chi router, the middleware
// stack, and the route groups each feature handler mounts into.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	authhandler "github.com/devcoda25/myaccounts-bk-sub000/internal/auth/handler"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/httpx"
	interactionhandler "github.com/devcoda25/myaccounts-bk-sub000/internal/interaction/handler"
	oauthhandler "github.com/devcoda25/myaccounts-bk-sub000/internal/oauth/handler"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/server/middleware"
	sessionhandler "github.com/devcoda25/myaccounts-bk-sub000/internal/session/handler"
)

// Pinger reports storage readiness (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker reports consent-policy readiness.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds everything the router mounts.
type Deps struct {
	Auth        *authhandler.Handler
	Session     *sessionhandler.Handler
	OAuth       *oauthhandler.Handler
	Interaction *interactionhandler.Handler

	// Gate authenticates requests. Required.
	Gate *middleware.Gate

	// CredentialLimiter throttles the credential-presenting route groups
	// (/auth/*, /interaction/*) per client IP. If nil, they are unthrottled.
	CredentialLimiter *middleware.RateLimiter

	// DB is pinged by the readiness probe. If nil, the probe skips the DB.
	DB Pinger
	// Policy is checked by the readiness probe. If nil, the probe skips it.
	Policy PolicyChecker
}

// NewRouter builds the full route tree.
//
// Route groups:
//   - throttled public:  /auth/*, /interaction/*
//   - open public:       /token, /.well-known/*, health probes
//   - optional auth:     /authorize (a signed-in browser carries its
//     principal; an anonymous one gets login_required from the broker)
//   - protected:         /sessions/*, /userinfo, /auth/logout
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.ClientIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Get("/healthz", liveness)
	r.Get("/readyz", readiness(deps.DB, deps.Policy))

	// Credential-presenting endpoints take the brute-force limiter. The
	// refresh route rides along; it is cheap and a rotation storm from one
	// IP is its own signal.
	r.Group(func(r chi.Router) {
		if deps.CredentialLimiter != nil {
			r.Use(deps.CredentialLimiter.Middleware)
		}
		deps.Auth.MountPublic(r)
		deps.Interaction.Mount(r)
	})

	// Token exchange, discovery, and JWKS prove possession or are public
	// documents; no limiter.
	r.Group(func(r chi.Router) {
		r.Use(deps.Gate.Optional)
		deps.OAuth.MountPublic(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(deps.Gate.Require)
		deps.Auth.MountProtected(r)
		deps.OAuth.MountProtected(r)
		deps.Session.Mount(r)
	})

	return otelhttp.NewHandler(r, "http.server")
}

func liveness(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readiness pings the dependencies a request would need. A failing check
// returns 503 so the load balancer drains the instance.
func readiness(db Pinger, policy PolicyChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := map[string]string{}
		healthy := true
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				checks["database"] = err.Error()
				healthy = false
			} else {
				checks["database"] = "ok"
			}
		}
		if policy != nil {
			if err := policy.HealthCheck(ctx); err != nil {
				checks["policy"] = err.Error()
				healthy = false
			} else {
				checks["policy"] = "ok"
			}
		}
		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		httpx.WriteJSON(w, status, checks)
	}
}
