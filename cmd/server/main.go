// server is the identity provider HTTP server. Run cmd/migrate first to
// bring the schema up to date.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devcoda25/myaccounts-bk-sub000/internal/audit"
	auditrepo "github.com/devcoda25/myaccounts-bk-sub000/internal/audit/repository"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/auth"
	authhandler "github.com/devcoda25/myaccounts-bk-sub000/internal/auth/handler"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/config"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/credential"
	credentialrepo "github.com/devcoda25/myaccounts-bk-sub000/internal/credential/repository"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/db"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/interaction"
	interactionhandler "github.com/devcoda25/myaccounts-bk-sub000/internal/interaction/handler"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/notify"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/oauth"
	oauthhandler "github.com/devcoda25/myaccounts-bk-sub000/internal/oauth/handler"
	oauthpolicy "github.com/devcoda25/myaccounts-bk-sub000/internal/oauth/policy"
	oauthrepo "github.com/devcoda25/myaccounts-bk-sub000/internal/oauth/repository"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/security"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/server"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/server/middleware"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/session"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/session/cache"
	sessionhandler "github.com/devcoda25/myaccounts-bk-sub000/internal/session/handler"
	sessionrepo "github.com/devcoda25/myaccounts-bk-sub000/internal/session/repository"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/telemetry"
	userrepo "github.com/devcoda25/myaccounts-bk-sub000/internal/user/repository"
)

const serviceName = "myaccounts-idp"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetry.NewProviders(ctx, cfg.OTLPEndpoint, serviceName, cfg.OTLPInsecure)
	if err != nil {
		return err
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	keys := security.NewKeyManager(cfg.SigningKeyFile, cfg.SigningKeyID)
	if err := keys.Init(); err != nil {
		return err
	}
	tokens := security.NewTokenProvider(keys, cfg.Issuer, cfg.AccessTTL(), cfg.RefreshTTL())
	hasher := security.NewHasher(cfg.Argon2Memory, cfg.Argon2Iterations, cfg.Argon2Parallelism)

	users := userrepo.NewPostgresRepository(database)
	creds := credentialrepo.NewPostgresRepository(database)
	sessionsRepo := sessionrepo.NewPostgresRepository(database)
	auditRepo := auditrepo.NewPostgresRepository(database)
	clients := oauthrepo.NewPostgresClientRepository(database)
	codes := oauthrepo.NewPostgresCodeRepository(database)
	consents := oauthrepo.NewPostgresConsentRepository(database)
	accessTokens := oauthrepo.NewPostgresAccessTokenRepository(database)

	auditLog := audit.NewLogger(auditRepo, middleware.IPFromContext)

	sessionCache := cache.NewMemory(cfg.CacheTTL(), cfg.CacheMaxEntries)
	sessions := session.NewService(sessionsRepo, users, sessionCache, cfg.SessionTTL())

	verifier := credential.NewSocialVerifier(
		credential.GoogleProvider(cfg.GoogleClientID),
		credential.AppleProvider(cfg.AppleClientID),
	)
	credSvc := credential.NewService(users, creds, hasher, verifier)
	authSvc := auth.NewService(users, credSvc, sessions, tokens, hasher)

	consentPolicy, err := oauthpolicy.NewConsentPolicy("")
	if err != nil {
		return err
	}
	broker := oauth.NewBroker(clients, codes, consents, users, tokens, hasher, consentPolicy)

	interactions := interaction.NewOrchestrator(
		interaction.NewMemoryStore(), credSvc, broker, accessTokens, users, nil, time.Hour)

	var notifier notify.Notifier = notify.Nop{}
	if cfg.NotifyWebhookURL != "" {
		notifier = notify.NewWebhookClient(cfg.NotifyWebhookURL)
	}

	gate := middleware.NewGate(tokens, sessions, users, accessTokens)
	secureCookies := cfg.Env == "production"

	loginLimiter := middleware.NewRateLimiter(cfg.LoginRatePerMinute, cfg.LoginRateBurst)
	defer loginLimiter.Stop()

	handler := server.NewRouter(server.Deps{
		Auth:              authhandler.NewHandler(authSvc, notifier, auditLog, cfg.AccessTTL(), cfg.RefreshTTL(), secureCookies),
		Session:           sessionhandler.NewHandler(sessions, auditLog),
		OAuth:             oauthhandler.NewHandler(broker, keys, users, cfg.Issuer, auditLog),
		Interaction:       interactionhandler.NewHandler(interactions, auditLog),
		Gate:              gate,
		CredentialLimiter: loginLimiter,
		DB:                database,
		Policy:            consentPolicy,
	})

	go sweepLoop(ctx, cfg.SweepInterval(), sessions, codes, accessTokens)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", cfg.HTTPAddr, "issuer", cfg.Issuer)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// sweepLoop periodically deletes expired sessions, authorization codes, and
// access-token records.
func sweepLoop(ctx context.Context, interval time.Duration, sessions *session.Service, codes oauthrepo.CodeRepository, tokens oauthrepo.AccessTokenRepository) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			if n, err := sessions.SweepExpired(sweepCtx); err != nil {
				slog.Warn("session sweep failed", "error", err)
			} else if n > 0 {
				slog.Info("swept expired sessions", "count", n)
			}
			now := time.Now().UTC()
			if _, err := codes.DeleteExpired(sweepCtx, now); err != nil {
				slog.Warn("code sweep failed", "error", err)
			}
			if _, err := tokens.DeleteExpired(sweepCtx, now); err != nil {
				slog.Warn("token sweep failed", "error", err)
			}
			cancel()
		}
	}
}
