// worker is a one-shot cleanup job for cron: it deletes expired sessions,
// authorization codes, and access-token records, then exits. The server runs
// the same sweep on a ticker; this binary exists for deployments that prefer
// an external schedule.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/devcoda25/myaccounts-bk-sub000/internal/config"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/db"
	oauthrepo "github.com/devcoda25/myaccounts-bk-sub000/internal/oauth/repository"
	sessionrepo "github.com/devcoda25/myaccounts-bk-sub000/internal/session/repository"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	now := time.Now().UTC()

	sessions, err := sessionrepo.NewPostgresRepository(database).DeleteExpired(ctx, now)
	if err != nil {
		return err
	}
	codes, err := oauthrepo.NewPostgresCodeRepository(database).DeleteExpired(ctx, now)
	if err != nil {
		return err
	}
	tokens, err := oauthrepo.NewPostgresAccessTokenRepository(database).DeleteExpired(ctx, now)
	if err != nil {
		return err
	}

	slog.Info("sweep complete", "sessions", sessions, "codes", codes, "tokens", tokens)
	return nil
}
