// seed inserts development sample data for local testing: a dev user, a
// first-party web client, and a confidential third-party client. Idempotent:
// rows that already exist are left alone.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/devcoda25/myaccounts-bk-sub000/internal/config"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/db"
	oauthdomain "github.com/devcoda25/myaccounts-bk-sub000/internal/oauth/domain"
	oauthrepo "github.com/devcoda25/myaccounts-bk-sub000/internal/oauth/repository"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/security"
	userdomain "github.com/devcoda25/myaccounts-bk-sub000/internal/user/domain"
	userrepo "github.com/devcoda25/myaccounts-bk-sub000/internal/user/repository"
)

const (
	devUserEmail    = "dev@example.com"
	devUserPassword = "password1234"

	webAppClientID  = "web-app"
	partnerClientID = "partner-api"
	partnerSecret   = "partner-secret-dev-only"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("seed failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	hasher := security.NewHasher(cfg.Argon2Memory, cfg.Argon2Iterations, cfg.Argon2Parallelism)
	users := userrepo.NewPostgresRepository(database)
	clients := oauthrepo.NewPostgresClientRepository(database)

	existing, err := users.GetByEmail(ctx, devUserEmail)
	if err != nil {
		return err
	}
	if existing == nil {
		hash, err := hasher.Hash([]byte(devUserPassword))
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		user := &userdomain.User{
			ID:            uuid.New().String(),
			Email:         devUserEmail,
			Name:          "Dev User",
			Role:          userdomain.RoleUser,
			EmailVerified: true,
			PasswordHash:  hash,
			Status:        userdomain.UserStatusActive,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := users.Create(ctx, user); err != nil {
			return err
		}
		slog.Info("created dev user", "email", devUserEmail, "id", user.ID)
	}

	if err := ensureClient(ctx, clients, &oauthdomain.Client{
		ID:           webAppClientID,
		Name:         "Accounts Web App",
		RedirectURIs: []string{"http://localhost:3000/callback"},
		FirstParty:   true,
		Public:       true,
		GrantTypes:   []string{"authorization_code"},
		CreatedAt:    time.Now().UTC(),
	}); err != nil {
		return err
	}

	secretHash, err := hasher.Hash([]byte(partnerSecret))
	if err != nil {
		return err
	}
	if err := ensureClient(ctx, clients, &oauthdomain.Client{
		ID:           partnerClientID,
		Name:         "Partner API",
		SecretHash:   secretHash,
		RedirectURIs: []string{"https://partner.example.com/oauth/callback"},
		FirstParty:   false,
		Public:       false,
		GrantTypes:   []string{"authorization_code"},
		CreatedAt:    time.Now().UTC(),
	}); err != nil {
		return err
	}

	slog.Info("seed complete")
	return nil
}

func ensureClient(ctx context.Context, repo oauthrepo.ClientRepository, c *oauthdomain.Client) error {
	existing, err := repo.GetByID(ctx, c.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	if err := repo.Create(ctx, c); err != nil {
		return err
	}
	slog.Info("created oauth client", "client_id", c.ID, "first_party", c.FirstParty)
	return nil
}
