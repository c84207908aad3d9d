package repository

import (
	"context"
	"time"

	"github.com/devcoda25/myaccounts-bk-sub000/internal/oauth/domain"
)

// ClientRepository defines persistence for registered OAuth clients.
type ClientRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Client, error)
	Create(ctx context.Context, c *domain.Client) error
}

// CodeRepository defines persistence for single-use authorization codes.
type CodeRepository interface {
	Get(ctx context.Context, code string) (*domain.AuthorizationCode, error)
	Create(ctx context.Context, c *domain.AuthorizationCode) error
	// Consume flips used to true iff it was false. Exactly one of any number
	// of concurrent callers for the same code observes true.
	Consume(ctx context.Context, code string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ConsentRepository defines persistence for user-to-client consent grants.
type ConsentRepository interface {
	Get(ctx context.Context, userID, clientID string) (*domain.Consent, error)
	Upsert(ctx context.Context, c *domain.Consent) error
}

// AccessTokenRepository defines persistence for issued access-token records.
type AccessTokenRepository interface {
	GetByID(ctx context.Context, id string) (*domain.AccessTokenRecord, error)
	Create(ctx context.Context, r *domain.AccessTokenRecord) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
