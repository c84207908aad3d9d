package repository

import (
	"context"
	"time"

	"github.com/devcoda25/myaccounts-bk-sub000/internal/session/domain"
)

// Repository defines persistence for sessions. The durable store is the
// source of truth for session validity; the cache is only an accelerator.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	Delete(ctx context.Context, id string) error
	// DeleteAllForUser deletes the user's sessions, keeping exceptID when non-empty.
	DeleteAllForUser(ctx context.Context, userID, exceptID string) error
	// ListActiveForUser returns unexpired sessions ordered by most recent use.
	ListActiveForUser(ctx context.Context, userID string) ([]*domain.Session, error)
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
	UpdateRefreshToken(ctx context.Context, id, jti, refreshTokenHash string) error
	// DeleteExpired removes sessions past their expiry; returns rows deleted.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
