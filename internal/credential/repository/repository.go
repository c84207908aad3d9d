package repository

import (
	"context"

	"github.com/devcoda25/myaccounts-bk-sub000/internal/credential/domain"
)

// Repository defines persistence for credentials.
type Repository interface {
	GetByProvider(ctx context.Context, provider domain.ProviderType, providerID string) (*domain.Credential, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Credential, error)
	Create(ctx context.Context, c *domain.Credential) error
}
