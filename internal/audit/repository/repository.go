package repository

import (
	"context"

	"github.com/devcoda25/myaccounts-bk-sub000/internal/audit/domain"
)

// Repository defines persistence for audit events.
type Repository interface {
	Create(ctx context.Context, e *domain.Event) error
	ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*domain.Event, error)
}
