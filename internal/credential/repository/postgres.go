package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/devcoda25/myaccounts-bk-sub000/internal/credential/domain"
)

const credentialColumns = `id, user_id, provider_type, provider_id, created_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a credential repository backed by the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByProvider returns the credential for (provider, providerID), or nil if not found.
func (r *PostgresRepository) GetByProvider(ctx context.Context, provider domain.ProviderType, providerID string) (*domain.Credential, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE provider_type = $1 AND provider_id = $2`,
		string(provider), providerID)
	return scanCredential(row)
}

// ListByUser returns all credentials linked to userID.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Credential, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Create persists the credential. The credential must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, c *domain.Credential) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO credentials (id, user_id, provider_type, provider_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.UserID, string(c.ProviderType), c.ProviderID, c.CreatedAt)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*domain.Credential, error) {
	var c domain.Credential
	var provider string
	err := row.Scan(&c.ID, &c.UserID, &provider, &c.ProviderID, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c.ProviderType = domain.ProviderType(provider)
	return &c, nil
}
