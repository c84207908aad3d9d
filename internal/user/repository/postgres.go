package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/devcoda25/myaccounts-bk-sub000/internal/user/domain"
)

const userColumns = `id, email, phone, name, role, email_verified, password_hash, status, created_at, updated_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository backed by the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByEmail returns the user for email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// GetByIdentifier returns the user whose email or phone matches identifier, or nil.
func (r *PostgresRepository) GetByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1 OR phone = $1`, identifier)
	return scanUser(row)
}

// Create persists the user. The user must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, phone, name, role, email_verified, password_hash, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		u.ID, u.Email, nullString(u.Phone), u.Name, string(u.EffectiveRole()),
		u.EmailVerified, nullString(u.PasswordHash), string(u.Status), u.CreatedAt, u.UpdatedAt)
	return err
}

// Update rewrites the user's mutable fields.
func (r *PostgresRepository) Update(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET email = $2, phone = $3, name = $4, role = $5, email_verified = $6,
		        password_hash = $7, status = $8, updated_at = $9
		 WHERE id = $1`,
		u.ID, u.Email, nullString(u.Phone), u.Name, string(u.EffectiveRole()),
		u.EmailVerified, nullString(u.PasswordHash), string(u.Status), time.Now().UTC())
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var u domain.User
	var phone, passwordHash sql.NullString
	var role, status string
	err := row.Scan(&u.ID, &u.Email, &phone, &u.Name, &role, &u.EmailVerified,
		&passwordHash, &status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Phone = phone.String
	u.PasswordHash = passwordHash.String
	u.Role = domain.Role(role)
	u.Status = domain.UserStatus(status)
	return &u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
