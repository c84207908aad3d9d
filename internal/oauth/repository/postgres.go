package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/devcoda25/myaccounts-bk-sub000/internal/oauth/domain"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresClientRepository stores OAuth clients.
type PostgresClientRepository struct {
	db *sql.DB
}

func NewPostgresClientRepository(db *sql.DB) *PostgresClientRepository {
	return &PostgresClientRepository{db: db}
}

const clientColumns = `id, name, secret_hash, redirect_uris, first_party, public, grant_types, created_at`

// GetByID returns the client for id, or nil if not found.
func (r *PostgresClientRepository) GetByID(ctx context.Context, id string) (*domain.Client, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM oauth_clients WHERE id = $1`, id)
	var c domain.Client
	var secretHash sql.NullString
	err := row.Scan(&c.ID, &c.Name, &secretHash, pq.Array(&c.RedirectURIs),
		&c.FirstParty, &c.Public, pq.Array(&c.GrantTypes), &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c.SecretHash = secretHash.String
	return &c, nil
}

// Create persists the client.
func (r *PostgresClientRepository) Create(ctx context.Context, c *domain.Client) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO oauth_clients (id, name, secret_hash, redirect_uris, first_party, public, grant_types, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.Name, nullString(c.SecretHash), pq.Array(c.RedirectURIs),
		c.FirstParty, c.Public, pq.Array(c.GrantTypes), c.CreatedAt)
	return err
}

// PostgresCodeRepository stores authorization codes.
type PostgresCodeRepository struct {
	db *sql.DB
}

func NewPostgresCodeRepository(db *sql.DB) *PostgresCodeRepository {
	return &PostgresCodeRepository{db: db}
}

const codeColumns = `code, user_id, client_id, redirect_uri, scope, nonce, code_challenge, code_challenge_method, used, created_at, expires_at`

// Get returns the authorization code row, or nil if not found.
func (r *PostgresCodeRepository) Get(ctx context.Context, code string) (*domain.AuthorizationCode, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+codeColumns+` FROM authorization_codes WHERE code = $1`, code)
	var c domain.AuthorizationCode
	err := row.Scan(&c.Code, &c.UserID, &c.ClientID, &c.RedirectURI, &c.Scope, &c.Nonce,
		&c.CodeChallenge, &c.CodeChallengeMethod, &c.Used, &c.CreatedAt, &c.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// Create persists the code.
func (r *PostgresCodeRepository) Create(ctx context.Context, c *domain.AuthorizationCode) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO authorization_codes (code, user_id, client_id, redirect_uri, scope, nonce,
		        code_challenge, code_challenge_method, used, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.Code, c.UserID, c.ClientID, c.RedirectURI, c.Scope, c.Nonce,
		c.CodeChallenge, c.CodeChallengeMethod, c.Used, c.CreatedAt, c.ExpiresAt)
	return err
}

// Consume marks the code used. The conditional update is the whole
// concurrency story: the database serializes the two racing writes and
// exactly one sees used=false.
func (r *PostgresCodeRepository) Consume(ctx context.Context, code string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE authorization_codes SET used = TRUE WHERE code = $1 AND used = FALSE`, code)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteExpired removes codes whose lifetime has passed.
func (r *PostgresCodeRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM authorization_codes WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PostgresConsentRepository stores consent grants.
type PostgresConsentRepository struct {
	db *sql.DB
}

func NewPostgresConsentRepository(db *sql.DB) *PostgresConsentRepository {
	return &PostgresConsentRepository{db: db}
}

// Get returns the consent for (userID, clientID), or nil if not found.
func (r *PostgresConsentRepository) Get(ctx context.Context, userID, clientID string) (*domain.Consent, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT user_id, client_id, scopes, granted_at FROM consents WHERE user_id = $1 AND client_id = $2`,
		userID, clientID)
	var c domain.Consent
	err := row.Scan(&c.UserID, &c.ClientID, pq.Array(&c.Scopes), &c.GrantedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// Upsert writes the consent, replacing the scope set on conflict.
func (r *PostgresConsentRepository) Upsert(ctx context.Context, c *domain.Consent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO consents (user_id, client_id, scopes, granted_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, client_id) DO UPDATE SET scopes = EXCLUDED.scopes, granted_at = EXCLUDED.granted_at`,
		c.UserID, c.ClientID, pq.Array(c.Scopes), c.GrantedAt)
	return err
}

// PostgresAccessTokenRepository stores issued access-token records.
type PostgresAccessTokenRepository struct {
	db *sql.DB
}

func NewPostgresAccessTokenRepository(db *sql.DB) *PostgresAccessTokenRepository {
	return &PostgresAccessTokenRepository{db: db}
}

const accessTokenColumns = `id, user_id, client_id, grant_id, scope, created_at, expires_at`

// GetByID returns the access-token record, or nil if not found.
func (r *PostgresAccessTokenRepository) GetByID(ctx context.Context, id string) (*domain.AccessTokenRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accessTokenColumns+` FROM access_tokens WHERE id = $1`, id)
	var t domain.AccessTokenRecord
	err := row.Scan(&t.ID, &t.UserID, &t.ClientID, &t.GrantID, &t.Scope, &t.CreatedAt, &t.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// Create persists the record.
func (r *PostgresAccessTokenRepository) Create(ctx context.Context, t *domain.AccessTokenRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO access_tokens (id, user_id, client_id, grant_id, scope, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.UserID, t.ClientID, t.GrantID, t.Scope, t.CreatedAt, t.ExpiresAt)
	return err
}

// DeleteExpired removes records whose lifetime has passed.
func (r *PostgresAccessTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM access_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
