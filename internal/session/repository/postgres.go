package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/devcoda25/myaccounts-bk-sub000/internal/session/domain"
)

const sessionColumns = `id, user_id, client_id, refresh_jti, refresh_token_hash,
	ip_address, user_agent, location, passkey_challenge, created_at, last_used_at, expires_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository backed by the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

// Create persists the session. The session must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, client_id, refresh_jti, refresh_token_hash,
		        ip_address, user_agent, location, passkey_challenge, created_at, last_used_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		s.ID, s.UserID, nullString(s.ClientID), nullString(s.RefreshJti), nullString(s.RefreshTokenHash),
		nullString(s.IPAddress), nullString(s.UserAgent), nullString(s.Location),
		nullString(s.PasskeyChallenge), s.CreatedAt, timeToNullTime(s.LastUsedAt), s.ExpiresAt)
	return err
}

// Delete removes the session row. Deleting a missing row is not an error.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

// DeleteAllForUser deletes all of the user's sessions except exceptID (kept when non-empty).
func (r *PostgresRepository) DeleteAllForUser(ctx context.Context, userID, exceptID string) error {
	if exceptID == "" {
		_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
		return err
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1 AND id <> $2`, userID, exceptID)
	return err
}

// ListActiveForUser returns the user's unexpired sessions, most recently used first.
func (r *PostgresRepository) ListActiveForUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE user_id = $1 AND expires_at > NOW()
		 ORDER BY COALESCE(last_used_at, created_at) DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// TouchLastUsed sets the session's last-used timestamp.
func (r *PostgresRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET last_used_at = $2 WHERE id = $1`, id, at)
	return err
}

// UpdateRefreshToken sets the session's current refresh token jti and hash for rotation.
func (r *PostgresRepository) UpdateRefreshToken(ctx context.Context, id, jti, refreshTokenHash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET refresh_jti = $2, refresh_token_hash = $3 WHERE id = $1`,
		id, nullString(jti), nullString(refreshTokenHash))
	return err
}

// DeleteExpired removes sessions past their expiry and returns the number deleted.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var s domain.Session
	var clientID, refreshJti, refreshHash, ip, ua, loc, challenge sql.NullString
	var lastUsed sql.NullTime
	err := row.Scan(&s.ID, &s.UserID, &clientID, &refreshJti, &refreshHash,
		&ip, &ua, &loc, &challenge, &s.CreatedAt, &lastUsed, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s.ClientID = clientID.String
	s.RefreshJti = refreshJti.String
	s.RefreshTokenHash = refreshHash.String
	s.IPAddress = ip.String
	s.UserAgent = ua.String
	s.Location = loc.String
	s.PasskeyChallenge = challenge.String
	if lastUsed.Valid {
		s.LastUsedAt = &lastUsed.Time
	}
	return &s, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
