// Package session implements the session lifecycle and the two-tier
// cache-aside read path used by the authentication gate.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/devcoda25/myaccounts-bk-sub000/internal/session/cache"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/session/domain"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/session/repository"
	userdomain "github.com/devcoda25/myaccounts-bk-sub000/internal/user/domain"
	userrepo "github.com/devcoda25/myaccounts-bk-sub000/internal/user/repository"
)

// Sentinel errors; handlers map them to the error taxonomy.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionRevoked  = errors.New("session revoked")
	ErrSessionExpired  = errors.New("session expired")
	ErrNotOwner        = errors.New("session not owned by caller")
)

// Service composes the durable session store and the cache so the
// invalidation contract lives in one place: misses fall through to the
// store, invalid cache entries are authoritative, and every revocation
// writes an invalid marker before touching the durable row.
type Service struct {
	sessions repository.Repository
	users    userrepo.Repository
	cache    cache.Cache
	ttl      time.Duration
	nowF     func() time.Time
}

// NewService returns a session service creating sessions with the given TTL.
func NewService(sessions repository.Repository, users userrepo.Repository, c cache.Cache, ttl time.Duration) *Service {
	return &Service{
		sessions: sessions,
		users:    users,
		cache:    c,
		ttl:      ttl,
		nowF:     func() time.Time { return time.Now().UTC() },
	}
}

// Create persists a new session for userID with the service TTL.
// clientID is set when an OAuth client initiated the login.
func (s *Service) Create(ctx context.Context, userID, clientID string, device domain.DeviceInfo) (*domain.Session, error) {
	now := s.nowF()
	sess := &domain.Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: device.IPAddress,
		UserAgent: device.UserAgent,
		Location:  device.Location,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// BindRefresh stores the session's current refresh rotation jti and token hash.
func (s *Service) BindRefresh(ctx context.Context, id, jti, tokenHash string) error {
	return s.sessions.UpdateRefreshToken(ctx, id, jti, tokenHash)
}

// GetByID reads the session from the durable store, bypassing the cache.
func (s *Service) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	return s.sessions.GetByID(ctx, id)
}

// Resolve is the cache-aside read path: cache hit marked invalid rejects
// immediately; a valid hit short-circuits the durable store; a miss (or any
// cache error, which is logged and treated as a miss) falls through to the
// store and repopulates the cache on success.
func (s *Service) Resolve(ctx context.Context, id string) (*domain.Session, *userdomain.User, error) {
	now := s.nowF()

	entry, ok, err := s.cache.Get(id)
	if err != nil {
		slog.Warn("session cache get failed", "session_id", id, "error", err)
		ok = false
	}
	if ok {
		if !entry.Valid {
			return nil, nil, ErrSessionRevoked
		}
		if entry.Session != nil && entry.User != nil && !entry.Session.Expired(now) {
			s.touch(ctx, id, now)
			return entry.Session, entry.User, nil
		}
	}

	sess, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if sess == nil {
		return nil, nil, ErrSessionNotFound
	}
	if sess.Expired(now) {
		s.markInvalid(id)
		_ = s.sessions.Delete(ctx, id)
		return nil, nil, ErrSessionExpired
	}
	user, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, ErrSessionNotFound
	}

	if err := s.cache.Set(id, &cache.Entry{Session: sess, User: user, Valid: true}); err != nil {
		slog.Warn("session cache set failed", "session_id", id, "error", err)
	}
	s.touch(ctx, id, now)
	return sess, user, nil
}

// ListActive returns the caller's unexpired sessions, most recently used first.
func (s *Service) ListActive(ctx context.Context, userID string) ([]*domain.Session, error) {
	return s.sessions.ListActiveForUser(ctx, userID)
}

// Delete revokes one session: the cache entry is marked invalid first so the
// revocation is visible to concurrent requests even before the row is gone.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.markInvalid(id)
	return s.sessions.Delete(ctx, id)
}

// DeleteOwned revokes sessionID only if it belongs to callerID.
func (s *Service) DeleteOwned(ctx context.Context, callerID, sessionID string) error {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return ErrSessionNotFound
	}
	if sess.UserID != callerID {
		return ErrNotOwner
	}
	return s.Delete(ctx, sessionID)
}

// DeleteAllForUser revokes every session of userID except exceptID (kept
// when non-empty, the "log out everywhere else" case).
func (s *Service) DeleteAllForUser(ctx context.Context, userID, exceptID string) error {
	active, err := s.sessions.ListActiveForUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, sess := range active {
		if sess.ID == exceptID {
			continue
		}
		s.markInvalid(sess.ID)
	}
	return s.sessions.DeleteAllForUser(ctx, userID, exceptID)
}

// SweepExpired deletes sessions past expiry. Called periodically by the worker.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx, s.nowF())
}

func (s *Service) markInvalid(id string) {
	if err := s.cache.MarkInvalid(id); err != nil {
		slog.Warn("session cache invalidate failed", "session_id", id, "error", err)
	}
}

func (s *Service) touch(ctx context.Context, id string, at time.Time) {
	// Best-effort; a stale last_used_at must not fail authentication.
	if err := s.sessions.TouchLastUsed(ctx, id, at); err != nil {
		slog.Warn("session touch failed", "session_id", id, "error", err)
	}
}
