// Package credential verifies passwords and social tokens and links
// external identities to local users.
package credential

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/devcoda25/myaccounts-bk-sub000/internal/apperr"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/credential/domain"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/security"
	userdomain "github.com/devcoda25/myaccounts-bk-sub000/internal/user/domain"
)

// UserRepo is the minimal user repository needed by the credential service.
type UserRepo interface {
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	GetByIdentifier(ctx context.Context, identifier string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
}

// CredentialRepo is the minimal credential repository needed by the service.
type CredentialRepo interface {
	GetByProvider(ctx context.Context, provider domain.ProviderType, providerID string) (*domain.Credential, error)
	Create(ctx context.Context, c *domain.Credential) error
}

// TokenVerifier verifies third-party tokens. Implemented by SocialVerifier.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, provider domain.ProviderType, token string) (*domain.Profile, error)
}

// Service implements password verification and social link-or-create.
type Service struct {
	users    UserRepo
	creds    CredentialRepo
	hasher   *security.Hasher
	verifier TokenVerifier
	nowF     func() time.Time
}

// NewService returns a credential service with the given dependencies.
func NewService(users UserRepo, creds CredentialRepo, hasher *security.Hasher, verifier TokenVerifier) *Service {
	return &Service{
		users:    users,
		creds:    creds,
		hasher:   hasher,
		verifier: verifier,
		nowF:     time.Now,
	}
}

// VerifyPassword authenticates identifier (email or phone) against the stored
// password hash. Returns (nil, nil) on any mismatch so the caller cannot tell
// whether the user or the password was wrong; only infrastructure failures
// surface as errors.
func (s *Service) VerifyPassword(ctx context.Context, identifier, plaintext string) (*userdomain.User, error) {
	identifier = strings.TrimSpace(strings.ToLower(identifier))
	if identifier == "" || plaintext == "" {
		return nil, nil
	}
	user, err := s.users.GetByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Status != userdomain.UserStatusActive || user.PasswordHash == "" {
		return nil, nil
	}
	if err := s.hasher.Compare(user.PasswordHash, []byte(plaintext)); err != nil {
		if errors.Is(err, security.ErrInvalidHash) {
			slog.Warn("stored password hash is malformed", "user_id", user.ID)
		}
		return nil, nil
	}
	return user, nil
}

// VerifySocialToken verifies a provider-issued token and returns the asserted
// profile. Verification failures collapse to a generic Unauthorized; the
// provider detail is logged server-side only.
func (s *Service) VerifySocialToken(ctx context.Context, provider domain.ProviderType, token string) (*domain.Profile, error) {
	if token == "" {
		return nil, apperr.Unauthorized("invalid social token")
	}
	profile, err := s.verifier.VerifyToken(ctx, provider, token)
	if err != nil {
		slog.Warn("social token verification failed", "provider", provider, "error", err)
		return nil, apperr.Unauthorized("invalid social token")
	}
	return profile, nil
}

// LinkOrCreateUser resolves the local user for a verified social profile.
// An unknown email gets a fresh passwordless user with the email already
// verified. The (provider, providerID) credential is upserted; if it already
// points at a different local user the link fails with Conflict instead of
// silently relinking.
func (s *Service) LinkOrCreateUser(ctx context.Context, profile *domain.Profile) (*userdomain.User, error) {
	if err := profile.Validate(); err != nil {
		return nil, apperr.BadRequest(err.Error())
	}
	email := strings.TrimSpace(strings.ToLower(profile.Email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	now := s.nowF().UTC()
	if user == nil {
		user = &userdomain.User{
			ID:            uuid.New().String(),
			Email:         email,
			Name:          profile.Name,
			Role:          userdomain.RoleUser,
			EmailVerified: true,
			Status:        userdomain.UserStatusActive,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.users.Create(ctx, user); err != nil {
			return nil, err
		}
	}

	cred, err := s.creds.GetByProvider(ctx, profile.Provider, profile.ProviderID)
	if err != nil {
		return nil, err
	}
	if cred != nil {
		if cred.UserID != user.ID {
			return nil, apperr.Conflict("social identity is linked to another account")
		}
		return user, nil
	}
	if err := s.creds.Create(ctx, &domain.Credential{
		ID:           uuid.New().String(),
		UserID:       user.ID,
		ProviderType: profile.Provider,
		ProviderID:   profile.ProviderID,
		CreatedAt:    now,
	}); err != nil {
		return nil, err
	}
	return user, nil
}
