// Package auth implements the direct login surface: register, password and
// social login, refresh-token rotation, and logout.
package auth

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/devcoda25/myaccounts-bk-sub000/internal/apperr"
	creddomain "github.com/devcoda25/myaccounts-bk-sub000/internal/credential/domain"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/security"
	sessiondomain "github.com/devcoda25/myaccounts-bk-sub000/internal/session/domain"
	userdomain "github.com/devcoda25/myaccounts-bk-sub000/internal/user/domain"
)

// Sentinel errors for the auth service; the handler maps them to HTTP statuses.
var (
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrInvalidRefreshToken    = errors.New("invalid or expired refresh token")
	ErrRefreshTokenReuse      = errors.New("refresh token reuse detected; all sessions revoked")
)

// AuthResult holds the outcome of Login, SocialLogin, or Refresh.
type AuthResult struct {
	User         *userdomain.User
	Session      *sessiondomain.Session
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	// NewDevice is set when no other active session shares the user agent.
	NewDevice bool
}

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
}

// CredentialService verifies passwords and social tokens.
type CredentialService interface {
	VerifyPassword(ctx context.Context, identifier, plaintext string) (*userdomain.User, error)
	VerifySocialToken(ctx context.Context, provider creddomain.ProviderType, token string) (*creddomain.Profile, error)
	LinkOrCreateUser(ctx context.Context, profile *creddomain.Profile) (*userdomain.User, error)
}

// SessionService is the minimal session surface needed by the auth service.
type SessionService interface {
	Create(ctx context.Context, userID, clientID string, device sessiondomain.DeviceInfo) (*sessiondomain.Session, error)
	BindRefresh(ctx context.Context, id, jti, tokenHash string) error
	GetByID(ctx context.Context, id string) (*sessiondomain.Session, error)
	ListActive(ctx context.Context, userID string) ([]*sessiondomain.Session, error)
	Delete(ctx context.Context, id string) error
	DeleteAllForUser(ctx context.Context, userID, exceptID string) error
}

// Service wires registration and the three login paths together.
type Service struct {
	users    UserRepo
	creds    CredentialService
	sessions SessionService
	tokens   *security.TokenProvider
	hasher   *security.Hasher
	nowF     func() time.Time
}

// NewService returns an auth service with the given dependencies.
func NewService(users UserRepo, creds CredentialService, sessions SessionService, tokens *security.TokenProvider, hasher *security.Hasher) *Service {
	return &Service{
		users:    users,
		creds:    creds,
		sessions: sessions,
		tokens:   tokens,
		hasher:   hasher,
		nowF:     time.Now,
	}
}

// Register creates a user with the given email and password.
func (s *Service) Register(ctx context.Context, email, password, name string) (*userdomain.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if err := validateEmail(email); err != nil {
		return nil, apperr.BadRequest(err.Error())
	}
	if err := validatePassword(password); err != nil {
		return nil, apperr.BadRequest(err.Error())
	}
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}
	hashed, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return nil, err
	}
	now := s.nowF().UTC()
	user := &userdomain.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		Role:         userdomain.RoleUser,
		PasswordHash: hashed,
		Status:       userdomain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login authenticates identifier (email or phone) and password, creates a
// session, and returns tokens.
func (s *Service) Login(ctx context.Context, identifier, password string, device sessiondomain.DeviceInfo) (*AuthResult, error) {
	user, err := s.creds.VerifyPassword(ctx, identifier, password)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	return s.startSession(ctx, user, device)
}

// SocialLogin verifies a provider token, resolves (or creates) the local
// user, creates a session, and returns tokens.
func (s *Service) SocialLogin(ctx context.Context, provider creddomain.ProviderType, token string, device sessiondomain.DeviceInfo) (*AuthResult, error) {
	profile, err := s.creds.VerifySocialToken(ctx, provider, token)
	if err != nil {
		return nil, err
	}
	user, err := s.creds.LinkOrCreateUser(ctx, profile)
	if err != nil {
		return nil, err
	}
	if user.Status != userdomain.UserStatusActive {
		return nil, ErrInvalidCredentials
	}
	return s.startSession(ctx, user, device)
}

// Refresh validates the refresh token, rotates it, and returns new tokens.
// Presenting a stale rotation (a jti the session no longer carries) is
// treated as theft: every session of the user is revoked.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	sess, err := s.sessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.Expired(s.nowF().UTC()) {
		return nil, ErrInvalidRefreshToken
	}
	if sess.RefreshJti != claims.ID {
		if err := s.sessions.DeleteAllForUser(ctx, sess.UserID, ""); err != nil {
			return nil, err
		}
		return nil, ErrRefreshTokenReuse
	}
	if sess.RefreshTokenHash != "" && !security.RefreshTokenHashEqual(refreshToken, sess.RefreshTokenHash) {
		return nil, ErrInvalidRefreshToken
	}

	user, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Status != userdomain.UserStatusActive {
		return nil, ErrInvalidRefreshToken
	}

	newRefresh, jti, _, err := s.tokens.MintRefresh(sess.ID, user.ID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.BindRefresh(ctx, sess.ID, jti, security.HashRefreshToken(newRefresh)); err != nil {
		return nil, err
	}
	accessToken, expiresAt, err := s.tokens.Mint(sess.ID, user.ID, user.Email, string(user.EffectiveRole()))
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		User:         user,
		Session:      sess,
		AccessToken:  accessToken,
		RefreshToken: newRefresh,
		ExpiresAt:    expiresAt,
	}, nil
}

// Logout revokes the given session.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return s.sessions.Delete(ctx, sessionID)
}

func (s *Service) startSession(ctx context.Context, user *userdomain.User, device sessiondomain.DeviceInfo) (*AuthResult, error) {
	newDevice, err := s.isNewDevice(ctx, user.ID, device)
	if err != nil {
		return nil, err
	}
	sess, err := s.sessions.Create(ctx, user.ID, "", device)
	if err != nil {
		return nil, err
	}
	refreshToken, jti, _, err := s.tokens.MintRefresh(sess.ID, user.ID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.BindRefresh(ctx, sess.ID, jti, security.HashRefreshToken(refreshToken)); err != nil {
		return nil, err
	}
	sess.RefreshJti = jti
	accessToken, expiresAt, err := s.tokens.Mint(sess.ID, user.ID, user.Email, string(user.EffectiveRole()))
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		User:         user,
		Session:      sess,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		NewDevice:    newDevice,
	}, nil
}

// isNewDevice reports whether no active session shares the user agent.
// First login from a browser triggers a notification downstream.
func (s *Service) isNewDevice(ctx context.Context, userID string, device sessiondomain.DeviceInfo) (bool, error) {
	if device.UserAgent == "" {
		return false, nil
	}
	active, err := s.sessions.ListActive(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, sess := range active {
		if sess.UserAgent == device.UserAgent {
			return false, nil
		}
	}
	return true, nil
}

func validateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	const simpleEmail = `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`
	ok, _ := regexp.MatchString(simpleEmail, email)
	if !ok {
		return errors.New("invalid email format")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 10 {
		return errors.New("password must be at least 10 characters")
	}
	var hasLetter, hasNumber bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
			hasLetter = true
		case r >= '0' && r <= '9':
			hasNumber = true
		}
	}
	if !hasLetter || !hasNumber {
		return errors.New("password must contain letters and numbers")
	}
	return nil
}
