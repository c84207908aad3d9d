// Package oauth implements the authorization-code flow with mandatory PKCE.
package oauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"time"

	"github.com/devcoda25/myaccounts-bk-sub000/internal/apperr"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/oauth/domain"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/oauth/repository"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/security"
	userdomain "github.com/devcoda25/myaccounts-bk-sub000/internal/user/domain"
)

// CodeTTL is the authorization code lifetime.
const CodeTTL = 10 * time.Minute

// UserRepo is the minimal user repository needed by the broker.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// ConsentDecider reports whether an authorize request needs a consent step.
// Implemented by policy.ConsentPolicy.
type ConsentDecider interface {
	ConsentRequired(ctx context.Context, client *domain.Client, consent *domain.Consent, requestedScopes []string) bool
}

// AuthorizeRequest carries the parameters of GET /authorize after the
// principal has been resolved.
type AuthorizeRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	Scope               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
	// UserID is the authenticated principal; empty means nobody is signed in.
	UserID string
}

// TokenRequest carries the parameters of POST /token.
type TokenRequest struct {
	Code         string
	CodeVerifier string
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// TokenResponse is the successful /token payload.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

// Broker issues and redeems authorization codes. PKCE is mandatory on every
// request; there is no confidential-client exemption.
type Broker struct {
	clients  repository.ClientRepository
	codes    repository.CodeRepository
	consents repository.ConsentRepository
	users    UserRepo
	tokens   *security.TokenProvider
	hasher   *security.Hasher
	policy   ConsentDecider
	nowF     func() time.Time
}

// NewBroker returns a Broker with the given dependencies.
func NewBroker(
	clients repository.ClientRepository,
	codes repository.CodeRepository,
	consents repository.ConsentRepository,
	users UserRepo,
	tokens *security.TokenProvider,
	hasher *security.Hasher,
	policy ConsentDecider,
) *Broker {
	return &Broker{
		clients:  clients,
		codes:    codes,
		consents: consents,
		users:    users,
		tokens:   tokens,
		hasher:   hasher,
		policy:   policy,
		nowF:     time.Now,
	}
}

// Authorize validates the request and persists a single-use code. The caller
// redirects the user agent to req.RedirectURI with the code attached.
func (b *Broker) Authorize(ctx context.Context, req AuthorizeRequest) (string, error) {
	if req.ResponseType != "code" {
		return "", apperr.BadRequest("unsupported response_type")
	}
	if req.CodeChallenge == "" {
		return "", apperr.BadRequest("code_challenge is required")
	}
	if req.CodeChallengeMethod == "" {
		req.CodeChallengeMethod = "S256"
	}
	if req.CodeChallengeMethod != "S256" {
		return "", apperr.BadRequest("code_challenge_method must be S256")
	}
	if req.UserID == "" {
		return "", apperr.UnauthorizedCode("login_required", "sign-in required")
	}

	client, err := b.clients.GetByID(ctx, req.ClientID)
	if err != nil {
		return "", err
	}
	if client == nil {
		return "", apperr.Unauthorized("unknown client")
	}
	if !client.AllowsRedirect(req.RedirectURI) {
		return "", apperr.Unauthorized("redirect_uri is not registered for this client")
	}

	scopes := domain.SplitScope(req.Scope)
	consent, err := b.consents.Get(ctx, req.UserID, req.ClientID)
	if err != nil {
		return "", err
	}
	if b.policy.ConsentRequired(ctx, client, consent, scopes) {
		return "", apperr.UnauthorizedCode("consent_required", "consent required")
	}

	code, err := generateCode()
	if err != nil {
		return "", err
	}
	now := b.nowF().UTC()
	rec := &domain.AuthorizationCode{
		Code:                code,
		UserID:              req.UserID,
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		Nonce:               req.Nonce,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		CreatedAt:           now,
		ExpiresAt:           now.Add(CodeTTL),
	}
	if err := b.codes.Create(ctx, rec); err != nil {
		return "", err
	}
	return code, nil
}

// Token redeems an authorization code for an access token and an ID token.
// The code is marked used before any token is minted, so a replayed code can
// never win the race against its first redemption.
func (b *Broker) Token(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	if req.Code == "" || req.CodeVerifier == "" {
		return nil, apperr.BadRequest("code and code_verifier are required")
	}

	code, err := b.codes.Get(ctx, req.Code)
	if err != nil {
		return nil, err
	}
	if code == nil {
		return nil, apperr.BadRequest("invalid code")
	}
	if code.Used {
		return nil, apperr.BadRequest("code already used")
	}
	if code.Expired(b.nowF().UTC()) {
		return nil, apperr.BadRequest("code expired")
	}
	if code.ClientID != req.ClientID {
		return nil, apperr.BadRequest("code was issued to a different client")
	}
	if code.RedirectURI != req.RedirectURI {
		return nil, apperr.BadRequest("redirect_uri does not match the authorization request")
	}

	client, err := b.clients.GetByID(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, apperr.Unauthorized("unknown client")
	}
	if !client.Public {
		if req.ClientSecret == "" || client.SecretHash == "" {
			return nil, apperr.Unauthorized("client authentication failed")
		}
		if err := b.hasher.Compare(client.SecretHash, []byte(req.ClientSecret)); err != nil {
			return nil, apperr.Unauthorized("client authentication failed")
		}
	}

	if !verifyPKCE(code.CodeChallenge, req.CodeVerifier) {
		return nil, apperr.BadRequest("code_verifier does not match challenge")
	}

	consumed, err := b.codes.Consume(ctx, req.Code)
	if err != nil {
		return nil, err
	}
	if !consumed {
		return nil, apperr.BadRequest("code already used")
	}

	user, err := b.users.GetByID(ctx, code.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.Unauthorized("account no longer exists")
	}

	role := string(user.EffectiveRole())
	accessToken, expiresAt, err := b.tokens.MintForAudience(user.ID, user.Email, role, client.ID, "", b.tokens.AccessTTL())
	if err != nil {
		return nil, err
	}
	idToken, _, err := b.tokens.MintForAudience(user.ID, user.Email, role, client.ID, code.Nonce, b.tokens.AccessTTL())
	if err != nil {
		return nil, err
	}
	return &TokenResponse{
		AccessToken: accessToken,
		IDToken:     idToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(expiresAt).Seconds()),
		Scope:       code.Scope,
	}, nil
}

// GrantConsent records that userID approved clientID for scopes. Idempotent;
// regranting replaces the scope set.
func (b *Broker) GrantConsent(ctx context.Context, userID, clientID string, scopes []string) error {
	return b.consents.Upsert(ctx, &domain.Consent{
		UserID:    userID,
		ClientID:  clientID,
		Scopes:    scopes,
		GrantedAt: b.nowF().UTC(),
	})
}

// ConsentFor returns the stored consent for (userID, clientID), or nil.
func (b *Broker) ConsentFor(ctx context.Context, userID, clientID string) (*domain.Consent, error) {
	return b.consents.Get(ctx, userID, clientID)
}

// verifyPKCE recomputes base64url(SHA-256(verifier)) and compares it against
// the stored challenge.
func verifyPKCE(challenge, verifier string) bool {
	sum := sha256.Sum256([]byte(verifier))
	computed := base64.RawURLEncoding.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}

func generateCode() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
