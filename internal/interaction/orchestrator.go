// Package interaction drives the hosted login and consent steps of the OIDC
// flow and finishes each interaction with a bound account or a grant.
package interaction

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/devcoda25/myaccounts-bk-sub000/internal/apperr"
	oauthdomain "github.com/devcoda25/myaccounts-bk-sub000/internal/oauth/domain"
	oauthrepo "github.com/devcoda25/myaccounts-bk-sub000/internal/oauth/repository"
	userdomain "github.com/devcoda25/myaccounts-bk-sub000/internal/user/domain"
)

// CredentialVerifier authenticates login submissions. Implemented by the
// credential service.
type CredentialVerifier interface {
	VerifyPassword(ctx context.Context, identifier, plaintext string) (*userdomain.User, error)
}

// ConsentGranter persists consent grants. Implemented by the OAuth broker.
type ConsentGranter interface {
	GrantConsent(ctx context.Context, userID, clientID string, scopes []string) error
}

// ClaimEnricher adds deployment-specific claims to the account claim set.
// Enrichment failures degrade to the minimal claim set, never fail the flow.
type ClaimEnricher interface {
	Claims(ctx context.Context, userID string) (map[string]any, error)
}

// UserRepo resolves accounts for claim building.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// BeginRequest starts an interaction for an authorize request that could not
// complete silently.
type BeginRequest struct {
	Prompt        string
	ClientID      string
	RedirectURI   string
	Scope         string
	Nonce         string
	MissingScopes []string
	MissingClaims []string
}

// Result is the terminal state handed back to the relying party flow.
type Result struct {
	InteractionID string         `json:"interaction_id"`
	Status        Status         `json:"status"`
	GrantID       string         `json:"grant_id,omitempty"`
	AccessToken   string         `json:"access_token,omitempty"`
	ExpiresAt     time.Time      `json:"expires_at,omitempty"`
	Claims        map[string]any `json:"claims,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// Orchestrator owns the interaction lifecycle: begin, route by prompt, bind
// an account on login, persist a grant on consent, abort.
type Orchestrator struct {
	store    Store
	creds    CredentialVerifier
	consents ConsentGranter
	tokens   oauthrepo.AccessTokenRepository
	users    UserRepo
	enricher ClaimEnricher
	grantTTL time.Duration
	nowF     func() time.Time
}

// NewOrchestrator returns an orchestrator with the given collaborators.
// enricher may be nil.
func NewOrchestrator(
	store Store,
	creds CredentialVerifier,
	consents ConsentGranter,
	tokens oauthrepo.AccessTokenRepository,
	users UserRepo,
	enricher ClaimEnricher,
	grantTTL time.Duration,
) *Orchestrator {
	if grantTTL <= 0 {
		grantTTL = time.Hour
	}
	return &Orchestrator{
		store:    store,
		creds:    creds,
		consents: consents,
		tokens:   tokens,
		users:    users,
		enricher: enricher,
		grantTTL: grantTTL,
		nowF:     time.Now,
	}
}

// Begin creates a pending interaction and returns it.
func (o *Orchestrator) Begin(ctx context.Context, req BeginRequest) (*Interaction, error) {
	if req.ClientID == "" {
		return nil, apperr.BadRequest("client_id is required")
	}
	now := o.nowF().UTC()
	i := &Interaction{
		ID:            uuid.New().String(),
		Prompt:        req.Prompt,
		ClientID:      req.ClientID,
		RedirectURI:   req.RedirectURI,
		Scope:         req.Scope,
		Nonce:         req.Nonce,
		MissingScopes: req.MissingScopes,
		MissingClaims: req.MissingClaims,
		Status:        StatusPending,
		CreatedAt:     now,
		ExpiresAt:     now.Add(InteractionTTL),
	}
	o.store.Put(ctx, i)
	return i, nil
}

// RedirectFor returns the hosted page path for the interaction's prompt.
// Unknown prompts default to sign-in.
func (o *Orchestrator) RedirectFor(i *Interaction) string {
	switch i.Prompt {
	case "consent":
		return "/interaction/" + i.ID + "/consent"
	case "login":
		return "/interaction/" + i.ID + "/login"
	default:
		return "/interaction/" + i.ID + "/login"
	}
}

// Get returns the pending interaction, or NotFound if missing or expired.
func (o *Orchestrator) Get(ctx context.Context, id string) (*Interaction, error) {
	i, ok := o.store.Get(ctx, id)
	if !ok {
		return nil, apperr.NotFound("interaction not found or expired")
	}
	return i, nil
}

// SubmitLogin authenticates the login form and binds the account to the
// interaction. The interaction advances to the consent prompt when scopes or
// claims are still missing, otherwise it completes.
func (o *Orchestrator) SubmitLogin(ctx context.Context, id, email, password string) (*Interaction, error) {
	i, err := o.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if i.Status != StatusPending {
		return nil, apperr.BadRequest("interaction already finished")
	}
	email = strings.TrimSpace(email)
	if email == "" || password == "" || !strings.Contains(email, "@") {
		return nil, apperr.BadRequest("email and password are required")
	}

	user, err := o.creds.VerifyPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.Unauthorized("invalid credentials")
	}

	i.AccountID = user.ID
	if len(i.MissingScopes) > 0 || len(i.MissingClaims) > 0 {
		i.Prompt = "consent"
	} else {
		i.Status = StatusCompleted
	}
	o.store.Put(ctx, i)
	return i, nil
}

// ConfirmConsent persists a grant covering everything the interaction marked
// as missing, records an opaque grant access token for the gate's fallback
// path, and completes the interaction.
func (o *Orchestrator) ConfirmConsent(ctx context.Context, id string) (*Result, error) {
	i, err := o.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if i.Status != StatusPending {
		return nil, apperr.BadRequest("interaction already finished")
	}
	if i.AccountID == "" {
		return nil, apperr.UnauthorizedCode("login_required", "sign-in required before consent")
	}

	scopes := unionScopes(oauthdomain.SplitScope(i.Scope), i.MissingScopes)
	if err := o.consents.GrantConsent(ctx, i.AccountID, i.ClientID, scopes); err != nil {
		return nil, err
	}

	grantID := uuid.New().String()
	token, err := generateOpaqueToken()
	if err != nil {
		return nil, err
	}
	now := o.nowF().UTC()
	expiresAt := now.Add(o.grantTTL)
	if err := o.tokens.Create(ctx, &oauthdomain.AccessTokenRecord{
		ID:        token,
		UserID:    i.AccountID,
		ClientID:  i.ClientID,
		GrantID:   grantID,
		Scope:     strings.Join(scopes, " "),
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}); err != nil {
		return nil, err
	}

	i.GrantID = grantID
	i.Status = StatusCompleted
	o.store.Put(ctx, i)

	return &Result{
		InteractionID: i.ID,
		Status:        StatusCompleted,
		GrantID:       grantID,
		AccessToken:   token,
		ExpiresAt:     expiresAt,
		Claims:        o.accountClaims(ctx, i.AccountID),
	}, nil
}

// Abort finishes the interaction with access_denied.
func (o *Orchestrator) Abort(ctx context.Context, id string) (*Result, error) {
	i, err := o.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	i.Status = StatusAborted
	i.Error = "access_denied"
	o.store.Put(ctx, i)
	return &Result{InteractionID: i.ID, Status: StatusAborted, Error: "access_denied"}, nil
}

// accountClaims builds the claim set for an account. The minimal set always
// succeeds; enrichment is best-effort.
func (o *Orchestrator) accountClaims(ctx context.Context, userID string) map[string]any {
	claims := map[string]any{"sub": userID}
	user, err := o.users.GetByID(ctx, userID)
	if err != nil || user == nil {
		slog.Warn("claim resolution fell back to minimal set", "user_id", userID, "error", err)
		return claims
	}
	claims["email"] = user.Email
	claims["email_verified"] = user.EmailVerified
	if user.Name != "" {
		claims["name"] = user.Name
	}
	if o.enricher == nil {
		return claims
	}
	extra, err := o.enricher.Claims(ctx, userID)
	if err != nil {
		slog.Warn("claim enrichment failed", "user_id", userID, "error", err)
		return claims
	}
	for k, v := range extra {
		claims[k] = v
	}
	return claims
}

func unionScopes(requested, missing []string) []string {
	seen := make(map[string]struct{}, len(requested)+len(missing))
	var out []string
	for _, s := range append(append([]string{}, requested...), missing...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func generateOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
