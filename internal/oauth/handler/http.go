// Package handler exposes the OAuth2/OIDC endpoints: authorize, token,
// discovery, JWKS, and userinfo.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/devcoda25/myaccounts-bk-sub000/internal/apperr"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/audit"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/httpx"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/oauth"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/security"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/server/principal"
	userdomain "github.com/devcoda25/myaccounts-bk-sub000/internal/user/domain"
)

// UserRepo resolves userinfo subjects.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

type Handler struct {
	broker   *oauth.Broker
	keys     *security.KeyManager
	users    UserRepo
	issuer   string
	auditLog audit.Logger
}

// NewHandler returns the OAuth/OIDC handler.
func NewHandler(broker *oauth.Broker, keys *security.KeyManager, users UserRepo, issuer string, auditLog audit.Logger) *Handler {
	return &Handler{broker: broker, keys: keys, users: users, issuer: issuer, auditLog: auditLog}
}

// MountPublic registers the routes that do not require a resolved principal.
// The authorize route expects optional-auth middleware upstream so a signed-in
// browser carries its principal.
func (h *Handler) MountPublic(r chi.Router) {
	r.Get("/authorize", h.authorize)
	r.Post("/token", h.token)
	r.Get("/.well-known/openid-configuration", h.discovery)
	r.Get("/.well-known/jwks.json", h.jwks)
}

// MountProtected registers the routes that require a principal.
func (h *Handler) MountProtected(r chi.Router) {
	r.Get("/userinfo", h.userinfo)
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := oauth.AuthorizeRequest{
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		ResponseType:        q.Get("response_type"),
		Scope:               q.Get("scope"),
		Nonce:               q.Get("nonce"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
	}
	if p, ok := principal.FromContext(r.Context()); ok {
		req.UserID = p.UserID
	}

	code, err := h.broker.Authorize(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	h.auditLog.Log(r.Context(), req.UserID, "authorize", "oauth_client", req.ClientID)

	loc, err := url.Parse(req.RedirectURI)
	if err != nil {
		httpx.WriteError(w, apperr.BadRequest("invalid redirect_uri"))
		return
	}
	params := loc.Query()
	params.Set("code", code)
	if state := q.Get("state"); state != "" {
		params.Set("state", state)
	}
	loc.RawQuery = params.Encode()
	http.Redirect(w, r, loc.String(), http.StatusFound)
}

// tokenParams are the token exchange parameters, accepted as either a form
// or a JSON body.
type tokenParams struct {
	GrantType    string `json:"grant_type"`
	Code         string `json:"code"`
	CodeVerifier string `json:"code_verifier"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURI  string `json:"redirect_uri"`
}

func (h *Handler) token(w http.ResponseWriter, r *http.Request) {
	var p tokenParams
	if ct := r.Header.Get("Content-Type"); strings.HasPrefix(ct, "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			httpx.WriteError(w, apperr.BadRequest("malformed request body"))
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			httpx.WriteError(w, apperr.BadRequest("malformed form body"))
			return
		}
		p = tokenParams{
			GrantType:    r.PostFormValue("grant_type"),
			Code:         r.PostFormValue("code"),
			CodeVerifier: r.PostFormValue("code_verifier"),
			ClientID:     r.PostFormValue("client_id"),
			ClientSecret: r.PostFormValue("client_secret"),
			RedirectURI:  r.PostFormValue("redirect_uri"),
		}
	}
	if p.GrantType != "authorization_code" {
		httpx.WriteError(w, apperr.BadRequest("unsupported grant_type"))
		return
	}
	if id, secret, ok := r.BasicAuth(); ok {
		p.ClientID, p.ClientSecret = id, secret
	}

	resp, err := h.broker.Token(r.Context(), oauth.TokenRequest{
		Code:         p.Code,
		CodeVerifier: p.CodeVerifier,
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURI:  p.RedirectURI,
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) discovery(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"issuer":                                h.issuer,
		"authorization_endpoint":                h.issuer + "/authorize",
		"token_endpoint":                        h.issuer + "/token",
		"userinfo_endpoint":                     h.issuer + "/userinfo",
		"jwks_uri":                              h.issuer + "/.well-known/jwks.json",
		"response_types_supported":              []string{"code"},
		"grant_types_supported":                 []string{"authorization_code"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{"ES256"},
		"code_challenge_methods_supported":      []string{"S256"},
		"scopes_supported":                      []string{"openid", "profile", "email"},
		"claims_supported":                      []string{"sub", "email", "email_verified", "name"},
		"token_endpoint_auth_methods_supported": []string{"client_secret_post", "client_secret_basic", "none"},
	})
}

func (h *Handler) jwks(w http.ResponseWriter, _ *http.Request) {
	set, err := h.keys.JWKS()
	if err != nil {
		httpx.WriteError(w, apperr.Internal(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, set)
}

func (h *Handler) userinfo(w http.ResponseWriter, r *http.Request) {
	p, ok := principal.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, apperr.Unauthorized("authentication required"))
		return
	}
	user, err := h.users.GetByID(r.Context(), p.UserID)
	if err != nil {
		httpx.WriteError(w, apperr.Internal(err))
		return
	}
	if user == nil {
		httpx.WriteError(w, apperr.Unauthorized("account no longer exists"))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"sub":            user.ID,
		"email":          user.Email,
		"email_verified": user.EmailVerified,
		"name":           user.Name,
	})
}
