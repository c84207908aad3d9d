// Package handler exposes the hosted interaction endpoints the OIDC flow
// redirects browsers through.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/devcoda25/myaccounts-bk-sub000/internal/apperr"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/audit"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/httpx"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/interaction"
)

type Handler struct {
	orch     *interaction.Orchestrator
	auditLog audit.Logger
}

// NewHandler returns the interaction handler.
func NewHandler(orch *interaction.Orchestrator, auditLog audit.Logger) *Handler {
	return &Handler{orch: orch, auditLog: auditLog}
}

// Mount registers the interaction routes on r. All routes are public; the
// interaction id itself is the capability.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/interaction", h.begin)
	r.Get("/interaction/{id}", h.route)
	r.Post("/interaction/{id}/login", h.login)
	r.Post("/interaction/{id}/consent/confirm", h.confirmConsent)
	r.Post("/interaction/{id}/abort", h.abort)
}

type beginRequest struct {
	Prompt        string   `json:"prompt"`
	ClientID      string   `json:"client_id"`
	RedirectURI   string   `json:"redirect_uri"`
	Scope         string   `json:"scope"`
	Nonce         string   `json:"nonce"`
	MissingScopes []string `json:"missing_scopes"`
	MissingClaims []string `json:"missing_claims"`
}

func (h *Handler) begin(w http.ResponseWriter, r *http.Request) {
	var req beginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, apperr.BadRequest("malformed request body"))
		return
	}
	i, err := h.orch.Begin(r.Context(), interaction.BeginRequest{
		Prompt:        req.Prompt,
		ClientID:      req.ClientID,
		RedirectURI:   req.RedirectURI,
		Scope:         req.Scope,
		Nonce:         req.Nonce,
		MissingScopes: req.MissingScopes,
		MissingClaims: req.MissingClaims,
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"interaction_id": i.ID,
		"redirect_to":    h.orch.RedirectFor(i),
		"expires_at":     i.ExpiresAt,
	})
}

// route sends the browser to the hosted page for the interaction's prompt.
func (h *Handler) route(w http.ResponseWriter, r *http.Request) {
	i, err := h.orch.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	http.Redirect(w, r, h.orch.RedirectFor(i), http.StatusFound)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, apperr.BadRequest("malformed request body"))
		return
	}
	i, err := h.orch.SubmitLogin(r.Context(), chi.URLParam(r, "id"), req.Email, req.Password)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	h.auditLog.Log(r.Context(), i.AccountID, "interaction_login", "interaction", i.ID)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"interaction_id": i.ID,
		"status":         i.Status,
		"prompt":         i.Prompt,
		"redirect_to":    h.orch.RedirectFor(i),
	})
}

func (h *Handler) confirmConsent(w http.ResponseWriter, r *http.Request) {
	res, err := h.orch.ConfirmConsent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	h.auditLog.Log(r.Context(), "", "interaction_consent", "grant", res.GrantID)
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) abort(w http.ResponseWriter, r *http.Request) {
	res, err := h.orch.Abort(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}
