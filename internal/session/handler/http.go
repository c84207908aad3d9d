// Package handler exposes the session management endpoints: list the
// caller's active sessions, revoke one by id, and log out everywhere else.
package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/devcoda25/myaccounts-bk-sub000/internal/apperr"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/audit"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/httpx"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/server/principal"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/session"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/session/domain"
)

type Handler struct {
	sessions *session.Service
	auditLog audit.Logger
}

// NewHandler returns the session management handler.
func NewHandler(sessions *session.Service, auditLog audit.Logger) *Handler {
	return &Handler{sessions: sessions, auditLog: auditLog}
}

// Mount registers the session routes on r. All routes require a principal.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/sessions", h.list)
	r.Delete("/sessions/{id}", h.revoke)
	r.Delete("/sessions", h.revokeOthers)
}

type sessionView struct {
	ID         string     `json:"id"`
	Current    bool       `json:"current"`
	IPAddress  string     `json:"ip_address,omitempty"`
	UserAgent  string     `json:"user_agent,omitempty"`
	Location   string     `json:"location,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, ok := principal.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, apperr.Unauthorized("authentication required"))
		return
	}
	sessions, err := h.sessions.ListActive(r.Context(), p.UserID)
	if err != nil {
		httpx.WriteError(w, apperr.Internal(err))
		return
	}
	views := make([]sessionView, len(sessions))
	for i, s := range sessions {
		views[i] = toView(s, p.SessionID)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	p, ok := principal.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, apperr.Unauthorized("authentication required"))
		return
	}
	id := chi.URLParam(r, "id")
	if id == "" {
		httpx.WriteError(w, apperr.BadRequest("session id required"))
		return
	}
	if err := h.sessions.DeleteOwned(r.Context(), p.UserID, id); err != nil {
		switch {
		case errors.Is(err, session.ErrSessionNotFound):
			httpx.WriteError(w, apperr.NotFound("session not found"))
		case errors.Is(err, session.ErrNotOwner):
			// Same body as not-found so session ids cannot be probed.
			httpx.WriteError(w, apperr.NotFound("session not found"))
		default:
			httpx.WriteError(w, apperr.Internal(err))
		}
		return
	}
	h.auditLog.Log(r.Context(), p.UserID, "revoke", "session", id)
	httpx.WriteJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) revokeOthers(w http.ResponseWriter, r *http.Request) {
	p, ok := principal.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, apperr.Unauthorized("authentication required"))
		return
	}
	if err := h.sessions.DeleteAllForUser(r.Context(), p.UserID, p.SessionID); err != nil {
		httpx.WriteError(w, apperr.Internal(err))
		return
	}
	h.auditLog.Log(r.Context(), p.UserID, "revoke_all", "session", "except:"+p.SessionID)
	httpx.WriteJSON(w, http.StatusNoContent, nil)
}

func toView(s *domain.Session, currentID string) sessionView {
	return sessionView{
		ID:         s.ID,
		Current:    s.ID == currentID,
		IPAddress:  s.IPAddress,
		UserAgent:  s.UserAgent,
		Location:   s.Location,
		CreatedAt:  s.CreatedAt,
		LastUsedAt: s.LastUsedAt,
		ExpiresAt:  s.ExpiresAt,
	}
}
