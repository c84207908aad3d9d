// Package handler exposes the direct auth endpoints: register, login,
// social login, refresh, and logout.
package handler

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/devcoda25/myaccounts-bk-sub000/internal/apperr"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/audit"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/auth"
	creddomain "github.com/devcoda25/myaccounts-bk-sub000/internal/credential/domain"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/httpx"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/notify"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/server/principal"
	sessiondomain "github.com/devcoda25/myaccounts-bk-sub000/internal/session/domain"
)

type Handler struct {
	svc      *auth.Service
	notifier notify.Notifier
	auditLog audit.Logger

	accessTTL  time.Duration
	refreshTTL time.Duration
	// secureCookies is false only in local development over plain HTTP.
	secureCookies bool
}

// NewHandler returns the auth handler.
func NewHandler(svc *auth.Service, notifier notify.Notifier, auditLog audit.Logger, accessTTL, refreshTTL time.Duration, secureCookies bool) *Handler {
	return &Handler{
		svc:           svc,
		notifier:      notifier,
		auditLog:      auditLog,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		secureCookies: secureCookies,
	}
}

// MountPublic registers the unauthenticated auth routes on r.
func (h *Handler) MountPublic(r chi.Router) {
	r.Post("/auth/register", h.register)
	r.Post("/auth/login", h.login)
	r.Post("/auth/social", h.social)
	r.Post("/auth/refresh", h.refresh)
}

// MountProtected registers the routes that require a principal.
func (h *Handler) MountProtected(r chi.Router) {
	r.Post("/auth/logout", h.logout)
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, apperr.BadRequest("malformed request body"))
		return
	}
	user, err := h.svc.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		if errors.Is(err, auth.ErrEmailAlreadyRegistered) {
			httpx.WriteError(w, apperr.Conflict("email already registered"))
			return
		}
		httpx.WriteError(w, err)
		return
	}
	h.auditLog.Log(r.Context(), user.ID, "register", "user", user.ID)
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"user_id": user.ID})
}

type loginRequest struct {
	// Identifier is an email or phone number; Email is accepted as an alias.
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, apperr.BadRequest("malformed request body"))
		return
	}
	identifier := req.Identifier
	if identifier == "" {
		identifier = req.Email
	}
	res, err := h.svc.Login(r.Context(), identifier, req.Password, deviceInfo(r))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.auditLog.Log(r.Context(), "", "login_failure", "user", identifier)
			httpx.WriteError(w, apperr.Unauthorized("invalid credentials"))
			return
		}
		httpx.WriteError(w, err)
		return
	}
	h.finishLogin(w, r, res, "login")
}

type socialRequest struct {
	Provider string `json:"provider"`
	Token    string `json:"token"`
}

func (h *Handler) social(w http.ResponseWriter, r *http.Request) {
	var req socialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, apperr.BadRequest("malformed request body"))
		return
	}
	if req.Provider == "" || req.Token == "" {
		httpx.WriteError(w, apperr.BadRequest("provider and token are required"))
		return
	}
	res, err := h.svc.SocialLogin(r.Context(), creddomain.ProviderType(req.Provider), req.Token, deviceInfo(r))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			httpx.WriteError(w, apperr.Unauthorized("invalid credentials"))
			return
		}
		httpx.WriteError(w, err)
		return
	}
	h.finishLogin(w, r, res, "social_login")
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	token := ""
	if c, err := r.Cookie(auth.RefreshTokenCookie); err == nil {
		token = c.Value
	}
	if token == "" {
		var req refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			token = req.RefreshToken
		}
	}

	res, err := h.svc.Refresh(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrRefreshTokenReuse):
			h.auditLog.Log(r.Context(), "", "refresh_reuse", "session", "")
			h.clearCookies(w)
			httpx.WriteError(w, apperr.Unauthorized("invalid refresh token"))
		case errors.Is(err, auth.ErrInvalidRefreshToken):
			h.clearCookies(w)
			httpx.WriteError(w, apperr.Unauthorized("invalid refresh token"))
		default:
			httpx.WriteError(w, err)
		}
		return
	}
	h.setCookies(w, res.AccessToken, res.RefreshToken)
	h.auditLog.Log(r.Context(), res.User.ID, "refresh", "session", res.Session.ID)
	httpx.WriteJSON(w, http.StatusOK, tokenBody(res))
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	p, ok := principal.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, apperr.Unauthorized("authentication required"))
		return
	}
	if err := h.svc.Logout(r.Context(), p.SessionID); err != nil {
		httpx.WriteError(w, apperr.Internal(err))
		return
	}
	h.clearCookies(w)
	h.auditLog.Log(r.Context(), p.UserID, "logout", "session", p.SessionID)
	httpx.WriteJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) finishLogin(w http.ResponseWriter, r *http.Request, res *auth.AuthResult, action string) {
	h.setCookies(w, res.AccessToken, res.RefreshToken)
	h.auditLog.Log(r.Context(), res.User.ID, action, "session", res.Session.ID)
	if res.NewDevice {
		h.notifier.Dispatch(r.Context(), notify.Event{
			Type:      "new_device_login",
			UserID:    res.User.ID,
			Email:     res.User.Email,
			IPAddress: res.Session.IPAddress,
			UserAgent: res.Session.UserAgent,
			At:        time.Now().UTC(),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, tokenBody(res))
}

func tokenBody(res *auth.AuthResult) map[string]any {
	return map[string]any{
		"access_token": res.AccessToken,
		"token_type":   "Bearer",
		"expires_in":   int64(time.Until(res.ExpiresAt).Seconds()),
		"user": map[string]any{
			"id":    res.User.ID,
			"email": res.User.Email,
			"name":  res.User.Name,
			"role":  string(res.User.EffectiveRole()),
		},
	}
}

func (h *Handler) setCookies(w http.ResponseWriter, accessToken, refreshToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.AccessTokenCookie,
		Value:    accessToken,
		Path:     "/",
		MaxAge:   int(h.accessTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     auth.RefreshTokenCookie,
		Value:    refreshToken,
		Path:     auth.RefreshCookiePath,
		MaxAge:   int(h.refreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name: auth.AccessTokenCookie, Value: "", Path: "/", MaxAge: -1,
		HttpOnly: true, Secure: h.secureCookies, SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name: auth.RefreshTokenCookie, Value: "", Path: auth.RefreshCookiePath, MaxAge: -1,
		HttpOnly: true, Secure: h.secureCookies, SameSite: http.SameSiteStrictMode,
	})
}

// deviceInfo extracts client metadata for the session row.
func deviceInfo(r *http.Request) sessiondomain.DeviceInfo {
	ip := r.Header.Get("X-Forwarded-For")
	if ip == "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ip = host
		} else {
			ip = r.RemoteAddr
		}
	}
	return sessiondomain.DeviceInfo{
		IPAddress: ip,
		UserAgent: r.UserAgent(),
	}
}
