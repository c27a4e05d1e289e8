package handler

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/toolgate/toolgate/internal/server/middleware"
	"github.com/toolgate/toolgate/internal/service"
)

// SystemHandler serves the admin account and API token endpoints.
type SystemHandler struct {
	authSvc      *service.AuthService
	cookieSecure bool
}

// NewSystemHandler creates a new SystemHandler. cookieSecure forces the
// Secure attribute on the session cookie even for plain HTTP requests.
func NewSystemHandler(authSvc *service.AuthService, cookieSecure bool) *SystemHandler {
	return &SystemHandler{
		authSvc:      authSvc,
		cookieSecure: cookieSecure,
	}
}

// ---------------------------------------------------------------------------
// Authentication
// ---------------------------------------------------------------------------

// loginRequest is the expected payload for the Login endpoint.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// sessionResponse describes the caller's session.
type sessionResponse struct {
	Success   bool      `json:"success"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login checks the admin credentials and sets the session cookie.
// POST /api/auth/login
func (h *SystemHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	sess, err := h.authSvc.Sessions().Login(r.Context(), req.Username, req.Password, clientIP(r))
	if err != nil {
		status, msg := authErrorStatus(err)
		writeError(w, status, msg)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.ID,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		MaxAge:   int(sess.ExpiresAt.Sub(sess.CreatedAt).Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure || r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, sessionResponse{
		Success:   true,
		Username:  sess.Username,
		CreatedAt: sess.CreatedAt,
		ExpiresAt: sess.ExpiresAt,
	})
}

// clientIP returns the host part of RemoteAddr, which RealIP has already
// rewritten from forwarding headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Logout ends the current session, if any, and clears the cookie.
// POST /api/auth/logout
func (h *SystemHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(middleware.SessionCookieName); err == nil {
		h.authSvc.Sessions().Logout(r.Context(), c.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure || r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	writeSuccess(w, "Logged out")
}

// changePasswordRequest is the expected payload for ChangePassword.
type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ChangePassword replaces the admin password. Every other session ends.
// POST /api/auth/change-password
func (h *SystemHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	sess := middleware.GetAuth(r.Context()).Session
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "Admin session required")
		return
	}

	err := h.authSvc.Sessions().ChangePassword(r.Context(), sess.ID, req.OldPassword, req.NewPassword)
	if errors.Is(err, service.ErrInvalidCredentials) {
		writeError(w, http.StatusBadRequest, "Current password is incorrect")
		return
	}
	if err != nil {
		status, msg := authErrorStatus(err)
		writeError(w, status, msg)
		return
	}
	writeSuccess(w, "Password changed")
}

// Session describes the caller's session.
// GET /api/auth/session
func (h *SystemHandler) Session(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetAuth(r.Context()).Session
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "Admin session required")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		Success:   true,
		Username:  sess.Username,
		CreatedAt: sess.CreatedAt,
		ExpiresAt: sess.ExpiresAt,
	})
}

// ---------------------------------------------------------------------------
// API token management
// ---------------------------------------------------------------------------

// ListTokens returns every token, newest first, without secrets.
// GET /api/tokens
func (h *SystemHandler) ListTokens(w http.ResponseWriter, r *http.Request) {
	tokens := h.authSvc.Tokens().List(r.Context())
	writeListJSON(w, tokens, len(tokens), 0, 0)
}

// createTokenRequest is the expected payload for CreateToken.
type createTokenRequest struct {
	Label string `json:"label"`
}

// createTokenResponse includes the raw token (shown once only).
type createTokenResponse struct {
	Token     string    `json:"token"` // Plaintext, shown ONCE.
	ID        string    `json:"id"`
	Prefix    string    `json:"prefix"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
	Revoked   bool      `json:"revoked"`
}

// CreateToken issues a token and returns the raw value exactly once.
// POST /api/tokens
func (h *SystemHandler) CreateToken(w http.ResponseWriter, r *http.Request) {
	var req createTokenRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	tok, raw, err := h.authSvc.Tokens().Issue(r.Context(), req.Label)
	if err != nil {
		status, msg := authErrorStatus(err)
		writeError(w, status, msg)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusCreated, createTokenResponse{
		Token:     raw,
		ID:        tok.ID,
		Prefix:    tok.Prefix,
		Label:     tok.Label,
		CreatedAt: tok.CreatedAt,
		Revoked:   tok.Revoked,
	})
}

// RevokeToken revokes a token by ID.
// DELETE /api/tokens/{id}
func (h *SystemHandler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.authSvc.Tokens().Revoke(r.Context(), id); err != nil {
		status, msg := authErrorStatus(err)
		writeError(w, status, msg)
		return
	}
	writeSuccess(w, "API token revoked")
}

// authErrorStatus maps service errors to an HTTP status and a message that is
// safe to show the client.
func authErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid username or password"
	case errors.Is(err, service.ErrTooManyAttempts):
		return http.StatusTooManyRequests, "Too many failed login attempts, try again later"
	case errors.Is(err, service.ErrNoSession), errors.Is(err, service.ErrSessionExpired):
		return http.StatusUnauthorized, "Session expired, log in again"
	case errors.Is(err, service.ErrWeakPassword),
		errors.Is(err, service.ErrLabelRequired),
		errors.Is(err, service.ErrLabelTooLong):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrUnknownToken):
		return http.StatusNotFound, "API token not found"
	case errors.Is(err, service.ErrNotBootstrapped):
		return http.StatusConflict, "Admin account has not been created"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}
