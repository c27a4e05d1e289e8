package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/toolgate/toolgate/internal/model"
	"github.com/toolgate/toolgate/internal/service"
)

// SessionCookieName is the cookie that carries the admin session id.
const SessionCookieName = "session_id"

type contextKeyAuth string

const (
	// AuthResultKey is the context key for the authentication verdict.
	AuthResultKey contextKeyAuth = "auth_result"
)

// Authenticate returns an HTTP middleware that resolves the request's
// credentials into a service.Result and attaches it to the context. It never
// rejects a request; RequireAuthenticated and RequireAdmin do that.
func Authenticate(authSvc *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var cookieValue string
			if c, err := r.Cookie(SessionCookieName); err == nil {
				cookieValue = c.Value
			}
			res := authSvc.Authenticate(r.Context(), cookieValue, r.Header.Get("Authorization"))

			ctx := context.WithValue(r.Context(), AuthResultKey, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuthenticated rejects requests without a valid session or token.
// It must be used after Authenticate in the middleware chain.
func RequireAuthenticated() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !GetAuth(r.Context()).Authenticated() {
				writeAuthError(w, http.StatusUnauthorized,
					"Authentication required. Log in or provide a Bearer token.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin admits only admin sessions. API tokens get 403.
// It must be used after Authenticate in the middleware chain.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch GetAuth(r.Context()).Kind {
			case service.AdminSession:
				next.ServeHTTP(w, r)
			case service.APIClient:
				writeAuthError(w, http.StatusForbidden, "Admin session required")
			default:
				writeAuthError(w, http.StatusUnauthorized, "Authentication required")
			}
		})
	}
}

// GetAuth extracts the authentication verdict from the context. Requests that
// did not pass through Authenticate are unauthenticated.
func GetAuth(ctx context.Context) service.Result {
	if res, ok := ctx.Value(AuthResultKey).(service.Result); ok {
		return res
	}
	return service.Result{Kind: service.Unauthenticated}
}

// WithAuth returns a context carrying res. Used by callers that authenticate
// outside the HTTP middleware chain.
func WithAuth(ctx context.Context, res service.Result) context.Context {
	return context.WithValue(ctx, AuthResultKey, res)
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.ErrorResponse{
		Error: model.ErrorDetail{Code: status, Message: message},
	})
}
