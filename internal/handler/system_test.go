package handler

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/toolgate/toolgate/internal/server/middleware"
)

// ---------------------------------------------------------------------------
// Login / logout
// ---------------------------------------------------------------------------

func TestLogin_ValidCredentials(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, request{
		method: "POST",
		path:   "/api/auth/login",
		body:   map[string]string{"username": "admin", "password": testPassword},
	})
	assertStatus(t, rr, http.StatusOK)

	var cookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("expected session cookie")
	}
	if !cookie.HttpOnly {
		t.Error("session cookie should be HttpOnly")
	}
	if cookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("SameSite = %v, want Lax", cookie.SameSite)
	}
	if cookie.Path != "/" {
		t.Errorf("Path = %q, want /", cookie.Path)
	}
	if cookie.Secure {
		t.Error("cookie should not be Secure on plain HTTP without cookie_secure")
	}
	if cookie.MaxAge != int(time.Hour.Seconds()) {
		t.Errorf("MaxAge = %d, want the session TTL of %d", cookie.MaxAge, int(time.Hour.Seconds()))
	}

	var resp sessionResponse
	decodeJSON(t, rr, &resp)
	if !resp.Success || resp.Username != "admin" {
		t.Errorf("response = %+v", resp)
	}
	if !resp.ExpiresAt.After(resp.CreatedAt) {
		t.Error("expires_at should be after created_at")
	}
}

func TestLogin_UniformFailure(t *testing.T) {
	env := newTestEnv(t)

	wrongPassword := env.do(t, request{
		method: "POST",
		path:   "/api/auth/login",
		body:   map[string]string{"username": "admin", "password": "nope-nope"},
	})
	unknownUser := env.do(t, request{
		method: "POST",
		path:   "/api/auth/login",
		body:   map[string]string{"username": "root", "password": testPassword},
	})

	assertStatus(t, wrongPassword, http.StatusUnauthorized)
	assertStatus(t, unknownUser, http.StatusUnauthorized)
	_, msg1 := errorMessage(t, wrongPassword)
	_, msg2 := errorMessage(t, unknownUser)
	if msg1 != msg2 {
		t.Errorf("failure messages differ: %q vs %q", msg1, msg2)
	}
	if msg1 != "Invalid username or password" {
		t.Errorf("message = %q", msg1)
	}
}

func TestLogin_MissingFields(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body map[string]string
	}{
		{"no username", map[string]string{"password": testPassword}},
		{"no password", map[string]string{"username": "admin"}},
		{"empty", map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, request{method: "POST", path: "/api/auth/login", body: tt.body})
			assertStatus(t, rr, http.StatusBadRequest)
		})
	}
}

func TestLogin_InvalidJSON(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, request{method: "POST", path: "/api/auth/login", body: "not an object"})
	assertStatus(t, rr, http.StatusBadRequest)
}

func TestLogin_Lockout(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 3; i++ {
		rr := env.do(t, request{
			method: "POST",
			path:   "/api/auth/login",
			body:   map[string]string{"username": "admin", "password": "wrong-password"},
		})
		assertStatus(t, rr, http.StatusUnauthorized)
	}

	// Even the right password is refused while cooling down.
	rr := env.do(t, request{
		method: "POST",
		path:   "/api/auth/login",
		body:   map[string]string{"username": "admin", "password": testPassword},
	})
	assertStatus(t, rr, http.StatusTooManyRequests)
}

func TestLogin_LockoutIsPerClient(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 3; i++ {
		rr := env.do(t, request{
			method: "POST",
			path:   "/api/auth/login",
			body:   map[string]string{"username": "admin", "password": "wrong-password"},
			remote: "203.0.113.9:4000",
		})
		assertStatus(t, rr, http.StatusUnauthorized)
	}
	rr := env.do(t, request{
		method: "POST",
		path:   "/api/auth/login",
		body:   map[string]string{"username": "admin", "password": testPassword},
		remote: "203.0.113.9:4001",
	})
	assertStatus(t, rr, http.StatusTooManyRequests)

	// The admin signing in from another address is not locked out.
	rr = env.do(t, request{
		method: "POST",
		path:   "/api/auth/login",
		body:   map[string]string{"username": "admin", "password": testPassword},
		remote: "198.51.100.7:5000",
	})
	assertStatus(t, rr, http.StatusOK)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	rr := env.do(t, request{method: "POST", path: "/api/auth/logout", cookie: cookie})
	assertStatus(t, rr, http.StatusOK)

	var cleared bool
	for _, c := range rr.Result().Cookies() {
		if c.Name == middleware.SessionCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("logout should clear the session cookie")
	}

	rr = env.do(t, request{method: "GET", path: "/api/auth/session", cookie: cookie})
	assertStatus(t, rr, http.StatusUnauthorized)

	// Logging out twice, or without a session, is fine.
	rr = env.do(t, request{method: "POST", path: "/api/auth/logout", cookie: cookie})
	assertStatus(t, rr, http.StatusOK)
	rr = env.do(t, request{method: "POST", path: "/api/auth/logout"})
	assertStatus(t, rr, http.StatusOK)
}

func TestSession(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, request{method: "GET", path: "/api/auth/session"})
	assertStatus(t, rr, http.StatusUnauthorized)

	cookie := env.login(t)
	rr = env.do(t, request{method: "GET", path: "/api/auth/session", cookie: cookie})
	assertStatus(t, rr, http.StatusOK)

	var resp sessionResponse
	decodeJSON(t, rr, &resp)
	if resp.Username != "admin" {
		t.Errorf("username = %q, want admin", resp.Username)
	}
}

// ---------------------------------------------------------------------------
// Change password
// ---------------------------------------------------------------------------

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)
	other := env.login(t)

	rr := env.do(t, request{
		method: "POST",
		path:   "/api/auth/change-password",
		body:   map[string]string{"old_password": "wrong-password", "new_password": "new-password-1"},
		cookie: cookie,
	})
	assertStatus(t, rr, http.StatusBadRequest)

	rr = env.do(t, request{
		method: "POST",
		path:   "/api/auth/change-password",
		body:   map[string]string{"old_password": testPassword, "new_password": "short"},
		cookie: cookie,
	})
	assertStatus(t, rr, http.StatusBadRequest)

	rr = env.do(t, request{
		method: "POST",
		path:   "/api/auth/change-password",
		body:   map[string]string{"old_password": testPassword, "new_password": "new-password-1"},
		cookie: cookie,
	})
	assertStatus(t, rr, http.StatusOK)

	// The caller's session survives; every other session ends.
	assertStatus(t, env.do(t, request{method: "GET", path: "/api/auth/session", cookie: cookie}), http.StatusOK)
	assertStatus(t, env.do(t, request{method: "GET", path: "/api/auth/session", cookie: other}), http.StatusUnauthorized)

	rr = env.do(t, request{
		method: "POST",
		path:   "/api/auth/login",
		body:   map[string]string{"username": "admin", "password": "new-password-1"},
	})
	assertStatus(t, rr, http.StatusOK)
}

func TestChangePassword_Lockout(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	for i := 0; i < 3; i++ {
		rr := env.do(t, request{
			method: "POST",
			path:   "/api/auth/change-password",
			body:   map[string]string{"old_password": "wrong-password", "new_password": "new-password-1"},
			cookie: cookie,
		})
		assertStatus(t, rr, http.StatusBadRequest)
	}

	rr := env.do(t, request{
		method: "POST",
		path:   "/api/auth/change-password",
		body:   map[string]string{"old_password": testPassword, "new_password": "new-password-1"},
		cookie: cookie,
	})
	assertStatus(t, rr, http.StatusTooManyRequests)

	// The password is unchanged.
	rr = env.do(t, request{
		method: "POST",
		path:   "/api/auth/login",
		body:   map[string]string{"username": "admin", "password": testPassword},
	})
	assertStatus(t, rr, http.StatusOK)
}

func TestChangePassword_RequiresSession(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, request{
		method: "POST",
		path:   "/api/auth/change-password",
		body:   map[string]string{"old_password": testPassword, "new_password": "new-password-1"},
	})
	assertStatus(t, rr, http.StatusUnauthorized)
}

// ---------------------------------------------------------------------------
// API tokens
// ---------------------------------------------------------------------------

func TestTokenLifecycle(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	raw, id := env.issueToken(t, cookie, "Laptop")
	if !strings.HasPrefix(raw, "mcp_") {
		t.Errorf("token = %q, want mcp_ prefix", raw)
	}
	if id == "" {
		t.Fatal("expected a token id")
	}

	rr := env.do(t, request{method: "GET", path: "/api/tokens", cookie: cookie})
	assertStatus(t, rr, http.StatusOK)
	body := rr.Body.String()
	if strings.Contains(body, raw) {
		t.Error("token list must not contain the raw token")
	}
	if strings.Contains(body, `"hash"`) {
		t.Error("token list must not contain the token hash")
	}
	if !strings.Contains(body, "Laptop") {
		t.Errorf("token list missing label: %s", body)
	}

	rr = env.do(t, request{method: "DELETE", path: "/api/tokens/" + id, cookie: cookie})
	assertStatus(t, rr, http.StatusOK)

	// Revoking twice is not an error.
	rr = env.do(t, request{method: "DELETE", path: "/api/tokens/" + id, cookie: cookie})
	assertStatus(t, rr, http.StatusOK)

	rr = env.do(t, request{method: "DELETE", path: "/api/tokens/mcp_doesnotexist", cookie: cookie})
	assertStatus(t, rr, http.StatusNotFound)
}

func TestCreateToken_Validation(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	tests := []struct {
		name  string
		label string
	}{
		{"empty label", ""},
		{"blank label", "   "},
		{"label too long", strings.Repeat("x", 101)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, request{method: "POST", path: "/api/tokens", body: map[string]string{"label": tt.label}, cookie: cookie})
			assertStatus(t, rr, http.StatusBadRequest)
		})
	}
}

func TestTokens_AdminOnly(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)
	raw, _ := env.issueToken(t, cookie, "ci")

	rr := env.do(t, request{method: "GET", path: "/api/tokens"})
	assertStatus(t, rr, http.StatusUnauthorized)

	rr = env.do(t, request{method: "GET", path: "/api/tokens", bearer: raw})
	assertStatus(t, rr, http.StatusForbidden)

	rr = env.do(t, request{method: "POST", path: "/api/tokens", body: map[string]string{"label": "x"}, bearer: raw})
	assertStatus(t, rr, http.StatusForbidden)
}

func TestErrorResponseFormat(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, request{method: "GET", path: "/api/tokens"})
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	code, msg := errorMessage(t, rr)
	if code != http.StatusUnauthorized {
		t.Errorf("error.code = %d, want 401", code)
	}
	if msg == "" {
		t.Error("error.message should not be empty")
	}
}
