package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/toolgate/toolgate/internal/config"
	"github.com/toolgate/toolgate/internal/mcp"
	"github.com/toolgate/toolgate/internal/server/middleware"
	"github.com/toolgate/toolgate/internal/service"
)

const testPassword = "supersecretpassword"

// testEnv holds shared state for handler integration tests.
type testEnv struct {
	store   *config.Store
	authSvc *service.AuthService
	router  chi.Router
}

// newTestEnv creates a fresh test environment with an in-memory store, a
// bootstrapped admin account and the handlers mounted behind the auth
// middleware.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := config.NewStore("") // in-memory SQLite
	if err != nil {
		t.Fatalf("config.NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	params := service.PasswordParams{Time: 1, Memory: 64, Threads: 1, KeyLen: 32}
	authSvc, err := service.NewAuthService(context.Background(), store, service.Options{
		DefaultPassword: testPassword,
		SessionTTL:      time.Hour,
		MaxFailedLogins: 3,
		PasswordParams:  &params,
		Logger:          logger,
	})
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	if _, err := authSvc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	sysHandler := NewSystemHandler(authSvc, false)
	logHandler := NewLogHandler(store)
	toolHandler := NewToolHandler(mcp.NewMCPServer("test", logger))

	r := chi.NewRouter()
	r.Use(middleware.Authenticate(authSvc))
	r.Get("/openapi.json", NewOpenAPIHandler("test").ServeSpec)
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", sysHandler.Login)
		r.Post("/auth/logout", sysHandler.Logout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin())
			r.Post("/auth/change-password", sysHandler.ChangePassword)
			r.Get("/auth/session", sysHandler.Session)

			r.Get("/tokens", sysHandler.ListTokens)
			r.Post("/tokens", sysHandler.CreateToken)
			r.Delete("/tokens/{id}", sysHandler.RevokeToken)

			r.Get("/logs", logHandler.ListLogs)
			r.Get("/logs/{id}", logHandler.GetLog)
			r.Delete("/logs", logHandler.ClearLogs)

			r.Get("/tools", toolHandler.ListTools)
			r.Post("/call", toolHandler.Call)
		})
	})

	return &testEnv{
		store:   store,
		authSvc: authSvc,
		router:  r,
	}
}

// request describes one call against the test router.
type request struct {
	method string
	path   string
	body   interface{}
	cookie string
	bearer string
	remote string
}

// do executes an HTTP request against the test router and returns the recorder.
func (e *testEnv) do(t *testing.T, req request) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if req.body != nil {
		body = toJSON(t, req.body)
	}
	r := httptest.NewRequest(req.method, req.path, body)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if req.cookie != "" {
		r.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: req.cookie})
	}
	if req.bearer != "" {
		r.Header.Set("Authorization", "Bearer "+req.bearer)
	}
	if req.remote != "" {
		r.RemoteAddr = req.remote
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, r)
	return rr
}

// login signs in as the admin and returns the session cookie value.
func (e *testEnv) login(t *testing.T) string {
	t.Helper()
	rr := e.do(t, request{
		method: "POST",
		path:   "/api/auth/login",
		body:   map[string]string{"username": "admin", "password": testPassword},
	})
	assertStatus(t, rr, http.StatusOK)
	for _, c := range rr.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			return c.Value
		}
	}
	t.Fatal("login did not set a session cookie")
	return ""
}

// issueToken creates an API token through the API and returns the raw value
// and its ID.
func (e *testEnv) issueToken(t *testing.T, cookie, label string) (string, string) {
	t.Helper()
	rr := e.do(t, request{method: "POST", path: "/api/tokens", body: map[string]string{"label": label}, cookie: cookie})
	assertStatus(t, rr, http.StatusCreated)
	var resp struct {
		Token string `json:"token"`
		ID    string `json:"id"`
	}
	decodeJSON(t, rr, &resp)
	return resp.Token, resp.ID
}

func toJSON(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("toJSON: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}

// errorMessage decodes the standard error envelope.
func errorMessage(t *testing.T, rr *httptest.ResponseRecorder) (int, string) {
	t.Helper()
	var resp struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	decodeJSON(t, rr, &resp)
	return resp.Error.Code, resp.Error.Message
}
