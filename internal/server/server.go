package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/toolgate/toolgate/internal/config"
	"github.com/toolgate/toolgate/internal/handler"
	"github.com/toolgate/toolgate/internal/mcp"
	"github.com/toolgate/toolgate/internal/server/middleware"
	"github.com/toolgate/toolgate/internal/service"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	CookieSecure    bool
	LoginRateLimit  int // login and change-password attempts per minute per IP; 0 disables
	RequestLog      bool
	RequestLogMax   int
	SweepInterval   time.Duration
	Version         string
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "127.0.0.1",
		Port:            8000,
		ShutdownTimeout: 30 * time.Second,
		LoginRateLimit:  20,
		RequestLog:      true,
		RequestLogMax:   1000,
		SweepInterval:   10 * time.Minute,
		Version:         "dev",
	}
}

// Server is the top-level HTTP server for toolgate. It owns the Chi router,
// the request log store, the authentication service and the MCP server.
type Server struct {
	cfg        Config
	router     chi.Router
	store      *config.Store
	authSvc    *service.AuthService
	mcp        *mcp.MCPServer
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, store *config.Store, authSvc *service.AuthService, mcpSrv *mcp.MCPServer, logger *slog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		store:   store,
		authSvc: authSvc,
		mcp:     mcpSrv,
		logger:  logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Authenticate(s.authSvc))
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Mcp-Session-Id", "X-Request-ID"},
			ExposedHeaders:   []string{"Mcp-Session-Id", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	if s.cfg.RequestLog {
		r.Use(middleware.RequestLog(s.store, s.cfg.RequestLogMax, s.logger))
	}

	// --- Health checks and API description (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Get("/openapi.json", handler.NewOpenAPIHandler(s.cfg.Version).ServeSpec)

	// --- Admin API ---
	r.Route("/api", func(r chi.Router) {
		sysHandler := handler.NewSystemHandler(s.authSvc, s.cfg.CookieSecure)
		logHandler := handler.NewLogHandler(s.store)
		toolHandler := handler.NewToolHandler(s.mcp)

		r.With(middleware.RateLimit(s.cfg.LoginRateLimit)).Post("/auth/login", sysHandler.Login)
		r.Post("/auth/logout", sysHandler.Logout)

		// Everything else requires an admin session; API tokens get 403.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin())

			r.With(middleware.RateLimit(s.cfg.LoginRateLimit)).Post("/auth/change-password", sysHandler.ChangePassword)
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

	// --- MCP streamable HTTP (admin session or API token) ---
	mcpHandler := s.mcp.HTTPHandler(func(ctx context.Context, r *http.Request) context.Context {
		return mcp.WithCaller(ctx, middleware.GetAuth(r.Context()).Principal())
	})
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuthenticated())
		r.Get("/mcp", mcpHandler.ServeHTTP)
		r.Post("/mcp", mcpHandler.ServeHTTP)
		r.Delete("/mcp", mcpHandler.ServeHTTP)
	})

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the database is
// reachable, or 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	checks := map[string]string{"database": "ok"}

	if err := s.store.Ping(r.Context()); err != nil {
		checks["database"] = "error: " + err.Error()
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No WriteTimeout: GET /mcp holds an SSE stream open.
		IdleTimeout: 120 * time.Second,
	}

	// Listen for shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go s.runSweeper(ctx)

	// Start server in background goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// runSweeper drops expired sessions every SweepInterval until ctx is done.
func (s *Server) runSweeper(ctx context.Context) {
	if s.cfg.SweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.authSvc.Sessions().Sweep(ctx); n > 0 {
				s.logger.Debug("expired sessions removed", "count", n)
			}
		}
	}
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
