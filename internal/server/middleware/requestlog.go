package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/toolgate/toolgate/internal/model"
)

// RequestLogStore persists request log entries.
type RequestLogStore interface {
	InsertRequestLog(ctx context.Context, entry *model.RequestLog) error
	TrimRequestLogs(ctx context.Context, max int) (int64, error)
}

// RequestLog returns an HTTP middleware that records every /api and /mcp
// request, except reads of the log itself, and trims the log to maxRecords.
// Bodies are never recorded. It must run after Authenticate so the principal
// is known.
func RequestLog(store RequestLogStore, maxRecords int, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			kind, ok := requestKind(r.URL.Path)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)

			entry := &model.RequestLog{
				Timestamp:  start.UTC(),
				Kind:       kind,
				Method:     r.Method,
				Path:       r.URL.Path,
				Status:     ww.status,
				DurationMs: time.Since(start).Milliseconds(),
				ClientIP:   clientIP(r),
				UserAgent:  r.UserAgent(),
				Principal:  GetAuth(r.Context()).Principal(),
				RequestID:  GetRequestID(r.Context()),
			}

			// The client may already be gone; the record is still wanted.
			ctx := context.WithoutCancel(r.Context())
			if err := store.InsertRequestLog(ctx, entry); err != nil {
				logger.Error("record request", "error", err, "path", entry.Path)
				return
			}
			if _, err := store.TrimRequestLogs(ctx, maxRecords); err != nil {
				logger.Error("trim request log", "error", err)
			}
		})
	}
}

// requestKind classifies path for the request log. The second result is
// false for paths that are not recorded.
func requestKind(path string) (string, bool) {
	switch {
	case path == "/mcp" || strings.HasPrefix(path, "/mcp/"):
		return model.RequestKindMCP, true
	case path == "/api/logs" || strings.HasPrefix(path, "/api/logs/"):
		return "", false
	case strings.HasPrefix(path, "/api/"):
		return model.RequestKindAPI, true
	default:
		return "", false
	}
}

// clientIP returns the host part of RemoteAddr, which RealIP has already
// rewritten from proxy headers when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
