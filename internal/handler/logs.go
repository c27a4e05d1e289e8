package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/toolgate/toolgate/internal/config"
	"github.com/toolgate/toolgate/internal/model"
)

// LogHandler serves the request log.
type LogHandler struct {
	store *config.Store
}

// NewLogHandler creates a new LogHandler.
func NewLogHandler(store *config.Store) *LogHandler {
	return &LogHandler{store: store}
}

// logListResponse is a page of the request log plus summary statistics.
type logListResponse struct {
	Resource []model.RequestLog     `json:"resource"`
	Meta     *model.ResponseMeta    `json:"meta"`
	Stats    *model.RequestLogStats `json:"stats"`
}

// ListLogs returns recorded requests, newest first.
// GET /api/logs?limit=&offset=&type=&method=&path=
func (h *LogHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	filter := model.RequestLogFilter{
		Limit:        clampInt(queryInt(r, "limit", config.DefaultRequestLogLimit), 1, config.MaxRequestLogLimit),
		Offset:       clampInt(queryInt(r, "offset", 0), 0, 1<<31-1),
		Kind:         queryString(r, "type"),
		Method:       queryString(r, "method"),
		PathContains: queryString(r, "path"),
	}

	logs, err := h.store.ListRequestLogs(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list request logs: "+err.Error())
		return
	}
	stats, err := h.store.RequestLogStats(r.Context(), time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to summarize request logs: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, logListResponse{
		Resource: logs,
		Meta: &model.ResponseMeta{
			Count:  len(logs),
			Limit:  filter.Limit,
			Offset: filter.Offset,
		},
		Stats: stats,
	})
}

// GetLog returns a single recorded request.
// GET /api/logs/{id}
func (h *LogHandler) GetLog(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, err := h.store.GetRequestLog(r.Context(), id)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Request log not found: "+id)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get request log: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// ClearLogs deletes every recorded request.
// DELETE /api/logs
func (h *LogHandler) ClearLogs(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.ClearRequestLogs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to clear request logs: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"deleted": n,
	})
}

// writeListJSON writes the standard list envelope.
func writeListJSON(w http.ResponseWriter, resource interface{}, count, limit, offset int) {
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: resource,
		Meta: &model.ResponseMeta{
			Count:  count,
			Limit:  limit,
			Offset: offset,
		},
	})
}
