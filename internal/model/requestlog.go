package model

import "time"

// Request log kinds.
const (
	RequestKindAPI = "api"
	RequestKindMCP = "mcp"
)

// RequestLog is one recorded admin API or MCP request. Request and response
// bodies are not part of the record: they may carry passwords or freshly
// issued tokens.
type RequestLog struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Kind       string    `json:"type"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Status     int       `json:"status"`
	DurationMs int64     `json:"duration_ms"`
	ClientIP   string    `json:"client_ip"`
	UserAgent  string    `json:"user_agent"`
	Principal  string    `json:"principal"`
	RequestID  string    `json:"request_id"`
}

// RequestLogFilter narrows a request log listing.
type RequestLogFilter struct {
	Limit        int
	Offset       int
	Kind         string
	Method       string
	PathContains string
}

// RequestLogStats summarizes the request log.
type RequestLogStats struct {
	Total    int64            `json:"total"`
	ByKind   map[string]int64 `json:"by_type"`
	ByMethod map[string]int64 `json:"by_method"`
	Errors   int64            `json:"errors"`
	Last24h  int64            `json:"last_24h"`
}
