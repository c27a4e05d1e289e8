package handler

import (
	"errors"
	"net/http"

	"github.com/toolgate/toolgate/internal/mcp"
	"github.com/toolgate/toolgate/internal/server/middleware"
)

// ToolHandler lets the admin UI list and try out MCP tools without an MCP
// client.
type ToolHandler struct {
	mcp *mcp.MCPServer
}

// NewToolHandler creates a new ToolHandler.
func NewToolHandler(mcpSrv *mcp.MCPServer) *ToolHandler {
	return &ToolHandler{mcp: mcpSrv}
}

// toolInfo describes a single tool.
type toolInfo struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"input_schema"`
}

// ListTools returns the registered tools sorted by name.
// GET /api/tools
func (h *ToolHandler) ListTools(w http.ResponseWriter, r *http.Request) {
	tools := h.mcp.Tools()
	out := make([]toolInfo, 0, len(tools))
	for _, t := range tools {
		out = append(out, toolInfo{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	writeListJSON(w, out, len(out), 0, 0)
}

// callRequest is the expected payload for Call.
type callRequest struct {
	Tool   string                 `json:"tool"`
	Params map[string]interface{} `json:"params"`
}

// callResponse reports a tool result. Tool-level failures are a 200 with
// success=false so the caller can show the message.
type callResponse struct {
	Success bool   `json:"success"`
	Result  string `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Call invokes a tool by name.
// POST /api/call
func (h *ToolHandler) Call(w http.ResponseWriter, r *http.Request) {
	var req callRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Tool == "" {
		writeError(w, http.StatusBadRequest, "Tool name is required")
		return
	}

	ctx := mcp.WithCaller(r.Context(), middleware.GetAuth(r.Context()).Principal())
	res, err := h.mcp.Call(ctx, req.Tool, req.Params)
	if err != nil {
		if errors.Is(err, mcp.ErrUnknownTool) {
			writeError(w, http.StatusNotFound, "Tool not found: "+req.Tool)
			return
		}
		writeError(w, http.StatusInternalServerError, "Tool call failed: "+err.Error())
		return
	}

	text := mcp.ResultText(res)
	if res.IsError {
		writeJSON(w, http.StatusOK, callResponse{Success: false, Error: text})
		return
	}
	writeJSON(w, http.StatusOK, callResponse{Success: true, Result: text})
}
