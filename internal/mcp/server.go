package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ServerName is reported to MCP clients during initialization.
const ServerName = "toolgate"

// MCPServer wraps the mcp-go server with the toolgate tool registrations.
// Tools are reachable over streamable HTTP at /mcp and, for the admin test
// page, through Call.
type MCPServer struct {
	logger   *slog.Logger
	now      func() time.Time
	server   *server.MCPServer
	handlers map[string]server.ToolHandlerFunc
	tools    map[string]mcp.Tool
}

// Option configures an MCPServer.
type Option func(*MCPServer)

// WithClock replaces the time source used by the time tools.
func WithClock(now func() time.Time) Option {
	return func(s *MCPServer) { s.now = now }
}

// NewMCPServer creates an MCPServer pre-loaded with all tools.
func NewMCPServer(version string, logger *slog.Logger, opts ...Option) *MCPServer {
	s := &MCPServer{
		logger:   logger,
		now:      time.Now,
		handlers: map[string]server.ToolHandlerFunc{},
		tools:    map[string]mcp.Tool{},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.server = server.NewMCPServer(
		ServerName,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	s.registerTools()
	return s
}

// Server returns the underlying mcp-go MCPServer instance.
func (s *MCPServer) Server() *server.MCPServer {
	return s.server
}

// HTTPHandler returns the streamable HTTP transport as an http.Handler to be
// mounted at /mcp behind authentication. contextFunc, when non-nil, lets the
// caller copy request-scoped values (such as the caller identity) into the
// context tool handlers receive.
func (s *MCPServer) HTTPHandler(contextFunc server.HTTPContextFunc) http.Handler {
	var opts []server.StreamableHTTPOption
	if contextFunc != nil {
		opts = append(opts, server.WithHTTPContextFunc(contextFunc))
	}
	return server.NewStreamableHTTPServer(s.server, opts...)
}

// Tools returns the registered tool definitions sorted by name.
func (s *MCPServer) Tools() []mcp.Tool {
	out := make([]mcp.Tool, 0, len(s.tools))
	for _, t := range s.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Call invokes a tool directly, bypassing the MCP transport. Tool-level
// failures come back as a result with IsError set; the error return is
// reserved for unknown tools and handler failures.
func (s *MCPServer) Call(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	h, ok := s.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return h(ctx, req)
}

// addTool registers a tool on the MCP server and in the direct-call table.
func (s *MCPServer) addTool(tool mcp.Tool, h server.ToolHandlerFunc) {
	wrapped := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s.logger.Debug("tool call", "tool", tool.Name, "caller", CallerFromContext(ctx))
		return h(ctx, req)
	}
	s.server.AddTool(tool, wrapped)
	s.handlers[tool.Name] = wrapped
	s.tools[tool.Name] = tool
}

func readOnlyAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint: boolPtr(true),
	}
}

func boolPtr(b bool) *bool {
	return &b
}
