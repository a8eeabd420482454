// Package mcp serves the question answering tools over the Model Context
// Protocol.
package mcp

import (
	"context"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/logging"
	"github.com/ekaya-inc/ekaya-askdb/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-askdb/pkg/oracle"
)

// SecretKeyHeader lets MCP clients authenticate a whole connection.
const SecretKeyHeader = "X-Secret-Key"

// Server wraps the mcp-go MCPServer.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates an MCP server whose tool calls are audited.
func NewServer(name, version string, logger *zap.Logger) *Server {
	logger = logging.OrNop(logger).Named("mcp")
	auditor := NewToolAuditor(logger)

	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithHooks(auditor.Hooks()),
	)

	return &Server{
		mcp:    mcpServer,
		logger: logger,
	}
}

// NewAskServer creates a server with the question answering tools registered.
func NewAskServer(name, version string, engine *oracle.Engine, logger *zap.Logger) *Server {
	s := NewServer(name, version, logger)
	tools.RegisterAskTools(s.mcp, &tools.AskToolDeps{Engine: engine, Logger: s.logger})
	return s
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// NewStreamableHTTPServer creates an HTTP transport server wrapping this MCP server.
// The HTTP mux handles routing to /mcp, so no endpoint path is configured here.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
		server.WithHTTPContextFunc(secretKeyFromHeader),
	)
}

func secretKeyFromHeader(ctx context.Context, r *http.Request) context.Context {
	return tools.WithSecretKey(ctx, r.Header.Get(SecretKeyHeader))
}

// RegisterTool is a convenience wrapper for registering a tool.
func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
}
