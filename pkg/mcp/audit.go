package mcp

import (
	"context"
	"fmt"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/audit"
	"github.com/ekaya-inc/ekaya-askdb/pkg/logging"
	"github.com/ekaya-inc/ekaya-askdb/pkg/metrics"
)

// Tool call statuses.
const (
	toolStatusOK        = "ok"
	toolStatusToolError = "tool_error"
	toolStatusError     = "error"
)

// ToolAuditor logs and counts every MCP tool call.
type ToolAuditor struct {
	logger *zap.Logger

	// startTimes tracks when tool calls begin.
	startTimes sync.Map
}

// NewToolAuditor creates a ToolAuditor.
func NewToolAuditor(logger *zap.Logger) *ToolAuditor {
	return &ToolAuditor{logger: logging.OrNop(logger).Named("tool-audit")}
}

// Hooks returns mcp-go Hooks configured to capture tool call events.
func (a *ToolAuditor) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(a.beforeCallTool)
	hooks.AddAfterCallTool(a.afterCallTool)
	hooks.AddOnError(a.onError)
	return hooks
}

// callKey is unique per HTTP request: JSON-RPC ids repeat across
// stateless clients.
type callKey struct {
	requestID string
	id        string
}

func keyFor(ctx context.Context, id any) callKey {
	return callKey{requestID: audit.RequestFromContext(ctx).RequestID, id: fmt.Sprint(id)}
}

func (a *ToolAuditor) beforeCallTool(ctx context.Context, id any, _ *mcplib.CallToolRequest) {
	a.startTimes.Store(keyFor(ctx, id), time.Now())
}

func (a *ToolAuditor) afterCallTool(ctx context.Context, id any, req *mcplib.CallToolRequest, result *mcplib.CallToolResult) {
	status := toolStatusOK
	if result != nil && result.IsError {
		status = toolStatusToolError
	}
	a.record(ctx, id, req.Params.Name, status, nil)
}

func (a *ToolAuditor) onError(ctx context.Context, id any, method mcplib.MCPMethod, message any, err error) {
	if method != mcplib.MethodToolsCall {
		return
	}
	req, ok := message.(*mcplib.CallToolRequest)
	if !ok {
		return
	}
	a.record(ctx, id, req.Params.Name, toolStatusError, err)
}

func (a *ToolAuditor) record(ctx context.Context, id any, tool, status string, err error) {
	start := time.Now()
	if v, ok := a.startTimes.LoadAndDelete(keyFor(ctx, id)); ok {
		start = v.(time.Time)
	}
	metrics.ObserveMCPToolCall(tool, status)

	fields := []zap.Field{
		zap.String("tool", tool),
		zap.String("status", status),
		zap.Duration("duration", time.Since(start)),
		zap.String("request_id", audit.RequestFromContext(ctx).RequestID),
	}
	if err != nil {
		a.logger.Warn("MCP tool call failed", append(fields, zap.String("error", logging.SanitizeError(err)))...)
		return
	}
	a.logger.Info("MCP tool call", fields...)
}
