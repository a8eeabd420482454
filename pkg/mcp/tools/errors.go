package tools

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/ekaya-askdb/pkg/oracle"
)

// ErrorResponse represents a structured error in tool results.
// It is returned as tool content so the client model can read it and
// react, instead of a protocol error the client may swallow.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use it for outcomes the caller can act on (bad parameters, refusals,
// missing credentials). Internal faults are returned as Go errors.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	jsonBytes, _ := json.Marshal(ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
	})
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

var refusalMessages = map[string]string{
	oracle.CodeUnsafeQuery:     "The generated query was refused because it could modify data.",
	oracle.CodeUnscopedQuery:   "The generated query could not be restricted to your company.",
	oracle.CodeTenantRequired:  oracle.ClarificationRequest,
	oracle.CodeNoQuery:         "No query could be generated for this question.",
	oracle.CodeCompanyNotFound: oracle.CompanyNotFound,
}

// engineErrorResult converts a session error the caller can act on into an
// error result. It returns nil for internal faults.
func engineErrorResult(err error) *mcp.CallToolResult {
	code := oracle.ErrorCode(err)
	if code == "" {
		return nil
	}
	return NewErrorResult(code, refusalMessages[code])
}
