package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/logging"
	"github.com/ekaya-inc/ekaya-askdb/pkg/oracle"
)

// AskToolDeps contains dependencies for the question answering tools.
type AskToolDeps struct {
	Engine *oracle.Engine
	Logger *zap.Logger
}

type secretKeyContextKey struct{}

// WithSecretKey attaches a secret key taken from the transport (for example
// an HTTP header). A secret_key tool argument takes precedence.
func WithSecretKey(ctx context.Context, secretKey string) context.Context {
	if secretKey == "" {
		return ctx
	}
	return context.WithValue(ctx, secretKeyContextKey{}, secretKey)
}

// SecretKeyFromContext returns the key set by WithSecretKey, if any.
func SecretKeyFromContext(ctx context.Context) string {
	key, _ := ctx.Value(secretKeyContextKey{}).(string)
	return key
}

// RegisterAskTools registers ask_database and generate_sql.
func RegisterAskTools(s *server.MCPServer, deps *AskToolDeps) {
	registerAskDatabaseTool(s, deps)
	registerGenerateSQLTool(s, deps)
}

func questionTool(name, description string) mcp.Tool {
	return mcp.NewTool(
		name,
		mcp.WithDescription(description),
		mcp.WithString(
			"question",
			mcp.Required(),
			mcp.Description("The question, in natural language (e.g., 'How many orders did I place last month?')"),
		),
		mcp.WithString(
			"secret_key",
			mcp.Description("Optional - Secret key identifying your company. Defaults to the X-Secret-Key header of the connection."),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)
}

func registerAskDatabaseTool(s *server.MCPServer, deps *AskToolDeps) {
	tool := questionTool(
		"ask_database",
		"Answer a question about your company's data. The question is turned into a read-only SQL query "+
			"restricted to your company, the query is run, and the result is explained in plain language.",
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, session, result := openSession(ctx, deps, req)
		if result != nil {
			return result, nil
		}

		answer, err := session.Ask(ctx, question)
		if err != nil {
			if errResult := engineErrorResult(err); errResult != nil {
				return errResult, nil
			}
			return nil, fmt.Errorf("failed to answer question: %w", err)
		}

		jsonResult, err := json.Marshal(answer)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal answer: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

func registerGenerateSQLTool(s *server.MCPServer, deps *AskToolDeps) {
	tool := questionTool(
		"generate_sql",
		"Generate the read-only SQL query that would answer a question about your company's data, "+
			"already restricted to your company, without running it.",
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, session, result := openSession(ctx, deps, req)
		if result != nil {
			return result, nil
		}

		sql, err := session.GetQuery(ctx, question)
		if err != nil {
			if errResult := engineErrorResult(err); errResult != nil {
				return errResult, nil
			}
			return nil, fmt.Errorf("failed to generate query: %w", err)
		}

		jsonResult, err := json.Marshal(map[string]string{"sql": sql})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal query: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

// openSession validates the arguments and binds the caller's tenant. A
// non-nil result is an error result to return as is.
func openSession(ctx context.Context, deps *AskToolDeps, req mcp.CallToolRequest) (string, *oracle.Session, *mcp.CallToolResult) {
	question, err := req.RequireString("question")
	if err != nil {
		return "", nil, NewErrorResult("invalid_parameters", "parameter 'question' is required")
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return "", nil, NewErrorResult("invalid_parameters", "parameter 'question' cannot be empty")
	}

	session := deps.Engine.NewSession()
	secretKey := req.GetString("secret_key", "")
	if secretKey == "" {
		secretKey = SecretKeyFromContext(ctx)
	}
	if secretKey == "" {
		return question, session, nil
	}

	bound, err := session.AuthenticateWithSecretKey(ctx, secretKey)
	if err != nil {
		logging.OrNop(deps.Logger).Warn("Tenant lookup failed", zap.Error(err))
		return "", nil, engineErrorResult(err)
	}
	if !bound {
		return "", nil, NewErrorResult("invalid_secret_key", "Invalid secret key")
	}
	return question, session, nil
}
