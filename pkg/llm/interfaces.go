// Package llm provides the completion and chat oracles used to synthesize
// SQL and prose answers, backed by OpenAI-compatible or Anthropic endpoints.
package llm

import (
	"context"
)

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    Role
	Content string
}

// CompletionRequest is a plain text completion call.
type CompletionRequest struct {
	Prompt      string
	Temperature float32
	MaxTokens   int
	Stop        []string
}

// CompletionClient continues a prompt.
type CompletionClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// ChatClient answers a conversation.
type ChatClient interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// LLMClient is the full oracle surface the pipeline depends on.
// Use this interface for dependency injection to enable mocking in tests.
type LLMClient interface {
	CompletionClient
	ChatClient

	// GetModel returns the configured completion model name.
	GetModel() string

	// GetEndpoint returns the configured endpoint.
	GetEndpoint() string
}

// Ensure implementations satisfy LLMClient at compile time.
var (
	_ LLMClient = (*Client)(nil)
	_ LLMClient = (*AnthropicClient)(nil)
	_ LLMClient = (*ResilientClient)(nil)
	_ LLMClient = (*MockClient)(nil)
)
