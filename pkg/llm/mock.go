package llm

import (
	"context"
	"sync"
)

// MockClient is a configurable mock for testing oracle consumers.
// Set the function fields to control behavior in tests.
type MockClient struct {
	// CompleteFunc is called when Complete is invoked.
	// If nil, returns an empty completion and nil error.
	CompleteFunc func(ctx context.Context, req CompletionRequest) (string, error)

	// ChatFunc is called when Chat is invoked.
	// If nil, returns an empty reply and nil error.
	ChatFunc func(ctx context.Context, messages []Message) (string, error)

	// Model is returned by GetModel. Defaults to "mock-model".
	Model string

	// Endpoint is returned by GetEndpoint. Defaults to "http://mock-endpoint".
	Endpoint string

	mu            sync.Mutex
	completeCalls []CompletionRequest
	chatCalls     [][]Message
}

// NewMockClient creates a new mock with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{
		Model:    "mock-model",
		Endpoint: "http://mock-endpoint",
	}
}

// Complete implements CompletionClient.
func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	m.mu.Lock()
	m.completeCalls = append(m.completeCalls, req)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return "", nil
}

// Chat implements ChatClient.
func (m *MockClient) Chat(ctx context.Context, messages []Message) (string, error) {
	m.mu.Lock()
	m.chatCalls = append(m.chatCalls, messages)
	m.mu.Unlock()

	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, messages)
	}
	return "", nil
}

// GetModel implements LLMClient.
func (m *MockClient) GetModel() string {
	return m.Model
}

// GetEndpoint implements LLMClient.
func (m *MockClient) GetEndpoint() string {
	return m.Endpoint
}

// CompleteCalls returns the completion requests received so far.
func (m *MockClient) CompleteCalls() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CompletionRequest(nil), m.completeCalls...)
}

// ChatCalls returns the chat conversations received so far.
func (m *MockClient) ChatCalls() [][]Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]Message(nil), m.chatCalls...)
}
