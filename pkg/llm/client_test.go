package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newOpenAITestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(&Config{
		Endpoint:        srv.URL + "/v1",
		CompletionModel: "gpt-3.5-turbo-instruct",
		ChatModel:       "gpt-4o-mini",
		APIKey:          "test-key",
	}, zap.NewNop())
	require.NoError(t, err)
	return client
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(&Config{ChatModel: "x"}, zap.NewNop())
	assert.Error(t, err)
	_, err = NewClient(&Config{CompletionModel: "x"}, zap.NewNop())
	assert.Error(t, err)

	c, err := NewClient(&Config{CompletionModel: "a", ChatModel: "b"}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "a", c.GetModel())
	assert.Equal(t, "https://api.openai.com/v1", c.GetEndpoint())
}

func TestClient_Complete(t *testing.T) {
	var got map[string]any
	client := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cmpl-1","object":"text_completion","model":"gpt-3.5-turbo-instruct",
			"choices":[{"text":"SELECT * FROM orders;\"","index":0,"finish_reason":"stop"}],
			"usage":{"prompt_tokens":12,"completion_tokens":6,"total_tokens":18}}`))
	})

	text, err := client.Complete(context.Background(), CompletionRequest{
		Prompt:      "Question: how many orders?\nSQLQuery: \"",
		Temperature: 0,
		MaxTokens:   100,
		Stop:        []string{"\n"},
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM orders;\"", text)

	assert.Equal(t, "gpt-3.5-turbo-instruct", got["model"])
	assert.EqualValues(t, 100, got["max_tokens"])
	assert.Equal(t, []any{"\n"}, got["stop"])
}

func TestClient_CompleteNoChoicesIsEmpty(t *testing.T) {
	client := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cmpl-2","choices":[],"usage":{}}`))
	})

	text, err := client.Complete(context.Background(), CompletionRequest{Prompt: "x", MaxTokens: 10})
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestClient_Chat(t *testing.T) {
	client := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body.Model)
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)
		assert.Equal(t, "user", body.Messages[1].Role)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chat-1","choices":[{"index":0,"message":{"role":"assistant","content":"Sorry, there are no orders yet."}}],"usage":{}}`))
	})

	reply, err := client.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "You are a helpful assistant."},
		{Role: RoleUser, Content: "How many orders?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Sorry, there are no orders yet.", reply)
}

func TestClient_ErrorsAreClassified(t *testing.T) {
	client := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`))
	})

	_, err := client.Complete(context.Background(), CompletionRequest{Prompt: "x", MaxTokens: 1})
	require.Error(t, err)
	assert.Equal(t, ErrorTypeAuth, GetErrorType(err))

	var llmErr *Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, http.StatusUnauthorized, llmErr.StatusCode)
	assert.False(t, llmErr.IsRetryable())
}
