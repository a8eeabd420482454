package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func serveMCP(t *testing.T, reqBody, respBody string) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The transport must still see the full body.
		got, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, reqBody, string(got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(respBody))
	})

	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(reqBody))
	MCPRequestLogger(zap.New(core))(handler).ServeHTTP(httptest.NewRecorder(), req)
	return logs
}

func TestMCPRequestLogger_Success(t *testing.T) {
	logs := serveMCP(t,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"ask_database","arguments":{"question":"How many orders?","secret_key":"key-7"}}}`,
		`{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"Two."}]}}`,
	)

	require.Equal(t, 2, logs.Len())
	request := logs.All()[0]
	assert.Equal(t, "MCP request", request.Message)
	assert.Equal(t, "tools/call", request.ContextMap()["method"])
	assert.Equal(t, "ask_database", request.ContextMap()["tool"])
	args, ok := request.ContextMap()["arguments"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "[REDACTED]", args["secret_key"])
	assert.Equal(t, "How many orders?", args["question"])

	assert.Equal(t, "MCP call succeeded", logs.All()[1].Message)
}

func TestMCPRequestLogger_Errors(t *testing.T) {
	tests := []struct {
		name     string
		response string
		message  string
	}{
		{"rpc error", `{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"unknown tool"}}`, "MCP call failed"},
		{"tool error", `{"jsonrpc":"2.0","id":1,"result":{"isError":true,"content":[]}}`, "MCP tool returned an error result"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := serveMCP(t,
				`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"generate_sql","arguments":{}}}`,
				tt.response,
			)
			require.Equal(t, 2, logs.Len())
			assert.Equal(t, tt.message, logs.All()[1].Message)
		})
	}
}

func TestMCPRequestLogger_NonJSONResponse(t *testing.T) {
	logs := serveMCP(t, `{"jsonrpc":"2.0","id":1,"method":"ping"}`, "event: message\n")
	assert.Equal(t, 1, logs.Len())
}

func TestMCPRequestLogger_NilLogger(t *testing.T) {
	called := false
	handler := MCPRequestLogger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/mcp", nil))
	assert.True(t, called)
}

func TestRedactArguments(t *testing.T) {
	long := strings.Repeat("x", 250)
	got := redactArguments(map[string]any{
		"secret_key": "key-7",
		"api_token":  "t",
		"question":   long,
		"limit":      float64(3),
	})

	assert.Equal(t, "[REDACTED]", got["secret_key"])
	assert.Equal(t, "[REDACTED]", got["api_token"])
	assert.Equal(t, long[:maxLoggedArgument]+"...", got["question"])
	assert.Equal(t, float64(3), got["limit"])
	assert.Nil(t, redactArguments(nil))
}
