package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/audit"
)

const maxLoggedArgument = 200

// MCPRequestLogger returns middleware that logs MCP JSON-RPC tool calls.
// Secret arguments are redacted and long questions truncated.
// Pass nil logger to disable logging.
func MCPRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				logger.Error("Failed to read MCP request body", zap.Error(err))
				http.Error(w, "failed to read request body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			var call rpcCall
			if err := json.Unmarshal(body, &call); err != nil {
				// Batches and malformed bodies are left to the transport.
				logger.Debug("MCP request is not a single JSON-RPC call", zap.Error(err))
			}
			requestID := audit.RequestFromContext(r.Context()).RequestID

			logger.Debug("MCP request",
				zap.String("request_id", requestID),
				zap.String("method", call.Method),
				zap.String("tool", call.Params.Name),
				zap.Any("arguments", redactArguments(call.Params.Arguments)),
			)

			recorder := &bodyRecorder{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(recorder, r)

			var reply rpcReply
			if err := json.Unmarshal(recorder.body.Bytes(), &reply); err != nil {
				return
			}
			fields := []zap.Field{
				zap.String("request_id", requestID),
				zap.String("tool", call.Params.Name),
				zap.Duration("duration", time.Since(start)),
			}
			switch {
			case reply.Error != nil:
				logger.Debug("MCP call failed", append(fields,
					zap.Int("error_code", reply.Error.Code),
					zap.String("error_message", reply.Error.Message),
				)...)
			case reply.Result.IsError:
				logger.Debug("MCP tool returned an error result", fields...)
			default:
				logger.Debug("MCP call succeeded", fields...)
			}
		})
	}
}

type rpcCall struct {
	Method string `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
}

type rpcReply struct {
	Result struct {
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type bodyRecorder struct {
	http.ResponseWriter
	body bytes.Buffer
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *bodyRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

var sensitiveArgumentNames = []string{"secret", "key", "token", "password", "credential"}

// redactArguments hides values of sensitive arguments and truncates long
// strings.
func redactArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for name, value := range args {
		if isSensitiveArgument(name) {
			out[name] = "[REDACTED]"
			continue
		}
		if s, ok := value.(string); ok && len(s) > maxLoggedArgument {
			value = s[:maxLoggedArgument] + "..."
		}
		out[name] = value
	}
	return out
}

func isSensitiveArgument(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range sensitiveArgumentNames {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
