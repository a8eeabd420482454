package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/audit"
	"github.com/ekaya-inc/ekaya-askdb/pkg/oracle"
)

// SecretKeyHeader carries the tenant secret key when it is not in the body.
const SecretKeyHeader = "X-Secret-Key"

const maxRequestBytes = 64 << 10

// QuestionRequest is the body of POST /api/ask and POST /api/query.
type QuestionRequest struct {
	Question  string `json:"question"`
	SecretKey string `json:"secret_key,omitempty"`
}

// QueryResponse is the body returned by POST /api/query.
type QueryResponse struct {
	SQL       string `json:"sql"`
	RequestID string `json:"request_id,omitempty"`
}

// AskHandler exposes the question answering engine over HTTP. Every request
// runs in its own session, so tenant state never leaks between callers.
type AskHandler struct {
	engine *oracle.Engine
	logger *zap.Logger
}

// NewAskHandler creates a new AskHandler.
func NewAskHandler(engine *oracle.Engine, logger *zap.Logger) *AskHandler {
	return &AskHandler{engine: engine, logger: logger}
}

// RegisterRoutes registers the handler's routes on the given mux.
func (h *AskHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/ask", h.Ask)
	mux.HandleFunc("POST /api/query", h.Query)
}

// Ask handles POST /api/ask.
func (h *AskHandler) Ask(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	session, ok := h.session(w, r, req)
	if !ok {
		return
	}

	answer, err := session.Ask(r.Context(), req.Question)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, answer); err != nil {
		h.logger.Error("Failed to encode answer", zap.Error(err))
	}
}

// Query handles POST /api/query. It returns the tenant scoped SQL without
// running it.
func (h *AskHandler) Query(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	session, ok := h.session(w, r, req)
	if !ok {
		return
	}

	sql, err := session.GetQuery(r.Context(), req.Question)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response := QueryResponse{
		SQL:       sql,
		RequestID: audit.RequestFromContext(r.Context()).RequestID,
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode query response", zap.Error(err))
	}
}

func (h *AskHandler) decode(w http.ResponseWriter, r *http.Request) (QuestionRequest, bool) {
	var req QuestionRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respond(w, r, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return req, false
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		h.respond(w, r, http.StatusBadRequest, "invalid_request", "question is required")
		return req, false
	}
	if req.SecretKey == "" {
		req.SecretKey = r.Header.Get(SecretKeyHeader)
	}
	return req, true
}

// session opens a session and, when a secret key was supplied, binds its
// tenant. Without a key the session stays unscoped and the engine decides
// whether that is acceptable.
func (h *AskHandler) session(w http.ResponseWriter, r *http.Request, req QuestionRequest) (*oracle.Session, bool) {
	session := h.engine.NewSession()
	if req.SecretKey == "" {
		return session, true
	}

	bound, err := session.AuthenticateWithSecretKey(r.Context(), req.SecretKey)
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	if !bound {
		h.respond(w, r, http.StatusUnauthorized, "invalid_secret_key", "Invalid secret key")
		return nil, false
	}
	return session, true
}

func (h *AskHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Question request failed", zap.Error(err))
	}
	h.respond(w, r, status, code, message)
}

// errorStatus maps engine errors to an HTTP status, error code and message.
func errorStatus(err error) (int, string, string) {
	switch code := oracle.ErrorCode(err); code {
	case oracle.CodeUnsafeQuery:
		return http.StatusUnprocessableEntity, code, "The generated query was refused"
	case oracle.CodeUnscopedQuery:
		return http.StatusUnprocessableEntity, code, "The generated query could not be restricted to your company"
	case oracle.CodeTenantRequired:
		return http.StatusUnauthorized, code, oracle.ClarificationRequest
	case oracle.CodeNoQuery:
		return http.StatusUnprocessableEntity, code, "No query could be generated for this question"
	case oracle.CodeCompanyNotFound:
		return http.StatusServiceUnavailable, code, oracle.CompanyNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "timeout", "The request timed out"
	}
	return http.StatusInternalServerError, "internal_error", oracle.GenericApology
}

func (h *AskHandler) respond(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	if err := ErrorResponse(w, r, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
