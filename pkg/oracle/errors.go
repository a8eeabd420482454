package oracle

import (
	"errors"
	"fmt"
)

var (
	// ErrTenantRequired indicates a question was asked before a tenant was bound
	// while tenant binding is required.
	ErrTenantRequired = errors.New("a tenant must be bound before asking questions")
	// ErrNoQuery indicates the model produced no SQL statement for the question.
	ErrNoQuery = errors.New("no SQL query could be generated for the question")
)

// UnsafeQueryError reports a generated statement refused by strict mode.
type UnsafeQueryError struct {
	Query   string
	Keyword string
}

func (e *UnsafeQueryError) Error() string {
	return fmt.Sprintf("potentially unsafe query %q: contains %q", e.Query, e.Keyword)
}

// ValidationError reports a failure of the existence check query, usually
// malformed SQL from the model.
type ValidationError struct {
	Query string
	Cause error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("failed to validate data existence with query %q: %v", e.Query, e.Cause)
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// ScopeError reports a generated statement that could not be restricted
// to the bound tenant. The statement is never executed.
type ScopeError struct {
	Query  string
	Reason string
	Cause  error
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("query cannot be tenant scoped (%s): %q", e.Reason, e.Query)
}

func (e *ScopeError) Unwrap() error {
	return e.Cause
}

// IsRefusal reports whether err is a deliberate refusal (unsafe or
// unscopable query) rather than a failure.
func IsRefusal(err error) bool {
	var unsafe *UnsafeQueryError
	var scope *ScopeError
	return errors.As(err, &unsafe) || errors.As(err, &scope)
}

// Error codes reported to callers of the HTTP and MCP surfaces.
const (
	CodeUnsafeQuery     = "unsafe_query"
	CodeUnscopedQuery   = "unscoped_query"
	CodeTenantRequired  = "tenant_required"
	CodeNoQuery         = "no_query"
	CodeCompanyNotFound = "company_not_found"
)

// ErrorCode classifies an error returned by a Session. It returns "" for
// errors that are internal faults.
func ErrorCode(err error) string {
	var unsafe *UnsafeQueryError
	var scope *ScopeError
	switch {
	case errors.As(err, &unsafe):
		return CodeUnsafeQuery
	case errors.As(err, &scope):
		return CodeUnscopedQuery
	case errors.Is(err, ErrTenantRequired):
		return CodeTenantRequired
	case errors.Is(err, ErrNoQuery):
		return CodeNoQuery
	case errors.Is(err, ErrCompanyNotFound):
		return CodeCompanyNotFound
	default:
		return ""
	}
}
