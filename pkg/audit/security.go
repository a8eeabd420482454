// Package audit provides security audit logging for SIEM consumption.
// It logs security-relevant events in structured JSON format for easy parsing
// and integration with security information and event management systems.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ekaya-inc/ekaya-askdb/pkg/logging"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventTenantBound is logged when a session is bound to a company.
	EventTenantBound SecurityEventType = "tenant_bound"
	// EventAuthenticationFailed is logged when a secret key resolves to no tenant.
	EventAuthenticationFailed SecurityEventType = "authentication_failed"
	// EventSQLInjectionAttempt is logged when libinjection detects SQL injection patterns.
	EventSQLInjectionAttempt SecurityEventType = "sql_injection_attempt"
	// EventUnsafeQuery is logged when strict mode refuses a generated statement.
	EventUnsafeQuery SecurityEventType = "unsafe_query_refused"
	// EventUnscopedQuery is logged when a generated statement could not be tenant scoped.
	EventUnscopedQuery SecurityEventType = "unscoped_query_refused"
)

// Severity levels.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// SecurityEvent represents an auditable security event with all relevant context
// for SIEM ingestion and analysis.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	RequestID string            `json:"request_id,omitempty"`
	CompanyID string            `json:"company_id,omitempty"`
	UserID    string            `json:"user_id,omitempty"`
	ClientIP  string            `json:"client_ip,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// SQLInjectionDetails contains specifics of a detected SQL injection attempt.
type SQLInjectionDetails struct {
	ParamName   string `json:"param_name"`
	ParamValue  string `json:"param_value"` // redacted before logging
	Fingerprint string `json:"fingerprint"` // libinjection fingerprint for pattern analysis
}

// RefusedQueryDetails describes a generated statement that was not run.
type RefusedQueryDetails struct {
	Query  string `json:"query"`
	Reason string `json:"reason"`
}

type requestKey struct{}

// RequestInfo is the per-request context attached to audit events.
type RequestInfo struct {
	RequestID string
	ClientIP  string
}

// WithRequest returns a context carrying request metadata for audit events.
func WithRequest(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestKey{}, info)
}

// RequestFromContext returns the request metadata, if any.
func RequestFromContext(ctx context.Context) RequestInfo {
	info, _ := ctx.Value(requestKey{}).(RequestInfo)
	return info
}

// SecurityAuditor logs security events for SIEM consumption.
// Events are logged in structured JSON format with appropriate severity levels.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates a new security auditor with a dedicated logger namespace.
// The logger is automatically configured with "security_audit" namespace for easy
// filtering in SIEM systems.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logging.OrNop(logger).Named("security_audit")}
}

// LogTenantBound records the identity a session was bound to.
func (a *SecurityAuditor) LogTenantBound(ctx context.Context, companyID, userID, method string) {
	a.log(ctx, zap.InfoLevel, "Tenant bound", SecurityEvent{
		EventType: EventTenantBound,
		CompanyID: companyID,
		UserID:    userID,
		Details:   map[string]string{"method": method},
		Severity:  SeverityInfo,
	}, zap.String("method", method))
}

// LogAuthenticationFailed records a secret key that matched no tenant.
// Only the redacted key prefix is logged.
func (a *SecurityAuditor) LogAuthenticationFailed(ctx context.Context, secretKey string) {
	redacted := logging.RedactSecret(secretKey)
	a.log(ctx, zap.WarnLevel, "Authentication failed", SecurityEvent{
		EventType: EventAuthenticationFailed,
		Details:   map[string]string{"secret_key": redacted},
		Severity:  SeverityWarning,
	}, zap.String("secret_key", redacted))
}

// LogInjectionAttempt records a detected SQL injection attempt with full context.
// This is logged at ERROR level with "critical" severity for immediate alerting.
//
// Example usage:
//
//	auditor.LogInjectionAttempt(ctx, audit.SQLInjectionDetails{
//	    ParamName:   "secret_key",
//	    ParamValue:  "'; DROP TABLE users--",
//	    Fingerprint: "s&1c",
//	})
func (a *SecurityAuditor) LogInjectionAttempt(ctx context.Context, details SQLInjectionDetails) {
	details.ParamValue = logging.RedactSecret(details.ParamValue)
	a.log(ctx, zap.ErrorLevel, "SQL injection attempt detected", SecurityEvent{
		EventType: EventSQLInjectionAttempt,
		Details:   details,
		Severity:  SeverityCritical,
	},
		zap.String("param_name", details.ParamName),
		zap.String("fingerprint", details.Fingerprint),
	)
}

// LogUnsafeQuery records a statement refused by the strict mode blocklist.
func (a *SecurityAuditor) LogUnsafeQuery(ctx context.Context, companyID, query, reason string) {
	a.logRefusal(ctx, EventUnsafeQuery, "Unsafe query refused", companyID, query, reason)
}

// LogUnscopedQuery records a statement that could not be restricted to the tenant.
func (a *SecurityAuditor) LogUnscopedQuery(ctx context.Context, companyID, query, reason string) {
	a.logRefusal(ctx, EventUnscopedQuery, "Unscoped query refused", companyID, query, reason)
}

func (a *SecurityAuditor) logRefusal(ctx context.Context, eventType SecurityEventType, msg, companyID, query, reason string) {
	sanitized := logging.SanitizeQuery(query)
	a.log(ctx, zap.WarnLevel, msg, SecurityEvent{
		EventType: eventType,
		CompanyID: companyID,
		Details:   RefusedQueryDetails{Query: sanitized, Reason: reason},
		Severity:  SeverityWarning,
	},
		zap.String("query", sanitized),
		zap.String("reason", reason),
	)
}

func (a *SecurityAuditor) log(ctx context.Context, level zapcore.Level, msg string, event SecurityEvent, extra ...zap.Field) {
	info := RequestFromContext(ctx)
	event.Timestamp = time.Now().UTC()
	event.RequestID = info.RequestID
	event.ClientIP = info.ClientIP

	// Ignoring error as marshaling known types should never fail
	eventJSON, _ := json.Marshal(event)

	fields := append([]zap.Field{
		zap.String("event_json", string(eventJSON)),
		zap.String("event_type", string(event.EventType)),
		zap.String("request_id", event.RequestID),
		zap.String("company_id", event.CompanyID),
		zap.String("user_id", event.UserID),
		zap.String("client_ip", event.ClientIP),
		zap.String("severity", event.Severity),
	}, extra...)

	if ce := a.logger.Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}
