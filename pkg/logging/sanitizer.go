package logging

import (
	"regexp"
)

const (
	// MaxQueryLogLength is the maximum length of a query to log
	MaxQueryLogLength = 200
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
	// secretPrefixLen is how much of a secret key survives redaction
	secretPrefixLen = 4
)

var (
	// password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9-_]{20,}`)

	// OpenAI style bearer keys that leak into provider error strings
	providerKeyPattern = regexp.MustCompile(`sk-[A-Za-z0-9-_]{8,}`)

	// user:pass@host
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s]+`)

	// secret_key = '...' comparisons the model sometimes writes into SQL
	secretKeyLiteralPattern = regexp.MustCompile(`(?i)(secret_key\s*=\s*)'[^']*'`)
)

// SanitizeConnectionString removes sensitive data from connection strings.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
	return sanitized
}

// SanitizeError sanitizes error messages that might contain credentials.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(err.Error(), "${1}="+RedactedText)
	sanitized = apiKeyPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	sanitized = providerKeyPattern.ReplaceAllString(sanitized, RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
	sanitized = secretKeyLiteralPattern.ReplaceAllString(sanitized, "${1}'"+RedactedText+"'")
	return sanitized
}

// SanitizeQuery truncates a SQL query for logging and masks secret key literals.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}

	sanitized := secretKeyLiteralPattern.ReplaceAllString(query, "${1}'"+RedactedText+"'")
	sanitized = passwordPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	sanitized = apiKeyPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	return TruncateString(sanitized, MaxQueryLogLength)
}

// RedactSecret keeps a short prefix of a caller secret so log lines can be
// correlated without exposing the key.
func RedactSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= secretPrefixLen {
		return RedactedText
	}
	return secret[:secretPrefixLen] + "..." + RedactedText
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
