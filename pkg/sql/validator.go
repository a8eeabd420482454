// Package sql provides SQL lexing, validation and rewriting utilities for
// model-generated queries.
package sql

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMultipleStatements indicates the query contains multiple SQL statements.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")
	// ErrEmptyStatement indicates nothing but whitespace, comments or semicolons.
	ErrEmptyStatement = errors.New("empty SQL statement")
)

// trimCutset mirrors PHP's default trim set plus the statement terminator.
const trimCutset = " \t\n\r\x00\x0B;"

// ValidationResult contains the normalized SQL and any validation errors.
type ValidationResult struct {
	NormalizedSQL string
	Error         error
}

// ValidateAndNormalize checks SQL for multiple statements and strips
// trailing semicolons.
//
// The validation order is:
// 1. Strip surrounding whitespace and trailing semicolons (normalize)
// 2. Tokenize, which rejects unterminated literals and unbalanced parens
// 3. Reject any remaining semicolon outside literals and comments
func ValidateAndNormalize(sqlQuery string) ValidationResult {
	normalized := TrimStatement(sqlQuery)
	if normalized == "" {
		return ValidationResult{NormalizedSQL: normalized}
	}

	tokens, err := Tokenize(normalized)
	if err != nil {
		return ValidationResult{Error: err}
	}
	if hasSemicolonOutsideStrings(tokens) {
		return ValidationResult{Error: ErrMultipleStatements}
	}

	return ValidationResult{NormalizedSQL: normalized}
}

// TrimStatement removes surrounding whitespace and any trailing semicolons.
func TrimStatement(sqlQuery string) string {
	return strings.Trim(sqlQuery, trimCutset)
}

// CountWrap wraps a single read statement so that it returns its row count.
func CountWrap(sqlQuery string) (string, error) {
	result := ValidateAndNormalize(sqlQuery)
	if result.Error != nil {
		return "", result.Error
	}
	if result.NormalizedSQL == "" {
		return "", ErrEmptyStatement
	}
	return fmt.Sprintf("SELECT COUNT(*) AS count FROM (%s) AS sub", result.NormalizedSQL), nil
}

// IsSelect reports whether the statement is a query (SELECT, or a WITH
// common table expression), ignoring leading parentheses and comments.
func IsSelect(sqlQuery string) bool {
	tokens, err := Tokenize(TrimStatement(sqlQuery))
	if err != nil {
		return false
	}
	for _, t := range tokens {
		if !t.Significant() || t.IsPunct("(") {
			continue
		}
		return t.IsKeyword("select") || t.IsKeyword("with")
	}
	return false
}

func hasSemicolonOutsideStrings(tokens []Token) bool {
	for _, t := range tokens {
		if t.IsPunct(";") {
			return true
		}
	}
	return false
}
