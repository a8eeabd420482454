package sql

import (
	"fmt"
	"regexp"
)

// parameterRegex matches {{parameter_name}} placeholders in SQL templates.
// Parameter names must start with a letter or underscore, followed by any
// number of alphanumeric characters or underscores.
var parameterRegex = regexp.MustCompile(`^\{\{([a-zA-Z_]\w*)\}\}$`)

// ValidatePlaceholder checks that a configured tenant placeholder uses the
// {{name}} syntax the lexer recognizes.
func ValidatePlaceholder(placeholder string) error {
	if !parameterRegex.MatchString(placeholder) {
		return fmt.Errorf("placeholder %q must look like {{name}}", placeholder)
	}
	return nil
}

// PlaceholderName returns the name inside a {{name}} placeholder.
func PlaceholderName(placeholder string) string {
	m := parameterRegex.FindStringSubmatch(placeholder)
	if m == nil {
		return ""
	}
	return m[1]
}

// FindParametersInStringLiterals returns the {{param}} placeholders that
// appear inside single-quoted literals, where a bind marker would be taken
// as literal text.
//
// Example:
//
//	sql := "SELECT * FROM users WHERE note = 'for {{user_id}}'"
//	problems := FindParametersInStringLiterals(sql)
//	// problems == []string{"user_id"}
func FindParametersInStringLiterals(sqlQuery string) []string {
	tokens, err := Tokenize(sqlQuery)
	if err != nil {
		return nil
	}

	var problems []string
	seen := make(map[string]bool)
	inner := regexp.MustCompile(`\{\{([a-zA-Z_]\w*)\}\}`)
	for _, t := range tokens {
		if t.Kind != TokenString {
			continue
		}
		for _, match := range inner.FindAllStringSubmatch(t.Text, -1) {
			if !seen[match[1]] {
				seen[match[1]] = true
				problems = append(problems, match[1])
			}
		}
	}
	return problems
}
