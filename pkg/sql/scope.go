package sql

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotSelect indicates the statement is not a query.
	ErrNotSelect = errors.New("statement is not a SELECT query")
	// ErrSetOperation indicates a top-level UNION/INTERSECT/EXCEPT, which a
	// single tenant predicate cannot cover.
	ErrSetOperation = errors.New("set operations cannot be tenant scoped")
	// ErrNoFromClause indicates a query without a top-level FROM.
	ErrNoFromClause = errors.New("query has no FROM clause to scope")
	// ErrUnqualifiableSource indicates a joined query whose first source has no usable name.
	ErrUnqualifiableSource = errors.New("first FROM source has no name or alias to qualify the tenant column")
	// ErrForbiddenColumn indicates a reference to the secret key column
	// that the rewrite could not remove.
	ErrForbiddenColumn = errors.New("query references a forbidden column")
	// ErrPlaceholderMissing indicates the placeholder token is absent.
	ErrPlaceholderMissing = errors.New("query does not contain the tenant placeholder")
	// ErrPlaceholderInLiteral indicates the placeholder sits inside a string literal.
	ErrPlaceholderInLiteral = errors.New("tenant placeholder appears inside a string literal")
	// ErrNestedSelect indicates a subquery, derived table or CTE body. The
	// tenant predicate only covers the top-level FROM.
	ErrNestedSelect = errors.New("nested SELECT cannot be tenant scoped")
	// ErrComment indicates a comment in generated SQL.
	ErrComment = errors.New("generated SQL may not contain comments")
	// ErrAmbiguousLiteral indicates a literal or quoted identifier holding
	// quote, backslash or comment characters, whose extent dialects disagree on.
	ErrAmbiguousLiteral = errors.New("literal contains quote, backslash or comment characters")
	// ErrAmbiguousSyntax indicates dollar quoting or a # comment marker.
	ErrAmbiguousSyntax = errors.New("query uses dollar quoting or # outside a literal")
)

// ambiguousInLiteral may not appear inside a literal or quoted identifier.
var ambiguousInLiteral = []string{"'", `"`, "`", `\`, "--", "/*", "*/"}

// clauseKeywords end the WHERE clause of a SELECT at the top level.
var clauseKeywords = map[string]bool{
	"group":   true,
	"having":  true,
	"order":   true,
	"limit":   true,
	"offset":  true,
	"fetch":   true,
	"window":  true,
	"qualify": true,
	"for":     true,
}

var setOperators = map[string]bool{
	"union":     true,
	"intersect": true,
	"except":    true,
	"minus":     true,
}

// fromTerminators end a bare table alias in the FROM clause.
var fromTerminators = map[string]bool{
	"join": true, "inner": true, "left": true, "right": true, "full": true, "cross": true,
	"natural": true, "outer": true, "on": true, "using": true, "where": true, "lateral": true,
	"straight_join": true, "tablesample": true, "with": true,
}

// ClauseOptions configures the clause strategy rewrite.
type ClauseOptions struct {
	// TenantColumn is the column compared against the bound tenant.
	TenantColumn string
	// ForbiddenColumns may not survive anywhere in the scoped statement.
	ForbiddenColumns []string
	// Lex is the literal syntax of the target dialect.
	Lex LexOptions
}

// ScopeWithClause rewrites a SELECT so that its top-level WHERE carries
// exactly one `<tenant column> = <value>` predicate.
//
// Top-level AND-conjuncts that compare the tenant column or a forbidden
// column with a single value are removed first, which makes the rewrite
// idempotent. value is inserted verbatim and is expected to be a parameter
// marker or a rendered literal. Statements with comments, ambiguous
// literals, set operations or nested SELECTs are refused.
func ScopeWithClause(sqlQuery string, opts ClauseOptions, value string) (string, error) {
	if opts.TenantColumn == "" {
		return "", fmt.Errorf("tenant column is required")
	}

	normalized, tokens, err := generatedTokens(sqlQuery, opts.Lex)
	if err != nil {
		return "", err
	}
	if !IsSelect(normalized) {
		return "", ErrNotSelect
	}
	tokens = significantWithSpaces(tokens)
	if err := checkNestedSelect(tokens); err != nil {
		return "", err
	}

	fromIdx, whereIdx, tailIdx := -1, -1, len(tokens)
	for i, t := range tokens {
		if t.Depth != 0 || t.Kind != TokenWord {
			continue
		}
		word := strings.ToLower(t.Text)
		switch {
		case setOperators[word]:
			return "", ErrSetOperation
		case word == "from" && fromIdx < 0:
			fromIdx = i
		case word == "where" && fromIdx >= 0 && whereIdx < 0:
			whereIdx = i
		case clauseKeywords[word] && fromIdx >= 0 && i < tailIdx && isClauseStart(tokens, i):
			tailIdx = i
		}
	}
	if fromIdx < 0 {
		return "", ErrNoFromClause
	}
	if whereIdx > tailIdx {
		whereIdx = -1
	}

	fromEnd := tailIdx
	if whereIdx >= 0 {
		fromEnd = whereIdx
	}
	qualifier, err := tenantQualifier(tokens[fromIdx+1 : fromEnd])
	if err != nil {
		return "", err
	}

	removable := append([]string{opts.TenantColumn}, opts.ForbiddenColumns...)
	var kept []string
	if whereIdx >= 0 {
		for _, conj := range splitConjuncts(tokens[whereIdx+1 : tailIdx]) {
			if isColumnComparison(conj, removable) {
				continue
			}
			kept = append(kept, renderCompact(conj))
		}
	}

	predicate := opts.TenantColumn + " = " + value
	if qualifier != "" {
		predicate = qualifier + "." + predicate
	}

	var sb strings.Builder
	head := tokens[:fromEnd]
	sb.WriteString(renderCompact(head))
	sb.WriteString(" WHERE ")
	for _, k := range kept {
		sb.WriteString(k)
		sb.WriteString(" AND ")
	}
	sb.WriteString(predicate)
	if tail := renderCompact(tokens[tailIdx:]); tail != "" {
		sb.WriteByte(' ')
		sb.WriteString(tail)
	}

	scoped := sb.String()
	if err := CheckForbiddenColumns(scoped, opts.ForbiddenColumns); err != nil {
		return "", err
	}
	return scoped, nil
}

// ReplacePlaceholder substitutes every occurrence of placeholder outside
// string literals with marker(n), n counting from 1. It returns the
// rewritten SQL and the number of substitutions. Statements rejected by
// ScopeWithClause for their lexical content are rejected here too.
func ReplacePlaceholder(sqlQuery, placeholder string, lex LexOptions, marker func(n int) string) (string, int, error) {
	_, tokens, err := generatedTokens(sqlQuery, lex)
	if err != nil {
		return "", 0, err
	}

	count := 0
	for i, t := range tokens {
		switch {
		case t.Kind == TokenTemplate && t.Text == placeholder:
			count++
			tokens[i].Text = marker(count)
			tokens[i].Kind = TokenParam
		case t.Kind == TokenString && strings.Contains(t.Text, placeholder):
			return "", 0, ErrPlaceholderInLiteral
		}
	}
	if count == 0 {
		return "", 0, ErrPlaceholderMissing
	}
	return renderCompact(tokens), count, nil
}

// CheckForbiddenColumns fails if any of columns is referenced as an
// identifier anywhere in the statement, including subqueries.
func CheckForbiddenColumns(sqlQuery string, columns []string) error {
	if len(columns) == 0 {
		return nil
	}
	tokens, err := Tokenize(sqlQuery)
	if err != nil {
		return err
	}
	for _, t := range tokens {
		name, ok := t.Identifier()
		if !ok {
			continue
		}
		for _, col := range columns {
			if strings.EqualFold(name, col) {
				return fmt.Errorf("%w: %s", ErrForbiddenColumn, col)
			}
		}
	}
	return nil
}

// HasTenantPredicate reports whether the top-level WHERE of the statement
// contains a `[qualifier.]column = ...` conjunct.
func HasTenantPredicate(sqlQuery, column string) bool {
	tokens, err := Tokenize(TrimStatement(sqlQuery))
	if err != nil {
		return false
	}
	tokens = significantWithSpaces(tokens)
	whereIdx, tailIdx := -1, len(tokens)
	for i, t := range tokens {
		if t.Depth != 0 || t.Kind != TokenWord {
			continue
		}
		word := strings.ToLower(t.Text)
		if word == "where" && whereIdx < 0 {
			whereIdx = i
		} else if whereIdx >= 0 && clauseKeywords[word] && isClauseStart(tokens, i) {
			tailIdx = i
			break
		}
	}
	if whereIdx < 0 {
		return false
	}
	for _, conj := range splitConjuncts(tokens[whereIdx+1 : tailIdx]) {
		if isColumnComparison(conj, []string{column}) {
			return true
		}
	}
	return false
}

// QuoteLiteral renders a bind value as a SQL literal.
func QuoteLiteral(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case int:
		return fmt.Sprintf("%d", val)
	case int32:
		return fmt.Sprintf("%d", val)
	case int64:
		return fmt.Sprintf("%d", val)
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	default:
		return "'" + strings.ReplaceAll(fmt.Sprint(val), "'", "''") + "'"
	}
}

// generatedTokens trims a model generated statement and tokenizes it with
// the dialect's literal rules. It refuses any token whose extent another
// lexer could read differently. Once those are gone, the statement lexes
// the same in every supported dialect.
func generatedTokens(sqlQuery string, lex LexOptions) (string, []Token, error) {
	normalized := TrimStatement(sqlQuery)
	tokens, err := TokenizeWith(normalized, lex)
	if err != nil {
		return "", nil, err
	}
	for _, t := range tokens {
		switch t.Kind {
		case TokenComment:
			return "", nil, ErrComment
		case TokenString, TokenQuotedIdent:
			inner := t.Text[1 : len(t.Text)-1]
			for _, marker := range ambiguousInLiteral {
				if strings.Contains(inner, marker) {
					return "", nil, fmt.Errorf("%w: %s", ErrAmbiguousLiteral, t.Text)
				}
			}
		case TokenPunct:
			if t.Text == "$" || t.Text == "#" {
				return "", nil, ErrAmbiguousSyntax
			}
			if t.Text == ";" {
				return "", nil, ErrMultipleStatements
			}
		}
	}
	return normalized, tokens, nil
}

// checkNestedSelect refuses a SELECT (or TABLE) below the top level.
func checkNestedSelect(tokens []Token) error {
	for i, t := range tokens {
		if t.Depth == 0 {
			continue
		}
		if t.IsKeyword("select") || (t.IsKeyword("table") && i > 0 && tokens[i-1].IsPunct("(")) {
			return ErrNestedSelect
		}
	}
	return nil
}

// significantWithSpaces drops whitespace and comments so that index
// arithmetic only sees meaningful tokens, remembering where a separator
// stood so renderCompact can restore it.
func significantWithSpaces(tokens []Token) []Token {
	out := make([]Token, 0, len(tokens))
	gap := false
	for _, t := range tokens {
		if !t.Significant() {
			gap = true
			continue
		}
		t.spaceBefore = gap
		gap = false
		out = append(out, t)
	}
	return out
}

// isClauseStart filters keywords that only start a clause in a specific
// form: GROUP BY, ORDER BY, FOR UPDATE/SHARE/READ, FETCH FIRST/NEXT.
func isClauseStart(tokens []Token, i int) bool {
	word := strings.ToLower(tokens[i].Text)
	next := ""
	if i+1 < len(tokens) {
		next = strings.ToLower(tokens[i+1].Text)
	}
	switch word {
	case "group", "order":
		return next == "by"
	case "for":
		return next == "update" || next == "share" || next == "read" || next == "no" || next == "key"
	case "fetch":
		return next == "first" || next == "next"
	}
	return true
}

// tenantQualifier returns the name the tenant column must be qualified with
// when the FROM clause holds more than one source. A single source needs no
// qualifier.
func tenantQualifier(from []Token) (string, error) {
	joined := false
	for _, t := range from {
		if t.Depth != 0 {
			continue
		}
		if t.IsKeyword("join") || t.IsPunct(",") {
			joined = true
			break
		}
	}
	if !joined || len(from) == 0 {
		return "", nil
	}

	i := 0
	name := ""
	if from[0].IsPunct("(") {
		// Parenthesized join: skip to its closing paren, the alias names it.
		for i = 1; i < len(from); i++ {
			if from[i].IsPunct(")") && from[i].Depth == 0 {
				break
			}
		}
		i++
	} else {
		for i < len(from) {
			if _, ok := from[i].Identifier(); !ok {
				break
			}
			name = from[i].Text
			i++
			if i < len(from) && from[i].IsPunct(".") {
				i++
				continue
			}
			break
		}
	}

	if i < len(from) && from[i].IsKeyword("as") {
		i++
	}
	if i < len(from) {
		if _, ok := from[i].Identifier(); ok && !fromTerminators[strings.ToLower(from[i].Text)] {
			return from[i].Text, nil
		}
	}
	if name == "" {
		return "", ErrUnqualifiableSource
	}
	return name, nil
}

// splitConjuncts splits a condition on top-level AND. A condition holding a
// top-level OR is returned whole and parenthesized, since splitting it
// would change precedence. The AND that belongs to BETWEEN is not a split point.
func splitConjuncts(cond []Token) [][]Token {
	if len(cond) == 0 {
		return nil
	}
	base := cond[0].Depth
	for _, t := range cond {
		if t.Depth == base && t.IsKeyword("or") {
			wrapped := make([]Token, 0, len(cond)+2)
			wrapped = append(wrapped, Token{Kind: TokenPunct, Text: "(", Depth: base})
			wrapped = append(wrapped, cond...)
			wrapped[1].spaceBefore = false
			wrapped = append(wrapped, Token{Kind: TokenPunct, Text: ")", Depth: base})
			return [][]Token{wrapped}
		}
	}

	var parts [][]Token
	var current []Token
	pendingBetween := false
	for _, t := range cond {
		if t.Depth == base && t.IsKeyword("between") {
			pendingBetween = true
		}
		if t.Depth == base && t.IsKeyword("and") {
			if pendingBetween {
				pendingBetween = false
			} else {
				if len(current) > 0 {
					parts = append(parts, current)
				}
				current = nil
				continue
			}
		}
		current = append(current, t)
	}
	if len(current) > 0 {
		parts = append(parts, current)
	}
	return parts
}

// isColumnComparison reports whether conj is `[q.]col = value` or
// `value = [q.]col` for one of columns, optionally wrapped in parentheses.
func isColumnComparison(conj []Token, columns []string) bool {
	for len(conj) >= 2 && conj[0].IsPunct("(") && conj[len(conj)-1].IsPunct(")") && wrapsWhole(conj) {
		conj = conj[1 : len(conj)-1]
	}

	eq := -1
	for i, t := range conj {
		if t.IsPunct("=") {
			if eq >= 0 {
				return false
			}
			eq = i
		}
	}
	if eq < 0 {
		return false
	}
	// Reject <=, >=, != and friends, which lex as two punct tokens.
	if eq > 0 && conj[eq-1].Kind == TokenPunct && strings.ContainsAny(conj[eq-1].Text, "<>!") {
		return false
	}

	left, right := conj[:eq], conj[eq+1:]
	return (isColumnRef(left, columns) && isScalar(right)) || (isColumnRef(right, columns) && isScalar(left))
}

func wrapsWhole(conj []Token) bool {
	base := conj[0].Depth
	for _, t := range conj[1 : len(conj)-1] {
		if t.Depth <= base {
			return false
		}
	}
	return true
}

func isColumnRef(tokens []Token, columns []string) bool {
	if len(tokens) != 1 && len(tokens) != 3 {
		return false
	}
	if len(tokens) == 3 {
		if _, ok := tokens[0].Identifier(); !ok || !tokens[1].IsPunct(".") {
			return false
		}
	}
	name, ok := tokens[len(tokens)-1].Identifier()
	if !ok {
		return false
	}
	for _, col := range columns {
		if strings.EqualFold(name, col) {
			return true
		}
	}
	return false
}

func isScalar(tokens []Token) bool {
	if len(tokens) == 2 && tokens[0].IsPunct("-") && tokens[1].Kind == TokenNumber {
		return true
	}
	if len(tokens) != 1 {
		return false
	}
	switch tokens[0].Kind {
	case TokenString, TokenNumber, TokenParam, TokenTemplate:
		return true
	}
	return false
}
