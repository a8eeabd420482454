package sql

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	// ErrUnterminated indicates a string literal, quoted identifier or block
	// comment that never closes.
	ErrUnterminated = errors.New("unterminated literal or comment")
	// ErrUnbalancedParens indicates mismatched parentheses.
	ErrUnbalancedParens = errors.New("unbalanced parentheses")
)

// TokenKind classifies a lexical token.
type TokenKind int

const (
	TokenWhitespace TokenKind = iota
	TokenComment
	TokenString      // '...'
	TokenQuotedIdent // "..." or `...`
	TokenWord        // keyword or bare identifier
	TokenNumber
	TokenParam    // $1, ?, @p1, :name
	TokenTemplate // {{name}}
	TokenPunct
)

// Token is one lexical unit of a SQL statement. Depth is the parenthesis
// nesting level the token sits at; an opening paren carries the outer depth.
type Token struct {
	Kind  TokenKind
	Text  string
	Depth int

	spaceBefore bool
}

// Significant reports whether the token carries meaning (not whitespace or a comment).
func (t Token) Significant() bool {
	return t.Kind != TokenWhitespace && t.Kind != TokenComment
}

// IsKeyword reports whether the token is the bare word kw, case-insensitively.
func (t Token) IsKeyword(kw string) bool {
	return t.Kind == TokenWord && strings.EqualFold(t.Text, kw)
}

// IsPunct reports whether the token is the punctuation p.
func (t Token) IsPunct(p string) bool {
	return t.Kind == TokenPunct && t.Text == p
}

// Identifier returns the unquoted identifier name for word and quoted
// identifier tokens.
func (t Token) Identifier() (string, bool) {
	switch t.Kind {
	case TokenWord:
		return t.Text, true
	case TokenQuotedIdent:
		if len(t.Text) < 2 {
			return "", false
		}
		q := t.Text[len(t.Text)-1:]
		inner := t.Text[1 : len(t.Text)-1]
		return strings.ReplaceAll(inner, q+q, q), true
	}
	return "", false
}

// LexOptions selects the literal syntax of a dialect.
type LexOptions struct {
	// BackslashEscapes treats backslash as an escape inside '...' literals
	// (MySQL). Standard SQL, PostgreSQL, SQLite and SQL Server do not.
	BackslashEscapes bool
	// BracketIdentifiers lexes [name] as a quoted identifier (SQL Server,
	// SQLite).
	BracketIdentifiers bool
}

// Tokenize splits a SQL statement into tokens using standard SQL literal
// rules. Concatenating the Text of every token reproduces the input exactly.
func Tokenize(sqlQuery string) ([]Token, error) {
	return TokenizeWith(sqlQuery, LexOptions{})
}

// TokenizeWith is Tokenize for a specific dialect's literal syntax.
func TokenizeWith(sqlQuery string, opts LexOptions) ([]Token, error) {
	var tokens []Token
	depth := 0
	src := []rune(sqlQuery)
	n := len(src)

	emit := func(kind TokenKind, start, end int) {
		tokens = append(tokens, Token{Kind: kind, Text: string(src[start:end]), Depth: depth})
	}

	for i := 0; i < n; {
		ch := src[i]
		start := i

		switch {
		case unicode.IsSpace(ch):
			for i < n && unicode.IsSpace(src[i]) {
				i++
			}
			emit(TokenWhitespace, start, i)

		case ch == '-' && i+1 < n && src[i+1] == '-':
			for i < n && src[i] != '\n' {
				i++
			}
			emit(TokenComment, start, i)

		case ch == '/' && i+1 < n && src[i+1] == '*':
			end := indexRunes(src, i+2, "*/")
			if end < 0 {
				return nil, fmt.Errorf("%w: block comment at offset %d", ErrUnterminated, start)
			}
			i = end + 2
			emit(TokenComment, start, i)

		case ch == '\'':
			end, err := scanQuoted(src, i, '\'', opts.BackslashEscapes)
			if err != nil {
				return nil, err
			}
			i = end
			emit(TokenString, start, i)

		case ch == '"' || ch == '`':
			end, err := scanQuoted(src, i, ch, false)
			if err != nil {
				return nil, err
			}
			i = end
			emit(TokenQuotedIdent, start, i)

		case ch == '[' && opts.BracketIdentifiers:
			end, err := scanQuoted(src, i, ']', false)
			if err != nil {
				return nil, err
			}
			i = end
			emit(TokenQuotedIdent, start, i)

		case ch == '{' && i+1 < n && src[i+1] == '{':
			end := indexRunes(src, i+2, "}}")
			if end < 0 || !isTemplateName(string(src[i+2:end])) {
				i++
				emit(TokenPunct, start, i)
				continue
			}
			i = end + 2
			emit(TokenTemplate, start, i)

		case isWordStart(ch):
			for i < n && isWordPart(src[i]) {
				i++
			}
			emit(TokenWord, start, i)

		case unicode.IsDigit(ch) || (ch == '.' && i+1 < n && unicode.IsDigit(src[i+1])):
			i = scanNumber(src, i)
			emit(TokenNumber, start, i)

		case ch == '$' && i+1 < n && unicode.IsDigit(src[i+1]):
			i++
			for i < n && unicode.IsDigit(src[i]) {
				i++
			}
			emit(TokenParam, start, i)

		case (ch == '@' || ch == ':') && i+1 < n && isWordStart(src[i+1]) && !(ch == ':' && i > 0 && src[i-1] == ':'):
			i++
			for i < n && isWordPart(src[i]) {
				i++
			}
			emit(TokenParam, start, i)

		case ch == '?':
			i++
			emit(TokenParam, start, i)

		case ch == '(':
			i++
			emit(TokenPunct, start, i)
			depth++

		case ch == ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("%w: unexpected ')' at offset %d", ErrUnbalancedParens, start)
			}
			i++
			emit(TokenPunct, start, i)

		default:
			i++
			emit(TokenPunct, start, i)
		}
	}

	if depth != 0 {
		return nil, fmt.Errorf("%w: %d unclosed '('", ErrUnbalancedParens, depth)
	}
	return tokens, nil
}

// Render concatenates token text.
func Render(tokens []Token) string {
	var sb strings.Builder
	for _, t := range tokens {
		sb.WriteString(t.Text)
	}
	return sb.String()
}

// renderCompact renders tokens with comments dropped and whitespace runs
// collapsed to a single space, trimmed at both ends.
func renderCompact(tokens []Token) string {
	var sb strings.Builder
	pendingSpace := false
	for _, t := range tokens {
		if !t.Significant() {
			pendingSpace = true
			continue
		}
		if (pendingSpace || t.spaceBefore) && sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		pendingSpace = false
		sb.WriteString(t.Text)
	}
	return sb.String()
}

// scanQuoted returns the index just past the closing quote. A doubled
// closing quote is an escaped quote; backslash escapes are honored only when
// backslash is set.
func scanQuoted(src []rune, start int, quote rune, backslash bool) (int, error) {
	for i := start + 1; i < len(src); i++ {
		switch {
		case backslash && src[i] == '\\' && i+1 < len(src):
			i++
		case src[i] == quote:
			if i+1 < len(src) && src[i+1] == quote {
				i++
				continue
			}
			return i + 1, nil
		}
	}
	return 0, fmt.Errorf("%w: quote at offset %d", ErrUnterminated, start)
}

func scanNumber(src []rune, i int) int {
	n := len(src)
	for i < n && (unicode.IsDigit(src[i]) || src[i] == '.') {
		i++
	}
	if i < n && (src[i] == 'e' || src[i] == 'E') {
		j := i + 1
		if j < n && (src[j] == '+' || src[j] == '-') {
			j++
		}
		if j < n && unicode.IsDigit(src[j]) {
			i = j
			for i < n && unicode.IsDigit(src[i]) {
				i++
			}
		}
	}
	return i
}

func indexRunes(src []rune, from int, needle string) int {
	idx := strings.Index(string(src[from:]), needle)
	if idx < 0 {
		return -1
	}
	return from + len([]rune(string(src[from:])[:idx]))
}

func isWordStart(ch rune) bool {
	return ch == '_' || unicode.IsLetter(ch)
}

func isWordPart(ch rune) bool {
	return ch == '_' || ch == '$' || unicode.IsLetter(ch) || unicode.IsDigit(ch)
}

func isTemplateName(s string) bool {
	if s == "" || !isWordStart(rune(s[0])) {
		return false
	}
	for _, ch := range s {
		if ch != '_' && !unicode.IsLetter(ch) && !unicode.IsDigit(ch) {
			return false
		}
	}
	return true
}
