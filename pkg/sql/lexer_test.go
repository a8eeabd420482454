package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(tokens []Token) []TokenKind {
	out := make([]TokenKind, 0, len(tokens))
	for _, t := range tokens {
		if t.Significant() {
			out = append(out, t.Kind)
		}
	}
	return out
}

func TestTokenize_RoundTrip(t *testing.T) {
	inputs := []string{
		"SELECT * FROM orders",
		"SELECT 'it''s', \"weird \"\"col\"\"\" FROM t -- trailing\nWHERE a = $1",
		"select x::int, y from `t` /* block */ where z = ? and w = @p1",
		"SELECT {{user_id}} AS me, 1.5e3, .5 FROM dual",
		"SELECT 'ünïcode', naïve FROM t",
	}
	for _, in := range inputs {
		tokens, err := Tokenize(in)
		require.NoError(t, err, in)
		assert.Equal(t, in, Render(tokens))
	}
}

func TestTokenize_Kinds(t *testing.T) {
	tokens, err := Tokenize(`SELECT "id", 'x' FROM t WHERE a = $2 AND b = {{user_id}} AND c::text = :name`)
	require.NoError(t, err)
	assert.Equal(t, []TokenKind{
		TokenWord, TokenQuotedIdent, TokenPunct, TokenString, TokenWord, TokenWord, TokenWord,
		TokenWord, TokenPunct, TokenParam, TokenWord, TokenWord, TokenPunct, TokenTemplate,
		TokenWord, TokenWord, TokenPunct, TokenPunct, TokenWord, TokenPunct, TokenParam,
	}, kinds(tokens))
}

func TestTokenize_Depth(t *testing.T) {
	tokens, err := Tokenize("a (b (c) d) e")
	require.NoError(t, err)

	depths := map[string]int{}
	for _, tok := range tokens {
		if tok.Kind == TokenWord {
			depths[tok.Text] = tok.Depth
		}
	}
	assert.Equal(t, map[string]int{"a": 0, "b": 1, "c": 2, "d": 1, "e": 0}, depths)
}

func TestTokenize_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"unterminated string", "SELECT 'abc", ErrUnterminated},
		{"unterminated identifier", `SELECT "abc`, ErrUnterminated},
		{"unterminated block comment", "SELECT 1 /* oops", ErrUnterminated},
		{"unclosed paren", "SELECT (1", ErrUnbalancedParens},
		{"extra close paren", "SELECT 1)", ErrUnbalancedParens},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Tokenize(tt.input)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestToken_Identifier(t *testing.T) {
	name, ok := Token{Kind: TokenQuotedIdent, Text: `"Secret""Key"`}.Identifier()
	assert.True(t, ok)
	assert.Equal(t, `Secret"Key`, name)

	name, ok = Token{Kind: TokenQuotedIdent, Text: "`secret_key`"}.Identifier()
	assert.True(t, ok)
	assert.Equal(t, "secret_key", name)

	_, ok = Token{Kind: TokenString, Text: "'secret_key'"}.Identifier()
	assert.False(t, ok)
}

func TestTokenizeWith_BackslashEscapes(t *testing.T) {
	input := `SELECT 'x\'y\'z' FROM t`

	ansi, err := Tokenize(input)
	require.NoError(t, err)
	var ansiStrings []string
	for _, tok := range ansi {
		if tok.Kind == TokenString {
			ansiStrings = append(ansiStrings, tok.Text)
		}
	}
	assert.Equal(t, []string{`'x\'`, `'z'`}, ansiStrings)

	mysql, err := TokenizeWith(input, LexOptions{BackslashEscapes: true})
	require.NoError(t, err)
	var mysqlStrings []string
	for _, tok := range mysql {
		if tok.Kind == TokenString {
			mysqlStrings = append(mysqlStrings, tok.Text)
		}
	}
	assert.Equal(t, []string{`'x\'y\'z'`}, mysqlStrings)
	assert.Equal(t, input, Render(mysql))
}

func TestTokenizeWith_BracketIdentifiers(t *testing.T) {
	tokens, err := TokenizeWith("SELECT [Order Total], [a]]b] FROM [dbo].[orders]", LexOptions{BracketIdentifiers: true})
	require.NoError(t, err)

	var names []string
	for _, tok := range tokens {
		if tok.Kind == TokenQuotedIdent {
			name, ok := tok.Identifier()
			require.True(t, ok)
			names = append(names, name)
		}
	}
	assert.Equal(t, []string{"Order Total", "a]b", "dbo", "orders"}, names)

	plain, err := Tokenize("SELECT [x] FROM t")
	require.NoError(t, err)
	assert.Equal(t, []TokenKind{TokenWord, TokenPunct, TokenWord, TokenPunct, TokenWord, TokenWord}, kinds(plain))

	_, err = TokenizeWith("SELECT [x FROM t", LexOptions{BracketIdentifiers: true})
	assert.ErrorIs(t, err, ErrUnterminated)
}
