package sql

import (
	dbsql "database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
	"pgregory.net/rapid"
)

var testClauseOptions = ClauseOptions{
	TenantColumn:     "company_id",
	ForbiddenColumns: []string{"secret_key"},
}

var scopeCases = []struct {
	name     string
	input    string
	expected string
}{
	{
		name:     "no where clause",
		input:    "SELECT * FROM orders;",
		expected: "SELECT * FROM orders WHERE company_id = 7",
	},
	{
		name:     "secret key predicate is removed",
		input:    "SELECT * FROM orders WHERE secret_key = 'abc123'",
		expected: "SELECT * FROM orders WHERE company_id = 7",
	},
	{
		name:     "existing tenant predicate is replaced",
		input:    "SELECT * FROM orders WHERE company_id = 3",
		expected: "SELECT * FROM orders WHERE company_id = 7",
	},
	{
		name:     "inserted before order by and limit",
		input:    "SELECT COUNT(*) FROM orders WHERE status = 'paid' AND secret_key = 'k' ORDER BY 1 LIMIT 5",
		expected: "SELECT COUNT(*) FROM orders WHERE status = 'paid' AND company_id = 7 ORDER BY 1 LIMIT 5",
	},
	{
		name:     "inserted before group by",
		input:    "SELECT status, COUNT(*) FROM orders GROUP BY status",
		expected: "SELECT status, COUNT(*) FROM orders WHERE company_id = 7 GROUP BY status",
	},
	{
		name:     "join qualifies with first alias",
		input:    "SELECT o.id, c.name FROM orders o JOIN customers c ON c.id = o.customer_id WHERE o.company_id = 3 AND o.total > 10",
		expected: "SELECT o.id, c.name FROM orders o JOIN customers c ON c.id = o.customer_id WHERE o.total > 10 AND o.company_id = 7",
	},
	{
		name:     "comma join without alias qualifies with table name",
		input:    "SELECT orders.id FROM orders, customers WHERE customers.id = orders.customer_id",
		expected: "SELECT orders.id FROM orders, customers WHERE customers.id = orders.customer_id AND orders.company_id = 7",
	},
	{
		name:     "top level or is parenthesized",
		input:    "SELECT * FROM orders WHERE status = 'a' OR status = 'b'",
		expected: "SELECT * FROM orders WHERE (status = 'a' OR status = 'b') AND company_id = 7",
	},
	{
		name:     "between keeps its and",
		input:    "SELECT * FROM orders WHERE total BETWEEN 1 AND 5 AND secret_key = 'x'",
		expected: "SELECT * FROM orders WHERE total BETWEEN 1 AND 5 AND company_id = 7",
	},
	{
		name:     "quoted identifiers",
		input:    `SELECT "Total" FROM orders WHERE "Status" = 'paid'`,
		expected: `SELECT "Total" FROM orders WHERE "Status" = 'paid' AND company_id = 7`,
	},
	{
		name:     "keywords inside literals are ignored",
		input:    "SELECT * FROM notes WHERE body = 'where ORDER BY x'",
		expected: "SELECT * FROM notes WHERE body = 'where ORDER BY x' AND company_id = 7",
	},
}

func TestScopeWithClause(t *testing.T) {
	for _, tt := range scopeCases {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ScopeWithClause(tt.input, testClauseOptions, "7")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
			assert.True(t, HasTenantPredicate(got, "company_id"))
		})
	}
}

func TestScopeWithClause_Idempotent(t *testing.T) {
	for _, tt := range scopeCases {
		t.Run(tt.name, func(t *testing.T) {
			once, err := ScopeWithClause(tt.input, testClauseOptions, "7")
			require.NoError(t, err)
			twice, err := ScopeWithClause(once, testClauseOptions, "7")
			require.NoError(t, err)
			assert.Equal(t, once, twice)
		})
	}
}

func TestScopeWithClause_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"union", "SELECT a FROM t UNION SELECT a FROM u", ErrSetOperation},
		{"no from", "SELECT 1", ErrNoFromClause},
		{"update", "UPDATE orders SET total = 1", ErrNotSelect},
		{"selected secret", "SELECT secret_key FROM chat_bots", ErrForbiddenColumn},
		{"secret in like", "SELECT * FROM orders WHERE secret_key LIKE 'a%'", ErrForbiddenColumn},
		{"quoted secret", `SELECT "secret_key" FROM chat_bots`, ErrForbiddenColumn},
		{"multiple statements", "SELECT * FROM orders; DROP TABLE orders", ErrMultipleStatements},
		{"scalar subquery", "SELECT (SELECT SUM(total) FROM orders) AS all_total FROM customers", ErrNestedSelect},
		{"in subquery", "SELECT * FROM orders WHERE customer_id IN (SELECT id FROM customers)", ErrNestedSelect},
		{"exists subquery", "SELECT * FROM customers c WHERE EXISTS (SELECT 1 FROM orders o WHERE o.customer_id = c.id)", ErrNestedSelect},
		{"derived table", "SELECT s.id FROM (SELECT * FROM orders) AS s JOIN customers c ON c.id = s.customer_id", ErrNestedSelect},
		{"common table expression", "WITH recent AS (SELECT * FROM orders) SELECT * FROM recent", ErrNestedSelect},
		{"parenthesized table", "SELECT * FROM orders WHERE id IN (TABLE archived)", ErrNestedSelect},
		{"union inside parens", "SELECT * FROM ((SELECT * FROM orders) UNION (SELECT * FROM orders)) AS u", ErrNestedSelect},
		{"line comment", "SELECT * FROM orders -- everything", ErrComment},
		{"block comment", "SELECT * FROM orders /* all */ WHERE total > 1", ErrComment},
		{"comment hiding a union", `SELECT * FROM orders WHERE status <> '\' UNION SELECT * FROM orders /*' LIMIT 5 */`, ErrComment},
		{"backslash in literal", `SELECT * FROM orders WHERE status = 'a\b'`, ErrAmbiguousLiteral},
		{"doubled quote in literal", "SELECT * FROM orders WHERE name = 'O''Brien'", ErrAmbiguousLiteral},
		{"comment marker in literal", "SELECT * FROM orders WHERE status = '--'", ErrAmbiguousLiteral},
		{"block marker in identifier", `SELECT "/*x" FROM orders`, ErrAmbiguousLiteral},
		{"dollar quoting", "SELECT * FROM orders WHERE status = $$paid$$", ErrAmbiguousSyntax},
		{"hash comment", "SELECT * FROM orders # everything", ErrAmbiguousSyntax},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ScopeWithClause(tt.input, testClauseOptions, "7")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

// A backslash ends the literal in ANSI dialects and escapes the quote in
// MySQL. Either reading leaves a comment or an ambiguous literal behind.
func TestScopeWithClause_BackslashPerDialect(t *testing.T) {
	input := `SELECT * FROM orders WHERE status <> '\' UNION SELECT * FROM orders /*' LIMIT 5 */`

	_, err := ScopeWithClause(input, testClauseOptions, "7")
	assert.ErrorIs(t, err, ErrComment)

	mysql := testClauseOptions
	mysql.Lex = LexOptions{BackslashEscapes: true}
	_, err = ScopeWithClause(input, mysql, "7")
	assert.ErrorIs(t, err, ErrAmbiguousLiteral)
}

func TestScopeWithClause_BracketIdentifiers(t *testing.T) {
	opts := testClauseOptions
	opts.Lex = LexOptions{BracketIdentifiers: true}

	got, err := ScopeWithClause("SELECT [Total] FROM [orders] WHERE [status] = 'paid'", opts, "@p1")
	require.NoError(t, err)
	assert.Equal(t, "SELECT [Total] FROM [orders] WHERE [status] = 'paid' AND company_id = @p1", got)

	_, err = ScopeWithClause("SELECT [secret_key] FROM chat_bots", opts, "@p1")
	assert.ErrorIs(t, err, ErrForbiddenColumn)

	_, err = ScopeWithClause("SELECT [a'b] FROM orders", opts, "@p1")
	assert.ErrorIs(t, err, ErrAmbiguousLiteral)
}

func TestScopeWithClause_ParameterMarker(t *testing.T) {
	got, err := ScopeWithClause("SELECT * FROM orders WHERE secret_key = 'k'", testClauseOptions, "$1")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM orders WHERE company_id = $1", got)
}

// Scoped output must still parse. SQLite's EXPLAIN compiles the
// statement without running it.
func TestScopeWithClause_OutputIsValidSQL(t *testing.T) {
	db, err := dbsql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	for _, ddl := range []string{
		"CREATE TABLE orders (id INTEGER, company_id INTEGER, customer_id INTEGER, status TEXT, total REAL, secret_key TEXT)",
		"CREATE TABLE customers (id INTEGER, name TEXT, region TEXT, company_id INTEGER)",
		"CREATE TABLE notes (body TEXT, company_id INTEGER)",
	} {
		_, err := db.Exec(ddl)
		require.NoError(t, err)
	}

	for _, tt := range scopeCases {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ScopeWithClause(tt.input, testClauseOptions, "7")
			require.NoError(t, err)
			rows, err := db.Query("EXPLAIN " + got)
			require.NoError(t, err, got)
			rows.Close()
		})
	}
}

func TestScopeWithClause_Properties(t *testing.T) {
	bases := []string{
		"SELECT * FROM orders",
		"SELECT id FROM orders WHERE status = 'paid'",
		"SELECT o.id FROM orders o JOIN customers c ON c.id = o.customer_id",
		"SELECT status, COUNT(*) FROM orders GROUP BY status ORDER BY 2 DESC",
	}
	extras := []string{
		"",
		"secret_key = 'guess'",
		"company_id = 999",
		"total > 3",
		"status = 'a' OR status = 'b'",
	}

	rapid.Check(t, func(t *rapid.T) {
		base := rapid.SampledFrom(bases).Draw(t, "base")
		extra := rapid.SampledFrom(extras).Draw(t, "extra")
		tenant := rapid.Int64Range(1, 1_000_000_000).Draw(t, "tenant")

		query := base
		if extra != "" {
			query = injectCondition(base, extra)
		}
		value := QuoteLiteral(tenant)

		once, err := ScopeWithClause(query, testClauseOptions, value)
		if err != nil {
			t.Fatalf("scope %q: %v", query, err)
		}
		twice, err := ScopeWithClause(once, testClauseOptions, value)
		if err != nil {
			t.Fatalf("rescope %q: %v", once, err)
		}
		if once != twice {
			t.Fatalf("not idempotent:\n%s\n%s", once, twice)
		}
		if !HasTenantPredicate(once, "company_id") {
			t.Fatalf("missing tenant predicate: %s", once)
		}
		if err := CheckForbiddenColumns(once, testClauseOptions.ForbiddenColumns); err != nil {
			t.Fatalf("forbidden column survived: %s", once)
		}
		if want := fmt.Sprintf("company_id = %d", tenant); strings.Count(once, want) != 1 {
			t.Fatalf("expected exactly one %q in %s", want, once)
		}
	})
}

func injectCondition(base, cond string) string {
	tokens, _ := Tokenize(base)
	for i, t := range tokens {
		if t.Depth != 0 {
			continue
		}
		switch {
		case t.IsKeyword("where"):
			return Render(tokens[:i+1]) + " " + cond + " AND" + Render(tokens[i+1:])
		case t.IsKeyword("group"), t.IsKeyword("order"):
			return Render(tokens[:i]) + "WHERE " + cond + " " + Render(tokens[i:])
		}
	}
	return base + " WHERE " + cond
}

func TestReplacePlaceholder(t *testing.T) {
	dollar := func(n int) string { return "$1" }
	question := func(int) string { return "?" }
	atP := func(n int) string { return fmt.Sprintf("@p%d", n) }

	got, n, err := ReplacePlaceholder("SELECT * FROM orders WHERE company_id = {{user_id}};", "{{user_id}}", LexOptions{}, dollar)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "SELECT * FROM orders WHERE company_id = $1", got)

	got, n, err = ReplacePlaceholder("SELECT * FROM a WHERE x = {{user_id}} OR y = {{user_id}}", "{{user_id}}", LexOptions{}, question)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "SELECT * FROM a WHERE x = ? OR y = ?", got)

	got, _, err = ReplacePlaceholder("SELECT * FROM a WHERE x = {{user_id}} OR y = {{user_id}}", "{{user_id}}", LexOptions{}, atP)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM a WHERE x = @p1 OR y = @p2", got)

	_, _, err = ReplacePlaceholder("SELECT * FROM a WHERE x = {{other}}", "{{user_id}}", LexOptions{}, dollar)
	assert.ErrorIs(t, err, ErrPlaceholderMissing)

	_, _, err = ReplacePlaceholder("SELECT * FROM a WHERE note = 'for {{user_id}}' AND x = {{user_id}}", "{{user_id}}", LexOptions{}, dollar)
	assert.ErrorIs(t, err, ErrPlaceholderInLiteral)

	_, _, err = ReplacePlaceholder("SELECT * FROM a WHERE x = {{user_id}} -- or all", "{{user_id}}", LexOptions{}, dollar)
	assert.ErrorIs(t, err, ErrComment)

	_, _, err = ReplacePlaceholder(`SELECT * FROM a WHERE x = {{user_id}} AND y = 'a\'`, "{{user_id}}", LexOptions{BackslashEscapes: true}, dollar)
	assert.Error(t, err)
}

func TestQuoteLiteral(t *testing.T) {
	assert.Equal(t, "7", QuoteLiteral(int64(7)))
	assert.Equal(t, "42", QuoteLiteral(42))
	assert.Equal(t, "'O''Brien'", QuoteLiteral("O'Brien"))
	assert.Equal(t, "NULL", QuoteLiteral(nil))
}

func TestCheckForbiddenColumns(t *testing.T) {
	assert.NoError(t, CheckForbiddenColumns("SELECT 'secret_key' AS label FROM t", []string{"secret_key"}))
	assert.NoError(t, CheckForbiddenColumns("SELECT * FROM t -- secret_key", []string{"secret_key"}))
	assert.ErrorIs(t, CheckForbiddenColumns("SELECT t.SECRET_KEY FROM t", []string{"secret_key"}), ErrForbiddenColumn)
}

func TestParameters(t *testing.T) {
	assert.NoError(t, ValidatePlaceholder("{{user_id}}"))
	assert.Error(t, ValidatePlaceholder("{user_id}"))
	assert.Error(t, ValidatePlaceholder("{{1abc}}"))
	assert.Equal(t, "user_id", PlaceholderName("{{user_id}}"))
	assert.Equal(t, "", PlaceholderName("user_id"))

	assert.Equal(t, []string{"user_id"}, FindParametersInStringLiterals("SELECT * FROM t WHERE a = '{{user_id}}' OR b = '{{user_id}}'"))
	assert.Empty(t, FindParametersInStringLiterals("SELECT * FROM t WHERE a = {{user_id}}"))
}
