package oracle

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-askdb/pkg/config"
	"github.com/ekaya-inc/ekaya-askdb/pkg/metrics"
	sqlpkg "github.com/ekaya-inc/ekaya-askdb/pkg/sql"
	"github.com/ekaya-inc/ekaya-askdb/pkg/tenant"
)

// scopedQuery is a statement restricted to the bound tenant.
type scopedQuery struct {
	// SQL carries dialect parameter markers bound to Args.
	SQL  string
	Args []any
	// Inline is SQL with the tenant value rendered as a literal.
	Inline string
}

// scopeQuery restricts query to the call's tenant using the configured
// strategy. Unscoped calls only normalize the statement.
func (e *Engine) scopeQuery(ctx context.Context, c *call, query string) (scopedQuery, error) {
	t, ok := c.scope.Tenant()
	if !ok {
		normalized := sqlpkg.ValidateAndNormalize(query)
		if normalized.Error != nil {
			return scopedQuery{}, &ValidationError{Query: query, Cause: normalized.Error}
		}
		return scopedQuery{SQL: normalized.NormalizedSQL, Inline: normalized.NormalizedSQL}, nil
	}

	var (
		q   scopedQuery
		err error
	)
	switch e.opts.ScopingStrategy {
	case config.ScopingPlaceholder:
		q, err = e.scopeWithPlaceholder(query, t)
	default:
		q, err = e.scopeWithClause(query, t)
	}
	if err != nil {
		scopeErr := &ScopeError{Query: query, Reason: scopeReason(err), Cause: err}
		e.auditor.LogUnscopedQuery(ctx, t.CompanyID, query, scopeErr.Reason)
		metrics.ObserveRefusal("unscoped_query")
		c.logger.Warn("Refused query that cannot be tenant scoped", zap.String("reason", scopeErr.Reason))
		return scopedQuery{}, scopeErr
	}
	return q, nil
}

func (e *Engine) scopeWithClause(query string, t tenant.Tenant) (scopedQuery, error) {
	dialect := e.store.Dialect()
	opts := e.clause
	opts.Lex = lexOptions(dialect)

	value := t.CompanyBindValue()
	parameterized, err := sqlpkg.ScopeWithClause(query, opts, dialect.Marker(1))
	if err != nil {
		return scopedQuery{}, err
	}
	inline, err := sqlpkg.ScopeWithClause(query, opts, sqlpkg.QuoteLiteral(value))
	if err != nil {
		return scopedQuery{}, err
	}
	return scopedQuery{SQL: parameterized, Args: []any{value}, Inline: inline}, nil
}

func (e *Engine) scopeWithPlaceholder(query string, t tenant.Tenant) (scopedQuery, error) {
	dialect := e.store.Dialect()
	value := t.UserBindValue()

	lex := lexOptions(dialect)

	parameterized, n, err := sqlpkg.ReplacePlaceholder(query, e.opts.UserPlaceholder, lex, dialect.SameValueMarker)
	if err != nil {
		return scopedQuery{}, err
	}
	if err := sqlpkg.CheckForbiddenColumns(parameterized, e.clause.ForbiddenColumns); err != nil {
		return scopedQuery{}, err
	}
	literal := sqlpkg.QuoteLiteral(value)
	inline, _, err := sqlpkg.ReplacePlaceholder(query, e.opts.UserPlaceholder, lex, func(int) string { return literal })
	if err != nil {
		return scopedQuery{}, err
	}
	return scopedQuery{SQL: parameterized, Args: dialect.BindSameValue(value, n), Inline: inline}, nil
}

func lexOptions(d datasource.Dialect) sqlpkg.LexOptions {
	return sqlpkg.LexOptions{BackslashEscapes: d.BackslashEscapes, BracketIdentifiers: d.BracketIdentifiers}
}

// scopeReason is a short machine readable cause for audit events.
func scopeReason(err error) string {
	switch {
	case errors.Is(err, sqlpkg.ErrForbiddenColumn):
		return "forbidden_column"
	case errors.Is(err, sqlpkg.ErrSetOperation):
		return "set_operation"
	case errors.Is(err, sqlpkg.ErrNestedSelect):
		return "nested_select"
	case errors.Is(err, sqlpkg.ErrComment):
		return "comment"
	case errors.Is(err, sqlpkg.ErrAmbiguousLiteral):
		return "ambiguous_literal"
	case errors.Is(err, sqlpkg.ErrAmbiguousSyntax):
		return "ambiguous_syntax"
	case errors.Is(err, sqlpkg.ErrNoFromClause):
		return "no_from_clause"
	case errors.Is(err, sqlpkg.ErrUnqualifiableSource):
		return "unqualifiable_source"
	case errors.Is(err, sqlpkg.ErrPlaceholderMissing):
		return "placeholder_missing"
	case errors.Is(err, sqlpkg.ErrPlaceholderInLiteral):
		return "placeholder_in_literal"
	case errors.Is(err, sqlpkg.ErrNotSelect):
		return "not_select"
	case errors.Is(err, sqlpkg.ErrMultipleStatements):
		return "multiple_statements"
	default:
		return "malformed"
	}
}
