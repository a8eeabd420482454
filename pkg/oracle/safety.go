package oracle

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/metrics"
)

// blockedKeywords trip strict mode wherever they appear in the statement,
// literals and comments included.
var blockedKeywords = []string{
	"insert",
	"update",
	"delete",
	"alter",
	"drop",
	"truncate",
	"create",
	"replace",
}

// EnsureSafe returns an *UnsafeQueryError when strict is set and query
// contains a blocked keyword in any case. It never fails when strict is off.
func EnsureSafe(query string, strict bool) error {
	if !strict {
		return nil
	}
	if kw := blockedKeyword(query); kw != "" {
		return &UnsafeQueryError{Query: query, Keyword: kw}
	}
	return nil
}

func blockedKeyword(query string) string {
	lower := strings.ToLower(query)
	for _, kw := range blockedKeywords {
		if strings.Contains(lower, kw) {
			return kw
		}
	}
	return ""
}

func (e *Engine) ensureSafe(ctx context.Context, c *call, query string) error {
	if !e.opts.StrictMode {
		return nil
	}
	kw := blockedKeyword(query)
	if kw == "" {
		return nil
	}
	e.auditor.LogUnsafeQuery(ctx, c.scope.CompanyID(), query, "blocked keyword: "+kw)
	metrics.ObserveRefusal("unsafe_query")
	c.logger.Warn("Refused unsafe query", zap.String("keyword", kw))
	return &UnsafeQueryError{Query: query, Keyword: kw}
}
