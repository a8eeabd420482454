package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-askdb/pkg/llm"
	"github.com/ekaya-inc/ekaya-askdb/pkg/metrics"
	"github.com/ekaya-inc/ekaya-askdb/pkg/tenant"
)

// call is the state of one Ask or GetQuery invocation. It is never shared
// between invocations.
type call struct {
	requestID string
	question  string
	scope     tenant.Scope
	logger    *zap.Logger

	tables       []datasource.TableDescriptor
	tablesLoaded bool
}

func (c *call) answer(kind AnswerKind, text, sql string) *Answer {
	return &Answer{Text: text, Kind: kind, SQL: sql, RequestID: c.requestID}
}

// listTables returns the tables the models may use for this call. The
// result is computed once per call.
func (e *Engine) listTables(ctx context.Context, c *call) ([]datasource.TableDescriptor, error) {
	if c.tablesLoaded {
		return c.tables, nil
	}

	start := time.Now()
	all, err := e.store.ListTables(ctx)
	metrics.ObserveStage("catalog", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	tables := visibleTables(all, c.scope)
	if len(tables) >= e.opts.MaxTablesBeforePerformingLookup {
		narrowed, err := e.narrowTables(ctx, c, tables)
		if err != nil {
			return nil, err
		}
		c.logger.Debug("Narrowed table list",
			zap.Int("candidates", len(tables)),
			zap.Int("relevant", len(narrowed)))
		tables = narrowed
	}

	c.tables = tables
	c.tablesLoaded = true
	return tables, nil
}

// visibleTables keeps the tables owned by the bound tenant plus the shared
// ones. Unscoped sessions see everything.
func visibleTables(all []datasource.TableDescriptor, scope tenant.Scope) []datasource.TableDescriptor {
	if !scope.IsScoped() {
		return all
	}
	companyID := scope.CompanyID()
	visible := make([]datasource.TableDescriptor, 0, len(all))
	for _, t := range all {
		if t.Shared() || t.TenantID == companyID {
			visible = append(visible, t)
		}
	}
	return visible
}

// narrowTables asks the completion model which tables matter for the
// question and keeps those, in catalog order.
func (e *Engine) narrowTables(ctx context.Context, c *call, tables []datasource.TableDescriptor) ([]datasource.TableDescriptor, error) {
	prompt, err := e.prompts.Tables(c.question, tables)
	if err != nil {
		return nil, fmt.Errorf("failed to build relevance prompt: %w", err)
	}

	reply, err := e.complete(ctx, "relevance", llm.CompletionRequest{
		Prompt:      prompt,
		Temperature: 0,
		MaxTokens:   e.opts.QueryMaxTokens,
		Stop:        []string{"\n"},
	})
	if err != nil {
		return nil, fmt.Errorf("relevance lookup failed: %w", err)
	}

	names := parseTableNames(reply)
	relevant := make([]datasource.TableDescriptor, 0, len(names))
	for _, t := range tables {
		for _, name := range names {
			if t.MatchesName(name) {
				relevant = append(relevant, t)
				break
			}
		}
	}
	return relevant, nil
}

func parseTableNames(reply string) []string {
	var names []string
	for _, part := range strings.Split(reply, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}
