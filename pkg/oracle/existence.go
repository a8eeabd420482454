package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ekaya-inc/ekaya-askdb/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-askdb/pkg/llm"
	"github.com/ekaya-inc/ekaya-askdb/pkg/metrics"
	"github.com/ekaya-inc/ekaya-askdb/pkg/prompts"
	sqlpkg "github.com/ekaya-inc/ekaya-askdb/pkg/sql"
)

// ensureHasData counts the rows q would return. When there are none it
// returns the chat model's message for the user instead.
func (e *Engine) ensureHasData(ctx context.Context, c *call, q scopedQuery) (bool, string, error) {
	countSQL, err := sqlpkg.CountWrap(q.SQL)
	if err != nil {
		return false, "", &ValidationError{Query: q.Inline, Cause: err}
	}

	start := time.Now()
	res, err := e.store.Query(ctx, countSQL, q.Args...)
	metrics.ObserveStage("existence", time.Since(start))
	if err != nil {
		return false, "", &ValidationError{Query: q.Inline, Cause: err}
	}
	count, err := res.First().Int64(0)
	if err != nil {
		return false, "", &ValidationError{Query: q.Inline, Cause: err}
	}
	if count > 0 {
		return true, "", nil
	}

	system, err := e.prompts.NoDataSystem(c.question)
	if err != nil {
		return false, "", fmt.Errorf("failed to build no-data prompt: %w", err)
	}
	reply, err := e.chat(ctx, "no_data", []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: c.question},
	})
	if err != nil {
		return false, "", fmt.Errorf("no-data reply failed: %w", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		reply = EmptyCompletionApology
	}
	return false, reply, nil
}

// execute runs q and returns its first row, or an empty row.
func (e *Engine) execute(ctx context.Context, q scopedQuery) (datasource.Row, error) {
	start := time.Now()
	res, err := e.store.Query(ctx, q.SQL, q.Args...)
	metrics.ObserveStage("execute", time.Since(start))
	if err != nil {
		return datasource.Row{}, fmt.Errorf("failed to execute query: %w", err)
	}
	return res.First(), nil
}

// explain asks the completion model to describe row as the answer to the
// question.
func (e *Engine) explain(ctx context.Context, c *call, q scopedQuery, row datasource.Row) (string, bool, error) {
	result, err := json.Marshal(row)
	if err != nil {
		return "", false, fmt.Errorf("failed to encode result row: %w", err)
	}
	tables, err := e.listTables(ctx, c)
	if err != nil {
		return "", false, err
	}
	hint, err := e.tenantHint(c)
	if err != nil {
		return "", false, err
	}
	prompt, err := e.prompts.Query(prompts.QueryInput{
		Question:   c.question,
		Tables:     tables,
		Dialect:    e.store.DialectName(),
		TenantHint: hint,
		Query:      q.Inline,
		Result:     string(result),
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to build answer prompt: %w", err)
	}
	return e.synthesize(ctx, "answer", prompt, e.opts.AnswerTemperature, e.opts.AnswerMaxTokens)
}
