package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ekaya-inc/ekaya-askdb/pkg/config"
	"github.com/ekaya-inc/ekaya-askdb/pkg/llm"
	"github.com/ekaya-inc/ekaya-askdb/pkg/metrics"
	"github.com/ekaya-inc/ekaya-askdb/pkg/prompts"
)

// complete calls the completion model and records its latency and status
// under kind.
func (e *Engine) complete(ctx context.Context, kind string, req llm.CompletionRequest) (string, error) {
	start := time.Now()
	text, err := e.llm.Complete(ctx, req)
	metrics.ObserveStage(kind, time.Since(start))
	metrics.ObserveLLMRequest(kind, llmStatus(err))
	return text, err
}

func (e *Engine) chat(ctx context.Context, kind string, messages []llm.Message) (string, error) {
	start := time.Now()
	text, err := e.llm.Chat(ctx, messages)
	metrics.ObserveStage(kind, time.Since(start))
	metrics.ObserveLLMRequest(kind, llmStatus(err))
	return text, err
}

func llmStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// synthesize runs one single-line completion. An empty completion is
// replaced by EmptyCompletionApology and reported with ok == false.
func (e *Engine) synthesize(ctx context.Context, kind, prompt string, temperature float32, maxTokens int) (text string, ok bool, err error) {
	raw, err := e.complete(ctx, kind, llm.CompletionRequest{
		Prompt:      prompt,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stop:        []string{"\n"},
	})
	if err != nil {
		return "", false, err
	}
	text = cleanCompletion(raw)
	if text == "" {
		return EmptyCompletionApology, false, nil
	}
	return text, true, nil
}

// cleanCompletion trims whitespace and the quote closing the value the
// prompt opened. A completion wrapped in a matched pair loses both quotes.
// A trailing quote is only removed when it has no partner, so quoted
// identifiers at the end of a statement survive.
func cleanCompletion(text string) string {
	text = strings.TrimSpace(text)
	switch {
	case len(text) >= 2 && strings.HasPrefix(text, `"`) && strings.HasSuffix(text, `"`):
		text = text[1 : len(text)-1]
	case strings.HasSuffix(text, `"`) && strings.Count(text, `"`)%2 == 1:
		text = text[:len(text)-1]
	}
	return strings.TrimSpace(text)
}

// synthesizeQuery asks the model for the SQL answering the question.
func (e *Engine) synthesizeQuery(ctx context.Context, c *call) (string, bool, error) {
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
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to build query prompt: %w", err)
	}
	return e.synthesize(ctx, "query", prompt, 0, e.opts.QueryMaxTokens)
}

func (e *Engine) tenantHint(c *call) (string, error) {
	if !c.scope.IsScoped() {
		return "", nil
	}
	var (
		hint string
		err  error
	)
	switch e.opts.ScopingStrategy {
	case config.ScopingPlaceholder:
		hint, err = e.prompts.PlaceholderHint(prompts.PlaceholderHintInput{Placeholder: e.opts.UserPlaceholder})
	default:
		hint, err = e.prompts.ClauseHint(prompts.ClauseHintInput{
			TenantColumn:    e.opts.TenantColumn,
			SecretKeyColumn: e.opts.SecretKeyColumn,
		})
	}
	if err != nil {
		return "", fmt.Errorf("failed to build tenant hint: %w", err)
	}
	return hint, nil
}
