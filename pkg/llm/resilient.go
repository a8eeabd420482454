package llm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/metrics"
	"github.com/ekaya-inc/ekaya-askdb/pkg/retry"
)

// ResilientClient bounds every call to an inner client with a timeout and
// retries transient failures (timeouts, rate limits, 5xx).
type ResilientClient struct {
	inner   LLMClient
	timeout time.Duration
	retry   *retry.Config
	logger  *zap.Logger
}

// NewResilientClient wraps inner. A zero timeout disables the per-call deadline.
func NewResilientClient(inner LLMClient, timeout time.Duration, retryCfg *retry.Config, logger *zap.Logger) *ResilientClient {
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	return &ResilientClient{
		inner:   inner,
		timeout: timeout,
		retry:   retryCfg,
		logger:  logger.Named("llm"),
	}
}

// Complete implements CompletionClient.
func (r *ResilientClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	return r.do(ctx, "completion", func(ctx context.Context) (string, error) {
		return r.inner.Complete(ctx, req)
	})
}

// Chat implements ChatClient.
func (r *ResilientClient) Chat(ctx context.Context, messages []Message) (string, error) {
	return r.do(ctx, "chat", func(ctx context.Context) (string, error) {
		return r.inner.Chat(ctx, messages)
	})
}

// GetModel returns the inner client's model.
func (r *ResilientClient) GetModel() string {
	return r.inner.GetModel()
}

// GetEndpoint returns the inner client's endpoint.
func (r *ResilientClient) GetEndpoint() string {
	return r.inner.GetEndpoint()
}

func (r *ResilientClient) do(ctx context.Context, kind string, call func(ctx context.Context) (string, error)) (string, error) {
	attempt := 0
	text, err := retry.DoWithResult(ctx, r.retry, func(ctx context.Context) (string, error) {
		attempt++
		callCtx := ctx
		if r.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}

		text, err := call(callCtx)
		if err != nil {
			llmErr := ClassifyError(err)
			metrics.ObserveLLMRequest(kind, string(llmErr.Type))
			if llmErr.Retryable && attempt <= r.retry.MaxRetries {
				r.logger.Warn("Retrying LLM call",
					zap.String("kind", kind),
					zap.Int("attempt", attempt),
					zap.String("error_type", string(llmErr.Type)))
			}
			return "", llmErr
		}
		metrics.ObserveLLMRequest(kind, "ok")
		return text, nil
	})
	return text, err
}
