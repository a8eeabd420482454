package llm

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/config"
	"github.com/ekaya-inc/ekaya-askdb/pkg/retry"
)

// NewFromConfig builds the configured provider client wrapped with the
// pipeline's timeout and retry policy.
func NewFromConfig(cfg config.LLMConfig, callTimeout time.Duration, maxRetries int, logger *zap.Logger) (LLMClient, error) {
	clientCfg := &Config{
		Endpoint:        cfg.BaseURL,
		CompletionModel: cfg.CompletionModel,
		ChatModel:       cfg.ChatModel,
		APIKey:          cfg.APIKey,
	}

	var inner LLMClient
	var err error
	switch cfg.Provider {
	case config.ProviderOpenAI, "":
		inner, err = NewClient(clientCfg, logger)
	case config.ProviderAnthropic:
		inner, err = NewAnthropicClient(clientCfg, logger)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", cfg.Provider, err)
	}

	return NewResilientClient(inner, callTimeout, retry.WithMaxRetries(maxRetries), logger), nil
}
