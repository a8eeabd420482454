package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Client provides access to OpenAI-compatible completion and chat endpoints.
type Client struct {
	client          *openai.Client
	endpoint        string
	completionModel string
	chatModel       string
	logger          *zap.Logger
}

// Config holds configuration for creating an LLM client.
type Config struct {
	Endpoint        string // Base URL, e.g. "https://api.openai.com/v1"
	CompletionModel string // e.g. "gpt-3.5-turbo-instruct"
	ChatModel       string // e.g. "gpt-4o-mini"
	APIKey          string // Optional for local endpoints
}

// NewClient creates a new OpenAI-compatible LLM client.
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg.CompletionModel == "" {
		return nil, fmt.Errorf("completion model is required")
	}
	if cfg.ChatModel == "" {
		return nil, fmt.Errorf("chat model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	endpoint := cfg.Endpoint
	if endpoint != "" {
		clientConfig.BaseURL = strings.TrimSuffix(endpoint, "/")
	} else {
		endpoint = clientConfig.BaseURL
	}

	return &Client{
		client:          openai.NewClientWithConfig(clientConfig),
		endpoint:        endpoint,
		completionModel: cfg.CompletionModel,
		chatModel:       cfg.ChatModel,
		logger:          logger.Named("llm"),
	}, nil
}

// Complete runs a legacy text completion and returns the first choice.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	c.logger.Debug("LLM completion request",
		zap.String("model", c.completionModel),
		zap.Int("prompt_len", len(req.Prompt)),
		zap.Float32("temperature", req.Temperature),
		zap.Int("max_tokens", req.MaxTokens))

	start := time.Now()

	resp, err := c.client.CreateCompletion(ctx, openai.CompletionRequest{
		Model:       c.completionModel,
		Prompt:      req.Prompt,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
	})
	if err != nil {
		c.logger.Error("LLM completion failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", c.parseError(err, c.completionModel)
	}

	c.logger.Info("LLM completion completed",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	// No choices is an empty completion, not a failure.
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Text, nil
}

// Chat runs a chat completion and returns the assistant's reply.
func (c *Client) Chat(ctx context.Context, messages []Message) (string, error) {
	chatMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	c.logger.Debug("LLM chat request",
		zap.String("model", c.chatModel),
		zap.Int("messages", len(messages)))

	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.chatModel,
		Messages: chatMessages,
	})
	if err != nil {
		c.logger.Error("LLM chat failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", c.parseError(err, c.chatModel)
	}

	c.logger.Info("LLM chat completed",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	if len(resp.Choices) == 0 {
		return "", NewError(ErrorTypeEmpty, "no choices in chat response", false, nil)
	}
	return resp.Choices[0].Message.Content, nil
}

// GetModel returns the configured completion model name.
func (c *Client) GetModel() string {
	return c.completionModel
}

// GetEndpoint returns the configured endpoint.
func (c *Client) GetEndpoint() string {
	return c.endpoint
}

// parseError categorizes OpenAI API errors using the structured Error type.
func (c *Client) parseError(err error, model string) error {
	llmErr := ClassifyError(err)
	if llmErr.Model == "" {
		llmErr.Model = model
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		llmErr.StatusCode = apiErr.HTTPStatusCode
	}
	return llmErr
}
