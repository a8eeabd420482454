package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

// completionSystemPrompt turns the messages API into a text continuation.
const completionSystemPrompt = "Continue the text provided by the user. Reply with the continuation only, without repeating the prompt or adding commentary."

// AnthropicClient serves completions and chats through the Anthropic messages API.
type AnthropicClient struct {
	client          *anthropic.Client
	endpoint        string
	completionModel string
	chatModel       string
	logger          *zap.Logger
}

// NewAnthropicClient creates a client for the Anthropic messages API.
func NewAnthropicClient(cfg *Config, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required for anthropic")
	}
	if cfg.CompletionModel == "" || cfg.ChatModel == "" {
		return nil, fmt.Errorf("completion and chat models are required")
	}

	var opts []anthropic.ClientOption
	endpoint := "https://api.anthropic.com/v1"
	if cfg.Endpoint != "" {
		endpoint = strings.TrimSuffix(cfg.Endpoint, "/")
		opts = append(opts, anthropic.WithBaseURL(endpoint))
	}

	return &AnthropicClient{
		client:          anthropic.NewClient(cfg.APIKey, opts...),
		endpoint:        endpoint,
		completionModel: cfg.CompletionModel,
		chatModel:       cfg.ChatModel,
		logger:          logger.Named("llm"),
	}, nil
}

// Complete emulates a text completion. The API rejects whitespace-only stop
// sequences, so those are applied to the returned text instead.
func (c *AnthropicClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	var apiStops, localStops []string
	for _, s := range req.Stop {
		if strings.TrimSpace(s) == "" {
			localStops = append(localStops, s)
		} else {
			apiStops = append(apiStops, s)
		}
	}

	temperature := req.Temperature
	text, err := c.send(ctx, c.completionModel, anthropic.MessagesRequest{
		Model:         anthropic.Model(c.completionModel),
		System:        completionSystemPrompt,
		MaxTokens:     req.MaxTokens,
		Temperature:   &temperature,
		StopSequences: apiStops,
		Messages: []anthropic.Message{
			textMessage(anthropic.RoleUser, req.Prompt),
		},
	})
	if err != nil {
		return "", err
	}
	return cutAtStops(text, localStops), nil
}

// Chat sends a conversation. System messages are folded into the request's
// system prompt; the rest keep their order.
func (c *AnthropicClient) Chat(ctx context.Context, messages []Message) (string, error) {
	var system []string
	var turns []anthropic.Message
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			turns = append(turns, textMessage(anthropic.RoleAssistant, m.Content))
		default:
			turns = append(turns, textMessage(anthropic.RoleUser, m.Content))
		}
	}
	if len(turns) == 0 {
		return "", NewError(ErrorTypeUnknown, "chat requires at least one user message", false, nil)
	}

	text, err := c.send(ctx, c.chatModel, anthropic.MessagesRequest{
		Model:     anthropic.Model(c.chatModel),
		System:    strings.Join(system, "\n\n"),
		MaxTokens: 512,
		Messages:  turns,
	})
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", NewError(ErrorTypeEmpty, "no text in chat response", false, nil)
	}
	return text, nil
}

func (c *AnthropicClient) send(ctx context.Context, model string, req anthropic.MessagesRequest) (string, error) {
	c.logger.Debug("LLM request",
		zap.String("provider", "anthropic"),
		zap.String("model", model),
		zap.Int("messages", len(req.Messages)))

	start := time.Now()

	resp, err := c.client.CreateMessages(ctx, req)
	if err != nil {
		c.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		llmErr := ClassifyError(err)
		if llmErr.Model == "" {
			llmErr.Model = model
		}
		return "", llmErr
	}

	c.logger.Info("LLM request completed",
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return extractText(resp), nil
}

// GetModel returns the configured completion model name.
func (c *AnthropicClient) GetModel() string {
	return c.completionModel
}

// GetEndpoint returns the configured endpoint.
func (c *AnthropicClient) GetEndpoint() string {
	return c.endpoint
}

func textMessage(role anthropic.ChatRole, text string) anthropic.Message {
	return anthropic.Message{
		Role:    role,
		Content: []anthropic.MessageContent{{Type: "text", Text: &text}},
	}
}

func extractText(resp anthropic.MessagesResponse) string {
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			sb.WriteString(*block.Text)
		}
	}
	return sb.String()
}

func cutAtStops(text string, stops []string) string {
	cut := len(text)
	for _, s := range stops {
		if s == "" {
			continue
		}
		if i := strings.Index(text, s); i >= 0 && i < cut {
			cut = i
		}
	}
	return text[:cut]
}
