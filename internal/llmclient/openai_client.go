// internal/llmclient/openai_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pentest-crew/api/schemas"
	"github.com/xkilldash9x/pentest-crew/internal/config"
)

// OpenAIClient implements schemas.LLMClient for OpenAI and OpenAI-compatible
// chat completion endpoints.
type OpenAIClient struct {
	client openai.Client
	logger *zap.Logger
	config config.LLMModelConfig
}

// NewOpenAIClient initializes the client. Endpoint overrides the base URL for
// compatible servers.
func NewOpenAIClient(cfg config.LLMModelConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API Key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// Retries are handled below so they share one backoff policy with Gemini.
		option.WithMaxRetries(0),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	if cfg.APITimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.APITimeout))
	}

	return &OpenAIClient{
		client: openai.NewClient(opts...),
		config: cfg,
		logger: logger.Named("llm_client.openai"),
	}, nil
}

// Generate sends a system and a user message and returns the first choice.
func (c *OpenAIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	params := c.buildParams(req)

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	b.MaxInterval = 30 * time.Second

	var text string
	operation := func() error {
		start := time.Now()
		resp, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return c.classifyError(err)
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(errors.New("openai returned no choices"))
		}

		c.logger.Info("LLM generation complete (OpenAI)",
			zap.Duration("duration", time.Since(start)),
			zap.String("model", c.config.Model),
			zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
			zap.Int64("total_tokens", resp.Usage.TotalTokens),
		)
		text = resp.Choices[0].Message.Content
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return text, nil
}

func (c *OpenAIClient) buildParams(req schemas.GenerationRequest) openai.ChatCompletionNewParams {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.UserPrompt))

	temp := req.Options.Temperature
	if temp == 0 {
		temp = float64(c.config.Temperature)
	}
	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.config.Model),
		Messages:    messages,
		Temperature: openai.Float(temp),
	}
	if req.Options.TopP > 0 {
		params.TopP = openai.Float(req.Options.TopP)
	} else if c.config.TopP > 0 {
		params.TopP = openai.Float(float64(c.config.TopP))
	}
	if c.config.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(c.config.MaxTokens))
	}
	seed := req.Options.Seed
	if seed == 0 {
		seed = c.config.Seed
	}
	if seed != 0 {
		params.Seed = openai.Int(seed)
	}
	return params
}

// classifyError marks client errors permanent and leaves rate limiting and
// server errors retryable.
func (c *OpenAIClient) classifyError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		c.logger.Warn("OpenAI API returned error status", zap.Int("status", apiErr.StatusCode), zap.Error(err))
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
			return fmt.Errorf("openai API error: %w", err)
		default:
			return backoff.Permanent(fmt.Errorf("openai API error: %w", err))
		}
	}
	c.logger.Warn("Network error during LLM request, retrying...", zap.Error(err))
	return fmt.Errorf("openai request failed: %w", err)
}

// Close releases client resources.
func (c *OpenAIClient) Close() error { return nil }
