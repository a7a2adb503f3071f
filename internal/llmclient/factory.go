// internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pentest-crew/api/schemas"
	"github.com/xkilldash9x/pentest-crew/internal/config"
)

// NewClient creates a provider client for one model configuration.
func NewClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg, logger)
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s, %s]", cfg.Provider, config.ProviderOpenAI, config.ProviderGemini)
	}
}

// clientConstructor is swapped in tests.
type clientConstructor func(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error)

// NewFromConfig builds the full client stack: one provider client per tier
// (shared when both tiers name the same model), a tier router, the completion
// cache and the rate limiter.
func NewFromConfig(ctx context.Context, cfg config.LLMRouterConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	return newFromConfig(ctx, cfg, logger, NewClient)
}

func newFromConfig(ctx context.Context, cfg config.LLMRouterConfig, logger *zap.Logger, newClient clientConstructor) (schemas.LLMClient, error) {
	built := make(map[string]schemas.LLMClient)
	get := func(name string) (schemas.LLMClient, error) {
		if c, ok := built[name]; ok {
			return c, nil
		}
		modelCfg, ok := cfg.Models[name]
		if !ok {
			return nil, fmt.Errorf("model %q is not configured", name)
		}
		c, err := newClient(ctx, modelCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("creating client for model %q: %w", name, err)
		}
		built[name] = c
		return c, nil
	}

	fast, err := get(cfg.DefaultFastModel)
	if err != nil {
		return nil, err
	}
	powerful, err := get(cfg.DefaultPowerfulModel)
	if err != nil {
		_ = fast.Close()
		return nil, err
	}

	router, err := NewLLMRouter(logger, fast, powerful)
	if err != nil {
		return nil, err
	}

	var client schemas.LLMClient = router
	if cfg.Cache.Enabled {
		cached, err := NewCachedClient(client, cfg.Cache.MaxCostBytes, cfg.Cache.TTL, logger)
		if err != nil {
			_ = router.Close()
			return nil, err
		}
		client = cached
	}
	return NewRateLimitedClient(client, cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst), nil
}
