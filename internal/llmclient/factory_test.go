package llmclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pentest-crew/api/schemas"
	"github.com/xkilldash9x/pentest-crew/internal/config"
)

func TestNewClient_Providers(t *testing.T) {
	logger := setupTestLogger(t)

	c, err := NewClient(context.Background(), getValidLLMConfig(config.ProviderOpenAI), logger)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, c)

	c, err = NewClient(context.Background(), getValidLLMConfig(config.ProviderGemini), logger)
	require.NoError(t, err)
	assert.IsType(t, &GeminiClient{}, c)

	_, err = NewClient(context.Background(), getValidLLMConfig("anthropic"), logger)
	assert.ErrorContains(t, err, "unknown or unsupported LLM provider configured: 'anthropic'")
}

func TestNewClient_MissingKey(t *testing.T) {
	for _, p := range []config.LLMProvider{config.ProviderOpenAI, config.ProviderGemini} {
		cfg := getValidLLMConfig(p)
		cfg.APIKey = ""
		_, err := NewClient(context.Background(), cfg, setupTestLogger(t))
		assert.ErrorContains(t, err, "API Key is required", string(p))
	}
}

func routerConfig() config.LLMRouterConfig {
	return config.LLMRouterConfig{
		DefaultFastModel:     "cheap",
		DefaultPowerfulModel: "smart",
		Models: map[string]config.LLMModelConfig{
			"cheap": getValidLLMConfig(config.ProviderOpenAI),
			"smart": getValidLLMConfig(config.ProviderGemini),
		},
		Cache: config.CacheConfig{Enabled: true, MaxCostBytes: 1 << 20, TTL: time.Minute},
	}
}

func TestNewFromConfig_BuildsStack(t *testing.T) {
	cheap, smart := &MockLLMClient{Name: "cheap"}, &MockLLMClient{Name: "smart"}
	constructor := func(_ context.Context, cfg config.LLMModelConfig, _ *zap.Logger) (schemas.LLMClient, error) {
		if cfg.Provider == config.ProviderOpenAI {
			return cheap, nil
		}
		return smart, nil
	}

	client, err := newFromConfig(context.Background(), routerConfig(), setupTestLogger(t), constructor)
	require.NoError(t, err)
	require.IsType(t, &RateLimitedClient{}, client)

	fastReq := schemas.GenerationRequest{Tier: schemas.TierFast, UserPrompt: "check"}
	cheap.On("Generate", mock.Anything, fastReq).Return("APPROVED", nil).Once()
	out, err := client.Generate(context.Background(), fastReq)
	require.NoError(t, err)
	assert.Equal(t, "APPROVED", out)

	// Served by the cache the second time.
	out, err = client.Generate(context.Background(), fastReq)
	require.NoError(t, err)
	assert.Equal(t, "APPROVED", out)
	cheap.AssertNumberOfCalls(t, "Generate", 1)
	smart.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestNewFromConfig_SharesClientAcrossTiers(t *testing.T) {
	calls := 0
	constructor := func(context.Context, config.LLMModelConfig, *zap.Logger) (schemas.LLMClient, error) {
		calls++
		return &MockLLMClient{}, nil
	}
	cfg := routerConfig()
	cfg.DefaultPowerfulModel = "cheap"

	_, err := newFromConfig(context.Background(), cfg, setupTestLogger(t), constructor)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestNewFromConfig_Errors(t *testing.T) {
	cfg := routerConfig()
	cfg.DefaultPowerfulModel = "missing"
	fast := &MockLLMClient{}
	fast.On("Close").Return(nil).Once()
	constructor := func(context.Context, config.LLMModelConfig, *zap.Logger) (schemas.LLMClient, error) {
		return fast, nil
	}

	_, err := newFromConfig(context.Background(), cfg, setupTestLogger(t), constructor)
	assert.ErrorContains(t, err, `model "missing" is not configured`)
	fast.AssertExpectations(t)

	failing := func(context.Context, config.LLMModelConfig, *zap.Logger) (schemas.LLMClient, error) {
		return nil, errors.New("no key")
	}
	_, err = newFromConfig(context.Background(), routerConfig(), setupTestLogger(t), failing)
	assert.ErrorContains(t, err, `creating client for model "cheap": no key`)
}
