// internal/llmclient/cache.go
package llmclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pentest-crew/api/schemas"
)

// CachedClient memoizes completions for identical requests in an in-process
// ristretto cache. A repeated request with the same prompts, tier and seed is
// served without calling the provider.
type CachedClient struct {
	next   schemas.LLMClient
	cache  *ristretto.Cache[string, string]
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedClient wraps next. maxCostBytes bounds the total size of cached completions.
func NewCachedClient(next schemas.LLMClient, maxCostBytes int64, ttl time.Duration, logger *zap.Logger) (*CachedClient, error) {
	if maxCostBytes <= 0 {
		return nil, fmt.Errorf("cache size must be positive")
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: maxCostBytes / 100 * 10,
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating completion cache: %w", err)
	}
	return &CachedClient{next: next, cache: c, ttl: ttl, logger: logger.Named("llm_cache")}, nil
}

func (c *CachedClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	key := cacheKey(req)
	if hit, ok := c.cache.Get(key); ok {
		c.logger.Debug("Completion served from cache", zap.String("key", key[:12]))
		return hit, nil
	}

	out, err := c.next.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	if c.ttl > 0 {
		c.cache.SetWithTTL(key, out, int64(len(out)), c.ttl)
	} else {
		c.cache.Set(key, out, int64(len(out)))
	}
	c.cache.Wait()
	return out, nil
}

func (c *CachedClient) Close() error {
	c.cache.Close()
	return c.next.Close()
}

func cacheKey(req schemas.GenerationRequest) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%g\x00%g\x00%d\x00%d\x00%t\x00", req.Tier, req.Options.Temperature, req.Options.TopP, req.Options.TopK, req.Options.Seed, req.Options.ForceJSONFormat)
	h.Write([]byte(req.SystemPrompt))
	h.Write([]byte{0})
	h.Write([]byte(req.UserPrompt))
	return hex.EncodeToString(h.Sum(nil))
}
