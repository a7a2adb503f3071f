package llmclient

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/xkilldash9x/pentest-crew/api/schemas"
)

// RateLimitedClient spaces out completion requests to stay under provider quotas.
type RateLimitedClient struct {
	next    schemas.LLMClient
	limiter *rate.Limiter
}

// NewRateLimitedClient allows requestsPerMinute requests with the given burst.
// A non-positive rate disables limiting.
func NewRateLimitedClient(next schemas.LLMClient, requestsPerMinute float64, burst int) *RateLimitedClient {
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Limit(requestsPerMinute / 60)
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedClient{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (c *RateLimitedClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for LLM rate limit: %w", err)
	}
	return c.next.Generate(ctx, req)
}

func (c *RateLimitedClient) Close() error { return c.next.Close() }
