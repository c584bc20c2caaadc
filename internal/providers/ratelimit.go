package providers

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Remote providers enforce a minimum spacing between calls. The limiter waits
// before each call instead of busy-polling, and honors context cancellation.

type rateLimitedLLM struct {
	inner   LLMProvider
	limiter *rate.Limiter
}

type rateLimitedEmbedder struct {
	inner   EmbeddingProvider
	limiter *rate.Limiter
}

func newLimiter(minInterval time.Duration) *rate.Limiter {
	if minInterval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(minInterval), 1)
}

func RateLimitLLM(p LLMProvider, minInterval time.Duration) LLMProvider {
	return &rateLimitedLLM{inner: p, limiter: newLimiter(minInterval)}
}

func RateLimitEmbedder(p EmbeddingProvider, minInterval time.Duration) EmbeddingProvider {
	return &rateLimitedEmbedder{inner: p, limiter: newLimiter(minInterval)}
}

func (r *rateLimitedLLM) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return GenerateResponse{}, ProviderInfo{}, err
	}
	return r.inner.Generate(ctx, req)
}

func (r *rateLimitedEmbedder) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, ProviderInfo{}, err
	}
	return r.inner.Embed(ctx, req)
}
