package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"topicflow/internal/providers"
	"topicflow/internal/util"
)

type Config struct {
	// BatchSize caps the number of texts per remote call. One call per batch
	// is the main cost lever of the whole pipeline.
	BatchSize  int
	Dimension  int
	MaxRetries int
}

// Client is the batch-embedding pipeline. It partitions inputs into
// provider-capacity batches, verifies the normalized response covers every
// input, and degrades a failed batch to sequential per-item calls instead of
// aborting the run.
type Client struct {
	provider providers.EmbeddingProvider
	cfg      Config
	logger   *slog.Logger
}

func NewClient(provider providers.EmbeddingProvider, cfg Config, logger *slog.Logger) *Client {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{provider: provider, cfg: cfg, logger: logger}
}

func (c *Client) Dimension() int { return c.cfg.Dimension }

func (c *Client) EmbedOne(ctx context.Context, operation, text string) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, backoff(attempt)); err != nil {
				return nil, err
			}
		}
		vecs, _, err := c.provider.Embed(ctx, providers.EmbedRequest{
			Operation: operation,
			Inputs:    []string{text},
			Dimension: c.cfg.Dimension,
		})
		if err != nil {
			lastErr = err
			continue
		}
		if len(vecs) != 1 || len(vecs[0]) == 0 {
			lastErr = fmt.Errorf("%w: got %d vectors for one input", util.ErrVectorCountMismatch, len(vecs))
			continue
		}
		return vecs[0], nil
	}
	return nil, fmt.Errorf("embed one after %d attempts: %w", c.cfg.MaxRetries, lastErr)
}

// EmbedMany returns exactly len(texts) vectors in input order. Inputs that
// could not be embedded even by the per-item fallback are returned as nil
// entries (callers retry or drop them); any other shape is an error.
func (c *Client) EmbedMany(ctx context.Context, operation string, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]
		vecs, err := c.embedBatch(ctx, operation, batch)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("batch embedding failed, falling back to per-item calls",
				"operation", operation, "batch_start", start, "batch_size", len(batch), "error", err)
			vecs = c.embedSequential(ctx, operation, batch)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
		}
		out = append(out, vecs...)
	}
	if len(out) != len(texts) {
		return nil, fmt.Errorf("%w: got %d, want %d", util.ErrVectorCountMismatch, len(out), len(texts))
	}
	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, operation string, batch []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, backoff(attempt)); err != nil {
				return nil, err
			}
		}
		vecs, _, err := c.provider.Embed(ctx, providers.EmbedRequest{
			Operation: operation,
			Inputs:    batch,
			Dimension: c.cfg.Dimension,
		})
		if err != nil {
			lastErr = err
			continue
		}
		if len(vecs) != len(batch) {
			// The provider boundary should already normalize shapes; a count
			// mismatch here means vectors were silently dropped.
			lastErr = fmt.Errorf("%w: got %d, want %d", util.ErrVectorCountMismatch, len(vecs), len(batch))
			continue
		}
		for i, v := range vecs {
			if len(v) == 0 {
				lastErr = fmt.Errorf("%w: batch index %d", util.ErrEmptyEmbedding, i)
				vecs = nil
				break
			}
		}
		if vecs != nil {
			return vecs, nil
		}
	}
	return nil, lastErr
}

func (c *Client) embedSequential(ctx context.Context, operation string, batch []string) [][]float32 {
	out := make([][]float32, len(batch))
	for i, text := range batch {
		if ctx.Err() != nil {
			return out
		}
		vec, err := c.EmbedOne(ctx, operation, text)
		if err != nil {
			c.logger.Error("per-item embedding failed", "operation", operation, "index", i, "error", err)
			continue
		}
		out[i] = vec
	}
	return out
}

func backoff(attempt int) time.Duration {
	return time.Duration(attempt) * 500 * time.Millisecond
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
