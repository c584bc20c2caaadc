package ingest

import (
	"context"

	"topicflow/internal/models"
)

// Store is the slice of the persistence layer the creator and merger need.
// *storage.DocumentRepo satisfies it; tests use an in-memory fake.
type Store interface {
	UpsertDocument(ctx context.Context, doc models.Document, docVec []float32, chunks []models.Chunk) error
	GetDocument(ctx context.Context, docID string) (*models.Document, error)
}

type Embedder interface {
	EmbedOne(ctx context.Context, operation, text string) ([]float32, error)
	EmbedMany(ctx context.Context, operation string, texts []string) ([][]float32, error)
}

type Config struct {
	ChunkTargetTokens  int
	ChunkOverlapTokens int
	Mode               string
	SummaryRunes       int
}

func (c Config) withDefaults() Config {
	if c.ChunkTargetTokens <= 0 {
		c.ChunkTargetTokens = 300
	}
	if c.ChunkOverlapTokens < 0 {
		c.ChunkOverlapTokens = 0
	}
	if c.Mode == "" {
		c.Mode = "summary"
	}
	if c.SummaryRunes <= 0 {
		c.SummaryRunes = 320
	}
	return c
}
