package providers

import "context"

type ProviderInfo struct {
	Name  string `json:"name"`
	Model string `json:"model"`
	Key   string `json:"key"`
}

type GenerateRequest struct {
	Operation string   `json:"operation"`
	Prompt    string   `json:"prompt"`
	Context   []string `json:"context"`
}

type GenerateResponse struct {
	Text string `json:"text"`
}

type EmbedRequest struct {
	Operation string   `json:"operation"`
	Inputs    []string `json:"inputs"`
	Dimension int      `json:"dimension"`
}

// LLMProvider serves the completion call sites: document content generation,
// merge folding, and the uncertain-band verification verdict.
type LLMProvider interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error)
}

type EmbeddingProvider interface {
	Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error)
}

// Operation names passed through requests so providers and audit rows can tell
// call sites apart.
const (
	OpGenerateDocument = "generate_document"
	OpMergeDocument    = "merge_document"
	OpVerifyDecision   = "verify_decision"
	OpEmbedChunks      = "embed_chunks"
	OpEmbedTopics      = "embed_topics"
	OpEmbedQuery       = "embed_query"
)
