package providers

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"
)

// MockProvider produces deterministic embeddings and canned completions so the
// pipeline runs end to end without any remote service.
type MockProvider struct {
	dim int
}

func NewMockProvider(dim int) *MockProvider {
	if dim <= 0 {
		dim = 768
	}
	return &MockProvider{dim: dim}
}

func (m *MockProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	_ = ctx
	dim := req.Dimension
	if dim <= 0 {
		dim = m.dim
	}
	vectors := make([][]float32, 0, len(req.Inputs))
	for _, input := range req.Inputs {
		vectors = append(vectors, deterministicVector(input, dim))
	}
	return vectors, ProviderInfo{Name: "mock", Model: fmt.Sprintf("mock-embed-%d", dim), Key: "mock"}, nil
}

func (m *MockProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	_ = ctx
	info := ProviderInfo{Name: "mock", Model: "mock-llm-v1", Key: "mock"}
	op := strings.ToLower(req.Operation)
	switch {
	case strings.Contains(op, "verify"):
		// Fail-safe default verdict: mock never vouches for a merge.
		return GenerateResponse{Text: "CREATE"}, info, nil
	case strings.Contains(op, "merge"):
		return GenerateResponse{Text: strings.Join(req.Context, "\n\n")}, info, nil
	case strings.Contains(op, "generate"):
		b := strings.Builder{}
		b.WriteString("# Mock Document\n\n")
		for _, c := range req.Context {
			b.WriteString(c)
			b.WriteString("\n\n")
		}
		if b.Len() == len("# Mock Document\n\n") {
			b.WriteString("Deterministic mock content.")
		}
		return GenerateResponse{Text: strings.TrimSpace(b.String())}, info, nil
	default:
		return GenerateResponse{Text: "Mock response."}, info, nil
	}
}

func deterministicVector(input string, dim int) []float32 {
	vec := make([]float32, dim)
	seed := []byte(input)
	if len(seed) == 0 {
		seed = []byte("empty")
	}
	for i := 0; i < dim; i++ {
		h := sha256.Sum256(append(seed, byte(i%251)))
		u := binary.BigEndian.Uint32(h[:4])
		vec[i] = float32(u%2000)/1000.0 - 1.0
	}
	return normalize(vec)
}

func normalize(v []float32) []float32 {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return v
	}
	inv := float32(1.0 / (float64(sum) + 1e-9))
	for i := range v {
		v[i] *= inv
	}
	return v
}
