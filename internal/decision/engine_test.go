package decision

import (
	"context"
	"errors"
	"math"
	"testing"

	"topicflow/internal/models"
	"topicflow/internal/providers"

	"github.com/stretchr/testify/require"
)

type fakeLLM struct {
	calls    int
	response string
	err      error
}

func (f *fakeLLM) Generate(_ context.Context, req providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error) {
	f.calls++
	if f.err != nil {
		return providers.GenerateResponse{}, providers.ProviderInfo{}, f.err
	}
	return providers.GenerateResponse{Text: f.response}, providers.ProviderInfo{Name: "fake"}, nil
}

func candidate(id string, vec []float32) models.DocumentEmbedding {
	return models.DocumentEmbedding{DocID: id, Title: "doc " + id, Summary: "summary", Embedding: vec}
}

func newTestEngine(llm providers.LLMProvider) *Engine {
	return NewEngine(Config{MergeThreshold: 0.85, CreateThreshold: 0.65}, nil, llm, nil)
}

func TestDecideNoCandidatesCreates(t *testing.T) {
	llm := &fakeLLM{}
	e := newTestEngine(llm)
	d, err := e.Decide(context.Background(), models.Topic{Title: "t"}, []float32{1, 0}, nil)
	require.NoError(t, err)
	require.Equal(t, models.ActionCreate, d.Action)
	require.Zero(t, llm.calls)
}

func TestDecideHighSimilarityMergesWithoutLLM(t *testing.T) {
	llm := &fakeLLM{}
	e := newTestEngine(llm)
	// cos([1,0],[1,0]) = 1.0, cos([1,0],[0,1]) = 0.
	cands := []models.DocumentEmbedding{
		candidate("a", []float32{0, 1}),
		candidate("b", []float32{1, 0}),
	}
	d, err := e.Decide(context.Background(), models.Topic{Title: "t"}, []float32{1, 0}, cands)
	require.NoError(t, err)
	require.Equal(t, models.ActionMerge, d.Action)
	require.Equal(t, "b", d.TargetDocID)
	require.InDelta(t, 1.0, d.Similarity, 1e-9)
	require.False(t, d.LLMUsed)
	require.Zero(t, llm.calls, "threshold merge must not invoke the completion service")
}

func TestDecideLowSimilarityCreatesWithoutLLM(t *testing.T) {
	llm := &fakeLLM{}
	e := newTestEngine(llm)
	cands := []models.DocumentEmbedding{candidate("a", []float32{0, 1})}
	d, err := e.Decide(context.Background(), models.Topic{Title: "t"}, []float32{1, 0}, cands)
	require.NoError(t, err)
	require.Equal(t, models.ActionCreate, d.Action)
	require.Zero(t, llm.calls)
}

func TestDecideUncertainBandCallsLLMOnce(t *testing.T) {
	llm := &fakeLLM{response: "MERGE"}
	e := newTestEngine(llm)
	// cos([0.8,0.6],[1,0]) = 0.8, inside (0.65, 0.85).
	cands := []models.DocumentEmbedding{candidate("a", []float32{1, 0})}
	d, err := e.Decide(context.Background(), models.Topic{Title: "t"}, []float32{0.8, 0.6}, cands)
	require.NoError(t, err)
	require.Equal(t, 1, llm.calls)
	require.Equal(t, models.ActionMerge, d.Action)
	require.Equal(t, "a", d.TargetDocID)
	require.True(t, d.LLMUsed)
}

func TestDecideUncertainBandLLMFailureDefaultsToCreate(t *testing.T) {
	llm := &fakeLLM{err: errors.New("timeout")}
	e := newTestEngine(llm)
	cands := []models.DocumentEmbedding{candidate("a", []float32{1, 0})}
	d, err := e.Decide(context.Background(), models.Topic{Title: "t"}, []float32{0.8, 0.6}, cands)
	require.NoError(t, err)
	require.Equal(t, models.ActionCreate, d.Action)
	require.Empty(t, d.TargetDocID)
	require.Equal(t, "low", d.Confidence)
	require.False(t, d.LLMUsed)
}

func TestDecideUncertainBandUnparsedVerdictDefaultsToCreate(t *testing.T) {
	llm := &fakeLLM{response: "hmm, hard to say"}
	e := newTestEngine(llm)
	cands := []models.DocumentEmbedding{candidate("a", []float32{1, 0})}
	d, err := e.Decide(context.Background(), models.Topic{Title: "t"}, []float32{0.8, 0.6}, cands)
	require.NoError(t, err)
	require.Equal(t, models.ActionCreate, d.Action)
	require.Equal(t, "low", d.Confidence)
}

func TestParseVerdict(t *testing.T) {
	a, err := ParseVerdict("MERGE")
	require.NoError(t, err)
	require.Equal(t, models.ActionMerge, a)

	a, err = ParseVerdict("  create.\n")
	require.NoError(t, err)
	require.Equal(t, models.ActionCreate, a)

	a, err = ParseVerdict("Verdict: MERGE (same subject)")
	require.NoError(t, err)
	require.Equal(t, models.ActionMerge, a)

	_, err = ParseVerdict("neither")
	require.Error(t, err)
}

func TestCosine(t *testing.T) {
	require.InDelta(t, 1.0, Cosine([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
	require.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	require.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	require.Zero(t, Cosine(nil, []float32{1}))
	require.Zero(t, Cosine([]float32{1, 2}, []float32{1}))
	require.InDelta(t, math.Sqrt2/2, Cosine([]float32{1, 1}, []float32{1, 0}), 1e-9)
}
