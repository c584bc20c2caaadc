package embedding

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"topicflow/internal/providers"

	"github.com/stretchr/testify/require"
)

// scriptedProvider fails batch calls (more than one input) a set number of
// times, while per-item calls behave according to failItems.
type scriptedProvider struct {
	batchFailures int
	failItems     map[string]bool
	batchCalls    int
	itemCalls     int
}

func (s *scriptedProvider) Embed(_ context.Context, req providers.EmbedRequest) ([][]float32, providers.ProviderInfo, error) {
	info := providers.ProviderInfo{Name: "scripted"}
	if len(req.Inputs) > 1 {
		s.batchCalls++
		if s.batchFailures > 0 {
			s.batchFailures--
			return nil, info, errors.New("batch unavailable")
		}
	} else {
		s.itemCalls++
		if s.failItems[req.Inputs[0]] {
			return nil, info, errors.New("item failed")
		}
	}
	out := make([][]float32, 0, len(req.Inputs))
	for range req.Inputs {
		out = append(out, []float32{1, 0, 0})
	}
	return out, info, nil
}

func texts(n int) []string {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, fmt.Sprintf("text-%d", i))
	}
	return out
}

func TestEmbedManyEmpty(t *testing.T) {
	c := NewClient(&scriptedProvider{}, Config{BatchSize: 10, Dimension: 3}, nil)
	vecs, err := c.EmbedMany(context.Background(), providers.OpEmbedChunks, nil)
	require.NoError(t, err)
	require.Len(t, vecs, 0)
}

func TestEmbedManySingle(t *testing.T) {
	c := NewClient(&scriptedProvider{}, Config{BatchSize: 10, Dimension: 3}, nil)
	vecs, err := c.EmbedMany(context.Background(), providers.OpEmbedChunks, texts(1))
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	require.Len(t, vecs[0], 3)
}

func TestEmbedManyCrossesBatchBoundary(t *testing.T) {
	p := &scriptedProvider{}
	c := NewClient(p, Config{BatchSize: 100, Dimension: 3}, nil)
	in := texts(250)
	vecs, err := c.EmbedMany(context.Background(), providers.OpEmbedChunks, in)
	require.NoError(t, err)
	require.Len(t, vecs, len(in))
	for _, v := range vecs {
		require.Len(t, v, 3)
	}
	require.Equal(t, 3, p.batchCalls, "expected one remote call per batch")
	require.Equal(t, 0, p.itemCalls)
}

func TestEmbedManyFallsBackPerItemForBadBatch(t *testing.T) {
	// All batch attempts fail; sequential fallback covers the batch.
	p := &scriptedProvider{batchFailures: 100}
	c := NewClient(p, Config{BatchSize: 10, Dimension: 3, MaxRetries: 2}, nil)
	in := texts(5)
	vecs, err := c.EmbedMany(context.Background(), providers.OpEmbedChunks, in)
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	for _, v := range vecs {
		require.NotNil(t, v)
	}
	require.Equal(t, 5, p.itemCalls, "each item embedded once in the fallback pass")
}

func TestEmbedManyNilEntryForUnembeddableItem(t *testing.T) {
	p := &scriptedProvider{batchFailures: 100, failItems: map[string]bool{"text-2": true}}
	c := NewClient(p, Config{BatchSize: 10, Dimension: 3, MaxRetries: 2}, nil)
	in := texts(4)
	vecs, err := c.EmbedMany(context.Background(), providers.OpEmbedChunks, in)
	require.NoError(t, err)
	require.Len(t, vecs, 4)
	require.Nil(t, vecs[2])
	require.NotNil(t, vecs[0])
	require.NotNil(t, vecs[3])
}

func TestEmbedOneRetries(t *testing.T) {
	p := &scriptedProvider{}
	c := NewClient(p, Config{BatchSize: 10, Dimension: 3, MaxRetries: 3}, nil)
	vec, err := c.EmbedOne(context.Background(), providers.OpEmbedQuery, "hello")
	require.NoError(t, err)
	require.Len(t, vec, 3)
}
