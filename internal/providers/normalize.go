package providers

import (
	"encoding/json"
	"fmt"

	"topicflow/internal/util"
)

// ParseVectorPayload normalizes the batch-embedding payload shapes seen across
// providers into a flat list of flat vectors, exactly one per requested input.
// Recognized shapes, tried in order:
//
//	[{"embedding": [...]}, ...]   wrapper-object list (OpenAI style)
//	[[...], [...]]                flat list of vectors
//	[[[...], [...]]]              singly wrapped list of vectors
//	[...]                         one flat vector, only when want == 1
//
// Anything else is a hard error, as is a vector count that does not match
// want: a silently mis-flattened batch loses embeddings, which is worse than
// failing the call.
func ParseVectorPayload(raw []byte, want int) ([][]float32, error) {
	var wrapped []struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped) > 0 && len(wrapped[0].Embedding) > 0 {
		out := make([][]float32, 0, len(wrapped))
		for _, w := range wrapped {
			out = append(out, w.Embedding)
		}
		return checkVectors(out, want)
	}

	var flat [][]float32
	if err := json.Unmarshal(raw, &flat); err == nil && len(flat) > 0 {
		return checkVectors(flat, want)
	}

	var nested [][][]float32
	if err := json.Unmarshal(raw, &nested); err == nil && len(nested) == 1 && len(nested[0]) > 0 {
		return checkVectors(nested[0], want)
	}

	var single []float32
	if err := json.Unmarshal(raw, &single); err == nil && len(single) > 0 && want == 1 {
		return [][]float32{single}, nil
	}

	return nil, fmt.Errorf("%w: %s", util.ErrUnrecognizedShape, util.Excerpt(string(raw), 120))
}

func checkVectors(vecs [][]float32, want int) ([][]float32, error) {
	if len(vecs) != want {
		return nil, fmt.Errorf("%w: got %d, want %d", util.ErrVectorCountMismatch, len(vecs), want)
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: index %d", util.ErrEmptyEmbedding, i)
		}
	}
	return vecs, nil
}
