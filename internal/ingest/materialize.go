package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"topicflow/internal/models"
	"topicflow/internal/providers"
	"topicflow/internal/util"
)

// materialize turns a document's current content into its embedded chunk set
// plus the document-level embedding, using a single batch call for everything.
// Chunks that cannot be embedded even after a per-item retry are dropped with
// a log line and the remaining indexes stay contiguous from 0; a chunk row
// without an embedding must never reach the store.
func materialize(ctx context.Context, embedder Embedder, cfg Config, doc models.Document, logger *slog.Logger) ([]float32, []models.Chunk, error) {
	parts := util.ChunkText(doc.Content, cfg.ChunkTargetTokens, cfg.ChunkOverlapTokens)

	inputs := make([]string, 0, len(parts)+1)
	inputs = append(inputs, docEmbedText(doc))
	inputs = append(inputs, parts...)

	vecs, err := embedder.EmbedMany(ctx, providers.OpEmbedChunks, inputs)
	if err != nil {
		return nil, nil, fmt.Errorf("embed document %s: %w", doc.DocID, err)
	}

	docVec := vecs[0]
	if len(docVec) == 0 {
		docVec, err = embedder.EmbedOne(ctx, providers.OpEmbedChunks, inputs[0])
		if err != nil {
			return nil, nil, fmt.Errorf("embed document text for %s: %w", doc.DocID, err)
		}
	}

	chunks := make([]models.Chunk, 0, len(parts))
	for i, part := range parts {
		vec := vecs[i+1]
		if len(vec) == 0 {
			vec, err = embedder.EmbedOne(ctx, providers.OpEmbedChunks, part)
			if err != nil {
				logger.Error("dropping chunk that could not be embedded",
					"doc_id", doc.DocID, "source_index", i, "error", err)
				continue
			}
		}
		idx := len(chunks)
		chunks = append(chunks, models.Chunk{
			ChunkID:    chunkID(doc.DocID, idx, part),
			DocID:      doc.DocID,
			ChunkIndex: idx,
			Text:       part,
			TokenCount: util.EstimateTokens(part),
			Embedding:  vec,
		})
	}
	if len(parts) > 0 && len(chunks) == 0 {
		return nil, nil, fmt.Errorf("document %s: no chunk could be embedded", doc.DocID)
	}
	return docVec, chunks, nil
}

func chunkID(docID string, index int, text string) string {
	return util.SHA256Hex([]byte(docID + ":" + strconv.Itoa(index) + ":" + util.SHA256Hex([]byte(text))))
}
