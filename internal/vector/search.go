package vector

import (
	"context"
	"fmt"

	"topicflow/internal/models"
	"topicflow/internal/util"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

type SearchFilters struct {
	Category string
}

type Searcher struct {
	q Queryer
}

type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func NewSearcher(q Queryer) *Searcher {
	return &Searcher{q: q}
}

// SearchChunks runs an approximate nearest-neighbor query over chunk
// embeddings. Chunks without embeddings never appear in results.
func (s *Searcher) SearchChunks(ctx context.Context, queryVec []float32, topK int, filters SearchFilters) ([]models.ChunkResult, error) {
	if topK <= 0 {
		topK = 8
	}
	args := []any{pgvector.NewVector(queryVec), topK}
	filterSQL := ""
	if filters.Category != "" {
		filterSQL = " AND d.category = $3"
		args = append(args, filters.Category)
	}

	query := `
SELECT c.doc_id,
       d.title,
       c.chunk_id,
       LEFT(c.text, 420) AS snippet,
       1 - (c.embedding <=> $1) AS score,
       c.text
FROM chunks c
JOIN documents d ON d.doc_id = c.doc_id
WHERE c.embedding IS NOT NULL` + filterSQL + `
ORDER BY c.embedding <=> $1
LIMIT $2`

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query vector search: %w", err)
	}
	defer rows.Close()

	results := make([]models.ChunkResult, 0, topK)
	for rows.Next() {
		var r models.ChunkResult
		if err := rows.Scan(&r.DocID, &r.Title, &r.ChunkID, &r.Snippet, &r.Score, &r.ChunkText); err != nil {
			return nil, fmt.Errorf("scan chunk result: %w", err)
		}
		r.Snippet = util.Excerpt(r.Snippet, 420)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return results, nil
}
