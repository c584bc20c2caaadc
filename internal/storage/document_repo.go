package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"topicflow/internal/models"
	"topicflow/internal/util"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

type DocumentFilters struct {
	Category string
}

type DocumentRepo struct {
	db *DB
}

func NewDocumentRepo(db *DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// UpsertDocument writes the document row, its embedding, and the full chunk
// set in one transaction. The previous chunk set is deleted wholesale; chunks
// are replaced, never patched, so readers never see a half-written mix of old
// and new chunks.
func (r *DocumentRepo) UpsertDocument(ctx context.Context, doc models.Document, docVec []float32, chunks []models.Chunk) error {
	if len(docVec) == 0 {
		return fmt.Errorf("upsert document %s: %w", doc.DocID, util.ErrEmptyEmbedding)
	}
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("upsert document %s chunk %d: %w", doc.DocID, c.ChunkIndex, util.ErrEmptyEmbedding)
		}
	}
	mergeHistory, err := json.Marshal(doc.MergeHistory)
	if err != nil {
		return fmt.Errorf("marshal merge history: %w", err)
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx upsert document: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx, `
INSERT INTO documents (doc_id, title, category, mode, content, summary, keywords, merge_history, embedding, created_at, updated_at)
VALUES ($1, $2, NULLIF($3,''), $4, $5, NULLIF($6,''), $7, $8, $9, $10, NOW())
ON CONFLICT (doc_id)
DO UPDATE SET
  title = EXCLUDED.title,
  category = COALESCE(EXCLUDED.category, documents.category),
  mode = EXCLUDED.mode,
  content = EXCLUDED.content,
  summary = COALESCE(EXCLUDED.summary, documents.summary),
  keywords = EXCLUDED.keywords,
  merge_history = EXCLUDED.merge_history,
  embedding = EXCLUDED.embedding,
  updated_at = NOW()`,
		doc.DocID, doc.Title, doc.Category, doc.Mode, util.SanitizeText(doc.Content), doc.Summary,
		doc.Keywords, mergeHistory, pgvector.NewVector(docVec), doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", doc.DocID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE doc_id=$1`, doc.DocID); err != nil {
		return fmt.Errorf("delete old chunks for %s: %w", doc.DocID, err)
	}
	for _, c := range chunks {
		_, err := tx.Exec(ctx, `
INSERT INTO chunks (chunk_id, doc_id, chunk_index, text, token_count, embedding)
VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ChunkID, doc.DocID, c.ChunkIndex, util.SanitizeText(c.Text), c.TokenCount, pgvector.NewVector(c.Embedding),
		)
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ChunkID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit document tx: %w", err)
	}
	return nil
}

// GetDocument returns nil without error when no document has the given id.
func (r *DocumentRepo) GetDocument(ctx context.Context, docID string) (*models.Document, error) {
	var doc models.Document
	var mergeHistory []byte
	err := r.db.Pool.QueryRow(ctx, `
SELECT doc_id, title, COALESCE(category,''), mode, content, COALESCE(summary,''), keywords, merge_history, created_at, updated_at
FROM documents
WHERE doc_id=$1`, docID).
		Scan(&doc.DocID, &doc.Title, &doc.Category, &doc.Mode, &doc.Content, &doc.Summary, &doc.Keywords, &mergeHistory, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", docID, err)
	}
	if len(mergeHistory) > 0 {
		if err := json.Unmarshal(mergeHistory, &doc.MergeHistory); err != nil {
			return nil, fmt.Errorf("decode merge history for %s: %w", docID, err)
		}
	}
	return &doc, nil
}

func (r *DocumentRepo) ListDocuments(ctx context.Context, filters DocumentFilters) ([]models.Document, error) {
	query := `
SELECT doc_id, title, COALESCE(category,''), mode, COALESCE(summary,''), keywords, created_at, updated_at
FROM documents`
	args := []any{}
	if filters.Category != "" {
		query += ` WHERE category=$1`
		args = append(args, filters.Category)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]models.Document, 0)
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.DocID, &d.Title, &d.Category, &d.Mode, &d.Summary, &d.Keywords, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

// ListWithEmbeddings returns each document with its stored embedding exactly
// as indexed. Embeddings are never recomputed here: the decision engine must
// compare against what is actually searchable.
func (r *DocumentRepo) ListWithEmbeddings(ctx context.Context, filters DocumentFilters) ([]models.DocumentEmbedding, error) {
	query := `
SELECT doc_id, title, COALESCE(category,''), COALESCE(summary,''), embedding
FROM documents
WHERE embedding IS NOT NULL`
	args := []any{}
	if filters.Category != "" {
		query += ` AND category=$1`
		args = append(args, filters.Category)
	}

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents with embeddings: %w", err)
	}
	defer rows.Close()

	out := make([]models.DocumentEmbedding, 0)
	for rows.Next() {
		var d models.DocumentEmbedding
		var vec pgvector.Vector
		if err := rows.Scan(&d.DocID, &d.Title, &d.Category, &d.Summary, &vec); err != nil {
			return nil, fmt.Errorf("scan document embedding: %w", err)
		}
		d.Embedding = vec.Slice()
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document embeddings: %w", err)
	}
	return out, nil
}

func (r *DocumentRepo) ListChunksByDocument(ctx context.Context, docID string) ([]models.Chunk, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT chunk_id, doc_id, chunk_index, text, token_count, embedding, created_at
FROM chunks
WHERE doc_id=$1
ORDER BY chunk_index ASC`, docID)
	if err != nil {
		return nil, fmt.Errorf("list chunks by document: %w", err)
	}
	defer rows.Close()
	out := make([]models.Chunk, 0, 64)
	for rows.Next() {
		var c models.Chunk
		var vec pgvector.Vector
		if err := rows.Scan(&c.ChunkID, &c.DocID, &c.ChunkIndex, &c.Text, &c.TokenCount, &vec, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.Embedding = vec.Slice()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}
