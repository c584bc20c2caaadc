package models

import "time"

// Topic is an extracted content fragment awaiting a storage decision.
// Topics are produced upstream and consumed within a single ingestion run.
type Topic struct {
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Category   string   `json:"category,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
	SourceURLs []string `json:"source_urls,omitempty"`
}

type Document struct {
	DocID        string        `json:"doc_id"`
	Title        string        `json:"title"`
	Category     string        `json:"category,omitempty"`
	Mode         string        `json:"mode"`
	Content      string        `json:"content"`
	Summary      string        `json:"summary,omitempty"`
	Keywords     []string      `json:"keywords,omitempty"`
	MergeHistory []MergeRecord `json:"merge_history,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// MergeRecord is one entry in a document's ordered merge log.
type MergeRecord struct {
	TopicTitle string    `json:"topic_title"`
	Similarity float64   `json:"similarity,omitempty"`
	MergedAt   time.Time `json:"merged_at"`
}

type Chunk struct {
	ChunkID    string    `json:"chunk_id"`
	DocID      string    `json:"doc_id"`
	ChunkIndex int       `json:"chunk_index"`
	Text       string    `json:"text"`
	TokenCount int       `json:"token_count"`
	Embedding  []float32 `json:"embedding,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Action string

const (
	ActionCreate Action = "create"
	ActionMerge  Action = "merge"
)

// Decision is the classifier output for one topic. It is not persisted as part
// of the document model; the decision log keeps an audit copy.
type Decision struct {
	TopicTitle  string  `json:"topic_title"`
	Action      Action  `json:"action"`
	Similarity  float64 `json:"similarity"`
	TargetDocID string  `json:"target_doc_id,omitempty"`
	Reason      string  `json:"reason"`
	Confidence  string  `json:"confidence"`
	LLMUsed     bool    `json:"llm_used"`
}

// DocumentEmbedding pairs a document with its stored document-level embedding,
// loaded as-is from storage for similarity comparison.
type DocumentEmbedding struct {
	DocID     string    `json:"doc_id"`
	Title     string    `json:"title"`
	Category  string    `json:"category,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	Embedding []float32 `json:"embedding"`
}

type ChunkResult struct {
	DocID     string  `json:"doc_id"`
	Title     string  `json:"title"`
	ChunkID   string  `json:"chunk_id"`
	Snippet   string  `json:"snippet"`
	Score     float64 `json:"score"`
	ChunkText string  `json:"chunk_text,omitempty"`
}

type TopicFailure struct {
	TopicTitle string `json:"topic_title"`
	Stage      string `json:"stage"`
	Reason     string `json:"reason"`
}

// IngestReport summarizes one ingestion run: how many topics resolved to each
// action and which ones failed, without losing partial progress.
type IngestReport struct {
	RunID       string         `json:"run_id"`
	Total       int            `json:"total"`
	Created     int            `json:"created"`
	Merged      int            `json:"merged"`
	Verified    int            `json:"verified"`
	Failed      int            `json:"failed"`
	DocIDs      []string       `json:"doc_ids,omitempty"`
	Failures    []TopicFailure `json:"failures,omitempty"`
	GeneratedAt time.Time      `json:"generated_at"`
}
