package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"topicflow/internal/models"
	"topicflow/internal/providers"
)

type storedDoc struct {
	doc    models.Document
	docVec []float32
	chunks []models.Chunk
}

type fakeStore struct {
	docs        map[string]storedDoc
	upsertCalls int
	getErr      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string]storedDoc)}
}

func (s *fakeStore) UpsertDocument(_ context.Context, doc models.Document, docVec []float32, chunks []models.Chunk) error {
	s.upsertCalls++
	s.docs[doc.DocID] = storedDoc{doc: doc, docVec: docVec, chunks: chunks}
	return nil
}

func (s *fakeStore) GetDocument(_ context.Context, docID string) (*models.Document, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	st, ok := s.docs[docID]
	if !ok {
		return nil, nil
	}
	doc := st.doc
	return &doc, nil
}

type fakeEmbedder struct {
	manyCalls int
	oneCalls  int
	// nilIndexes marks positions EmbedMany leaves unembedded, forcing the
	// per-item retry path.
	nilIndexes map[int]bool
	oneErr     error
}

func (e *fakeEmbedder) EmbedMany(_ context.Context, _ string, texts []string) ([][]float32, error) {
	e.manyCalls++
	out := make([][]float32, len(texts))
	for i := range texts {
		if e.nilIndexes[i] {
			continue
		}
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

func (e *fakeEmbedder) EmbedOne(_ context.Context, _ string, text string) ([]float32, error) {
	e.oneCalls++
	if e.oneErr != nil {
		return nil, e.oneErr
	}
	return []float32{float32(len(text)), 2}, nil
}

type fakeLLM struct {
	calls     int
	failOn    string // operation that should error
	responses map[string]string
}

func (l *fakeLLM) Generate(_ context.Context, req providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error) {
	l.calls++
	if l.failOn == req.Operation {
		return providers.GenerateResponse{}, providers.ProviderInfo{}, fmt.Errorf("provider down")
	}
	if text, ok := l.responses[req.Operation]; ok {
		return providers.GenerateResponse{Text: text}, providers.ProviderInfo{Name: "fake"}, nil
	}
	return providers.GenerateResponse{Text: "generated: " + req.Prompt[:min(40, len(req.Prompt))]}, providers.ProviderInfo{Name: "fake"}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func longText(words int) string {
	parts := make([]string, words)
	for i := range parts {
		parts[i] = fmt.Sprintf("word%d", i)
	}
	return strings.Join(parts, " ")
}

func TestCreatorStoresEmbeddedChunks(t *testing.T) {
	store := newFakeStore()
	emb := &fakeEmbedder{}
	llm := &fakeLLM{responses: map[string]string{providers.OpGenerateDocument: longText(900)}}
	creator := NewCreator(store, emb, llm, Config{ChunkTargetTokens: 200, ChunkOverlapTokens: 40}, testLogger())

	docs, failures := creator.Create(context.Background(), []models.Topic{
		{Title: "Vector Indexes", Category: "databases", Content: "raw notes", Keywords: []string{"ann", "hnsw"}},
	})
	require.Empty(t, failures)
	require.Len(t, docs, 1)

	st := store.docs[docs[0].DocID]
	require.NotEmpty(t, st.docVec)
	require.Greater(t, len(st.chunks), 1)
	for i, ch := range st.chunks {
		require.Equal(t, i, ch.ChunkIndex)
		require.Equal(t, docs[0].DocID, ch.DocID)
		require.NotEmpty(t, ch.Embedding)
		require.NotEmpty(t, ch.ChunkID)
	}
	require.Equal(t, 1, emb.manyCalls, "document and chunks share one batch call")
}

func TestCreatorDistinctIDsForSameTitle(t *testing.T) {
	store := newFakeStore()
	creator := NewCreator(store, &fakeEmbedder{}, nil, Config{}, testLogger())

	topics := []models.Topic{
		{Title: "Consensus", Content: "paxos notes"},
		{Title: "Consensus", Content: "raft notes"},
	}
	docs, failures := creator.Create(context.Background(), topics)
	require.Empty(t, failures)
	require.Len(t, docs, 2)
	require.NotEqual(t, docs[0].DocID, docs[1].DocID)
	require.Len(t, store.docs, 2)
}

func TestCreatorFailureIsolation(t *testing.T) {
	store := newFakeStore()
	creator := NewCreator(store, &fakeEmbedder{}, nil, Config{}, testLogger())

	docs, failures := creator.Create(context.Background(), []models.Topic{
		{Title: "Empty One", Content: "   "},
		{Title: "Good One", Content: "some content"},
	})
	require.Len(t, docs, 1)
	require.Equal(t, "Good One", docs[0].Title)
	require.Len(t, failures, 1)
	require.Equal(t, "Empty One", failures[0].TopicTitle)
	require.Equal(t, "create", failures[0].Stage)
}

func TestCreatorDegradesToRawContentOnLLMFailure(t *testing.T) {
	store := newFakeStore()
	llm := &fakeLLM{failOn: providers.OpGenerateDocument}
	creator := NewCreator(store, &fakeEmbedder{}, llm, Config{}, testLogger())

	docs, failures := creator.Create(context.Background(), []models.Topic{
		{Title: "Fallback", Content: "original topic body"},
	})
	require.Empty(t, failures)
	require.Len(t, docs, 1)
	require.Equal(t, "original topic body", docs[0].Content)
	require.Equal(t, 1, llm.calls)
}

func TestMaterializeRetriesAndReindexes(t *testing.T) {
	// Index 0 is the document-level text; 2 is the second chunk.
	emb := &fakeEmbedder{nilIndexes: map[int]bool{2: true}}
	doc := models.Document{DocID: "doc-1", Title: "T", Content: longText(600)}

	docVec, chunks, err := materialize(context.Background(), emb, Config{ChunkTargetTokens: 200}.withDefaults(), doc, testLogger())
	require.NoError(t, err)
	require.NotEmpty(t, docVec)
	require.Equal(t, 1, emb.oneCalls, "one per-item retry for the failed chunk")
	for i, ch := range chunks {
		require.Equal(t, i, ch.ChunkIndex)
		require.NotEmpty(t, ch.Embedding)
	}
}

func TestMaterializeDropsUnembeddableChunk(t *testing.T) {
	emb := &fakeEmbedder{nilIndexes: map[int]bool{2: true}, oneErr: fmt.Errorf("still failing")}
	doc := models.Document{DocID: "doc-1", Title: "T", Content: longText(600)}

	_, chunks, err := materialize(context.Background(), emb, Config{ChunkTargetTokens: 200}.withDefaults(), doc, testLogger())
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for i, ch := range chunks {
		require.Equal(t, i, ch.ChunkIndex, "indexes stay contiguous after a drop")
	}
}

func TestMergerFoldsGroupWithSingleWrite(t *testing.T) {
	store := newFakeStore()
	base := models.Document{
		DocID:     "doc-base",
		Title:     "Stream Processing",
		Content:   "existing body",
		Keywords:  []string{"kafka"},
		CreatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	store.docs[base.DocID] = storedDoc{doc: base}

	llm := &fakeLLM{responses: map[string]string{providers.OpMergeDocument: longText(500)}}
	emb := &fakeEmbedder{}
	merger := NewMerger(store, emb, llm, Config{ChunkTargetTokens: 200}, testLogger())

	tasks := []MergeTask{
		{Topic: models.Topic{Title: "Windowing", Content: "a", Keywords: []string{"flink", "kafka"}}, TargetDocID: base.DocID, Similarity: 0.91},
		{Topic: models.Topic{Title: "Watermarks", Content: "b", Keywords: []string{"Flink"}}, TargetDocID: base.DocID, Similarity: 0.88},
	}
	docs, failures := merger.Merge(context.Background(), tasks)
	require.Empty(t, failures)
	require.Len(t, docs, 1)

	require.Equal(t, 1, store.upsertCalls, "one write per target regardless of group size")
	require.Equal(t, 1, emb.manyCalls, "one re-chunk/re-embed per target")
	require.Equal(t, 2, llm.calls, "one fold per topic")

	merged := docs[0]
	require.Equal(t, base.DocID, merged.DocID)
	require.Equal(t, base.CreatedAt, merged.CreatedAt)
	require.Len(t, merged.MergeHistory, 2)
	require.Equal(t, "Windowing", merged.MergeHistory[0].TopicTitle)
	require.InDelta(t, 0.91, merged.MergeHistory[0].Similarity, 1e-9)
	require.Equal(t, "Watermarks", merged.MergeHistory[1].TopicTitle)
	require.ElementsMatch(t, []string{"kafka", "flink"}, merged.Keywords)
	require.NotEmpty(t, store.docs[base.DocID].chunks)
}

func TestMergerMissingTargetFailsWholeGroup(t *testing.T) {
	store := newFakeStore()
	merger := NewMerger(store, &fakeEmbedder{}, &fakeLLM{}, Config{}, testLogger())

	docs, failures := merger.Merge(context.Background(), []MergeTask{
		{Topic: models.Topic{Title: "A"}, TargetDocID: "missing"},
		{Topic: models.Topic{Title: "B"}, TargetDocID: "missing"},
	})
	require.Empty(t, docs)
	require.Len(t, failures, 2)
	for _, f := range failures {
		require.Equal(t, "merge", f.Stage)
		require.Contains(t, f.Reason, "not found")
	}
	require.Zero(t, store.upsertCalls)
}

func TestMergerFoldFailureIsolatedWithinGroup(t *testing.T) {
	store := newFakeStore()
	base := models.Document{DocID: "doc-base", Title: "T", Content: "body"}
	store.docs[base.DocID] = storedDoc{doc: base}

	// First fold fails, second succeeds.
	llm := &scriptedFoldLLM{script: []string{"", longText(400)}}
	merger := NewMerger(store, &fakeEmbedder{}, llm, Config{}, testLogger())

	docs, failures := merger.Merge(context.Background(), []MergeTask{
		{Topic: models.Topic{Title: "Bad"}, TargetDocID: base.DocID, Similarity: 0.9},
		{Topic: models.Topic{Title: "Good"}, TargetDocID: base.DocID, Similarity: 0.87},
	})
	require.Len(t, failures, 1)
	require.Equal(t, "Bad", failures[0].TopicTitle)
	require.Len(t, docs, 1)
	require.Len(t, docs[0].MergeHistory, 1)
	require.Equal(t, "Good", docs[0].MergeHistory[0].TopicTitle)
	require.Equal(t, 1, store.upsertCalls)
}

func TestMergerAllFoldsFailSkipsWrite(t *testing.T) {
	store := newFakeStore()
	base := models.Document{DocID: "doc-base", Title: "T", Content: "body"}
	store.docs[base.DocID] = storedDoc{doc: base}

	llm := &fakeLLM{failOn: providers.OpMergeDocument}
	merger := NewMerger(store, &fakeEmbedder{}, llm, Config{}, testLogger())

	docs, failures := merger.Merge(context.Background(), []MergeTask{
		{Topic: models.Topic{Title: "Only"}, TargetDocID: base.DocID},
	})
	require.Empty(t, docs)
	require.Len(t, failures, 1)
	require.Zero(t, store.upsertCalls, "no re-embed or write when nothing folded")
}

// scriptedFoldLLM returns canned texts in order; an empty script entry makes
// that fold fail with an empty response.
type scriptedFoldLLM struct {
	script []string
	calls  int
}

func (l *scriptedFoldLLM) Generate(_ context.Context, _ providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error) {
	i := l.calls
	l.calls++
	if i >= len(l.script) {
		return providers.GenerateResponse{}, providers.ProviderInfo{}, fmt.Errorf("unexpected call %d", i)
	}
	return providers.GenerateResponse{Text: l.script[i]}, providers.ProviderInfo{Name: "scripted"}, nil
}
