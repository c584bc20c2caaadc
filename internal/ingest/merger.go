package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"topicflow/internal/models"
	"topicflow/internal/providers"
	"topicflow/internal/util"
)

type MergeTask struct {
	Topic       models.Topic `json:"topic"`
	TargetDocID string       `json:"target_doc_id"`
	Similarity  float64      `json:"similarity"`
}

// Merger folds merge-resolved topics into their target documents. Topics
// sharing a target are folded sequentially into one in-memory content state;
// chunking, embedding, and the store write happen once per target, not once
// per topic.
type Merger struct {
	store    Store
	embedder Embedder
	llm      providers.LLMProvider
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

func NewMerger(store Store, embedder Embedder, llm providers.LLMProvider, cfg Config, logger *slog.Logger) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{
		store:    store,
		embedder: embedder,
		llm:      llm,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		now:      time.Now,
	}
}

func (m *Merger) Merge(ctx context.Context, tasks []MergeTask) ([]models.Document, []models.TopicFailure) {
	order := make([]string, 0)
	groups := make(map[string][]MergeTask)
	for _, t := range tasks {
		if _, ok := groups[t.TargetDocID]; !ok {
			order = append(order, t.TargetDocID)
		}
		groups[t.TargetDocID] = append(groups[t.TargetDocID], t)
	}

	docs := make([]models.Document, 0, len(order))
	failures := make([]models.TopicFailure, 0)
	for _, target := range order {
		group := groups[target]
		if ctx.Err() != nil {
			failures = append(failures, groupFailures(group, ctx.Err().Error())...)
			continue
		}
		doc, fails := m.mergeGroup(ctx, target, group)
		failures = append(failures, fails...)
		if doc != nil {
			docs = append(docs, *doc)
		}
	}
	return docs, failures
}

func (m *Merger) mergeGroup(ctx context.Context, target string, group []MergeTask) (*models.Document, []models.TopicFailure) {
	doc, err := m.store.GetDocument(ctx, target)
	if err != nil {
		return nil, groupFailures(group, fmt.Sprintf("load target: %v", err))
	}
	if doc == nil {
		return nil, groupFailures(group, "target document not found: "+target)
	}

	failures := make([]models.TopicFailure, 0)
	folded := make([]MergeTask, 0, len(group))
	for _, task := range group {
		updated, err := m.fold(ctx, *doc, task.Topic)
		if err != nil {
			m.logger.Error("merge fold failed", "doc_id", target, "topic", task.Topic.Title, "error", err)
			failures = append(failures, models.TopicFailure{TopicTitle: task.Topic.Title, Stage: "merge", Reason: err.Error()})
			continue
		}
		doc.Content = updated
		doc.Keywords = unionKeywords(doc.Keywords, task.Topic.Keywords)
		doc.MergeHistory = append(doc.MergeHistory, models.MergeRecord{
			TopicTitle: task.Topic.Title,
			Similarity: task.Similarity,
			MergedAt:   m.now().UTC(),
		})
		folded = append(folded, task)
	}
	if len(folded) == 0 {
		return nil, failures
	}

	doc.Summary = util.Excerpt(doc.Content, m.cfg.SummaryRunes)
	doc.UpdatedAt = m.now().UTC()

	docVec, chunks, err := materialize(ctx, m.embedder, m.cfg, *doc, m.logger)
	if err != nil {
		return nil, append(failures, groupFailures(folded, err.Error())...)
	}
	if err := m.store.UpsertDocument(ctx, *doc, docVec, chunks); err != nil {
		return nil, append(failures, groupFailures(folded, fmt.Sprintf("persist merge: %v", err))...)
	}
	m.logger.Info("document merged", "doc_id", doc.DocID, "topics", len(folded), "chunks", len(chunks))
	return doc, failures
}

// fold asks the completion service for the combined content. Unlike content
// generation there is no safe degraded mode here: blindly appending could
// duplicate or contradict the existing document, so a failed fold fails the
// topic.
func (m *Merger) fold(ctx context.Context, doc models.Document, topic models.Topic) (string, error) {
	if m.llm == nil {
		return "", fmt.Errorf("no completion provider configured for merge")
	}
	resp, _, err := m.llm.Generate(ctx, providers.GenerateRequest{
		Operation: providers.OpMergeDocument,
		Prompt:    mergePrompt(doc, topic),
	})
	if err != nil {
		return "", fmt.Errorf("fold topic %q: %w", topic.Title, err)
	}
	updated := util.SanitizeText(resp.Text)
	if strings.TrimSpace(updated) == "" {
		return "", fmt.Errorf("fold topic %q: empty completion response", topic.Title)
	}
	return updated, nil
}

func groupFailures(group []MergeTask, reason string) []models.TopicFailure {
	out := make([]models.TopicFailure, 0, len(group))
	for _, t := range group {
		out = append(out, models.TopicFailure{TopicTitle: t.Topic.Title, Stage: "merge", Reason: reason})
	}
	return out
}

func unionKeywords(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, k := range list {
			k = strings.TrimSpace(k)
			if k == "" {
				continue
			}
			key := strings.ToLower(k)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}
