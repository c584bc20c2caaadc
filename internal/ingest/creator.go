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

// Creator turns create-resolved topics into new stored documents: generate
// content, assign a collision-resistant identity, chunk, batch-embed, persist.
type Creator struct {
	store    Store
	embedder Embedder
	llm      providers.LLMProvider
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

func NewCreator(store Store, embedder Embedder, llm providers.LLMProvider, cfg Config, logger *slog.Logger) *Creator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Creator{
		store:    store,
		embedder: embedder,
		llm:      llm,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		now:      time.Now,
	}
}

// Create processes topics independently: one topic failing never aborts the
// rest of the batch.
func (c *Creator) Create(ctx context.Context, topics []models.Topic) ([]models.Document, []models.TopicFailure) {
	docs := make([]models.Document, 0, len(topics))
	failures := make([]models.TopicFailure, 0)
	for _, topic := range topics {
		if ctx.Err() != nil {
			failures = append(failures, models.TopicFailure{TopicTitle: topic.Title, Stage: "create", Reason: ctx.Err().Error()})
			continue
		}
		doc, err := c.createOne(ctx, topic)
		if err != nil {
			c.logger.Error("create document failed", "topic", topic.Title, "error", err)
			failures = append(failures, models.TopicFailure{TopicTitle: topic.Title, Stage: "create", Reason: err.Error()})
			continue
		}
		docs = append(docs, doc)
	}
	return docs, failures
}

func (c *Creator) createOne(ctx context.Context, topic models.Topic) (models.Document, error) {
	if strings.TrimSpace(topic.Content) == "" {
		return models.Document{}, fmt.Errorf("topic %q has no content", topic.Title)
	}
	content := c.generateContent(ctx, topic)
	now := c.now().UTC()

	doc := models.Document{
		DocID:     util.NewDocumentID(topic.Title, now),
		Title:     topic.Title,
		Category:  topic.Category,
		Mode:      c.cfg.Mode,
		Content:   content,
		Summary:   util.Excerpt(content, c.cfg.SummaryRunes),
		Keywords:  topic.Keywords,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Idempotent re-run: same id already stored means update in place.
	existing, err := c.store.GetDocument(ctx, doc.DocID)
	if err != nil {
		return models.Document{}, fmt.Errorf("check existing document: %w", err)
	}
	if existing != nil {
		doc.CreatedAt = existing.CreatedAt
		doc.MergeHistory = existing.MergeHistory
	}

	docVec, chunks, err := materialize(ctx, c.embedder, c.cfg, doc, c.logger)
	if err != nil {
		return models.Document{}, err
	}
	if err := c.store.UpsertDocument(ctx, doc, docVec, chunks); err != nil {
		return models.Document{}, fmt.Errorf("persist document %s: %w", doc.DocID, err)
	}
	c.logger.Info("document created", "doc_id", doc.DocID, "chunks", len(chunks))
	return doc, nil
}

// generateContent asks the completion service for article text and degrades
// to the topic's raw content when the call fails; ingestion must not stall on
// a flaky generator.
func (c *Creator) generateContent(ctx context.Context, topic models.Topic) string {
	if c.llm == nil {
		return util.SanitizeText(topic.Content)
	}
	resp, _, err := c.llm.Generate(ctx, providers.GenerateRequest{
		Operation: providers.OpGenerateDocument,
		Prompt:    createPrompt(topic),
	})
	if err != nil || strings.TrimSpace(resp.Text) == "" {
		c.logger.Warn("content generation failed, using raw topic content",
			"topic", topic.Title, "error", err)
		return util.SanitizeText(topic.Content)
	}
	return util.SanitizeText(resp.Text)
}
