package decision

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"topicflow/internal/models"
	"topicflow/internal/providers"
	"topicflow/internal/util"
)

type Config struct {
	// MergeThreshold and CreateThreshold bound the automatic-decision zone.
	// Similarity between them triggers one completion-service verification.
	MergeThreshold  float64
	CreateThreshold float64
	ExcerptRunes    int
}

type Embedder interface {
	EmbedOne(ctx context.Context, operation, text string) ([]float32, error)
}

// Engine is the three-tier similarity classifier. Most topics resolve by pure
// vector comparison; only the uncertain middle band pays for a completion
// call, and a failed verification always falls back to CREATE because a wrong
// merge corrupts another document's content.
type Engine struct {
	cfg      Config
	embedder Embedder
	llm      providers.LLMProvider
	logger   *slog.Logger
}

func NewEngine(cfg Config, embedder Embedder, llm providers.LLMProvider, logger *slog.Logger) *Engine {
	if cfg.MergeThreshold <= 0 {
		cfg.MergeThreshold = 0.85
	}
	if cfg.CreateThreshold <= 0 {
		cfg.CreateThreshold = 0.65
	}
	if cfg.CreateThreshold > cfg.MergeThreshold {
		cfg.CreateThreshold = cfg.MergeThreshold
	}
	if cfg.ExcerptRunes <= 0 {
		cfg.ExcerptRunes = 300
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, embedder: embedder, llm: llm, logger: logger}
}

// TopicEmbedText renders the canonical text a topic is embedded as.
func TopicEmbedText(t models.Topic) string {
	parts := []string{util.Excerpt(t.Title, 200)}
	if len(t.Keywords) > 0 {
		parts = append(parts, strings.Join(t.Keywords, ", "))
	}
	parts = append(parts, util.Excerpt(t.Content, 2000))
	return strings.Join(parts, "\n")
}

// Decide classifies one topic against the stored candidate embeddings.
// topicVec may be precomputed by the caller; when nil it is embedded here.
func (e *Engine) Decide(ctx context.Context, topic models.Topic, topicVec []float32, candidates []models.DocumentEmbedding) (models.Decision, error) {
	if len(topicVec) == 0 {
		if e.embedder == nil {
			return models.Decision{}, fmt.Errorf("decide %q: no topic embedding and no embedder", topic.Title)
		}
		vec, err := e.embedder.EmbedOne(ctx, providers.OpEmbedTopics, TopicEmbedText(topic))
		if err != nil {
			return models.Decision{}, fmt.Errorf("embed topic %q: %w", topic.Title, err)
		}
		topicVec = vec
	}

	d := models.Decision{TopicTitle: topic.Title, Action: models.ActionCreate, Confidence: "high"}
	if len(candidates) == 0 {
		d.Reason = "no existing documents"
		return d, nil
	}

	bestSim := -1.0
	var best models.DocumentEmbedding
	for _, c := range candidates {
		if len(c.Embedding) == 0 {
			continue
		}
		if s := Cosine(topicVec, c.Embedding); s > bestSim {
			bestSim = s
			best = c
		}
	}
	if bestSim < 0 {
		d.Reason = "no stored embeddings to compare against"
		return d, nil
	}
	d.Similarity = bestSim

	switch {
	case bestSim >= e.cfg.MergeThreshold:
		d.Action = models.ActionMerge
		d.TargetDocID = best.DocID
		d.Reason = fmt.Sprintf("similarity %.3f >= merge threshold %.2f (best match %q)", bestSim, e.cfg.MergeThreshold, best.Title)
		return d, nil
	case bestSim <= e.cfg.CreateThreshold:
		d.Reason = fmt.Sprintf("similarity %.3f <= create threshold %.2f", bestSim, e.cfg.CreateThreshold)
		return d, nil
	default:
		return e.verify(ctx, topic, best, bestSim), nil
	}
}

func (e *Engine) verify(ctx context.Context, topic models.Topic, candidate models.DocumentEmbedding, similarity float64) models.Decision {
	d := models.Decision{TopicTitle: topic.Title, Similarity: similarity, Action: models.ActionCreate}
	if e.llm == nil {
		d.Confidence = "low"
		d.Reason = fmt.Sprintf("similarity %.3f in uncertain band, no verifier configured: defaulting to create", similarity)
		return d
	}

	resp, info, err := e.llm.Generate(ctx, providers.GenerateRequest{
		Operation: providers.OpVerifyDecision,
		Prompt:    VerifyPrompt(topic, candidate, similarity, e.cfg.ExcerptRunes),
	})
	if err != nil {
		e.logger.Warn("verification call failed, defaulting to create",
			"topic", topic.Title, "error_type", string(providers.ClassifyError(err)), "error", err)
		d.Confidence = "low"
		d.Reason = fmt.Sprintf("verification failed (%s): defaulting to create", providers.ClassifyError(err))
		return d
	}
	verdict, err := ParseVerdict(resp.Text)
	if err != nil {
		e.logger.Warn("verification verdict unparsed, defaulting to create",
			"topic", topic.Title, "model", info.Model, "response", util.Excerpt(resp.Text, 80))
		d.Confidence = "low"
		d.Reason = "verification response unparsed: defaulting to create"
		return d
	}

	d.LLMUsed = true
	d.Confidence = "medium"
	if verdict == models.ActionMerge {
		d.Action = models.ActionMerge
		d.TargetDocID = candidate.DocID
		d.Reason = fmt.Sprintf("similarity %.3f in uncertain band, verifier chose merge into %q", similarity, candidate.Title)
	} else {
		d.Reason = fmt.Sprintf("similarity %.3f in uncertain band, verifier chose create", similarity)
	}
	return d
}
