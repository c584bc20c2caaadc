package activities

import (
	"context"
	"log/slog"
	"path/filepath"

	"topicflow/internal/config"
	"topicflow/internal/decision"
	"topicflow/internal/embedding"
	"topicflow/internal/ingest"
	"topicflow/internal/models"
	"topicflow/internal/providers"
	"topicflow/internal/storage"
	"topicflow/internal/util"
)

type Activities struct {
	cfg         config.Config
	docRepo     *storage.DocumentRepo
	decisionLog *storage.DecisionLogRepo
	engine      *decision.Engine
	creator     *ingest.Creator
	merger      *ingest.Merger
	embedder    *embedding.Client
	logger      *slog.Logger
}

func New(cfg config.Config, db *storage.DB) (*Activities, error) {
	pm, err := providers.NewManager(cfg)
	if err != nil {
		return nil, err
	}
	logger := slog.Default()
	llm := pm.FirstLLMProvider()
	embedClient := embedding.NewClient(pm.FirstEmbedProvider(), embedding.Config{
		BatchSize:  cfg.EmbedBatchSize,
		Dimension:  cfg.EmbedDim,
		MaxRetries: cfg.EmbedMaxRetry,
	}, logger)
	docRepo := storage.NewDocumentRepo(db)
	ingestCfg := ingest.Config{
		ChunkTargetTokens:  cfg.ChunkTargetTokens,
		ChunkOverlapTokens: cfg.ChunkOverlapTokens,
		Mode:               cfg.DocumentMode,
	}
	return &Activities{
		cfg:         cfg,
		docRepo:     docRepo,
		decisionLog: storage.NewDecisionLogRepo(db),
		engine: decision.NewEngine(decision.Config{
			MergeThreshold:  cfg.MergeThreshold,
			CreateThreshold: cfg.CreateThreshold,
			ExcerptRunes:    cfg.VerifyExcerpt,
		}, embedClient, llm, logger),
		creator:  ingest.NewCreator(docRepo, embedClient, llm, ingestCfg, logger),
		merger:   ingest.NewMerger(docRepo, embedClient, llm, ingestCfg, logger),
		embedder: embedClient,
		logger:   logger,
	}, nil
}

// DecideTopicsActivity classifies every topic in the batch against the stored
// document embeddings. Topic embeddings come from one batch call; documents
// keep the embedding they were stored with.
func (a *Activities) DecideTopicsActivity(ctx context.Context, in DecideTopicsInput) (DecideTopicsOutput, error) {
	candidates, err := a.docRepo.ListWithEmbeddings(ctx, storage.DocumentFilters{})
	if err != nil {
		return DecideTopicsOutput{}, err
	}

	texts := make([]string, len(in.Topics))
	for i, t := range in.Topics {
		texts[i] = decision.TopicEmbedText(t)
	}
	vecs, err := a.embedder.EmbedMany(ctx, providers.OpEmbedTopics, texts)
	if err != nil {
		return DecideTopicsOutput{}, err
	}

	out := DecideTopicsOutput{Decisions: make([]TopicDecision, 0, len(in.Topics))}
	for i, topic := range in.Topics {
		dec, err := a.engine.Decide(ctx, topic, vecs[i], candidates)
		if err != nil {
			out.Failures = append(out.Failures, models.TopicFailure{
				TopicTitle: topic.Title,
				Stage:      "decide",
				Reason:     err.Error(),
			})
			continue
		}
		out.Decisions = append(out.Decisions, TopicDecision{Topic: topic, Decision: dec})
		a.logDecision(ctx, in.RunID, dec)
	}
	return out, nil
}

// logDecision is best effort; a failed audit insert never fails the run.
func (a *Activities) logDecision(ctx context.Context, runID string, dec models.Decision) {
	err := a.decisionLog.Insert(ctx, storage.DecisionRecord{
		RunID:       runID,
		TopicTitle:  dec.TopicTitle,
		Action:      string(dec.Action),
		Similarity:  dec.Similarity,
		TargetDocID: dec.TargetDocID,
		Confidence:  dec.Confidence,
		LLMUsed:     dec.LLMUsed,
		Reason:      dec.Reason,
	})
	if err != nil {
		a.logger.Warn("decision audit insert failed", "run_id", runID, "topic", dec.TopicTitle, "error", err)
	}
}

func (a *Activities) CreateDocumentsActivity(ctx context.Context, in CreateDocumentsInput) (CreateDocumentsOutput, error) {
	docs, failures := a.creator.Create(ctx, in.Topics)
	out := CreateDocumentsOutput{DocIDs: make([]string, 0, len(docs)), Failures: failures}
	for _, d := range docs {
		out.DocIDs = append(out.DocIDs, d.DocID)
	}
	return out, nil
}

func (a *Activities) MergeDocumentsActivity(ctx context.Context, in MergeDocumentsInput) (MergeDocumentsOutput, error) {
	docs, failures := a.merger.Merge(ctx, in.Tasks)
	out := MergeDocumentsOutput{DocIDs: make([]string, 0, len(docs)), Failures: failures}
	for _, d := range docs {
		out.DocIDs = append(out.DocIDs, d.DocID)
	}
	return out, nil
}

func (a *Activities) WriteRunReportActivity(ctx context.Context, in WriteRunReportInput) (WriteRunReportOutput, error) {
	_ = ctx
	dir := filepath.Join(a.cfg.DataOutRoot, "runs", in.RunID)
	if err := util.WriteJSONAtomic(filepath.Join(dir, "report.json"), in.Report); err != nil {
		return WriteRunReportOutput{}, err
	}
	rows := make([]any, 0, len(in.Decisions))
	for _, d := range in.Decisions {
		rows = append(rows, d)
	}
	if err := util.WriteJSONLinesAtomic(filepath.Join(dir, "decisions.jsonl"), rows); err != nil {
		return WriteRunReportOutput{}, err
	}
	return WriteRunReportOutput{Path: filepath.Join(dir, "report.json")}, nil
}
