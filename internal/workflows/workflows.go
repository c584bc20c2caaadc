package workflows

import (
	"time"

	"topicflow/internal/activities"
	"topicflow/internal/ingest"
	"topicflow/internal/models"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const QueryGetProgress = "GetProgress"

// IngestRunWorkflow runs one topic batch end to end: classify every topic,
// create documents for the CREATE side, fold the MERGE side into its targets,
// then write the run report. Merges for the same target stay inside one
// activity so the target document is loaded, folded, and re-embedded once.
func IngestRunWorkflow(ctx workflow.Context, input IngestRunInput) (models.IngestReport, error) {
	progress := IngestRunProgress{RunID: input.RunID, Phase: "decide", Total: len(input.Topics)}
	if err := workflow.SetQueryHandler(ctx, QueryGetProgress, func() (IngestRunProgress, error) {
		return progress, nil
	}); err != nil {
		return models.IngestReport{}, err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	maxParallel := input.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 4
	}

	report := models.IngestReport{RunID: input.RunID, Total: len(input.Topics)}

	var decideOut activities.DecideTopicsOutput
	if err := workflow.ExecuteActivity(ctx, "DecideTopicsActivity", activities.DecideTopicsInput{
		RunID:  input.RunID,
		Topics: input.Topics,
	}).Get(ctx, &decideOut); err != nil {
		return models.IngestReport{}, err
	}
	report.Failures = append(report.Failures, decideOut.Failures...)
	progress.Decided = len(decideOut.Decisions)

	creates := make([]models.Topic, 0)
	mergeOrder := make([]string, 0)
	mergeGroups := make(map[string][]ingest.MergeTask)
	decisions := make([]models.Decision, 0, len(decideOut.Decisions))
	for _, td := range decideOut.Decisions {
		decisions = append(decisions, td.Decision)
		if td.Decision.LLMUsed {
			report.Verified++
		}
		switch td.Decision.Action {
		case models.ActionMerge:
			target := td.Decision.TargetDocID
			if _, ok := mergeGroups[target]; !ok {
				mergeOrder = append(mergeOrder, target)
			}
			mergeGroups[target] = append(mergeGroups[target], ingest.MergeTask{
				Topic:       td.Topic,
				TargetDocID: target,
				Similarity:  td.Decision.Similarity,
			})
		default:
			creates = append(creates, td.Topic)
		}
	}

	// splitTopics yields at most maxParallel batches, so all create
	// activities run concurrently.
	progress.Phase = "create"
	createFutures := make([]workflow.Future, 0)
	for _, batch := range splitTopics(creates, maxParallel) {
		createFutures = append(createFutures, workflow.ExecuteActivity(ctx, "CreateDocumentsActivity", activities.CreateDocumentsInput{
			RunID:  input.RunID,
			Topics: batch,
		}))
	}
	for _, f := range createFutures {
		var out activities.CreateDocumentsOutput
		if err := f.Get(ctx, &out); err != nil {
			return models.IngestReport{}, err
		}
		report.DocIDs = append(report.DocIDs, out.DocIDs...)
		report.Failures = append(report.Failures, out.Failures...)
		report.Created += len(out.DocIDs)
		progress.Created = report.Created
	}

	// Distinct targets are independent, so their merge activities run in
	// parallel waves bounded by maxParallel.
	progress.Phase = "merge"
	for i := 0; i < len(mergeOrder); i += maxParallel {
		end := i + maxParallel
		if end > len(mergeOrder) {
			end = len(mergeOrder)
		}
		futures := make([]workflow.Future, 0, end-i)
		for _, target := range mergeOrder[i:end] {
			futures = append(futures, workflow.ExecuteActivity(ctx, "MergeDocumentsActivity", activities.MergeDocumentsInput{
				RunID: input.RunID,
				Tasks: mergeGroups[target],
			}))
		}
		for _, f := range futures {
			var out activities.MergeDocumentsOutput
			if err := f.Get(ctx, &out); err != nil {
				return models.IngestReport{}, err
			}
			report.DocIDs = append(report.DocIDs, out.DocIDs...)
			report.Failures = append(report.Failures, out.Failures...)
			report.Merged += len(out.DocIDs)
			progress.Merged = report.Merged
		}
	}

	report.Failed = len(report.Failures)
	report.GeneratedAt = workflow.Now(ctx)
	progress.Phase = "report"
	progress.Failed = report.Failed

	_ = workflow.ExecuteActivity(ctx, "WriteRunReportActivity", activities.WriteRunReportInput{
		RunID:     input.RunID,
		Report:    report,
		Decisions: decisions,
	}).Get(ctx, nil)

	progress.Phase = "done"
	return report, nil
}

// splitTopics divides topics into at most n contiguous batches. Creation work
// is dominated by embedding calls, so batches stay roughly equal in size.
func splitTopics(topics []models.Topic, n int) [][]models.Topic {
	if len(topics) == 0 {
		return nil
	}
	if n > len(topics) {
		n = len(topics)
	}
	size := (len(topics) + n - 1) / n
	out := make([][]models.Topic, 0, n)
	for i := 0; i < len(topics); i += size {
		end := i + size
		if end > len(topics) {
			end = len(topics)
		}
		out = append(out, topics[i:end])
	}
	return out
}
