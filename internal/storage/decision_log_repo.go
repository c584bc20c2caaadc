package storage

import (
	"context"
	"fmt"
)

type DecisionRecord struct {
	RunID       string
	TopicTitle  string
	Action      string
	Similarity  float64
	TargetDocID string
	Confidence  string
	LLMUsed     bool
	ErrorType   string
	Reason      string
}

// DecisionLogRepo keeps an audit row per classifier decision so threshold
// tuning can be validated against real traffic.
type DecisionLogRepo struct {
	db *DB
}

func NewDecisionLogRepo(db *DB) *DecisionLogRepo {
	return &DecisionLogRepo{db: db}
}

func (r *DecisionLogRepo) Insert(ctx context.Context, rec DecisionRecord) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO decision_log (decision_id, run_id, topic_title, action, similarity, target_doc_id, confidence, llm_used, error_type, reason)
VALUES (gen_random_uuid(), $1, $2, $3, $4, NULLIF($5,''), $6, $7, NULLIF($8,''), $9)`,
		rec.RunID, rec.TopicTitle, rec.Action, rec.Similarity, rec.TargetDocID, rec.Confidence, rec.LLMUsed, rec.ErrorType, rec.Reason)
	if err != nil {
		return fmt.Errorf("insert decision log: %w", err)
	}
	return nil
}

func (r *DecisionLogRepo) ListByRun(ctx context.Context, runID string) ([]DecisionRecord, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT run_id, topic_title, action, similarity, COALESCE(target_doc_id,''), confidence, llm_used, COALESCE(error_type,''), reason
FROM decision_log
WHERE run_id=$1
ORDER BY created_at ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("list decisions by run: %w", err)
	}
	defer rows.Close()
	out := make([]DecisionRecord, 0)
	for rows.Next() {
		var d DecisionRecord
		if err := rows.Scan(&d.RunID, &d.TopicTitle, &d.Action, &d.Similarity, &d.TargetDocID, &d.Confidence, &d.LLMUsed, &d.ErrorType, &d.Reason); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}
	return out, nil
}
