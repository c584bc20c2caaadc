package workflows

import "topicflow/internal/models"

type IngestRunInput struct {
	RunID       string         `json:"run_id"`
	Topics      []models.Topic `json:"topics"`
	MaxParallel int            `json:"max_parallel"`
}

type IngestRunProgress struct {
	RunID   string `json:"run_id"`
	Phase   string `json:"phase"`
	Total   int    `json:"total"`
	Decided int    `json:"decided"`
	Created int    `json:"created"`
	Merged  int    `json:"merged"`
	Failed  int    `json:"failed"`
}
