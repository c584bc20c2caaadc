package activities

import (
	"topicflow/internal/ingest"
	"topicflow/internal/models"
)

type DecideTopicsInput struct {
	RunID  string         `json:"run_id"`
	Topics []models.Topic `json:"topics"`
}

// TopicDecision carries the topic alongside its decision so downstream
// activities do not need to re-fetch it.
type TopicDecision struct {
	Topic    models.Topic    `json:"topic"`
	Decision models.Decision `json:"decision"`
}

type DecideTopicsOutput struct {
	Decisions []TopicDecision       `json:"decisions"`
	Failures  []models.TopicFailure `json:"failures,omitempty"`
}

type CreateDocumentsInput struct {
	RunID  string         `json:"run_id"`
	Topics []models.Topic `json:"topics"`
}

type CreateDocumentsOutput struct {
	DocIDs   []string              `json:"doc_ids"`
	Failures []models.TopicFailure `json:"failures,omitempty"`
}

type MergeDocumentsInput struct {
	RunID string             `json:"run_id"`
	Tasks []ingest.MergeTask `json:"tasks"`
}

type MergeDocumentsOutput struct {
	DocIDs   []string              `json:"doc_ids"`
	Failures []models.TopicFailure `json:"failures,omitempty"`
}

type WriteRunReportInput struct {
	RunID     string              `json:"run_id"`
	Report    models.IngestReport `json:"report"`
	Decisions []models.Decision   `json:"decisions"`
}

type WriteRunReportOutput struct {
	Path string `json:"path"`
}
