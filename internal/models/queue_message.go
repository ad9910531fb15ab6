package models

import (
	"encoding/json"
	"errors"
)

// ErrNoMessage is returned when a queue is empty.
var ErrNoMessage = errors.New("no messages in queue")

// Stage identifies one pipeline queue.
type Stage string

const (
	StageIngest  Stage = "ingest"
	StageEnrich  Stage = "enrich"
	StageRewrite Stage = "rewrite"
	StageImage   Stage = "image"
	// StageDead receives messages that exhausted their retries.
	StageDead Stage = "dead"
)

// Stages lists the live pipeline queues in processing order.
func Stages() []Stage {
	return []Stage{StageIngest, StageEnrich, StageRewrite, StageImage}
}

// QueueMessage is the structure stored in a queue. Keep it simple - just
// enough to route the job.
type QueueMessage struct {
	JobID   string          `json:"job_id"`
	Stage   Stage           `json:"stage"`
	Payload json.RawMessage `json:"payload"`
}

// IngestPayload is carried by ingest-stage messages.
type IngestPayload struct {
	RunID    string `json:"run_id"`
	SourceID string `json:"source_id"`
	Category string `json:"category,omitempty"`
}

// ItemPayload is carried by enrich, rewrite and image stage messages.
type ItemPayload struct {
	ContentID string `json:"content_id"`
	RunID     string `json:"run_id,omitempty"`
}

// NewIngestMessage builds an ingest-stage message for a run.
func NewIngestMessage(jobID string, p IngestPayload) (QueueMessage, error) {
	return newMessage(jobID, StageIngest, p)
}

// NewItemMessage builds a message for one of the per-item stages.
func NewItemMessage(jobID string, stage Stage, p ItemPayload) (QueueMessage, error) {
	return newMessage(jobID, stage, p)
}

func newMessage(jobID string, stage Stage, payload any) (QueueMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return QueueMessage{}, err
	}
	return QueueMessage{JobID: jobID, Stage: stage, Payload: data}, nil
}
