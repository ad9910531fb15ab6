package models

import "time"

// RunStatus tracks the lifecycle of one ingestion run.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunStats aggregates the outcome of one adapter execution. Errors holds
// per-URL and per-item failures that did not abort the run.
type RunStats struct {
	Extracted int      `json:"extracted"`
	Inserted  int      `json:"inserted"`
	Skipped   int      `json:"skipped"`
	Failures  int      `json:"failures"`
	Errors    []string `json:"errors,omitempty"`
}

// IngestionRun is one execution of one source adapter, optionally scoped
// to a category. Created before enqueue and updated by the worker that
// executes it; at most one terminal record exists per RunID.
type IngestionRun struct {
	RunID        string     `badgerhold:"key" json:"run_id"`
	SourceID     string     `badgerhold:"index" json:"source_id"`
	Category     string     `json:"category,omitempty"`
	Status       RunStatus  `json:"status"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Stats        RunStats   `json:"stats"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
