package common

import (
	"github.com/google/uuid"
)

// NewContentID generates a unique content item ID with the "content_" prefix
// Format: content_<uuid>
func NewContentID() string {
	return "content_" + uuid.New().String()
}

// NewRunID generates a unique ingestion run ID with the "run_" prefix
// Format: run_<uuid>
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// NewJobID generates a unique queue job ID with the "job_" prefix
// Format: job_<uuid>
func NewJobID() string {
	return "job_" + uuid.New().String()
}
