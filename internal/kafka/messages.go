package kafka

import (
	"encoding/json"
	"fmt"
	"time"
)

// IngestJob asks a worker to ingest one uploaded object.
type IngestJob struct {
	NotebookID  string    `json:"notebook_id"`
	ObjectKey   string    `json:"object_key"`
	Filename    string    `json:"filename"`
	FileType    string    `json:"file_type,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
	RetryCount  int       `json:"retry_count,omitempty"`
}

// Validate checks the required fields.
func (j IngestJob) Validate() error {
	if j.NotebookID == "" {
		return fmt.Errorf("ingest job: notebook_id is required")
	}
	if j.ObjectKey == "" {
		return fmt.Errorf("ingest job: object_key is required")
	}
	return nil
}

// ParseIngestJob decodes a job message.
func ParseIngestJob(data []byte) (*IngestJob, error) {
	var job IngestJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode ingest job: %w", err)
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return &job, nil
}

// IngestedEvent reports the outcome of one ingestion.
type IngestedEvent struct {
	NotebookID  string    `json:"notebook_id"`
	Filename    string    `json:"filename"`
	Outcome     string    `json:"outcome"`
	Strategy    string    `json:"strategy,omitempty"`
	Chunks      int       `json:"chunks"`
	Error       string    `json:"error,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}
