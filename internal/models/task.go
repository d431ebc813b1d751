package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Task lifecycle states persisted in the record store.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Task kinds accepted by the submission endpoint.
const (
	KindBatchUpload     = "batch_upload"
	KindStreamingUpload = "streaming_upload"
)

// Task represents one ingestion batch and its progress.
// Mutable fields are written only by the owning worker; everyone else reads.
type Task struct {
	ID          string     `json:"task_id"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	Total       int        `json:"total"`
	Processed   int        `json:"processed"`
	Failed      int        `json:"failed"`
	CurrentFile *string    `json:"current_file,omitempty"`
	Files       []string   `json:"files,omitempty"`
	Error       *string    `json:"error,omitempty"`
	EventCount  int        `json:"event_count"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Terminal reports whether the task has reached a final state.
func (t Task) Terminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// NewTaskID generates a short opaque task identifier.
func NewTaskID() string {
	id := uuid.New()
	return fmt.Sprintf("task_%x", id[:4])
}

// NewPhotoID generates a per-item photo identifier, independent of the task id.
func NewPhotoID() string {
	id := uuid.New()
	return fmt.Sprintf("photo_%x", id[:6])
}
