// Package store is the durable record of ingestion tasks and their event logs.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/uulichen-sketch/PhotoMind/internal/models"
)

var (
	ErrTaskExists   = errors.New("task already exists")
	ErrTaskNotFound = errors.New("task not found")
)

// TaskUpdate is a partial field merge. Nil pointers leave fields untouched;
// ClearCurrent removes the in-flight filename.
type TaskUpdate struct {
	Status       *string
	Processed    *int
	Failed       *int
	CurrentFile  *string
	ClearCurrent bool
	Error        *string
}

// EventDraft is an event to append; the store assigns its sequence index.
type EventDraft struct {
	Type models.EventType
	Data any
}

// TaskStore persists tasks and their append-only event logs. A single worker
// writes each task while any number of stream sessions read, so every
// operation must be safe under concurrent reads during a write. The event
// log keeps all events for a task's lifetime; cursor replay never hits a gap.
type TaskStore interface {
	// Create registers a new task. Fails with ErrTaskExists on id collision.
	Create(ctx context.Context, task models.Task) (models.Task, error)

	// Get returns the task with its event count populated.
	Get(ctx context.Context, id string) (models.Task, error)

	// Events returns the events with sequence index >= from, in order.
	Events(ctx context.Context, id string, from int) ([]models.Event, error)

	// Update atomically merges the partial fields and, when draft is non-nil,
	// appends the event with the next sequence index. The appended event is
	// returned so the caller can publish it to the live bus.
	Update(ctx context.Context, id string, upd TaskUpdate, draft *EventDraft) (*models.Event, error)

	// Complete moves the task to its terminal state and stamps completed_at.
	Complete(ctx context.Context, id string, success bool, errMsg string) error

	// ListRecent returns task summaries, most recently updated first.
	ListRecent(ctx context.Context, limit int) ([]models.Task, error)

	// RecoverOrphans fails every non-terminal task. Called once at startup:
	// a task left mid-flight by a crash cannot be resumed because its
	// temporary uploads are gone.
	RecoverOrphans(ctx context.Context) (int, error)

	// DeleteOlderThan removes terminal tasks not updated since cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

const orphanError = "interrupted by server restart"
