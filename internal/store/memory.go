package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/uulichen-sketch/PhotoMind/internal/models"
)

type memTask struct {
	task   models.Task
	events []models.Event
}

// Memory is an in-process TaskStore for tests and storage-free deployments.
// Readers get copies; the single writer never races itself.
type Memory struct {
	mu    sync.RWMutex
	tasks map[string]*memTask
}

func NewMemory() *Memory {
	return &Memory{tasks: make(map[string]*memTask)}
}

func (m *Memory) Create(_ context.Context, task models.Task) (models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[task.ID]; exists {
		return models.Task{}, ErrTaskExists
	}
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	if task.Status == "" {
		task.Status = models.StatusPending
	}
	m.tasks[task.ID] = &memTask{task: task}
	return task, nil
}

func (m *Memory) Get(_ context.Context, id string) (models.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.tasks[id]
	if !ok {
		return models.Task{}, ErrTaskNotFound
	}
	return copyTask(rec), nil
}

func (m *Memory) Events(_ context.Context, id string, from int) ([]models.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	if from < 0 {
		from = 0
	}
	if from >= len(rec.events) {
		return []models.Event{}, nil
	}
	out := make([]models.Event, len(rec.events)-from)
	copy(out, rec.events[from:])
	return out, nil
}

func (m *Memory) Update(_ context.Context, id string, upd TaskUpdate, draft *EventDraft) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}

	applyUpdate(&rec.task, upd)
	rec.task.UpdatedAt = time.Now().UTC()

	if draft == nil {
		return nil, nil
	}
	ev, err := models.NewEvent(draft.Type, draft.Data)
	if err != nil {
		return nil, err
	}
	ev.Seq = len(rec.events)
	rec.events = append(rec.events, ev)
	return &ev, nil
}

func (m *Memory) Complete(_ context.Context, id string, success bool, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	now := time.Now().UTC()
	if success {
		rec.task.Status = models.StatusCompleted
	} else {
		rec.task.Status = models.StatusFailed
	}
	if errMsg != "" {
		rec.task.Error = &errMsg
	}
	rec.task.CurrentFile = nil
	rec.task.UpdatedAt = now
	rec.task.CompletedAt = &now
	return nil
}

func (m *Memory) ListRecent(_ context.Context, limit int) ([]models.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Task, 0, len(m.tasks))
	for _, rec := range m.tasks {
		out = append(out, copyTask(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) RecoverOrphans(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	now := time.Now().UTC()
	for _, rec := range m.tasks {
		if rec.task.Terminal() {
			continue
		}
		msg := orphanError
		rec.task.Status = models.StatusFailed
		rec.task.Error = &msg
		rec.task.CurrentFile = nil
		rec.task.UpdatedAt = now
		rec.task.CompletedAt = &now
		count++
	}
	return count, nil
}

func (m *Memory) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for id, rec := range m.tasks {
		if rec.task.Terminal() && rec.task.UpdatedAt.Before(cutoff) {
			delete(m.tasks, id)
			count++
		}
	}
	return count, nil
}

func applyUpdate(t *models.Task, upd TaskUpdate) {
	if upd.Status != nil {
		t.Status = *upd.Status
	}
	if upd.Processed != nil {
		t.Processed = *upd.Processed
	}
	if upd.Failed != nil {
		t.Failed = *upd.Failed
	}
	if upd.CurrentFile != nil {
		t.CurrentFile = upd.CurrentFile
	}
	if upd.ClearCurrent {
		t.CurrentFile = nil
	}
	if upd.Error != nil {
		t.Error = upd.Error
	}
}

func copyTask(rec *memTask) models.Task {
	t := rec.task
	t.EventCount = len(rec.events)
	if rec.task.Files != nil {
		t.Files = append([]string(nil), rec.task.Files...)
	}
	return t
}
