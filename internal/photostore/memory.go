package photostore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/uulichen-sketch/PhotoMind/internal/models"
)

type memoryEntry struct {
	photo    models.PhotoMetadata
	document string
}

// Memory is an in-process Store used for tests and single-node deployments
// without a search backend. Matching is term overlap over the document text.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	order   []string // insertion order, newest last
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

func (m *Memory) Store(_ context.Context, photo models.PhotoMetadata, document string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[photo.ID]; !exists {
		m.order = append(m.order, photo.ID)
	}
	m.entries[photo.ID] = memoryEntry{photo: photo, document: strings.ToLower(document)}
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (models.PhotoMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[id]
	if !ok {
		return models.PhotoMetadata{}, ErrPhotoNotFound
	}
	return entry.photo, nil
}

func (m *Memory) List(_ context.Context, limit, offset int) ([]models.PhotoMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// newest first
	out := make([]models.PhotoMetadata, 0, limit)
	for i := len(m.order) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		if entry, ok := m.entries[m.order[i]]; ok {
			out = append(out, entry.photo)
		}
	}
	return out, nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		return ErrPhotoNotFound
	}
	delete(m.entries, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) Search(_ context.Context, query string, limit int) ([]models.PhotoMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	terms := strings.Fields(strings.ToLower(query))
	type scored struct {
		photo models.PhotoMetadata
		score int
	}
	matches := make([]scored, 0)
	for _, id := range m.order {
		entry := m.entries[id]
		score := 0
		for _, term := range terms {
			score += strings.Count(entry.document, term)
		}
		if score > 0 {
			matches = append(matches, scored{photo: entry.photo, score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]models.PhotoMetadata, 0, len(matches))
	for _, s := range matches {
		out = append(out, s.photo)
	}
	return out, nil
}
