// Package bus fans live task events out to connected stream sessions. The
// bus is a delivery optimization only; the durable event log owned by the
// task store remains the source of truth, and subscribers that fall behind
// are evicted and expected to reconnect with a cursor.
package bus

import (
	"sync"

	"github.com/uulichen-sketch/PhotoMind/internal/models"
)

const subscriberBuffer = 64

// Message is a single delivery to a subscriber. End marks the end of the
// task's live stream; no events follow it.
type Message struct {
	Event models.Event
	End   bool
}

type topic struct {
	mu       sync.Mutex
	subs     map[int]chan Message
	nextID   int
	finished bool
}

// Bus tracks one topic per in-flight task. A topic exists from Register
// until Finish, so topic presence doubles as a liveness signal for the
// worker driving the task.
type Bus struct {
	mu     sync.RWMutex
	topics map[string]*topic
}

func New() *Bus {
	return &Bus{topics: make(map[string]*topic)}
}

// Register creates the topic for a task. It must be called before the
// worker emits any event for the task.
func (b *Bus) Register(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.topics[taskID]; !ok {
		b.topics[taskID] = &topic{subs: make(map[int]chan Message)}
	}
}

// Active reports whether a worker currently owns the task.
func (b *Bus) Active(taskID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.topics[taskID]
	return ok
}

// Subscribe attaches a new subscriber to the task's live stream. The
// returned cancel func detaches it; calling cancel after eviction or
// Finish is safe. If the task has no topic the channel is closed
// immediately.
func (b *Bus) Subscribe(taskID string) (<-chan Message, func()) {
	b.mu.RLock()
	t, ok := b.topics[taskID]
	b.mu.RUnlock()

	ch := make(chan Message, subscriberBuffer)
	if !ok {
		close(ch)
		return ch, func() {}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		close(ch)
		return ch, func() {}
	}
	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	cancel := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if c, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber without blocking.
// Subscribers whose buffers are full are evicted; they recover by
// replaying the durable log from their cursor.
func (b *Bus) Publish(taskID string, ev models.Event) {
	b.mu.RLock()
	t, ok := b.topics[taskID]
	b.mu.RUnlock()
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for id, ch := range t.subs {
		select {
		case ch <- Message{Event: ev}:
		default:
			delete(t.subs, id)
			close(ch)
		}
	}
}

// Finish signals end-of-stream to all subscribers and removes the topic.
func (b *Bus) Finish(taskID string) {
	b.mu.Lock()
	t, ok := b.topics[taskID]
	delete(b.topics, taskID)
	b.mu.Unlock()
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.finished = true
	for id, ch := range t.subs {
		select {
		case ch <- Message{End: true}:
		default:
		}
		delete(t.subs, id)
		close(ch)
	}
}
