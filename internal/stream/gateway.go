// Package stream serves ordered task event streams with cursor replay.
// A session first replays the durable log from the client's cursor, then
// tails the live bus, so a client can disconnect at any point and resume
// without gaps or duplicates.
package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uulichen-sketch/PhotoMind/internal/bus"
	"github.com/uulichen-sketch/PhotoMind/internal/models"
	"github.com/uulichen-sketch/PhotoMind/internal/store"
)

// Sink delivers one event to the connected client. A non-nil error ends
// the session; flush failures on a closed connection surface here.
type Sink func(ev models.Event) error

type Gateway struct {
	store       store.TaskStore
	bus         *bus.Bus
	idleTimeout time.Duration
	logger      *zap.Logger
}

func NewGateway(st store.TaskStore, b *bus.Bus, idleTimeout time.Duration, logger *zap.Logger) *Gateway {
	if idleTimeout <= 0 {
		idleTimeout = 300 * time.Second
	}
	return &Gateway{store: st, bus: b, idleTimeout: idleTimeout, logger: logger}
}

// Stream runs one session for a task, starting from cursor `from`. All
// outcomes including unknown tasks are reported in-stream; the returned
// error is only for sink failures.
func (g *Gateway) Stream(ctx context.Context, taskID string, from int, send Sink) error {
	if from < 0 {
		from = 0
	}

	task, err := g.store.Get(ctx, taskID)
	if errors.Is(err, store.ErrTaskNotFound) {
		return g.sendError(send, "task not found")
	}
	if err != nil {
		g.logger.Error("stream task lookup failed", zap.String("task_id", taskID), zap.Error(err))
		return g.sendError(send, "internal error")
	}

	if task.Terminal() {
		return g.streamFinished(ctx, task, from, send)
	}

	if !g.bus.Active(taskID) {
		// Non-terminal task with no worker: a restart orphaned it before
		// recovery caught up.
		return g.sendError(send, "import interrupted by server restart")
	}

	// Subscribe before replaying so no event can fall between the durable
	// log and the live tail. Live events already covered by the replay are
	// dropped by sequence index.
	live, cancel := g.bus.Subscribe(taskID)
	defer cancel()

	events, err := g.store.Events(ctx, taskID, from)
	if err != nil {
		g.logger.Error("stream replay failed", zap.String("task_id", taskID), zap.Error(err))
		return g.sendError(send, "internal error")
	}
	next := from
	for _, ev := range events {
		if err := send(ev); err != nil {
			return err
		}
		next = ev.Seq + 1
	}

	idle := time.NewTimer(g.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle.C:
			if err := g.sendError(send, "stream idle timeout, reconnect to resume"); err != nil {
				return err
			}
			return nil
		case msg, ok := <-live:
			if !ok {
				return g.liveClosed(ctx, taskID, next, send)
			}
			if msg.End {
				return g.finishTail(ctx, taskID, next, send)
			}
			if msg.Event.Seq < next {
				continue
			}
			if err := send(msg.Event); err != nil {
				return err
			}
			next = msg.Event.Seq + 1
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(g.idleTimeout)
		}
	}
}

// liveClosed ends a session whose live channel closed underneath it. That
// happens when the subscriber is evicted for falling behind, or when the
// worker finished between the terminal check and Subscribe. If the task is
// terminal the durable log already holds everything, so the session can
// flush and complete; otherwise the client reconnects with its cursor.
func (g *Gateway) liveClosed(ctx context.Context, taskID string, next int, send Sink) error {
	task, err := g.store.Get(ctx, taskID)
	if err == nil && task.Terminal() {
		return g.finishTail(ctx, taskID, next, send)
	}
	return g.sendError(send, "stream fell behind, reconnect to resume")
}

// finishTail flushes any durable events the live channel dropped between
// the last delivery and the end sentinel, then closes the session.
func (g *Gateway) finishTail(ctx context.Context, taskID string, next int, send Sink) error {
	events, err := g.store.Events(ctx, taskID, next)
	if err == nil {
		for _, ev := range events {
			if err := send(ev); err != nil {
				return err
			}
		}
	}
	return g.sendComplete(send)
}

// streamFinished serves a session for a task that already reached a
// terminal state. The durable log is replayed from the cursor; if the
// client has already seen the closing import_complete, a fresh summary is
// synthesized so every session still ends with one.
func (g *Gateway) streamFinished(ctx context.Context, task models.Task, from int, send Sink) error {
	events, err := g.store.Events(ctx, task.ID, from)
	if err != nil {
		g.logger.Error("stream replay failed", zap.String("task_id", task.ID), zap.Error(err))
		return g.sendError(send, "internal error")
	}

	sawSummary := false
	for _, ev := range events {
		if ev.Type == models.EventImportComplete {
			sawSummary = true
		}
		if err := send(ev); err != nil {
			return err
		}
	}

	if !sawSummary {
		ev, err := models.NewEvent(models.EventImportComplete, models.ImportCompleteData{
			Total:     task.Total,
			Processed: task.Processed,
			Failed:    task.Failed,
			Message:   fmt.Sprintf("Import finished: %d succeeded, %d failed", task.Processed, task.Failed),
		})
		if err != nil {
			return err
		}
		ev.Seq = task.EventCount
		if err := send(ev); err != nil {
			return err
		}
	}
	return g.sendComplete(send)
}

func (g *Gateway) sendError(send Sink, msg string) error {
	ev, err := models.NewEvent(models.EventError, models.ErrorData{Message: msg})
	if err != nil {
		return err
	}
	if err := send(ev); err != nil {
		return err
	}
	return g.sendComplete(send)
}

func (g *Gateway) sendComplete(send Sink) error {
	ev, err := models.NewEvent(models.EventComplete, struct{}{})
	if err != nil {
		return err
	}
	return send(ev)
}
