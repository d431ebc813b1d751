package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/uulichen-sketch/PhotoMind/internal/models"
	"github.com/uulichen-sketch/PhotoMind/internal/store"
	"github.com/uulichen-sketch/PhotoMind/internal/telemetry"
)

// handleEvents serves the task's progress stream over SSE. The optional
// last_index query parameter is the client's cursor: the index of the next
// event it has not seen. Reconnecting with the cursor replays from there.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	from := 0
	if v := r.URL.Query().Get("last_index"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "last_index must be a non-negative integer")
			return
		}
		from = n
	}

	if _, err := s.tasks.Get(r.Context(), taskID); errors.Is(err, store.ErrTaskNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	telemetry.StreamSessions.Inc()
	defer telemetry.StreamSessions.Dec()

	sink := func(ev models.Event) error {
		payload, err := ev.Envelope()
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := s.gateway.Stream(r.Context(), taskID, from, sink); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("stream session ended", zap.String("task_id", taskID), zap.Error(err))
	}
}
