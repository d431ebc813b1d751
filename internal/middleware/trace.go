// Package middleware holds the HTTP cross-cutting layers: request tracing,
// access logging, and panic recovery.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const traceKey contextKey = "trace_id"

const TraceHeader = "X-Trace-ID"

// Trace assigns each request a trace id, honoring one supplied by the
// client, and echoes it on the response.
func Trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(TraceHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(TraceHeader, id)
		ctx := context.WithValue(r.Context(), traceKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TraceID returns the request's trace id, or "" outside a traced request.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceKey).(string); ok {
		return v
	}
	return ""
}
