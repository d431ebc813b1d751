package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	ImportsStarted   = prometheus.NewCounter(prometheus.CounterOpts{Name: "photomind_imports_started_total", Help: "Import batches accepted"})
	ImportsCompleted = prometheus.NewCounter(prometheus.CounterOpts{Name: "photomind_imports_completed_total", Help: "Import batches finished"})
	PhotosProcessed  = prometheus.NewCounter(prometheus.CounterOpts{Name: "photomind_photos_processed_total", Help: "Photos processed successfully"})
	PhotosFailed     = prometheus.NewCounter(prometheus.CounterOpts{Name: "photomind_photos_failed_total", Help: "Photos that failed a pipeline stage"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "photomind_rate_limit_rejects_total", Help: "Uploads rejected by rate limiter"})
	SearchRequests   = prometheus.NewCounter(prometheus.CounterOpts{Name: "photomind_search_requests_total", Help: "Search requests served"})
	ActiveImports    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "photomind_imports_active", Help: "Import batches currently running"})
	StreamSessions   = prometheus.NewGauge(prometheus.GaugeOpts{Name: "photomind_stream_sessions", Help: "Open progress stream sessions"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			ImportsStarted,
			ImportsCompleted,
			PhotosProcessed,
			PhotosFailed,
			RateLimitRejects,
			SearchRequests,
			ActiveImports,
			StreamSessions,
		)
	})
	return promhttp.Handler()
}
