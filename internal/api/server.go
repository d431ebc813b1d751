// Package api wires the HTTP surface: uploads, progress streams, task
// inspection, photo browsing, and search.
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/uulichen-sketch/PhotoMind/internal/cache"
	"github.com/uulichen-sketch/PhotoMind/internal/config"
	"github.com/uulichen-sketch/PhotoMind/internal/middleware"
	"github.com/uulichen-sketch/PhotoMind/internal/photostore"
	"github.com/uulichen-sketch/PhotoMind/internal/ratelimit"
	"github.com/uulichen-sketch/PhotoMind/internal/speech"
	"github.com/uulichen-sketch/PhotoMind/internal/store"
	"github.com/uulichen-sketch/PhotoMind/internal/stream"
	"github.com/uulichen-sketch/PhotoMind/internal/telemetry"
	"github.com/uulichen-sketch/PhotoMind/internal/worker"
)

// Server holds the handler dependencies.
type Server struct {
	cfg         config.Config
	logger      *zap.Logger
	tasks       store.TaskStore
	photos      photostore.Store
	pool        *worker.Pool
	gateway     *stream.Gateway
	limiter     *ratelimit.TokenBucket
	statusCache *cache.StatusCache
	transcriber *speech.Client
	checks      map[string]func() error

	allowedExts map[string]bool
}

// New constructs the API server. limiter, statusCache, and transcriber are
// optional; checks feed /healthz/detailed.
func New(cfg config.Config, logger *zap.Logger, tasks store.TaskStore, photos photostore.Store, pool *worker.Pool, gateway *stream.Gateway, limiter *ratelimit.TokenBucket, statusCache *cache.StatusCache, transcriber *speech.Client, checks map[string]func() error) *Server {
	allowed := make(map[string]bool, len(cfg.ImageExtensions))
	for _, ext := range cfg.ImageExtensions {
		allowed["."+strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}
	return &Server{
		cfg:         cfg,
		logger:      logger,
		tasks:       tasks,
		photos:      photos,
		pool:        pool,
		gateway:     gateway,
		limiter:     limiter,
		statusCache: statusCache,
		transcriber: transcriber,
		checks:      checks,
		allowedExts: allowed,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Trace)
	r.Use(middleware.Recovery(s.logger))
	r.Use(middleware.Logging(s.logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/healthz/detailed", s.handleHealthDetailed)
	r.Mount("/metrics", telemetry.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/import/upload", s.handleUpload)
		r.Post("/import/scan", s.handleScan)
		r.Get("/import/events/{taskID}", s.handleEvents)
		r.Get("/import/tasks", s.handleListTasks)
		r.Get("/import/tasks/{taskID}", s.handleGetTask)

		r.Post("/search/text", s.handleSearchText)
		r.Post("/search/voice", s.handleSearchVoice)

		r.Get("/photos", s.handleListPhotos)
		r.Get("/photos/{photoID}", s.handleGetPhoto)
		r.Delete("/photos/{photoID}", s.handleDeletePhoto)
		r.Get("/photos/{photoID}/file", s.handlePhotoFile)
	})
	return r
}

func (s *Server) handleHealthDetailed(w http.ResponseWriter, _ *http.Request) {
	components := make(map[string]string, len(s.checks))
	healthy := true
	for name, check := range s.checks {
		if err := check(); err != nil {
			components[name] = err.Error()
			healthy = false
		} else {
			components[name] = "ok"
		}
	}
	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"status": status, "components": components})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// stalledAfter marks a non-terminal task as stalled when its record stops
// moving for this long; the stream idle timeout is the natural scale.
const stalledAfter = 5 * time.Minute
