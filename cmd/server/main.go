package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/uulichen-sketch/PhotoMind/internal/api"
	"github.com/uulichen-sketch/PhotoMind/internal/bus"
	"github.com/uulichen-sketch/PhotoMind/internal/cache"
	"github.com/uulichen-sketch/PhotoMind/internal/config"
	"github.com/uulichen-sketch/PhotoMind/internal/geocode"
	"github.com/uulichen-sketch/PhotoMind/internal/photostore"
	"github.com/uulichen-sketch/PhotoMind/internal/ratelimit"
	"github.com/uulichen-sketch/PhotoMind/internal/speech"
	"github.com/uulichen-sketch/PhotoMind/internal/store"
	"github.com/uulichen-sketch/PhotoMind/internal/stream"
	"github.com/uulichen-sketch/PhotoMind/internal/vision"
	"github.com/uulichen-sketch/PhotoMind/internal/worker"
)

func main() {
	cfg := config.Load()

	logger, err := buildLogger(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]func() error{}

	var tasks store.TaskStore
	if cfg.PostgresDSN != "" {
		pg, err := store.NewPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("connect postgres", zap.Error(err))
		}
		defer pg.Close()
		if err := pg.RunMigrations(ctx); err != nil {
			logger.Fatal("migrations", zap.Error(err))
		}
		checks["postgres"] = func() error { return pg.Ping(context.Background()) }
		tasks = pg
	} else {
		logger.Warn("POSTGRES_DSN not set, task history will not survive restarts")
		tasks = store.NewMemory()
	}

	// Tasks left mid-flight by a previous process cannot be resumed; their
	// staged uploads are gone. Fail them before serving traffic.
	if n, err := tasks.RecoverOrphans(ctx); err != nil {
		logger.Fatal("recover orphaned tasks", zap.Error(err))
	} else if n > 0 {
		logger.Info("failed orphaned tasks from previous run", zap.Int("count", n))
	}

	var limiter *ratelimit.TokenBucket
	var statusCache *cache.StatusCache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		limiter = ratelimit.NewTokenBucket(rdb, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)
		statusCache = cache.NewStatusCache(rdb, 10*time.Minute)
		checks["redis"] = func() error { return rdb.Ping(context.Background()).Err() }
	} else {
		logger.Warn("REDIS_ADDR not set, rate limiting and status caching disabled")
	}

	photos, cleanup := buildPhotoStore(ctx, cfg, logger)
	defer cleanup()

	var analyzer vision.Analyzer = vision.Static{}
	if cfg.VisionProvider != "" {
		lc, err := vision.NewLangChain(vision.Options{
			Provider:   cfg.VisionProvider,
			Model:      cfg.VisionModel,
			APIKey:     cfg.VisionAPIKey,
			BaseURL:    cfg.VisionBaseURL,
			OllamaHost: cfg.OllamaHost,
			MaxSide:    cfg.VisionMaxSide,
		})
		if err != nil {
			logger.Fatal("vision provider", zap.Error(err))
		}
		analyzer = lc
	} else {
		logger.Warn("VISION_PROVIDER not set, photos will be imported without AI analysis")
	}

	var resolver geocode.Resolver
	if geo := geocode.NewClient(cfg.GeocodeBaseURL, cfg.GeocodeUserAgent); geo.Enabled() {
		resolver = geo
	}

	uploader, err := worker.NewUploader(ctx, cfg)
	if err != nil {
		logger.Fatal("archive uploader", zap.Error(err))
	}

	b := bus.New()
	pool := worker.NewPool(tasks, b, photos, resolver, analyzer, uploader, cfg.MaxConcurrentImports, logger)
	gateway := stream.NewGateway(tasks, b, cfg.StreamIdleTimeout, logger)
	transcriber := speech.NewClient(cfg.SpeechBaseURL, cfg.SpeechAPIKey, cfg.SpeechModel)

	go retireOldTasks(ctx, tasks, cfg, logger)

	server := api.New(cfg, logger, tasks, photos, pool, gateway, limiter, statusCache, transcriber, checks)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	logger.Info("server listening", zap.String("port", cfg.HTTPPort))
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)

	// Give running imports a chance to finish; anything still going after
	// the grace period becomes an orphan on the next start.
	done := make(chan struct{})
	go func() {
		pool.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		logger.Warn("imports still running at shutdown, they will be failed on restart")
	}
}

func buildLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func buildPhotoStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (photostore.Store, func()) {
	if cfg.SurrealURL == "" {
		logger.Warn("SURREAL_URL not set, photo records will not survive restarts")
		return photostore.NewMemory(), func() {}
	}

	var embedder *photostore.Embedder
	if cfg.EmbedProvider != "" {
		var err error
		embedder, err = photostore.NewEmbedder(photostore.EmbedderOptions{
			Provider:   cfg.EmbedProvider,
			Model:      cfg.EmbedModel,
			APIKey:     cfg.VisionAPIKey,
			OllamaHost: cfg.OllamaHost,
			Dimension:  cfg.EmbedDimension,
		})
		if err != nil {
			logger.Fatal("embedding provider", zap.Error(err))
		}
	} else {
		logger.Info("EMBED_PROVIDER not set, search will use fulltext only")
	}

	surreal, err := photostore.NewSurreal(ctx, photostore.SurrealConfig{
		URL:       cfg.SurrealURL,
		Namespace: cfg.SurrealNamespace,
		Database:  cfg.SurrealDatabase,
		Username:  cfg.SurrealUser,
		Password:  cfg.SurrealPassword,
	}, embedder)
	if err != nil {
		logger.Fatal("connect surrealdb", zap.Error(err))
	}
	return surreal, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = surreal.Close(closeCtx)
	}
}

// retireOldTasks prunes terminal tasks past the retention window.
func retireOldTasks(ctx context.Context, tasks store.TaskStore, cfg config.Config, logger *zap.Logger) {
	if cfg.CleanupInterval <= 0 || cfg.TaskRetention <= 0 {
		return
	}
	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := tasks.DeleteOlderThan(ctx, time.Now().Add(-cfg.TaskRetention))
			if err != nil {
				logger.Warn("task retention sweep", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("retired old tasks", zap.Int("count", n))
			}
		}
	}
}
