package config

import (
	"testing"
	"time"
)

func TestLoadBackendsAreOptIn(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("SURREAL_URL", "")

	cfg := Load()
	if cfg.PostgresDSN != "" {
		t.Fatalf("POSTGRES_DSN unset should leave DSN empty, got %q", cfg.PostgresDSN)
	}
	if cfg.RedisAddr != "" {
		t.Fatalf("REDIS_ADDR unset should leave addr empty, got %q", cfg.RedisAddr)
	}
	if cfg.SurrealURL != "" {
		t.Fatalf("SURREAL_URL unset should leave url empty, got %q", cfg.SurrealURL)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://app:secret@db:5432/photomind")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("STREAM_IDLE_TIMEOUT", "45s")
	t.Setenv("MAX_CONCURRENT_IMPORTS", "2")

	cfg := Load()
	if cfg.PostgresDSN != "postgres://app:secret@db:5432/photomind" {
		t.Fatalf("unexpected DSN %q", cfg.PostgresDSN)
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Fatalf("unexpected redis addr %q", cfg.RedisAddr)
	}
	if cfg.StreamIdleTimeout != 45*time.Second {
		t.Fatalf("unexpected idle timeout %v", cfg.StreamIdleTimeout)
	}
	if cfg.MaxConcurrentImports != 2 {
		t.Fatalf("unexpected concurrency %d", cfg.MaxConcurrentImports)
	}
}

func TestLoadBadValuesFallBack(t *testing.T) {
	t.Setenv("MAX_CONCURRENT_IMPORTS", "lots")
	t.Setenv("STREAM_IDLE_TIMEOUT", "soon")

	cfg := Load()
	if cfg.MaxConcurrentImports != 4 {
		t.Fatalf("bad int should fall back to default, got %d", cfg.MaxConcurrentImports)
	}
	if cfg.StreamIdleTimeout != 300*time.Second {
		t.Fatalf("bad duration should fall back to default, got %v", cfg.StreamIdleTimeout)
	}
}
