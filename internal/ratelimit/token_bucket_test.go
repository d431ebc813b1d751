package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestBucket(t *testing.T, capacity int, refill float64) *TokenBucket {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewTokenBucket(client, capacity, refill, time.Minute)
}

func TestTokenBucketCapacity(t *testing.T) {
	ctx := context.Background()
	bucket := newTestBucket(t, 2, 1)
	key := UploadKey("10.0.0.1")

	allowed, _, err := bucket.Allow(ctx, key)
	if err != nil || !allowed {
		t.Fatalf("expected first token allowed got allowed=%v err=%v", allowed, err)
	}
	allowed, _, _ = bucket.Allow(ctx, key)
	if !allowed {
		t.Fatalf("expected second token allowed")
	}
	allowed, _, _ = bucket.Allow(ctx, key)
	if allowed {
		t.Fatalf("expected third token to be rejected")
	}

	// Other clients have their own bucket.
	allowed, _, _ = bucket.Allow(ctx, UploadKey("10.0.0.2"))
	if !allowed {
		t.Fatalf("expected a fresh key to be allowed")
	}
}

func TestTokenBucketRefill(t *testing.T) {
	ctx := context.Background()
	bucket := newTestBucket(t, 1, 2) // 2 tokens per second
	key := UploadKey("10.0.0.3")

	base := time.Now()
	bucket.now = func() time.Time { return base }

	if allowed, _, err := bucket.Allow(ctx, key); err != nil || !allowed {
		t.Fatalf("expected initial token, allowed=%v err=%v", allowed, err)
	}
	if allowed, _, _ := bucket.Allow(ctx, key); allowed {
		t.Fatalf("bucket should be drained")
	}

	bucket.now = func() time.Time { return base.Add(600 * time.Millisecond) }
	allowed, tokens, err := bucket.Allow(ctx, key)
	if err != nil || !allowed {
		t.Fatalf("expected refilled token after 600ms, allowed=%v err=%v", allowed, err)
	}
	if tokens >= 1 {
		t.Fatalf("refill should be capped at capacity, remaining %v", tokens)
	}
}

func TestUploadKey(t *testing.T) {
	if got := UploadKey("192.168.1.9"); got != "rl:upload:192.168.1.9" {
		t.Fatalf("unexpected key %q", got)
	}
}
