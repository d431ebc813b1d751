package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/uulichen-sketch/PhotoMind/internal/models"
)

func newTestCache(t *testing.T) (*StatusCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStatusCache(client, time.Minute), mr
}

func TestStatusCacheRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	task := models.Task{
		ID:        "task_abc123",
		Kind:      models.KindBatchUpload,
		Status:    models.StatusProcessing,
		Total:     3,
		Processed: 1,
	}
	if err := c.Set(ctx, task); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := c.Get(ctx, "task_abc123")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != task.ID || got.Status != task.Status || got.Processed != 1 {
		t.Fatalf("got %+v, want %+v", got, task)
	}
}

func TestStatusCacheMiss(t *testing.T) {
	c, _ := newTestCache(t)
	if _, err := c.Get(context.Background(), "task_missing"); err != ErrMiss {
		t.Fatalf("err = %v, want ErrMiss", err)
	}
}

func TestStatusCacheExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, models.Task{ID: "task_ttl"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := c.Get(ctx, "task_ttl"); err != ErrMiss {
		t.Fatalf("err after expiry = %v, want ErrMiss", err)
	}
}

func TestStatusCacheDelete(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, models.Task{ID: "task_del"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := c.Delete(ctx, "task_del"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := c.Get(ctx, "task_del"); err != ErrMiss {
		t.Fatalf("err after delete = %v, want ErrMiss", err)
	}
}
