// Package cache keeps hot task summaries in Redis so task polling does not
// hit the record store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/uulichen-sketch/PhotoMind/internal/models"
)

const statusKeyPrefix = "task:status:"

// ErrMiss is returned when no cached summary exists for the task.
var ErrMiss = errors.New("status cache miss")

// StatusCache caches task summaries with a TTL.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStatusCache(client *redis.Client, ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StatusCache{client: client, ttl: ttl}
}

func (c *StatusCache) Get(ctx context.Context, taskID string) (models.Task, error) {
	data, err := c.client.Get(ctx, statusKeyPrefix+taskID).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Task{}, ErrMiss
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("cache get: %w", err)
	}
	var task models.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return models.Task{}, fmt.Errorf("cache decode: %w", err)
	}
	return task, nil
}

func (c *StatusCache) Set(ctx context.Context, task models.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.client.Set(ctx, statusKeyPrefix+task.ID, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (c *StatusCache) Delete(ctx context.Context, taskID string) error {
	return c.client.Del(ctx, statusKeyPrefix+taskID).Err()
}
