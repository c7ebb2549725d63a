// Package cache provides a short-TTL cache for workspace insight snapshots.
// Evidence packs are deliberately not cacheable: they must reflect the live
// ledger on every read.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oh-my-collab/performance-service/internal/domain"
)

// InsightsCache stores computed workspace dashboards. A miss returns
// (nil, nil).
type InsightsCache interface {
	Get(ctx context.Context, workspaceID string) (*domain.WorkspaceInsights, error)
	Set(ctx context.Context, insights domain.WorkspaceInsights) error
	Invalidate(ctx context.Context, workspaceID string) error
}

// NoopCache satisfies InsightsCache without storing anything; it stands in
// when Redis is not configured.
type NoopCache struct{}

// Get always misses.
func (NoopCache) Get(ctx context.Context, workspaceID string) (*domain.WorkspaceInsights, error) {
	return nil, nil
}

// Set drops the snapshot.
func (NoopCache) Set(ctx context.Context, insights domain.WorkspaceInsights) error { return nil }

// Invalidate is a no-op.
func (NoopCache) Invalidate(ctx context.Context, workspaceID string) error { return nil }

// RedisCache keeps insight snapshots in Redis under a per-workspace key with
// a fixed TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache constructs a RedisCache.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func insightsKey(workspaceID string) string {
	return fmt.Sprintf("insights:%s", workspaceID)
}

// Get returns the cached snapshot, or nil on a miss.
func (c *RedisCache) Get(ctx context.Context, workspaceID string) (*domain.WorkspaceInsights, error) {
	raw, err := c.client.Get(ctx, insightsKey(workspaceID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var insights domain.WorkspaceInsights
	if err := json.Unmarshal(raw, &insights); err != nil {
		return nil, err
	}
	return &insights, nil
}

// Set stores the snapshot with the cache TTL.
func (c *RedisCache) Set(ctx context.Context, insights domain.WorkspaceInsights) error {
	raw, err := json.Marshal(insights)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, insightsKey(insights.WorkspaceID), raw, c.ttl).Err()
}

// Invalidate drops the workspace's snapshot, if any.
func (c *RedisCache) Invalidate(ctx context.Context, workspaceID string) error {
	return c.client.Del(ctx, insightsKey(workspaceID)).Err()
}
