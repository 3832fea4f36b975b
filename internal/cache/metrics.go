package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"github.com/shinyyama/dispatch-backend/internal/model"
)

// MetricsCache stores transporter performance snapshots for dashboard reads.
// A miss is reported as (nil, false, nil).
type MetricsCache interface {
	Get(ctx context.Context, transporterID uint64) (*model.TransporterMetrics, bool, error)
	Set(ctx context.Context, m model.TransporterMetrics) error
}

func metricsKey(transporterID uint64) string {
	return fmt.Sprintf("transporter:%d:metrics", transporterID)
}

type redisMetricsCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisMetricsCache(client *redis.Client, ttl time.Duration) MetricsCache {
	return &redisMetricsCache{client: client, ttl: ttl}
}

func (c *redisMetricsCache) Get(ctx context.Context, transporterID uint64) (*model.TransporterMetrics, bool, error) {
	raw, err := c.client.Get(ctx, metricsKey(transporterID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var m model.TransporterMetrics
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false, err
	}
	return &m, true, nil
}

func (c *redisMetricsCache) Set(ctx context.Context, m model.TransporterMetrics) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, metricsKey(m.TransporterID), raw, c.ttl).Err()
}

type memoryMetricsCache struct {
	lru *lru.LRU[uint64, model.TransporterMetrics]
}

// NewMemoryMetricsCache is the in-process fallback when REDIS_ADDR is unset.
func NewMemoryMetricsCache(size int, ttl time.Duration) MetricsCache {
	return &memoryMetricsCache{lru: lru.NewLRU[uint64, model.TransporterMetrics](size, nil, ttl)}
}

func (c *memoryMetricsCache) Get(_ context.Context, transporterID uint64) (*model.TransporterMetrics, bool, error) {
	m, ok := c.lru.Get(transporterID)
	if !ok {
		return nil, false, nil
	}
	return &m, true, nil
}

func (c *memoryMetricsCache) Set(_ context.Context, m model.TransporterMetrics) error {
	c.lru.Add(m.TransporterID, m)
	return nil
}
