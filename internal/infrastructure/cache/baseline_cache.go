package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/terrawatch/excavation-monitor-backend/internal/domain/baseline"
	"github.com/terrawatch/excavation-monitor-backend/internal/infrastructure/config"
)

// BaselineCache keeps computed per-area baseline statistics in Redis so hot
// areas skip the lookback query on every run. Entries are dropped whenever
// the index history changes; a miss is not an error.
type BaselineCache struct {
	cache  Cache
	logger *zap.Logger
}

// NewBaselineCache creates a Redis-backed baseline cache.
func NewBaselineCache(cfg *config.RedisConfig, logger *zap.Logger) (*BaselineCache, error) {
	c, err := NewRedisCache(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &BaselineCache{cache: c, logger: logger}, nil
}

func baselineKey(areaID uuid.UUID) string {
	return BaselinePrefix + areaID.String()
}

// Get returns the cached baseline for an area, or (nil, nil) on a miss.
func (c *BaselineCache) Get(ctx context.Context, areaID uuid.UUID) (*baseline.Stats, error) {
	var stats baseline.Stats
	err := c.cache.GetJSON(ctx, baselineKey(areaID), &stats)
	if err != nil {
		var notFound ErrCacheKeyNotFound
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, err
	}
	return &stats, nil
}

// Put stores a baseline with the given TTL.
func (c *BaselineCache) Put(ctx context.Context, areaID uuid.UUID, stats *baseline.Stats, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultBaselineTTL
	}
	return c.cache.SetJSON(ctx, baselineKey(areaID), stats, ttl)
}

// Invalidate drops the cached baseline for an area.
func (c *BaselineCache) Invalidate(ctx context.Context, areaID uuid.UUID) error {
	return c.cache.Delete(ctx, baselineKey(areaID))
}

// Close releases the underlying connection.
func (c *BaselineCache) Close() error {
	return c.cache.Close()
}
