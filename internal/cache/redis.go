package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/revlens/attribution/internal/attribution"
	"github.com/revlens/attribution/internal/config"
)

// NewRedisClient connects to Redis for the classification cache.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("connected to Redis",
		zap.String("addr", cfg.Addr),
		zap.Int("db", cfg.DB),
	)
	return client, nil
}

// HistoryCache decorates a HistoryLookup with Redis, cutting repeat API
// round trips for profiles already known to have purchase history.
//
// Only positive answers are cached: per (metric, profile) the cache keeps
// the earliest threshold for which a prior purchase is known to exist.
// Any later threshold is then answered locally — if a purchase exists
// before T it also exists before every T' >= T. Negative answers are
// never cached because they stop holding as time moves on.
type HistoryCache struct {
	client *redis.Client
	next   attribution.HistoryLookup
	ttl    time.Duration
	logger *zap.Logger
}

// NewHistoryCache wraps next with a Redis-backed cache.
func NewHistoryCache(client *redis.Client, next attribution.HistoryLookup, ttl time.Duration, logger *zap.Logger) *HistoryCache {
	return &HistoryCache{
		client: client,
		next:   next,
		ttl:    ttl,
		logger: logger,
	}
}

var _ attribution.HistoryLookup = (*HistoryCache)(nil)

// HasPriorPurchase answers from the cache when possible, otherwise falls
// through to the wrapped lookup. Cache failures degrade to the wrapped
// lookup rather than failing the classification.
func (c *HistoryCache) HasPriorPurchase(ctx context.Context, profileID, metricID string, before time.Time) (bool, error) {
	key := c.key(profileID, metricID)

	stored, err := c.client.Get(ctx, key).Result()
	if err != nil && err != redis.Nil {
		c.logger.Warn("history cache read failed", zap.String("key", key), zap.Error(err))
	}
	if stored != "" {
		if known, parseErr := time.Parse(time.RFC3339Nano, stored); parseErr == nil && !before.Before(known) {
			return true, nil
		}
	}

	prior, err := c.next.HasPriorPurchase(ctx, profileID, metricID, before)
	if err != nil || !prior {
		return prior, err
	}

	// Remember the earliest threshold known to have prior history.
	threshold := before
	if stored != "" {
		if known, parseErr := time.Parse(time.RFC3339Nano, stored); parseErr == nil && known.Before(threshold) {
			threshold = known
		}
	}
	if err := c.client.Set(ctx, key, threshold.UTC().Format(time.RFC3339Nano), c.ttl).Err(); err != nil {
		c.logger.Warn("history cache write failed", zap.String("key", key), zap.Error(err))
	}
	return true, nil
}

func (c *HistoryCache) key(profileID, metricID string) string {
	return fmt.Sprintf("attribution:prior:%s:%s", metricID, profileID)
}
