package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"booking-engine/internal/config"
	"github.com/go-redis/redis/v8"
)

const (
	defaultTTLMs = 30_000
	dateLayout   = "2006-01-02"
)

// AvailabilityCache is a read-through cache for "is this date available".
// Keys always derive from the full (tenantId, date) tuple so entries can
// never leak across tenants. A nil cache is valid and behaves as a miss.
type AvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewAvailabilityCache(cfg config.Redis, logger *slog.Logger) *AvailabilityCache {
	if cfg.Addr == "" {
		return nil
	}

	ttlMs := cfg.TTLMs
	if ttlMs <= 0 {
		ttlMs = defaultTTLMs
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &AvailabilityCache{
		client: client,
		ttl:    time.Duration(ttlMs) * time.Millisecond,
		logger: logger,
	}
}

func (c *AvailabilityCache) Get(ctx context.Context, tenantID string, date time.Time) (bool, bool) {
	if c == nil {
		return false, false
	}

	value, err := c.client.Get(ctx, key(tenantID, date)).Result()
	if err == redis.Nil {
		return false, false
	}
	if err != nil {
		c.logger.WarnContext(ctx, "Availability cache read failed", "error", err)
		return false, false
	}
	return value == "1", true
}

func (c *AvailabilityCache) Set(ctx context.Context, tenantID string, date time.Time, available bool) {
	if c == nil {
		return
	}

	value := "0"
	if available {
		value = "1"
	}
	if err := c.client.Set(ctx, key(tenantID, date), value, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "Availability cache write failed", "error", err)
	}
}

func (c *AvailabilityCache) Invalidate(ctx context.Context, tenantID string, date time.Time) {
	if c == nil {
		return
	}

	if err := c.client.Del(ctx, key(tenantID, date)).Err(); err != nil {
		c.logger.WarnContext(ctx, "Availability cache invalidation failed", "error", err)
	}
}

func key(tenantID string, date time.Time) string {
	return fmt.Sprintf("availability:%s:%s", tenantID, date.Format(dateLayout))
}
