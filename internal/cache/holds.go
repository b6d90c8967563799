package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// HoldCache mirrors live booking holds into Redis keyed by appointment id.
// It is a best-effort read accelerator; the appointments table stays
// authoritative and the cache expiring early or late changes nothing.
type HoldCache struct {
	rdb *redis.Client
}

func NewHoldCache(rdb *redis.Client) *HoldCache {
	return &HoldCache{rdb: rdb}
}

func holdKey(appointmentID string) string {
	return fmt.Sprintf("hold:appointment:%s", appointmentID)
}

func (c *HoldCache) Put(ctx context.Context, appointmentID, staffID string, ttl time.Duration) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Set(ctx, holdKey(appointmentID), staffID, ttl).Err()
}

func (c *HoldCache) Drop(ctx context.Context, appointmentID string) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, holdKey(appointmentID)).Err()
}
