package dialer

import (
	"context"
	"fmt"
	"time"

	"dialer-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// RedisSlotGuard enforces per-campaign origination caps through redis, so
// the cap holds even with more than one dialer process.
type RedisSlotGuard struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisSlotGuard(rdb *redis.Client, ttl time.Duration) *RedisSlotGuard {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisSlotGuard{rdb: rdb, ttl: ttl}
}

func slotKey(campaignID string) string {
	return fmt.Sprintf("dialer:slots:%s", campaignID)
}

func (g *RedisSlotGuard) Acquire(ctx context.Context, campaignID string, limit int) (bool, error) {
	return utils.AcquireOriginationSlot(ctx, g.rdb, slotKey(campaignID), limit, g.ttl)
}

func (g *RedisSlotGuard) Release(ctx context.Context, campaignID string) error {
	return utils.ReleaseOriginationSlot(ctx, g.rdb, slotKey(campaignID))
}
