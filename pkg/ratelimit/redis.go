package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis is a sliding window limiter shared across instances. Each key is a
// sorted set of event timestamps scored in nanoseconds.
type Redis struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
	now    Clock
}

// NewRedis builds a redis backed limiter.
func NewRedis(client *redis.Client, prefix string, limit int, window time.Duration, now Clock) (*Redis, error) {
	if client == nil {
		return nil, fmt.Errorf("ratelimit: redis client is required")
	}
	if limit <= 0 || window <= 0 {
		return nil, fmt.Errorf("ratelimit: invalid limit %d per %s", limit, window)
	}
	if now == nil {
		now = time.Now
	}
	return &Redis{client: client, prefix: prefix, limit: limit, window: window, now: now}, nil
}

// Allow trims expired entries, counts the rest and records the new event when
// under the limit. Two racing callers may both be admitted near the edge.
func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	now := r.now()
	redisKey := r.prefix + key
	floor := strconv.FormatInt(now.Add(-r.window).UnixNano(), 10)

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", floor)
	card := pipe.ZCard(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("ratelimit: trim %s: %w", redisKey, err)
	}
	if card.Val() >= int64(r.limit) {
		return false, nil
	}

	pipe = r.client.TxPipeline()
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: uuid.NewString()})
	pipe.PExpire(ctx, redisKey, r.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("ratelimit: record %s: %w", redisKey, err)
	}
	return true, nil
}
