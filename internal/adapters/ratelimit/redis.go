package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"roomsync/internal/adapters/observability"
)

// RedisLimiter is the shared-store sliding window for multi-instance
// deployments: attempts live in a per-key sorted set scored by timestamp.
type RedisLimiter struct {
	c      *redis.Client
	window time.Duration
	max    int
}

func NewRedis(addr, pass string, db, max int, window time.Duration) *RedisLimiter {
	if max <= 0 {
		max = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{
		c:      redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db}),
		window: window,
		max:    max,
	}
}

// Allow appends the attempt, prunes entries older than the window and counts
// what remains, all in one pipeline so two instances agree on the outcome.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now()
	rkey := "ratelimit:" + key
	cutoff := strconv.FormatInt(now.Add(-l.window).UnixNano(), 10)

	member := uuid.NewString()
	pipe := l.c.TxPipeline()
	pipe.ZRemRangeByScore(ctx, rkey, "0", cutoff)
	pipe.ZAdd(ctx, rkey, redis.Z{Score: float64(now.UnixNano()), Member: member})
	card := pipe.ZCard(ctx, rkey)
	pipe.Expire(ctx, rkey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	if card.Val() > int64(l.max) {
		// A denied attempt must not consume budget, matching the in-process
		// limiter: hammering while locked out cannot extend the lockout.
		if err := l.c.ZRem(ctx, rkey, member).Err(); err != nil {
			return false, err
		}
		observability.ObserveRateLimit("denied")
		return false, nil
	}
	observability.ObserveRateLimit("allowed")
	return true, nil
}
