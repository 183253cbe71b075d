package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// Counter increments a key that expires after ttl, returning the new value.
type Counter interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RedisCounter implements Counter with INCR and EXPIRE NX in one
// transaction. EXPIRE NX needs Redis 7 or later.
type RedisCounter struct {
	rdb redis.UniversalClient
}

// NewRedisCounter wraps a go-redis client.
func NewRedisCounter(rdb redis.UniversalClient) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

// Incr implements Counter.
func (c *RedisCounter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		p.ExpireNX(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, eris.Wrapf(err, "ratelimit: incr %s", key)
	}
	return incr.Val(), nil
}

// Redis is a fixed-window limiter shared by every process using the same
// Redis. Each window is a key per tenant and window start.
type Redis struct {
	counter Counter
	limits  Limits
	prefix  string
	now     func() time.Time
}

// NewRedis creates a Redis limiter.
func NewRedis(counter Counter, limits Limits) *Redis {
	return &Redis{counter: counter, limits: limits, prefix: "ledger:rl", now: time.Now}
}

// Allow implements Limiter. Every window is counted; the first one over its
// limit rejects the call.
func (r *Redis) Allow(ctx context.Context, tenantID string) (Decision, error) {
	now := r.now().UTC()
	out := Decision{Allowed: true}
	for _, w := range r.limits.windows() {
		slot := now.Truncate(w.span).Unix()
		key := fmt.Sprintf("%s:%s:%s:%d", r.prefix, tenantID, w.short, slot)
		n, err := r.counter.Incr(ctx, key, w.span)
		if err != nil {
			return Decision{}, err
		}
		if out.Allowed && n > int64(w.limit) {
			out = Decision{Allowed: false, Window: w.name, Limit: w.limit}
		}
	}
	return out, nil
}
