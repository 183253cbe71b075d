// Package lock provides distributed mutual exclusion backed by Redis.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrNotObtained is returned when the lock is still held elsewhere after the
// wait period.
var ErrNotObtained = eris.New("lock: not obtained")

// Redis hands out short-lived locks keyed by name.
type Redis struct {
	client *redislock.Client
	ttl    time.Duration
	wait   time.Duration
	prefix string
}

// NewRedis creates a Redis locker. ttl bounds how long a crashed holder can
// block others; wait is how long Acquire retries before giving up.
func NewRedis(rdb redis.UniversalClient, ttl, wait time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &Redis{client: redislock.New(rdb), ttl: ttl, wait: wait, prefix: "ledger:lock:"}
}

// Acquire blocks until key is held or the wait period ends. The returned
// release func is safe to call more than once.
func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, r.wait)
	defer cancel()

	l, err := r.client.Obtain(ctx, r.prefix+key, r.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(100 * time.Millisecond),
	})
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
		return nil, eris.Wrapf(ErrNotObtained, "lock: %s", key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "lock: obtain %s", key)
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		if err := l.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			zap.L().Warn("lock: release failed", zap.String("key", key), zap.Error(err))
		}
	}, nil
}
