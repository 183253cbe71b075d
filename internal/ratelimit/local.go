package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Local is an in-process limiter for single-instance deployments. Each
// window is a token bucket refilled evenly over its span.
type Local struct {
	limits Limits

	mu      sync.Mutex
	tenants map[string][]*rate.Limiter
	now     func() time.Time
}

// NewLocal creates a Local limiter.
func NewLocal(limits Limits) *Local {
	return &Local{limits: limits, tenants: make(map[string][]*rate.Limiter), now: time.Now}
}

// Allow implements Limiter. Tokens are only taken when every window has one.
func (l *Local) Allow(_ context.Context, tenantID string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	wins := l.limits.windows()
	buckets, ok := l.tenants[tenantID]
	if !ok {
		buckets = make([]*rate.Limiter, len(wins))
		for i, w := range wins {
			buckets[i] = rate.NewLimiter(rate.Every(w.span/time.Duration(w.limit)), w.limit)
		}
		l.tenants[tenantID] = buckets
	}

	now := l.now()
	reservations := make([]*rate.Reservation, 0, len(buckets))
	for i, b := range buckets {
		r := b.ReserveN(now, 1)
		if !r.OK() || r.DelayFrom(now) > 0 {
			r.CancelAt(now)
			for _, prev := range reservations {
				prev.CancelAt(now)
			}
			return Decision{Allowed: false, Window: wins[i].name, Limit: wins[i].limit}, nil
		}
		reservations = append(reservations, r)
	}
	return Decision{Allowed: true}, nil
}
