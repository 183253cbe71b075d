package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Backoff describes how a failing call is retried.
type Backoff struct {
	// Attempts is the total number of calls, the first one included.
	Attempts int `yaml:"attempts" mapstructure:"attempts"`
	// Base is the delay before the first retry.
	Base time.Duration `yaml:"base" mapstructure:"base"`
	// Max caps every delay.
	Max time.Duration `yaml:"max" mapstructure:"max"`
	// Factor multiplies the delay after each retry.
	Factor float64 `yaml:"factor" mapstructure:"factor"`
	// Jitter spreads each delay by up to ±Jitter of its value.
	Jitter float64 `yaml:"jitter" mapstructure:"jitter"`

	// Retryable decides whether an error is worth another call. IsTransient
	// is used when nil.
	Retryable func(error) bool `yaml:"-" mapstructure:"-"`
	// OnRetry runs before each sleep.
	OnRetry func(attempt int, err error) `yaml:"-" mapstructure:"-"`
}

// DefaultBackoff is tuned for vision provider calls, which are slow and
// usually fail for capacity reasons.
func DefaultBackoff() Backoff {
	return Backoff{
		Attempts: 3,
		Base:     time.Second,
		Max:      20 * time.Second,
		Factor:   2,
		Jitter:   0.2,
	}
}

func (b Backoff) normalized() Backoff {
	d := DefaultBackoff()
	if b.Attempts < 1 {
		b.Attempts = d.Attempts
	}
	if b.Base <= 0 {
		b.Base = d.Base
	}
	if b.Max <= 0 {
		b.Max = d.Max
	}
	if b.Factor < 1 {
		b.Factor = d.Factor
	}
	if b.Jitter < 0 || b.Jitter > 1 {
		b.Jitter = 0
	}
	if b.Retryable == nil {
		b.Retryable = IsTransient
	}
	return b
}

// delay returns the sleep before retry n (0-based).
func (b Backoff) delay(n int) time.Duration {
	d := math.Min(float64(b.Base)*math.Pow(b.Factor, float64(n)), float64(b.Max))
	if b.Jitter > 0 {
		d += d * b.Jitter * (2*rand.Float64() - 1)
	}
	return time.Duration(math.Max(d, 0))
}

// Retry calls fn until it succeeds, returns an error b does not consider
// retryable, the attempts run out or ctx is done. The last error is returned.
func Retry[T any](ctx context.Context, b Backoff, fn func(context.Context) (T, error)) (T, error) {
	b = b.normalized()
	var zero T
	for n := 0; ; n++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !b.Retryable(err) || n+1 >= b.Attempts {
			return zero, err
		}
		if b.OnRetry != nil {
			b.OnRetry(n+1, err)
		}
		t := time.NewTimer(b.delay(n))
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, err
		case <-t.C:
		}
	}
}

// Do is Retry for calls without a result.
func Do(ctx context.Context, b Backoff, fn func(context.Context) error) error {
	_, err := Retry(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// LogRetries returns an OnRetry hook that logs at warn level.
func LogRetries(service, op string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("resilience: retrying",
			zap.String("service", service),
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
