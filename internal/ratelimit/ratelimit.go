// Package ratelimit caps how many documents a tenant may send to a vision
// provider per minute, hour and day.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Limits are per-tenant ceilings. Zero disables a window.
type Limits struct {
	PerMinute int `yaml:"per_minute" mapstructure:"per_minute"`
	PerHour   int `yaml:"per_hour" mapstructure:"per_hour"`
	PerDay    int `yaml:"per_day" mapstructure:"per_day"`
}

// Decision is the outcome of one check.
type Decision struct {
	Allowed bool
	Window  string
	Limit   int
}

// Message describes a rejected decision.
func (d Decision) Message() string {
	if d.Allowed {
		return ""
	}
	return fmt.Sprintf("Rate limit exceeded: %d requests per %s", d.Limit, d.Window)
}

// Limiter checks and consumes one unit of a tenant's budget.
type Limiter interface {
	Allow(ctx context.Context, tenantID string) (Decision, error)
}

type window struct {
	name  string
	short string
	span  time.Duration
	limit int
}

func (l Limits) windows() []window {
	var out []window
	for _, w := range []window{
		{"minute", "m", time.Minute, l.PerMinute},
		{"hour", "h", time.Hour, l.PerHour},
		{"day", "d", 24 * time.Hour, l.PerDay},
	} {
		if w.limit > 0 {
			out = append(out, w)
		}
	}
	return out
}

// None never limits.
type None struct{}

// Allow implements Limiter.
func (None) Allow(context.Context, string) (Decision, error) {
	return Decision{Allowed: true}, nil
}
