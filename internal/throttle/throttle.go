// Package throttle is the per-address request budget applied to every route
// before identity is known. Each key gets Points requests per fixed window
// that opens on its first request and refills in full when it ends.
package throttle

import (
	"context"
	"time"
)

// Limiter implementations must be safe for concurrent use.
type Limiter interface {
	Consume(ctx context.Context, key string) (Decision, error)
}

// Decision carries the state needed for rate limit response headers.
// DecidedAt is the limiter clock reading the decision was made at.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	DecidedAt time.Time
}

// RetryAfter is the wait until the window resets, rounded up to whole
// seconds and never less than one.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return time.Second
	}
	return (wait + time.Second - 1).Truncate(time.Second)
}

type Config struct {
	Points  int
	Window  time.Duration
	MaxKeys int
}
