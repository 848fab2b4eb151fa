package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/textgate/textgate/internal/clock"
)

const redisKeyPrefix = "throttle:"

// Redis is a Limiter shared by every instance pointing at the same server.
// The window is a counter whose TTL is set by the first request.
type Redis struct {
	rdb   redis.Cmdable
	cfg   Config
	clock clock.Clock
}

func NewRedis(rdb redis.Cmdable, cfg Config, clk clock.Clock) *Redis {
	if clk == nil {
		clk = clock.System()
	}
	return &Redis{rdb: rdb, cfg: cfg, clock: clk}
}

func (l *Redis) Consume(ctx context.Context, key string) (Decision, error) {
	key = redisKeyPrefix + key
	now := l.clock.Now()

	pipe := l.rdb.Pipeline()
	incr := pipe.Incr(ctx, key)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("throttle pipeline (incr+ttl): %w", err)
	}

	remainingTTL := ttl.Val()
	// A negative TTL means the key was just created, or an earlier expire
	// was lost; either way this request opens the window.
	if remainingTTL < 0 {
		if err := l.rdb.PExpire(ctx, key, l.cfg.Window).Err(); err != nil {
			return Decision{}, fmt.Errorf("throttle expire: %w", err)
		}
		remainingTTL = l.cfg.Window
	}

	count := int(incr.Val())
	return Decision{
		Allowed:   count <= l.cfg.Points,
		Limit:     l.cfg.Points,
		Remaining: max(l.cfg.Points-count, 0),
		ResetAt:   now.Add(remainingTTL).Truncate(time.Millisecond),
		DecidedAt: now,
	}, nil
}
