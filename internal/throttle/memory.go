package throttle

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/textgate/textgate/internal/clock"
	"github.com/textgate/textgate/internal/metrics"
)

type bucket struct {
	key       string
	remaining int
	resetAt   time.Time
}

// Memory is a process-local Limiter. Buckets are kept in least recently
// used order; once MaxKeys is reached the least recently seen key is
// evicted to admit a new one.
type Memory struct {
	cfg   Config
	clock clock.Clock

	mu      sync.Mutex
	buckets map[string]*list.Element
	order   *list.List
}

func NewMemory(cfg Config, clk clock.Clock) *Memory {
	if clk == nil {
		clk = clock.System()
	}
	return &Memory{
		cfg:     cfg,
		clock:   clk,
		buckets: make(map[string]*list.Element),
		order:   list.New(),
	}
}

func (m *Memory) Consume(_ context.Context, key string) (Decision, error) {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	var b *bucket
	if el, ok := m.buckets[key]; ok {
		b = el.Value.(*bucket)
		m.order.MoveToFront(el)
		if !now.Before(b.resetAt) {
			b.remaining = m.cfg.Points
			b.resetAt = now.Add(m.cfg.Window)
		}
	} else {
		if m.cfg.MaxKeys > 0 && len(m.buckets) >= m.cfg.MaxKeys {
			m.evictOldest()
		}
		b = &bucket{key: key, remaining: m.cfg.Points, resetAt: now.Add(m.cfg.Window)}
		m.buckets[key] = m.order.PushFront(b)
		metrics.ThrottleTrackedKeys.Set(float64(len(m.buckets)))
	}

	d := Decision{Limit: m.cfg.Points, ResetAt: b.resetAt, DecidedAt: now}
	if b.remaining > 0 {
		b.remaining--
		d.Allowed = true
	}
	d.Remaining = b.remaining
	return d, nil
}

func (m *Memory) evictOldest() {
	el := m.order.Back()
	if el == nil {
		return
	}
	m.order.Remove(el)
	delete(m.buckets, el.Value.(*bucket).key)
}

// Sweep drops every bucket whose window has ended. Such a key would start
// from a full bucket anyway, so dropping it changes no decision.
func (m *Memory) Sweep() int {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, el := range m.buckets {
		if !now.Before(el.Value.(*bucket).resetAt) {
			m.order.Remove(el)
			delete(m.buckets, key)
			removed++
		}
	}
	metrics.ThrottleTrackedKeys.Set(float64(len(m.buckets)))
	return removed
}

// Run sweeps expired buckets once per window until ctx is done.
func (m *Memory) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Sweep()
		}
	}
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}
