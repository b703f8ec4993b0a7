// Package local holds in-process stand-ins for the Redis-backed caches, used
// when a single ledgerd instance runs without Redis.
package local

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/ledgerd/internal/domain"
)

// RateLimiter implements domain.RateLimiter with one token bucket per key.
// A bucket refills limit tokens per window and bursts up to limit.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	now      func() time.Time
	idleTTL  time.Duration
}

type visitor struct {
	limiter  *rate.Limiter
	limit    int
	window   time.Duration
	lastSeen time.Time
}

// NewRateLimiter creates a RateLimiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		now:      time.Now,
		idleTTL:  3 * time.Minute,
	}
}

func (rl *RateLimiter) limiterFor(key string, limit int, window time.Duration) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{
			limiter: rate.NewLimiter(every(limit, window), limit),
			limit:   limit,
			window:  window,
		}
		rl.visitors[key] = v
	} else if v.limit != limit || v.window != window {
		v.limiter.SetLimitAt(now, every(limit, window))
		v.limiter.SetBurstAt(now, limit)
		v.limit, v.window = limit, window
	}
	v.lastSeen = now
	return v.limiter
}

func every(limit int, window time.Duration) rate.Limit {
	if limit <= 0 {
		return 0
	}
	return rate.Every(window / time.Duration(limit))
}

// Allow reports whether a request for key fits in limit requests per window.
func (rl *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	return rl.limiterFor(key, limit, window).AllowN(rl.now(), 1), nil
}

// Cleanup drops buckets idle for longer than the idle TTL.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.idleTTL {
			delete(rl.visitors, key)
		}
	}
}

// Run calls Cleanup every minute until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rl.Cleanup()
		}
	}
}

func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
