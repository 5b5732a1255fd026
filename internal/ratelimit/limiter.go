// Package ratelimit implements fixed-window request limits per key. The API
// server keys it by client address.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"grimm.is/ruleaudit/internal/clock"
)

// Limiter manages rate limiting for multiple keys.
type Limiter struct {
	limit    int
	interval time.Duration
	clock    clock.Clock
	buckets  map[string]*bucket
	mu       sync.Mutex
}

// bucket refills to limit once interval has passed since the last refill.
type bucket struct {
	tokens   int
	lastFill time.Time
}

// NewLimiter allows limit requests per key in every interval. A nil clk
// uses the process clock.
func NewLimiter(limit int, interval time.Duration, clk clock.Clock) *Limiter {
	if clk == nil {
		clk = clock.Default()
	}
	return &Limiter{
		limit:    limit,
		interval: interval,
		clock:    clk,
		buckets:  make(map[string]*bucket),
	}
}

// Allow reports whether a request for key may proceed, and takes a token
// if so.
func (l *Limiter) Allow(key string) bool {
	return l.AllowN(key, 1)
}

// AllowN takes n tokens at once, or none.
func (l *Limiter) AllowN(key string, n int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.limit, lastFill: now}
		l.buckets[key] = b
	} else if now.Sub(b.lastFill) >= l.interval {
		b.tokens = l.limit
		b.lastFill = now
	}

	if b.tokens < n {
		return false
	}
	b.tokens -= n
	return true
}

// RetryAfter is how long key must wait for its next refill.
func (l *Limiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		return 0
	}
	return max(0, l.interval-l.clock.Now().Sub(b.lastFill))
}

// CleanupExpired removes buckets not refilled within maxAge.
func (l *Limiter) CleanupExpired(maxAge time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	for key, b := range l.buckets {
		if now.Sub(b.lastFill) > maxAge {
			delete(l.buckets, key)
		}
	}
}

// StartCleanup removes expired buckets every interval until ctx is done.
func (l *Limiter) StartCleanup(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.CleanupExpired(maxAge)
			}
		}
	}()
}
