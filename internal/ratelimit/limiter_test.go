package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"grimm.is/ruleaudit/internal/clock"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func tracked(l *Limiter) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func TestLimiter_Allow_Basic(t *testing.T) {
	l := NewLimiter(3, time.Minute, clock.NewMockClock(epoch))

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("client"), "request %d", i+1)
	}
	assert.False(t, l.Allow("client"), "4th request is over the limit")
}

func TestLimiter_Allow_DifferentKeys(t *testing.T) {
	l := NewLimiter(2, time.Minute, clock.NewMockClock(epoch))

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "keys have independent limits")
	assert.Equal(t, 2, tracked(l))
}

func TestLimiter_Refill(t *testing.T) {
	clk := clock.NewMockClock(epoch)
	l := NewLimiter(1, time.Minute, clk)

	assert.True(t, l.Allow("client"))
	assert.False(t, l.Allow("client"))
	clk.Advance(20 * time.Second)
	assert.Equal(t, 40*time.Second, l.RetryAfter("client"))
	assert.False(t, l.Allow("client"))

	clk.Advance(40 * time.Second)
	assert.Zero(t, l.RetryAfter("client"))
	assert.True(t, l.Allow("client"))
	assert.Zero(t, l.RetryAfter("unknown"))
}

func TestLimiter_AllowN(t *testing.T) {
	l := NewLimiter(5, time.Minute, clock.NewMockClock(epoch))

	assert.True(t, l.AllowN("client", 3))
	assert.False(t, l.AllowN("client", 3), "all or nothing")
	assert.True(t, l.AllowN("client", 2))
	assert.False(t, l.Allow("client"))
}

func TestLimiter_CleanupExpired(t *testing.T) {
	clk := clock.NewMockClock(epoch)
	l := NewLimiter(1, time.Minute, clk)
	l.Allow("old")
	clk.Advance(2 * time.Hour)
	l.Allow("new")

	l.CleanupExpired(time.Hour)
	assert.Equal(t, 1, tracked(l))
	assert.True(t, l.Allow("old"), "expired key starts over")
}

func TestLimiter_StartCleanupStops(t *testing.T) {
	l := NewLimiter(1, time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())
	l.StartCleanup(ctx, time.Millisecond, 0)
	l.Allow("client")

	assert.Eventually(t, func() bool { return tracked(l) == 0 }, time.Second, 5*time.Millisecond)
	cancel()
}
