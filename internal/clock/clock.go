// Package clock provides a mockable time source. Run history timestamps and
// request timing go through Default so tests can pin time with a MockClock.
package clock

import (
	"sync"
	"time"
)

// Clock is the interface for time operations.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// RealClock provides the actual system time.
type RealClock struct{}

// Now returns the current system time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// Since returns the time elapsed since t.
func (RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// MockClock is a test clock with controllable time.
type MockClock struct {
	mu      sync.RWMutex
	current time.Time
}

// NewMockClock creates a mock clock set to the given time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{current: t}
}

// Now returns the mock time.
func (c *MockClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Since returns the duration since t.
func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Set sets the mock time.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}

// Advance advances the mock time by d.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

var (
	defaultMu sync.RWMutex
	current   Clock = RealClock{}
)

// Default returns the process-wide clock.
func Default() Clock {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return current
}

// SetDefault replaces the process-wide clock and returns a function that
// restores the previous one.
func SetDefault(c Clock) (restore func()) {
	defaultMu.Lock()
	prev := current
	current = c
	defaultMu.Unlock()
	return func() { SetDefault(prev) }
}

// Now returns Default().Now().
func Now() time.Time {
	return Default().Now()
}

// Since returns Default().Since(t).
func Since(t time.Time) time.Duration {
	return Default().Since(t)
}
