// Package testutil provides small helpers shared by tests.
package testutil

import "sync"

// MillisClock is a thread-safe steppable millisecond clock for tests.
// Passes that normally take time.Now().UnixMilli() can take successive
// readings from a MillisClock to make TTL and freshness arithmetic
// deterministic.
type MillisClock struct {
	mu  sync.Mutex
	now int64
}

// NewMillisClock creates a clock pinned at the given epoch milliseconds.
func NewMillisClock(startMs int64) *MillisClock {
	return &MillisClock{now: startMs}
}

// NowMs returns the current reading without advancing.
func (c *MillisClock) NowMs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward and returns the new reading. Negative
// deltas are ignored; the clock never goes backwards.
func (c *MillisClock) Advance(deltaMs int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if deltaMs > 0 {
		c.now += deltaMs
	}
	return c.now
}

// Set pins the clock to an absolute reading, but never backwards.
func (c *MillisClock) Set(nowMs int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if nowMs > c.now {
		c.now = nowMs
	}
	return c.now
}
