package testutil

import (
	"sync"
	"time"
)

// WallClock is a deterministic wall-time source: a fixed start advanced by
// a fixed step on every call. Concepts that stamp records with the current
// time take its Now method in place of time.Now, so the stamps in a
// scenario's trace are reproducible.
//
// Thread-safety: Now and Advance are safe for concurrent use.
type WallClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewWallClock creates a clock at start, advancing by step per Now call.
func NewWallClock(start time.Time, step time.Duration) *WallClock {
	return &WallClock{now: start, step: step}
}

// Now returns the current time and advances the clock.
func (c *WallClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.now
	c.now = c.now.Add(c.step)
	return current
}

// Advance moves the clock forward by d without returning a reading.
// Used to push sessions past their expiration.
func (c *WallClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
