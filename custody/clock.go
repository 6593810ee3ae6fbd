package custody

import (
	"sync"
	"time"
)

// Clock supplies the current time to the state machine. The hosting
// environment guarantees a monotonically non-decreasing clock; the vault
// only ever compares and stores values it obtained from here.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// ManualClock is a Clock whose time only moves when told to. Intended for
// deterministic tests and simulations.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a ManualClock frozen at the given instant.
func NewManualClock(now time.Time) *ManualClock {
	return &ManualClock{now: now}
}

// Now returns the clock's current instant.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

// Advance moves the clock forward by d. Negative durations are ignored so
// the clock stays non-decreasing, matching the environment contract.
func (c *ManualClock) Advance(d time.Duration) {
	if d < 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// Set moves the clock to the given instant if it is not in the clock's past.
func (c *ManualClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Before(c.now) {
		return
	}

	c.now = now
}
