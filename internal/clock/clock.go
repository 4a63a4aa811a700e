// Package clock abstracts the current time so that date-sensitive code
// never reads time.Now directly.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current instant.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

// Real returns a Clock backed by time.Now.
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

// FixedClock is a Clock for tests. It only moves when Set or Advance is called.
type FixedClock struct {
	mu      sync.Mutex
	current time.Time
}

// Fixed returns a FixedClock frozen at t.
func Fixed(t time.Time) *FixedClock {
	return &FixedClock{current: t}
}

// Now returns the frozen instant.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	c.mu.Unlock()
}

// Today returns the calendar date of c.Now() as observed in loc, expressed
// as midnight UTC. A nil loc means UTC.
func Today(c Clock, loc *time.Location) time.Time {
	now := c.Now()
	if loc != nil {
		now = now.In(loc)
	}
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
