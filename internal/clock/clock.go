// Package clock abstracts the current time so reservation and code
// expiry can be driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current time. Implementations return UTC truncated to
// microseconds, the precision PostgreSQL stores.
type Clock interface {
	Now() time.Time
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return normalize(time.Now()) }

// Fake returns a FakeClock frozen at initial. Time moves only through Set
// and Advance.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: normalize(initial)}
}

// FakeClock is safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = normalize(t)
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
