package audit

import (
	"sync"
	"time"
)

// MonotonicClock hands out strictly increasing UTC timestamps even if the
// wall clock steps backwards or two callers ask within the same nanosecond.
type MonotonicClock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewMonotonicClock wraps now; nil means time.Now.
func NewMonotonicClock(now func() time.Time) *MonotonicClock {
	if now == nil {
		now = time.Now
	}
	return &MonotonicClock{now: now}
}

// Next returns a timestamp strictly after every previous one.
func (c *MonotonicClock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Round(0)
	if !t.After(c.last) {
		t = c.last.Add(time.Nanosecond)
	}
	c.last = t
	return t
}
