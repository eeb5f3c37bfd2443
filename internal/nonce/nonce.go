// Package nonce provides a monotonic nonce source for signed API requests.
package nonce

import (
	"sync/atomic"
	"time"
)

// Counter generates strictly increasing nonces for one credential set.
// Values are seeded from the current time in microseconds so that a
// restarted process never reissues a nonce the exchange has already seen.
// Counter is safe for concurrent use.
type Counter struct {
	last atomic.Int64
}

// New creates a Counter seeded at the current time in microseconds.
func New() *Counter {
	c := &Counter{}
	c.last.Store(time.Now().UnixMicro())
	return c
}

// Next returns the next nonce. Each returned value is strictly greater
// than every value returned before it, even under concurrent callers.
// The value tracks wall-clock microseconds when possible and falls back
// to a plain increment when calls arrive faster than the clock ticks.
func (c *Counter) Next() int64 {
	for {
		prev := c.last.Load()
		next := time.Now().UnixMicro()
		if next <= prev {
			next = prev + 1
		}
		if c.last.CompareAndSwap(prev, next) {
			return next
		}
	}
}
