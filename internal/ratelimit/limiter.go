// Package ratelimit provides token-bucket admission control shared across
// all outbound requests on a transport.
package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket with a steady refill rate and a burst capacity.
// Tokens refill continuously based on elapsed wall-clock time, capped at the
// burst capacity. A single Limiter is shared by reference between all callers
// of one transport; separate transports (REST vs WS) use separate named
// buckets on the same Limiter or independent Limiter instances.
type Limiter struct {
	global  *rate.Limiter
	perSec  float64
	burst   int
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	metrics Metrics
}

// Metrics tracks admission statistics with atomic counters.
type Metrics struct {
	total   atomic.Int64
	allowed atomic.Int64
	denied  atomic.Int64
}

// New creates a Limiter admitting perSec requests per second steady-state
// with up to burst tokens available at once. A non-positive burst falls
// back to a capacity of one token.
func New(perSec float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		global:  rate.NewLimiter(rate.Limit(perSec), burst),
		perSec:  perSec,
		burst:   burst,
		buckets: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until a token is available or the context is cancelled.
// Every admission consumes exactly one token.
func (l *Limiter) Wait(ctx context.Context) error {
	l.metrics.total.Add(1)
	if err := l.global.Wait(ctx); err != nil {
		l.metrics.denied.Add(1)
		return err
	}
	l.metrics.allowed.Add(1)
	return nil
}

// WaitBucket blocks on the named bucket's limiter. Buckets are created on
// demand with the Limiter's default rate and burst, so independent quotas
// (for example "private" vs "public" REST calls) share one Limiter value.
func (l *Limiter) WaitBucket(ctx context.Context, bucket string) error {
	l.metrics.total.Add(1)
	if err := l.getBucket(bucket).Wait(ctx); err != nil {
		l.metrics.denied.Add(1)
		return err
	}
	l.metrics.allowed.Add(1)
	return nil
}

// Allow reports whether a token is immediately available, consuming it if so.
func (l *Limiter) Allow() bool {
	l.metrics.total.Add(1)
	ok := l.global.Allow()
	if ok {
		l.metrics.allowed.Add(1)
	} else {
		l.metrics.denied.Add(1)
	}
	return ok
}

// AllowBucket is the non-blocking form of WaitBucket.
func (l *Limiter) AllowBucket(bucket string) bool {
	l.metrics.total.Add(1)
	ok := l.getBucket(bucket).Allow()
	if ok {
		l.metrics.allowed.Add(1)
	} else {
		l.metrics.denied.Add(1)
	}
	return ok
}

// SetBucketLimit overrides the rate and burst for one named bucket.
func (l *Limiter) SetBucketLimit(bucket string, perSec float64, burst int) {
	lim := l.getBucket(bucket)
	lim.SetLimit(rate.Limit(perSec))
	lim.SetBurst(burst)
}

func (l *Limiter) getBucket(bucket string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.buckets[bucket]; ok {
		return lim
	}
	lim := rate.NewLimiter(rate.Limit(l.perSec), l.burst)
	l.buckets[bucket] = lim
	return lim
}

// Snapshot is a point-in-time capture of admission statistics.
type Snapshot struct {
	Total   int64
	Allowed int64
	Denied  int64
}

// Stats returns the current admission statistics.
func (l *Limiter) Stats() Snapshot {
	return Snapshot{
		Total:   l.metrics.total.Load(),
		Allowed: l.metrics.allowed.Load(),
		Denied:  l.metrics.denied.Load(),
	}
}
