// Package ratelimit throttles delivery throughput per endpoint with token
// buckets, so one endpoint's backlog cannot monopolize the worker pool.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter implements token bucket rate limiting keyed by endpoint ID.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
	perSecond  float64
}

// New creates a new rate limiter.
func New() *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
	}
}

// Allow checks whether a delivery to the endpoint may proceed now.
// A perSecond limit of 0 means unlimited (always returns true).
func (l *Limiter) Allow(endpointID string, perSecond int) bool {
	if perSecond <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[endpointID]
	if !ok {
		b = &bucket{
			tokens:     float64(perSecond), // start full
			lastRefill: time.Now(),
			perSecond:  float64(perSecond),
		}
		l.buckets[endpointID] = b
	}
	b.refill()

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Wait blocks until the rate limit allows the delivery or the context is
// cancelled. A perSecond limit of 0 means unlimited (returns immediately).
func (l *Limiter) Wait(ctx context.Context, endpointID string, perSecond int) error {
	if perSecond <= 0 {
		return nil
	}

	for {
		if l.Allow(endpointID, perSecond) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second / time.Duration(perSecond)):
			// Roughly one token's worth of wait, then try again.
		}
	}
}

// Reset clears the rate limit state for an endpoint.
func (l *Limiter) Reset(endpointID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, endpointID)
}

// refill adds tokens accrued since the last refill, capped at one second's
// worth of burst.
func (b *bucket) refill() {
	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * b.perSecond
	if b.tokens > b.perSecond {
		b.tokens = b.perSecond
	}
	b.lastRefill = now
}
