// Package ratelimit provides a keyed token-bucket limiter used to gate
// outbound exchange calls shared by concurrently executing accounts.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Rate describes one bucket: burst capacity and steady refill speed.
type Rate struct {
	// Capacity maximum burst, at least 1.
	Capacity float64
	// PerSec tokens restored per second.
	PerSec float64
}

type bucket struct {
	tokens     float64
	capacity   float64
	refillRate float64
	last       time.Time
}

// Limiter keyed token-bucket limiter. Keys are created lazily with the
// default rate unless a specific rate was registered via SetRate.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	rates    map[string]Rate
	defaults Rate

	// now is swappable in tests.
	now func() time.Time
}

// New creates a limiter with the given default rate for unknown keys.
func New(defaults Rate) *Limiter {
	if defaults.Capacity < 1 {
		defaults.Capacity = 1
	}
	if defaults.PerSec <= 0 {
		defaults.PerSec = 1
	}
	return &Limiter{
		buckets:  make(map[string]*bucket),
		rates:    make(map[string]Rate),
		defaults: defaults,
		now:      time.Now,
	}
}

// SetRate registers a dedicated rate for key. Existing bucket state for the
// key is discarded.
func (l *Limiter) SetRate(key string, r Rate) {
	if r.Capacity < 1 {
		r.Capacity = 1
	}
	if r.PerSec <= 0 {
		r.PerSec = l.defaults.PerSec
	}

	l.mu.Lock()
	l.rates[key] = r
	delete(l.buckets, key)
	l.mu.Unlock()
}

// Allow consumes one token for key if available, without blocking.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.refillLocked(key)
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Wait blocks until one token is available for key or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	for {
		l.mu.Lock()
		b := l.refillLocked(key)
		if b.tokens >= 1 {
			b.tokens--
			l.mu.Unlock()
			return nil
		}

		// time until one full token accrues
		wait := time.Duration((1 - b.tokens) / b.refillRate * float64(time.Second))
		l.mu.Unlock()

		if wait < time.Millisecond {
			wait = time.Millisecond
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrap(ctx.Err(), "rate limiter wait interrupted")
		case <-timer.C:
		}
	}
}

func (l *Limiter) refillLocked(key string) *bucket {
	now := l.now()

	b, ok := l.buckets[key]
	if !ok {
		rate, found := l.rates[key]
		if !found {
			rate = l.defaults
		}
		b = &bucket{tokens: rate.Capacity, capacity: rate.Capacity, refillRate: rate.PerSec, last: now}
		l.buckets[key] = b
		return b
	}

	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.refillRate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}

	return b
}
