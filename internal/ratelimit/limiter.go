// Package ratelimit implements the per-user throttle on withdraw request
// creation.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"ln-gateway/pkg/logger"

	"go.uber.org/zap"
)

const sweepEvery = 3 * time.Minute

// Limiter tracks the last request time per key and limits each key to one
// request per interval. Register refreshes the timestamp on every call, so a
// client hammering the endpoint keeps itself limited until it backs off for a
// full interval.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	grace    time.Duration
	seen     map[string]time.Time
	now      func() time.Time // injectable for tests
}

// NewLimiter creates a limiter allowing one request per interval and key.
// Idle entries are evicted by Sweep once they are older than interval+grace.
func NewLimiter(interval, grace time.Duration) *Limiter {
	return &Limiter{
		interval: interval,
		grace:    grace,
		seen:     make(map[string]time.Time),
		now:      time.Now,
	}
}

// Register records a request for the key and reports whether it is limited.
// The timestamp is refreshed even when the request is rejected.
func (l *Limiter) Register(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	last, ok := l.seen[key]
	l.seen[key] = now

	return ok && now.Sub(last) < l.interval
}

// Sweep evicts idle entries periodically until ctx is cancelled. Run it in
// its own goroutine; without it the map grows with every distinct key.
func (l *Limiter) Sweep(ctx context.Context) {
	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted := l.sweepOnce()
			if evicted > 0 {
				logger.Debug("Rate limiter swept idle entries", zap.Int("evicted", evicted))
			}
		}
	}
}

func (l *Limiter) sweepOnce() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-(l.interval + l.grace))
	evicted := 0
	for key, last := range l.seen {
		if last.Before(cutoff) {
			delete(l.seen, key)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}
