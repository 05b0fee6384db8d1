package flickr

import (
	"context"
	"sync"
	"time"
)

// DefaultRequestsPerHour is the per-key quota of the public API
const DefaultRequestsPerHour = 3600

// defaultBurst lets a page load and a few appends through without waiting
const defaultBurst = 10

// limiter is a token bucket refilled continuously at the hourly quota.
// Background polls and foreground loads share one key, so they share one
// bucket.
type limiter struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	perSecond  float64
	lastRefill time.Time
	now        func() time.Time
}

func newLimiter(requestsPerHour, burst int) *limiter {
	if requestsPerHour <= 0 {
		requestsPerHour = DefaultRequestsPerHour
	}
	if burst <= 0 {
		burst = defaultBurst
	}
	return &limiter{
		tokens:     float64(burst),
		capacity:   float64(burst),
		perSecond:  float64(requestsPerHour) / 3600,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// reserve takes a token if one is available, otherwise it reports how long
// until one will be
func (l *limiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.tokens += now.Sub(l.lastRefill).Seconds() * l.perSecond
	if l.tokens > l.capacity {
		l.tokens = l.capacity
	}
	l.lastRefill = now

	if l.tokens >= 1 {
		l.tokens--
		return 0
	}
	return time.Duration((1 - l.tokens) / l.perSecond * float64(time.Second))
}

// Wait blocks until a request may be sent or ctx is done
func (l *limiter) Wait(ctx context.Context) error {
	for {
		wait := l.reserve()
		if wait == 0 {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
