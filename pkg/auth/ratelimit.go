package auth

import (
	"context"
	"sync"
	"time"
)

// RateLimiter checks whether an authenticated subject may proceed.
type RateLimiter interface {
	Allow(ctx context.Context, subject string) error
}

// InProcessLimiter is a fixed-window rate limiter that tracks request
// counts per subject in memory.
type InProcessLimiter struct {
	rpm      int
	mu       sync.Mutex
	counters map[string]*counter
	now      func() time.Time
}

type counter struct {
	count    int
	windowAt time.Time
}

// NewInProcessLimiter creates a limiter allowing requestsPerMinute per
// subject. Zero or negative disables limiting.
func NewInProcessLimiter(requestsPerMinute int) *InProcessLimiter {
	return &InProcessLimiter{
		rpm:      requestsPerMinute,
		counters: make(map[string]*counter),
		now:      time.Now,
	}
}

// Allow checks if the request is within the rate limit.
func (l *InProcessLimiter) Allow(_ context.Context, subject string) error {
	if l.rpm <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.counters[subject]
	if !ok || now.Sub(c.windowAt) >= time.Minute {
		if !ok && len(l.counters) >= maxTrackedSubjects {
			l.sweep(now)
		}
		l.counters[subject] = &counter{count: 1, windowAt: now}
		return nil
	}

	c.count++
	if c.count > l.rpm {
		return ErrTooManyRequests
	}

	return nil
}

// maxTrackedSubjects bounds the counter map between sweeps.
const maxTrackedSubjects = 10000

// sweep drops expired windows. Must be called with the lock held.
func (l *InProcessLimiter) sweep(now time.Time) {
	for subject, c := range l.counters {
		if now.Sub(c.windowAt) >= time.Minute {
			delete(l.counters, subject)
		}
	}
}
