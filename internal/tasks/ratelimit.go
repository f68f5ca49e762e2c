package tasks

import (
	"context"
	"sync"
	"time"
)

// Clock abstracts time for the rate limiter.
type Clock interface {
	Now() time.Time
	// Sleep pauses for d or until ctx is done, returning ctx.Err() in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RateLimiter enforces a minimum spacing between the start times of calls to one quota-constrained service.
//
// A single instance is shared by every worker. The check, the wait, and the stamp of the new baseline
// happen under one lock, so two callers can never compute overlapping wait windows.
type RateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	clock    Clock
}

// NewRateLimiter creates a limiter with the given minimum interval. A nil clock uses wall time.
func NewRateLimiter(interval time.Duration, clock Clock) *RateLimiter {
	if clock == nil {
		clock = realClock{}
	}
	return &RateLimiter{interval: interval, clock: clock}
}

// Acquire blocks until at least the interval has elapsed since the previous permitted call,
// stamps now as the new baseline, and returns the permitted start time.
//
// The only failure is cancellation of ctx while waiting; the baseline is then left untouched.
func (r *RateLimiter) Acquire(ctx context.Context) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}

	if !r.last.IsZero() {
		if wait := r.interval - r.clock.Now().Sub(r.last); wait > 0 {
			if err := r.clock.Sleep(ctx, wait); err != nil {
				return time.Time{}, err
			}
		}
	}

	r.last = r.clock.Now()
	return r.last, nil
}

// Interval returns the configured minimum spacing.
func (r *RateLimiter) Interval() time.Duration {
	return r.interval
}
