package tasks

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"
	"time"
)

func TestRateLimiter(t *testing.T) {
	t.Run("first call is immediate", func(t *testing.T) {
		clock := newFakeClock()
		start := clock.Now()
		limiter := NewRateLimiter(time.Second, clock)

		got, err := limiter.Acquire(context.Background())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !got.Equal(start) {
			t.Errorf("expected first call at %v, got %v", start, got)
		}
	})

	t.Run("concurrent callers are spaced by the interval", func(t *testing.T) {
		for trial := range 25 {
			interval := time.Duration(1+rand.IntN(2000)) * time.Millisecond
			callers := 2 + rand.IntN(30)
			clock := newFakeClock()
			limiter := NewRateLimiter(interval, clock)

			var mu sync.Mutex
			var starts []time.Time
			var wg sync.WaitGroup
			for range callers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					clock.Advance(time.Duration(rand.IntN(int(interval))))
					got, err := limiter.Acquire(context.Background())
					if err != nil {
						t.Errorf("unexpected error: %v", err)
						return
					}
					mu.Lock()
					starts = append(starts, got)
					mu.Unlock()
				}()
			}
			wg.Wait()

			if len(starts) != callers {
				t.Fatalf("trial %d: expected %d permits, got %d", trial, callers, len(starts))
			}
			slices.SortFunc(starts, func(a, b time.Time) int { return a.Compare(b) })
			for i := 1; i < len(starts); i++ {
				if gap := starts[i].Sub(starts[i-1]); gap < interval {
					t.Fatalf("trial %d: gap %v between permits %d and %d is below %v", trial, gap, i-1, i, interval)
				}
			}
		}
	})

	t.Run("wall clock spacing", func(t *testing.T) {
		interval := 20 * time.Millisecond
		limiter := NewRateLimiter(interval, nil)
		var last time.Time
		for i := range 3 {
			got, err := limiter.Acquire(context.Background())
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if i > 0 && got.Sub(last) < interval {
				t.Errorf("expected at least %v between calls, got %v", interval, got.Sub(last))
			}
			last = got
		}
	})

	t.Run("cancellation while waiting", func(t *testing.T) {
		limiter := NewRateLimiter(time.Hour, nil)
		if _, err := limiter.Acquire(context.Background()); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		if _, err := limiter.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})

	t.Run("cancelled context never acquires", func(t *testing.T) {
		limiter := NewRateLimiter(time.Millisecond, newFakeClock())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := limiter.Acquire(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context canceled, got %v", err)
		}
	})
}
