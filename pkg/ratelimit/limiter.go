// Package ratelimit implements sliding-window request rate limiting for the
// EPA gateway. The gateway enforces a hard ceiling on how many requests may
// start within any rolling one-second interval; exceeding it triggers 429
// responses and, eventually, key suspension.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for rate limiter operations.
var (
	admissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "epa_rate_limit_admissions_total",
		Help: "Total requests admitted by the rate limiter",
	}, []string{"backend"})

	waitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "epa_rate_limit_wait_seconds",
		Help:    "Time callers spent waiting for rate limiter admission",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
	}, []string{"backend"})
)

// Limiter gates request admission. Acquire blocks the calling goroutine until
// one more request may start without exceeding the configured rate, or until
// the context is cancelled.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// window is the trailing one-second interval the limiter reasons about.
const window = time.Second

// SlidingWindow admits at most maxPerSecond requests within any trailing
// one-second interval. It is safe for concurrent use by all fetch tasks; the
// lock is never held across a sleep, so a waiting caller does not block
// others from attempting admission.
type SlidingWindow struct {
	mu           sync.Mutex
	admissions   []time.Time // oldest first, all within the trailing window
	maxPerSecond int
}

// NewSlidingWindow creates a limiter admitting maxPerSecond requests per
// rolling second. Values below one are clamped to one.
func NewSlidingWindow(maxPerSecond int) *SlidingWindow {
	if maxPerSecond < 1 {
		maxPerSecond = 1
	}
	return &SlidingWindow{maxPerSecond: maxPerSecond}
}

// Acquire blocks until admitting one more request keeps the trailing window
// at or below the configured maximum, then records the admission. After a
// sleep the window is re-checked from scratch, so concurrent wakers cannot
// stampede past the cap.
func (sw *SlidingWindow) Acquire(ctx context.Context) error {
	start := time.Now()
	for {
		sw.mu.Lock()
		now := time.Now()
		sw.prune(now)

		if len(sw.admissions) < sw.maxPerSecond {
			sw.admissions = append(sw.admissions, now)
			sw.mu.Unlock()

			admissionsTotal.WithLabelValues("memory").Inc()
			if waited := now.Sub(start); waited > 0 {
				waitSeconds.WithLabelValues("memory").Observe(waited.Seconds())
			}
			return nil
		}

		// Window is full: the next slot opens when the oldest admission
		// ages out. Sleep without holding the lock.
		sleepFor := window - now.Sub(sw.admissions[0])
		sw.mu.Unlock()

		if sleepFor <= 0 {
			// Timing skew; the oldest entry is already expired. Re-check.
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleepFor):
		}
	}
}

// prune drops admissions older than the trailing window. Caller holds the lock.
func (sw *SlidingWindow) prune(now time.Time) {
	i := 0
	for i < len(sw.admissions) && now.Sub(sw.admissions[i]) > window {
		i++
	}
	if i > 0 {
		sw.admissions = append(sw.admissions[:0], sw.admissions[i:]...)
	}
}
