package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter spaces outgoing requests to a listing source: at most maxInFlight
// concurrent requests, and at least interval (± jitter) between request starts.
type Limiter struct {
	maxInFlight int
	inFlight    int
	interval    time.Duration
	jitter      float64 // fraction of interval, 0.2 means ±20%
	minWait     time.Duration
	lastRequest time.Time
	mutex       sync.Mutex

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	rand  func() float64
}

// NewLimiter creates a limiter. An interval of zero disables spacing.
func NewLimiter(maxInFlight int, interval time.Duration, jitter float64) *Limiter {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &Limiter{
		maxInFlight: maxInFlight,
		interval:    interval,
		jitter:      jitter,
		minWait:     100 * time.Millisecond,
		now:         time.Now,
		sleep:       sleepContext,
		rand:        rand.Float64,
	}
}

// Acquire waits until it's safe to make a request. Every successful Acquire
// must be paired with Release.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	for l.inFlight >= l.maxInFlight {
		l.mutex.Unlock()
		err := l.sleep(ctx, 100*time.Millisecond)
		l.mutex.Lock()
		if err != nil {
			return err
		}
	}

	if l.interval > 0 && !l.lastRequest.IsZero() {
		elapsed := l.now().Sub(l.lastRequest)
		if elapsed < l.interval {
			wait := l.interval - elapsed
			wait = time.Duration(float64(wait) * (1 + l.jitter*(2*l.rand()-1)))
			if wait < l.minWait {
				wait = l.minWait
			}
			if err := l.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}

	l.inFlight++
	l.lastRequest = l.now()
	return nil
}

// Release marks a request as completed
func (l *Limiter) Release() {
	l.mutex.Lock()
	if l.inFlight > 0 {
		l.inFlight--
	}
	l.mutex.Unlock()
}

// InFlight returns current in-flight request count
func (l *Limiter) InFlight() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.inFlight
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
