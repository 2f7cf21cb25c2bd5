package ratelimit

import (
	"sync"
	"time"
)

// RateLimiter enforces per-minute, per-hour and per-day request budgets
// over sliding windows. A limit of zero leaves that window unbounded.
type RateLimiter struct {
	enabled bool
	windows []*window
	now     func() time.Time
	mu      sync.Mutex
}

type window struct {
	span  time.Duration
	limit int
	hits  []time.Time
}

// prune drops hits older than the window span
func (w *window) prune(now time.Time) {
	cutoff := now.Add(-w.span)
	kept := w.hits[:0]
	for _, t := range w.hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.hits = kept
}

func (w *window) full() bool {
	return w.limit > 0 && len(w.hits) >= w.limit
}

func (w *window) remaining() int {
	if w.limit <= 0 {
		return -1
	}
	if r := w.limit - len(w.hits); r > 0 {
		return r
	}
	return 0
}

// NewRateLimiter creates a new rate limiter with the given limits
func NewRateLimiter(requestsPerMinute, requestsPerHour, requestsPerDay int, enabled bool) *RateLimiter {
	return &RateLimiter{
		enabled: enabled,
		windows: []*window{
			{span: time.Minute, limit: requestsPerMinute},
			{span: time.Hour, limit: requestsPerHour},
			{span: 24 * time.Hour, limit: requestsPerDay},
		},
		now: time.Now,
	}
}

// AllowRequest records a request if every window has room.
// Returns false without recording anything when any budget is spent.
func (rl *RateLimiter) AllowRequest() bool {
	if !rl.enabled {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for _, w := range rl.windows {
		w.prune(now)
		if w.full() {
			return false
		}
	}
	for _, w := range rl.windows {
		w.hits = append(w.hits, now)
	}
	return true
}

// Stats contains rate limiter statistics. Remaining is -1 for unbounded windows.
type Stats struct {
	Enabled             bool `json:"enabled"`
	RequestsLastMinute  int  `json:"requests_last_minute"`
	RequestsLastHour    int  `json:"requests_last_hour"`
	RequestsLastDay     int  `json:"requests_last_day"`
	RemainingThisMinute int  `json:"remaining_this_minute"`
	RemainingThisHour   int  `json:"remaining_this_hour"`
	RemainingThisDay    int  `json:"remaining_this_day"`
}

// GetStats returns current rate limiter statistics
func (rl *RateLimiter) GetStats() Stats {
	if !rl.enabled {
		return Stats{Enabled: false}
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for _, w := range rl.windows {
		w.prune(now)
	}
	minute, hour, day := rl.windows[0], rl.windows[1], rl.windows[2]
	return Stats{
		Enabled:             true,
		RequestsLastMinute:  len(minute.hits),
		RequestsLastHour:    len(hour.hits),
		RequestsLastDay:     len(day.hits),
		RemainingThisMinute: minute.remaining(),
		RemainingThisHour:   hour.remaining(),
		RemainingThisDay:    day.remaining(),
	}
}

// Reset clears all tracked requests
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for _, w := range rl.windows {
		w.hits = nil
	}
}
