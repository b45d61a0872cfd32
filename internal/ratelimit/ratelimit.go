package ratelimit

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window limiter for inbound API calls
type RateLimiter struct {
	requestsPerMinute int
	requestsPerHour   int
	requestsPerDay    int
	enabled           bool
	now               func() time.Time

	// Request tracking
	minuteWindow []time.Time
	hourWindow   []time.Time
	dayWindow    []time.Time
	mu           sync.Mutex
}

// NewRateLimiter creates a new rate limiter with the given limits. A
// non-positive limit is not enforced.
func NewRateLimiter(requestsPerMinute, requestsPerHour, requestsPerDay int, enabled bool) *RateLimiter {
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		requestsPerHour:   requestsPerHour,
		requestsPerDay:    requestsPerDay,
		enabled:           enabled,
		now:               time.Now,
	}
}

// AllowRequest records the request and reports whether it fits all windows
func (rl *RateLimiter) AllowRequest() bool {
	if !rl.enabled {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.cleanup(now)

	if exceeded(rl.minuteWindow, rl.requestsPerMinute) ||
		exceeded(rl.hourWindow, rl.requestsPerHour) ||
		exceeded(rl.dayWindow, rl.requestsPerDay) {
		return false
	}

	rl.minuteWindow = append(rl.minuteWindow, now)
	rl.hourWindow = append(rl.hourWindow, now)
	rl.dayWindow = append(rl.dayWindow, now)
	return true
}

func exceeded(window []time.Time, limit int) bool {
	return limit > 0 && len(window) >= limit
}

// cleanup removes expired entries from the time windows
func (rl *RateLimiter) cleanup(now time.Time) {
	rl.minuteWindow = filterTimes(rl.minuteWindow, now.Add(-time.Minute))
	rl.hourWindow = filterTimes(rl.hourWindow, now.Add(-time.Hour))
	rl.dayWindow = filterTimes(rl.dayWindow, now.Add(-24*time.Hour))
}

// filterTimes keeps only times after the cutoff
func filterTimes(times []time.Time, cutoff time.Time) []time.Time {
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

// GetStats returns current rate limiter statistics
func (rl *RateLimiter) GetStats() Stats {
	if !rl.enabled {
		return Stats{Enabled: false}
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.cleanup(rl.now())

	return Stats{
		Enabled:             true,
		RequestsLastMinute:  len(rl.minuteWindow),
		RequestsLastHour:    len(rl.hourWindow),
		RequestsLastDay:     len(rl.dayWindow),
		LimitPerMinute:      rl.requestsPerMinute,
		LimitPerHour:        rl.requestsPerHour,
		LimitPerDay:         rl.requestsPerDay,
		RemainingThisMinute: remaining(rl.requestsPerMinute, len(rl.minuteWindow)),
		RemainingThisHour:   remaining(rl.requestsPerHour, len(rl.hourWindow)),
		RemainingThisDay:    remaining(rl.requestsPerDay, len(rl.dayWindow)),
	}
}

func remaining(limit, used int) int {
	if limit <= 0 {
		return -1
	}
	return max(0, limit-used)
}

// Stats contains rate limiter statistics. Remaining is -1 for windows
// without a limit.
type Stats struct {
	Enabled             bool `json:"enabled"`
	RequestsLastMinute  int  `json:"requests_last_minute"`
	RequestsLastHour    int  `json:"requests_last_hour"`
	RequestsLastDay     int  `json:"requests_last_day"`
	LimitPerMinute      int  `json:"limit_per_minute"`
	LimitPerHour        int  `json:"limit_per_hour"`
	LimitPerDay         int  `json:"limit_per_day"`
	RemainingThisMinute int  `json:"remaining_this_minute"`
	RemainingThisHour   int  `json:"remaining_this_hour"`
	RemainingThisDay    int  `json:"remaining_this_day"`
}

// Reset clears all tracked requests
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.minuteWindow = nil
	rl.hourWindow = nil
	rl.dayWindow = nil
}
