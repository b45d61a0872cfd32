package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter enforces a minimum delay between requests to the same host
type HostLimiter struct {
	interval time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	stats    map[string]*HostStats
}

// HostStats describes the pacing applied to one host
type HostStats struct {
	Requests    int           `json:"requests"`
	TotalWaited time.Duration `json:"total_waited_ns"`
	LastRequest time.Time     `json:"last_request"`
}

// NewHostLimiter creates a limiter allowing one request per interval and
// host. A non-positive interval disables pacing.
func NewHostLimiter(interval time.Duration) *HostLimiter {
	return &HostLimiter{
		interval: interval,
		limiters: make(map[string]*rate.Limiter),
		stats:    make(map[string]*HostStats),
	}
}

func (h *HostLimiter) limiterFor(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()

	l, ok := h.limiters[host]
	if !ok {
		limit := rate.Inf
		if h.interval > 0 {
			limit = rate.Every(h.interval)
		}
		l = rate.NewLimiter(limit, 1)
		h.limiters[host] = l
		h.stats[host] = &HostStats{}
	}
	return l
}

// Wait blocks until a request to host is allowed or ctx is done
func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	start := time.Now()
	if err := h.limiterFor(host).Wait(ctx); err != nil {
		return err
	}

	h.mu.Lock()
	s := h.stats[host]
	s.Requests++
	s.TotalWaited += time.Since(start)
	s.LastRequest = time.Now()
	h.mu.Unlock()
	return nil
}

// Stats returns a copy of the per-host counters
func (h *HostLimiter) Stats() map[string]HostStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]HostStats, len(h.stats))
	for host, s := range h.stats {
		out[host] = *s
	}
	return out
}

// Interval returns the configured minimum delay
func (h *HostLimiter) Interval() time.Duration {
	return h.interval
}
