package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a fetched page is served without refetching
const DefaultTTL = 24 * time.Hour

// Fetcher retrieves a fresh payload for a key
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// PageCache serves upstream pages from a durable store and refetches them
// once they are older than the TTL. A failed refetch falls back to the
// stale entry when there is one.
type PageCache struct {
	store   Store
	fetcher Fetcher
	ttl     time.Duration
	now     func() time.Time
	logger  *logrus.Logger
	group   singleflight.Group

	hits        atomic.Int64
	misses      atomic.Int64
	staleServed atomic.Int64
	fetchErrors atomic.Int64
}

// Stats are the cache counters since process start
type Stats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	StaleServed int64   `json:"stale_served"`
	FetchErrors int64   `json:"fetch_errors"`
	HitRate     float64 `json:"hit_rate"`
	TTLSeconds  float64 `json:"ttl_seconds"`
}

// New creates a page cache. A non-positive ttl uses DefaultTTL.
func New(store Store, fetcher Fetcher, ttl time.Duration, logger *logrus.Logger) *PageCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &PageCache{
		store:   store,
		fetcher: fetcher,
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
	}
}

// GetOrFetch returns the payload for key, fetching it only when no fresh
// entry exists. Concurrent calls for one key share a single fetch.
func (c *PageCache) GetOrFetch(ctx context.Context, key string) (string, error) {
	log := c.logger.WithFields(logrus.Fields{"component": "cache", "key": key})

	entry, err := c.store.Get(ctx, key)
	if err != nil {
		// An unreadable entry is treated as missing
		log.WithError(err).Warn("cache entry unreadable")
		entry = nil
	}

	if entry != nil && c.now().Sub(entry.FetchedAt) < c.ttl {
		c.hits.Add(1)
		return entry.Payload, nil
	}
	c.misses.Add(1)

	// The shared fetch is detached from the leader's context; each caller
	// stops waiting on its own cancellation instead.
	ch := c.group.DoChan(key, func() (interface{}, error) {
		fetchCtx := context.WithoutCancel(ctx)
		payload, err := c.fetcher.Fetch(fetchCtx, key)
		if err != nil {
			return "", err
		}
		fresh := &Entry{Key: key, Payload: payload, FetchedAt: c.now().UTC()}
		if err := c.store.Put(fetchCtx, fresh); err != nil {
			log.WithError(err).Warn("failed to persist cache entry")
		}
		return payload, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	v, err := res.Val, res.Err
	if err != nil {
		c.fetchErrors.Add(1)
		if entry != nil {
			c.staleServed.Add(1)
			log.WithError(err).WithField("age", c.now().Sub(entry.FetchedAt).Round(time.Second)).
				Warn("fetch failed, serving stale entry")
			return entry.Payload, nil
		}
		return "", err
	}
	return v.(string), nil
}

// Stats returns a snapshot of the counters
func (c *PageCache) Stats() Stats {
	s := Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		StaleServed: c.staleServed.Load(),
		FetchErrors: c.fetchErrors.Load(),
		TTLSeconds:  c.ttl.Seconds(),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}
