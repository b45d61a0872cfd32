package cache

import (
	"context"
	"time"
)

// Entry is a cached upstream payload
type Entry struct {
	Key       string    `json:"key"`
	Payload   string    `json:"data"`
	FetchedAt time.Time `json:"timestamp"`
}

// Store persists entries across process restarts. Get returns nil, nil for
// a missing key.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, entry *Entry) error
}
