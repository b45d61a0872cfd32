package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStore keeps entries in a page_cache table. Both supported drivers
// (postgres via lib/pq, sqlite3 via go-sqlite3) accept $n placeholders and
// ON CONFLICT upserts.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore opens the database and creates the table if needed
func NewSQLStore(driver, dsn string) (*SQLStore, error) {
	switch driver {
	case "postgres", "sqlite3":
	default:
		return nil, fmt.Errorf("unsupported cache driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}

	store := &SQLStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLStore) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS page_cache (
		cache_key  TEXT PRIMARY KEY,
		payload    TEXT NOT NULL,
		fetched_at TIMESTAMP NOT NULL
	)`)
	return err
}

func (s *SQLStore) Get(ctx context.Context, key string) (*Entry, error) {
	entry := Entry{Key: key}
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, fetched_at FROM page_cache WHERE cache_key = $1`, key,
	).Scan(&entry.Payload, &entry.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	entry.FetchedAt = entry.FetchedAt.UTC()
	return &entry, nil
}

func (s *SQLStore) Put(ctx context.Context, entry *Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO page_cache (cache_key, payload, fetched_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (cache_key) DO UPDATE SET
			payload = excluded.payload,
			fetched_at = excluded.fetched_at`,
		entry.Key, entry.Payload, entry.FetchedAt.UTC().Truncate(time.Microsecond),
	)
	return err
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
