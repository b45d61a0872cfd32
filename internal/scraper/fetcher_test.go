package scraper

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"skimeister/internal/logging"
	"skimeister/internal/ratelimit"
)

func testFetcherConfig() FetcherConfig {
	return FetcherConfig{
		UserAgents:    []string{"ua-0", "ua-1", "ua-2"},
		Timeout:       2 * time.Second,
		MaxRetries:    3,
		RetryDelay:    time.Millisecond,
		MaxRetryDelay: 20 * time.Millisecond,
	}
}

func newTestFetcher(cfg FetcherConfig, breaker *CircuitBreaker) *HTTPFetcher {
	return NewHTTPFetcher(cfg, ratelimit.NewHostLimiter(0), breaker, logging.Discard())
}

func TestFetchRotatesUserAgents(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("User-Agent"))
		mu.Unlock()
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	f := newTestFetcher(testFetcherConfig(), nil)
	for i := 0; i < 4; i++ {
		body, err := f.Fetch(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if body != "ok" {
			t.Fatalf("expected body ok, got %q", body)
		}
	}

	want := []string{"ua-0", "ua-1", "ua-2", "ua-0"}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("request %d: expected %s, got %s", i, want[i], seen[i])
		}
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer server.Close()

	body, err := newTestFetcher(testFetcherConfig(), nil).Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body != "recovered" || calls.Load() != 3 {
		t.Fatalf("expected success on third attempt, got %q after %d calls", body, calls.Load())
	}
}

func TestFetchExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestFetcher(testFetcherConfig(), nil).Fetch(context.Background(), server.URL)
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fetchErr.Attempts != 3 || fetchErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 3 attempts ending in 500, got %+v", fetchErr)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestFetcher(testFetcherConfig(), nil).Fetch(context.Background(), server.URL)
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fetchErr.StatusCode != http.StatusNotFound || fetchErr.Attempts != 1 || calls.Load() != 1 {
		t.Fatalf("expected a single 404 attempt, got %+v after %d calls", fetchErr, calls.Load())
	}
}

func TestFetchRetriesTooManyRequestsWithCappedRetryAfter(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "120")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	f := newTestFetcher(testFetcherConfig(), nil)
	var waited []time.Duration
	f.sleep = func(ctx context.Context, d time.Duration) error {
		waited = append(waited, d)
		return nil
	}

	if _, err := f.Fetch(context.Background(), server.URL); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(waited) != 1 || waited[0] != 20*time.Millisecond {
		t.Fatalf("expected one wait capped at 20ms, got %v", waited)
	}
}

func TestFetchBackoffGrowsExponentially(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := testFetcherConfig()
	cfg.MaxRetries = 4
	cfg.RetryDelay = 10 * time.Millisecond
	cfg.MaxRetryDelay = 30 * time.Millisecond
	f := newTestFetcher(cfg, nil)
	var waited []time.Duration
	f.sleep = func(ctx context.Context, d time.Duration) error {
		waited = append(waited, d)
		return nil
	}

	_, _ = f.Fetch(context.Background(), server.URL)
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond}
	if len(waited) != len(want) {
		t.Fatalf("expected %d waits, got %v", len(want), waited)
	}
	for i := range want {
		if waited[i] != want[i] {
			t.Fatalf("wait %d: expected %v, got %v", i, want[i], waited[i])
		}
	}
}

func TestFetchRetriesConnectionErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestFetcher(testFetcherConfig(), nil).Fetch(context.Background(), url)
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fetchErr.Attempts != 3 || fetchErr.StatusCode != 0 || fetchErr.Err == nil {
		t.Fatalf("expected 3 failed connection attempts, got %+v", fetchErr)
	}
}

func TestFetchRetriesTimeouts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	cfg := testFetcherConfig()
	cfg.Timeout = 30 * time.Millisecond
	cfg.MaxRetries = 2
	_, err := newTestFetcher(cfg, nil).Fetch(context.Background(), server.URL)
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected timeout to be retried once, got %d calls", calls.Load())
	}
}

func TestFetchStopsOnCancelledContext(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	f := newTestFetcher(testFetcherConfig(), nil)
	f.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := f.Fetch(ctx, server.URL)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled in chain, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single call, got %d", calls.Load())
	}
}

func TestFetchDecodesGzip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept-Encoding") != "gzip" {
			t.Errorf("expected gzip Accept-Encoding, got %q", r.Header.Get("Accept-Encoding"))
		}
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		zw.Write([]byte("<h1>compressed</h1>"))
		zw.Close()
		w.Header().Set("Content-Encoding", "gzip")
		w.Write(buf.Bytes())
	}))
	defer server.Close()

	body, err := newTestFetcher(testFetcherConfig(), nil).Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body != "<h1>compressed</h1>" {
		t.Fatalf("expected decompressed body, got %q", body)
	}
}

func TestFetchEnforcesPerHostDelay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	interval := 50 * time.Millisecond
	f := NewHTTPFetcher(testFetcherConfig(), ratelimit.NewHostLimiter(interval), nil, logging.Discard())

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := f.Fetch(context.Background(), server.URL); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 2*interval-5*time.Millisecond {
		t.Fatalf("expected at least %v between requests, got %v", 2*interval, elapsed)
	}
}

func TestFetchRejectsInvalidURL(t *testing.T) {
	_, err := newTestFetcher(testFetcherConfig(), nil).Fetch(context.Background(), "not a url")
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) || fetchErr.Attempts != 0 {
		t.Fatalf("expected FetchError without attempts, got %v", err)
	}
}

func TestFetchFailsFastWhenBreakerOpen(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	breaker := NewCircuitBreaker(2, time.Hour, logging.Discard())
	f := newTestFetcher(testFetcherConfig(), breaker)

	for i := 0; i < 2; i++ {
		if _, err := f.Fetch(context.Background(), server.URL); err == nil {
			t.Fatalf("expected 403 failure")
		}
	}
	if !breaker.GetStatus().Open {
		t.Fatalf("expected breaker to open after two blocking responses")
	}

	_, err := f.Fetch(context.Background(), server.URL)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected no request while open, got %d calls", calls.Load())
	}
}
