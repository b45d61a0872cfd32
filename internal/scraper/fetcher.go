package scraper

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"skimeister/internal/config"
	"skimeister/internal/ratelimit"
)

// maxBodyBytes bounds how much of a response is read
const maxBodyBytes = 10 << 20

// FetcherConfig controls timeouts and the retry policy of the fetchers
type FetcherConfig struct {
	UserAgents []string
	Timeout    time.Duration
	// MaxRetries is the total number of attempts per Fetch
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	Jitter        time.Duration
}

// FetcherConfigFrom converts the scraper section of the app config
func FetcherConfigFrom(cfg config.ScraperConfig) FetcherConfig {
	return FetcherConfig{
		UserAgents:    cfg.UserAgents,
		Timeout:       cfg.GetTimeout(),
		MaxRetries:    cfg.MaxRetries,
		RetryDelay:    cfg.GetRetryDelay(),
		MaxRetryDelay: cfg.GetMaxRetryDelay(),
		Jitter:        cfg.GetJitter(),
	}
}

// HTTPFetcher performs paced GET requests with retries and a rotating
// browser identity
type HTTPFetcher struct {
	*retrier
	client *http.Client
	logger *logrus.Logger
}

// NewHTTPFetcher creates a fetcher. hosts and breaker may be nil.
func NewHTTPFetcher(cfg FetcherConfig, hosts *ratelimit.HostLimiter, breaker *CircuitBreaker, logger *logrus.Logger) *HTTPFetcher {
	// Create cookie jar for session management
	jar, err := cookiejar.New(nil)
	if err != nil {
		logger.WithError(err).Warn("failed to create cookie jar")
		jar = nil
	}

	return &HTTPFetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		},
		retrier: newRetrier(cfg, hosts, breaker),
		logger:  logger,
	}
}

// Fetch returns the body of rawURL. Timeouts, connection errors, 5xx and
// 429 are retried with exponential backoff; any other non-2xx status
// fails immediately. Failures are returned as *FetchError.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	log := f.logger.WithFields(logrus.Fields{"component": "fetcher", "url": rawURL})
	return f.run(ctx, rawURL, log, f.do)
}

// do performs a single request. status is 0 when no response arrived.
func (f *HTTPFetcher) do(ctx context.Context, rawURL, userAgent string) (body string, status int, retryAfter time.Duration, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", 0, 0, fmt.Errorf("failed to create request: %w", err)
	}
	applyBrowserHeaders(req, userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", 0, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return "", resp.StatusCode, parseRetryAfter(resp.Header.Get("Retry-After")), fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	// Handle gzip decompression; Accept-Encoding is set explicitly so the
	// transport does not do it for us
	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return "", resp.StatusCode, 0, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	data, err := io.ReadAll(io.LimitReader(reader, maxBodyBytes))
	if err != nil {
		return "", resp.StatusCode, 0, fmt.Errorf("failed to read body: %w", err)
	}
	return string(data), resp.StatusCode, 0, nil
}

// parseRetryAfter accepts delta-seconds or an HTTP date
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// applyBrowserHeaders sets browser-like headers to avoid bot detection
func applyBrowserHeaders(req *http.Request, userAgent string) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,de;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("DNT", "1")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-User", "?1")
	req.Header.Set("Sec-Fetch-Dest", "document")
}

