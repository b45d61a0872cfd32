package scraper

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"skimeister/internal/config"
	"skimeister/internal/ratelimit"
)

// attemptFunc performs a single request with the given identity. status is
// 0 when no response arrived.
type attemptFunc func(ctx context.Context, rawURL, userAgent string) (body string, status int, retryAfter time.Duration, err error)

// retrier drives the attempts of one fetch: host pacing, the circuit
// breaker, user agent rotation and exponential backoff. HTTPFetcher and
// BrowserFetcher share it.
type retrier struct {
	cfg     FetcherConfig
	hosts   *ratelimit.HostLimiter
	breaker *CircuitBreaker

	uaIndex atomic.Uint64
	sleep   func(ctx context.Context, d time.Duration) error
}

func newRetrier(cfg FetcherConfig, hosts *ratelimit.HostLimiter, breaker *CircuitBreaker) *retrier {
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = config.DefaultUserAgents
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if hosts == nil {
		hosts = ratelimit.NewHostLimiter(0)
	}
	return &retrier{cfg: cfg, hosts: hosts, breaker: breaker, sleep: sleepContext}
}

// run calls attempt until it succeeds, fails with a non-retryable status or
// the attempts are exhausted. Failures are returned as *FetchError.
func (r *retrier) run(ctx context.Context, rawURL string, log *logrus.Entry, attempt attemptFunc) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		if err == nil {
			err = errors.New("missing host")
		}
		return "", &FetchError{URL: rawURL, Err: err}
	}

	if r.breaker != nil && !r.breaker.CanProceed() {
		return "", &FetchError{URL: rawURL, Err: ErrCircuitOpen}
	}

	var (
		lastErr    error
		lastStatus int
		attempts   int
	)
	for n := 1; n <= r.cfg.MaxRetries; n++ {
		if err := r.hosts.Wait(ctx, u.Host); err != nil {
			lastErr = err
			break
		}
		attempts = n

		body, status, retryAfter, err := attempt(ctx, rawURL, r.nextUserAgent())
		if err == nil {
			if r.breaker != nil {
				r.breaker.RecordSuccess()
			}
			return body, nil
		}
		if r.breaker != nil && ctx.Err() == nil {
			r.breaker.RecordFailure(status)
		}
		lastErr, lastStatus = err, status

		entry := log.WithFields(logrus.Fields{"attempt": n, "status": status})
		if !r.retryable(ctx, status) {
			entry.WithError(err).Warn("request failed, not retrying")
			break
		}
		if n == r.cfg.MaxRetries {
			entry.WithError(err).Warn("request failed, attempts exhausted")
			break
		}

		wait := r.backoff(n, retryAfter)
		entry.WithError(err).WithField("backoff", wait.String()).Info("request failed, retrying")
		if err := r.sleep(ctx, wait); err != nil {
			lastErr = err
			break
		}
	}

	return "", &FetchError{URL: rawURL, Attempts: attempts, StatusCode: lastStatus, Err: lastErr}
}

// retryable reports whether a failed attempt may be repeated. A cancelled
// caller context is never retried.
func (r *retrier) retryable(ctx context.Context, status int) bool {
	if ctx.Err() != nil {
		return false
	}
	switch {
	case status == 0:
		return true
	case status == http.StatusTooManyRequests:
		return true
	case status >= 500:
		return true
	default:
		return false
	}
}

// backoff returns retryDelay * 2^(attempt-1) plus jitter, raised to a
// Retry-After hint and capped at MaxRetryDelay
func (r *retrier) backoff(attempt int, retryAfter time.Duration) time.Duration {
	wait := time.Duration(math.Pow(2, float64(attempt-1))) * r.cfg.RetryDelay
	if r.cfg.Jitter > 0 {
		wait += time.Duration(rand.Int63n(int64(r.cfg.Jitter)))
	}
	if retryAfter > wait {
		wait = retryAfter
	}
	if r.cfg.MaxRetryDelay > 0 && wait > r.cfg.MaxRetryDelay {
		wait = r.cfg.MaxRetryDelay
	}
	return wait
}

func (r *retrier) nextUserAgent() string {
	i := r.uaIndex.Add(1) - 1
	return r.cfg.UserAgents[i%uint64(len(r.cfg.UserAgents))]
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
