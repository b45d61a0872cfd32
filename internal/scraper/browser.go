package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"skimeister/internal/config"
	"skimeister/internal/ratelimit"
)

// BrowserFetcher renders pages in headless Chrome. It is used for sources
// that only deliver their content after script execution. Attempts are
// paced, retried and guarded by the breaker like HTTPFetcher.
type BrowserFetcher struct {
	*retrier
	execPath string
	timeout  time.Duration
	settle   time.Duration
	logger   *logrus.Logger

	// render loads one page and reports the document status (0 when
	// unknown); replaced in tests
	render func(ctx context.Context, rawURL, userAgent string) (string, int, error)
}

// NewBrowserFetcher creates a chromedp based fetcher. An empty ChromePath
// lets chromedp locate Chrome itself. hosts and breaker may be nil.
func NewBrowserFetcher(cfg config.ScraperConfig, hosts *ratelimit.HostLimiter, breaker *CircuitBreaker, logger *logrus.Logger) *BrowserFetcher {
	b := &BrowserFetcher{
		retrier:  newRetrier(FetcherConfigFrom(cfg), hosts, breaker),
		execPath: cfg.ChromePath,
		timeout:  cfg.GetTimeout(),
		settle:   2 * time.Second,
		logger:   logger,
	}
	b.render = b.renderChrome
	return b
}

// Fetch returns the rendered HTML of rawURL. Failures are returned as
// *FetchError.
func (b *BrowserFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	log := b.logger.WithFields(logrus.Fields{"component": "browser", "url": rawURL})
	return b.run(ctx, rawURL, log, b.attempt)
}

// attempt renders once. A document answered with a non-2xx status fails
// the attempt with that status so retries and the breaker treat it like
// an HTTP response.
func (b *BrowserFetcher) attempt(ctx context.Context, rawURL, userAgent string) (string, int, time.Duration, error) {
	html, status, err := b.render(ctx, rawURL, userAgent)
	if err != nil {
		return "", status, 0, err
	}
	if status != 0 && (status < 200 || status > 299) {
		return "", status, 0, fmt.Errorf("unexpected status code %d", status)
	}
	return html, status, 0, nil
}

func (b *BrowserFetcher) renderChrome(ctx context.Context, rawURL, userAgent string) (string, int, error) {
	log := b.logger.WithFields(logrus.Fields{"component": "browser", "url": rawURL})
	log.Debug("fetching with headless chrome")

	// Chrome execution options for container compatibility
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(userAgent),
	)
	if b.execPath != "" {
		opts = append(opts, chromedp.ExecPath(b.execPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	if b.timeout > 0 {
		var timeoutCancel context.CancelFunc
		browserCtx, timeoutCancel = context.WithTimeout(browserCtx, b.timeout)
		defer timeoutCancel()
	}

	resp, err := chromedp.RunResponse(browserCtx, chromedp.Navigate(rawURL))
	if err != nil {
		return "", 0, fmt.Errorf("chromedp error: %w", err)
	}
	status := 0
	if resp != nil {
		status = int(resp.Status)
	}
	if status != 0 && (status < 200 || status > 299) {
		return "", status, nil
	}

	var htmlContent string
	err = chromedp.Run(browserCtx,
		chromedp.WaitVisible(`body`, chromedp.ByQuery),
		chromedp.Sleep(b.settle),
		chromedp.OuterHTML(`html`, &htmlContent, chromedp.ByQuery),
	)
	if err != nil {
		return "", status, fmt.Errorf("chromedp error: %w", err)
	}

	log.WithField("bytes", len(htmlContent)).Debug("headless fetch done")
	return htmlContent, status, nil
}
