// Package fetch implements the retrying, rate-limit-aware HTTP client used
// to pull review listing pages.
package fetch

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// Config controls client behavior.
type Config struct {
	UserAgent          string
	AcceptLanguage     string
	Timeout            time.Duration
	MaxAttempts        int
	BackoffBase        time.Duration
	RetryAfterFallback time.Duration
	MinDelay           time.Duration
	MaxDelay           time.Duration
}

// Response is the outcome of a single page fetch. A non-2xx status is a
// valid response, not an error; the driver decides what to do with it.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Client fetches listing pages through a Colly collector with a pooled
// transport. Safe for reuse across runs; construct once per process.
type Client struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// New builds a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 1200 * time.Millisecond
	}
	if cfg.RetryAfterFallback <= 0 {
		cfg.RetryAfterFallback = 30 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}

	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())

	return &Client{
		cfg:           cfg,
		baseCollector: c,
		logger:        logger,
	}
}

// PageURL resolves the URL for a given page: page 1 uses the bare base URL,
// later pages add a page query parameter on top of whatever query the base
// already carries.
func PageURL(baseURL string, page int) (string, error) {
	if page <= 1 {
		return baseURL, nil
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Fetch retrieves one listing page. Connection failures and retryable
// statuses (429, 500, 502, 503, 504) are retried with exponential backoff
// up to MaxAttempts. A 429 survivor gets one extra manual retry after
// honoring Retry-After (or the fixed fallback). Any remaining status is
// returned to the caller as a Response.
func (c *Client) Fetch(ctx context.Context, baseURL string, page int) (Response, error) {
	pageURL, err := PageURL(baseURL, page)
	if err != nil {
		return Response{}, err
	}

	resp, err := c.fetchWithRetry(ctx, pageURL)
	if err != nil {
		return Response{}, err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		wait := c.retryAfter(resp.Headers)
		c.logger.Warn("rate limited, honoring retry-after",
			zap.Int("page", page),
			zap.Duration("wait", wait),
		)
		if err := sleepCtx(ctx, wait); err != nil {
			return Response{}, err
		}
		return c.visit(ctx, pageURL)
	}
	return resp, nil
}

func (c *Client) fetchWithRetry(ctx context.Context, pageURL string) (Response, error) {
	var (
		resp    Response
		lastErr error
	)
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		resp, lastErr = c.visit(ctx, pageURL)
		if lastErr == nil && !retryableStatus(resp.StatusCode) {
			return resp, nil
		}
		if ctx.Err() != nil {
			return Response{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
		}
		if attempt == c.cfg.MaxAttempts {
			break
		}
		delay := c.backoff(attempt)
		c.logger.Debug("retrying page fetch",
			zap.String("url", pageURL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Int("status", resp.StatusCode),
			zap.Error(lastErr),
		)
		if err := sleepCtx(ctx, delay); err != nil {
			return Response{}, err
		}
	}
	if lastErr != nil {
		return Response{}, fmt.Errorf("fetch %s: %w", pageURL, lastErr)
	}
	// Retries exhausted on a retryable status; the caller sees the status.
	return resp, nil
}

// visit performs exactly one HTTP GET through a cloned collector.
func (c *Client) visit(ctx context.Context, pageURL string) (Response, error) {
	collector := c.baseCollector.Clone()
	collector.AllowURLRevisit = true
	collector.IgnoreRobotsTxt = true
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}
	collector.SetRequestTimeout(c.cfg.Timeout)

	var (
		result   Response
		fetchErr error
	)
	collector.OnRequest(func(r *colly.Request) {
		if c.cfg.AcceptLanguage != "" {
			r.Headers.Set("Accept-Language", c.cfg.AcceptLanguage)
		}
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	})
	collector.OnResponse(func(r *colly.Response) {
		result = Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		// Colly reports non-2xx statuses here; keep the response so the
		// retry loop and the driver can branch on the status code.
		if r != nil && r.StatusCode > 0 {
			result = Response{
				URL:        pageURL,
				StatusCode: r.StatusCode,
				Body:       append([]byte(nil), r.Body...),
			}
			if r.Headers != nil {
				result.Headers = r.Headers.Clone()
			}
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(pageURL)
	}()

	select {
	case <-ctx.Done():
		return Response{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if result.StatusCode > 0 {
			return result, nil
		}
		if fetchErr != nil {
			return Response{}, fmt.Errorf("visit %s: %w", pageURL, fetchErr)
		}
		if err != nil {
			return Response{}, fmt.Errorf("visit %s: %w", pageURL, err)
		}
		return result, nil
	}
}

// PoliteDelay blocks for a uniformly random duration inside the configured
// window. The collection driver calls this between successful page
// fetches; the client only supplies the primitive.
func (c *Client) PoliteDelay(ctx context.Context) error {
	window := c.cfg.MaxDelay - c.cfg.MinDelay
	delay := c.cfg.MinDelay + randomDuration(window)
	return sleepCtx(ctx, delay)
}

func (c *Client) backoff(attempt int) time.Duration {
	delay := c.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

func (c *Client) retryAfter(headers http.Header) time.Duration {
	if headers != nil {
		if ra := headers.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs >= 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return c.cfg.RetryAfterFallback
}

func retryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func randomDuration(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

func sleepCtx(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("wait interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
	}
}
