// Package httpclient provides the rate-limited, retrying fetcher used by
// every crawl and download.
package httpclient

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/temoto/robotstxt"

	"chartdex/ratelimit"
)

// Config holds fetcher settings. Zero values fall back to the defaults in
// DefaultConfig.
type Config struct {
	UserAgent     string
	Timeout       time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	RetryDelayMax time.Duration
	Limits        ratelimit.Limits
	RespectRobots bool
}

// DefaultConfig returns settings tuned for polite blog crawling.
func DefaultConfig() Config {
	return Config{
		UserAgent:     "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		Timeout:       30 * time.Second,
		MaxRetries:    3,
		RetryDelay:    time.Second,
		RetryDelayMax: 30 * time.Second,
		Limits:        ratelimit.DefaultLimits(),
		RespectRobots: false,
	}
}

// Response is the decoded result of a successful GET.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       string
	URL        string
	Duration   time.Duration
}

// Client fetches pages through a shared rate limiter with retry/backoff and
// transparent gzip/deflate decompression. One Client owns one Limiter; there
// is no ambient shared state.
type Client struct {
	cfg     Config
	resty   *resty.Client
	limiter *ratelimit.Limiter

	robotsMu sync.Mutex
	robots   map[string]*robotstxt.RobotsData
}

// New builds a client. The resty instance handles a single attempt; the
// retry loop lives here so the limiter gates every attempt, retries
// included.
func New(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.RetryDelayMax <= 0 {
		cfg.RetryDelayMax = def.RetryDelayMax
	}
	if cfg.Limits == (ratelimit.Limits{}) {
		cfg.Limits = def.Limits
	}

	rc := resty.New()
	rc.SetTimeout(cfg.Timeout)
	rc.SetRetryCount(0)
	if jar, err := cookiejar.New(nil); err == nil {
		rc.SetCookieJar(jar)
	}
	// Request the encodings ourselves so net/http does not transparently
	// decode; decompression happens in decodeBody where it can be tested.
	rc.SetHeaders(map[string]string{
		"User-Agent":      cfg.UserAgent,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9",
		"Accept-Encoding": "gzip, deflate",
	})

	return &Client{
		cfg:     cfg,
		resty:   rc,
		limiter: ratelimit.New(cfg.Limits),
		robots:  make(map[string]*robotstxt.RobotsData),
	}
}

// Limiter exposes the client's rate limiter for callers that must pace
// additional traffic against the same budget.
func (c *Client) Limiter() *ratelimit.Limiter {
	return c.limiter
}

// Get fetches url, merging extraHeaders over the browser-like defaults.
// Each attempt passes through the rate limiter; a 429 raises ErrRateLimited
// but still consumes retry budget. After MaxRetries+1 failed attempts the
// last cause is returned wrapped in a *RequestError.
func (c *Client) Get(ctx context.Context, rawURL string, extraHeaders map[string]string) (*Response, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q in %q", parsed.Scheme, rawURL)
	}

	if c.cfg.RespectRobots && !c.allowed(ctx, parsed) {
		return nil, ErrRobotsDisallowed{URL: rawURL}
	}

	var lastErr error
	attempts := c.cfg.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, c.backoff(attempt)); err != nil {
				return nil, err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := c.attempt(ctx, rawURL, extraHeaders)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
	}

	return nil, &RequestError{URL: rawURL, Attempts: attempts, Err: lastErr}
}

func (c *Client) attempt(ctx context.Context, rawURL string, extraHeaders map[string]string) (*Response, error) {
	start := time.Now()
	res, err := c.resty.R().
		SetContext(ctx).
		SetHeaders(extraHeaders).
		SetDoNotParseResponse(true).
		Get(rawURL)
	if err != nil {
		return nil, classify(err)
	}
	body := res.RawBody()
	defer body.Close()

	status := res.StatusCode()
	if status == http.StatusTooManyRequests {
		io.Copy(io.Discard, body)
		return nil, ErrRateLimited{URL: rawURL}
	}
	if status < 200 || status >= 300 {
		io.Copy(io.Discard, body)
		return nil, ErrHTTPStatus{StatusCode: status, URL: rawURL}
	}

	text, err := decodeBody(body, res.Header().Get("Content-Encoding"))
	if err != nil {
		return nil, fmt.Errorf("decode body of %s: %w", rawURL, err)
	}

	return &Response{
		StatusCode: status,
		Headers:    res.Header(),
		Body:       text,
		URL:        res.RawResponse.Request.URL.String(),
		Duration:   time.Since(start),
	}, nil
}

func (c *Client) backoff(attempt int) time.Duration {
	delay := c.cfg.RetryDelay * time.Duration(1<<(attempt-1))
	if delay > c.cfg.RetryDelayMax {
		delay = c.cfg.RetryDelayMax
	}
	return delay
}

// allowed consults the host's robots.txt, fetching and caching it on first
// use. An unreachable or unparsable robots.txt permits the crawl.
func (c *Client) allowed(ctx context.Context, u *url.URL) bool {
	host := u.Scheme + "://" + u.Host

	c.robotsMu.Lock()
	data, ok := c.robots[host]
	c.robotsMu.Unlock()

	if !ok {
		data = c.fetchRobots(ctx, host)
		c.robotsMu.Lock()
		c.robots[host] = data
		c.robotsMu.Unlock()
	}
	if data == nil {
		return true
	}
	return data.FindGroup(c.cfg.UserAgent).Test(u.Path)
}

func (c *Client) fetchRobots(ctx context.Context, host string) *robotstxt.RobotsData {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil
	}
	res, err := c.resty.R().SetContext(ctx).Get(host + "/robots.txt")
	if err != nil || res.StatusCode() != http.StatusOK {
		return nil
	}
	data, err := robotstxt.FromBytes(res.Body())
	if err != nil {
		return nil
	}
	return data
}

func decodeBody(r io.Reader, encoding string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip":
		gz, err := gzip.NewReader(r)
		if err != nil {
			return "", fmt.Errorf("gzip reader: %w", err)
		}
		defer gz.Close()
		r = gz
	case "deflate":
		fl := flate.NewReader(r)
		defer fl.Close()
		r = fl
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
