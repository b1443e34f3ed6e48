package httpclient

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"chartdex/ratelimit"
)

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	if cfg.Limits == (ratelimit.Limits{}) {
		cfg.Limits = ratelimit.Limits{PerSecond: 1000}
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Millisecond
	}
	c := New(cfg)
	httpmock.ActivateNonDefault(c.resty.GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	return c
}

func TestGetReturnsBody(t *testing.T) {
	c := newTestClient(t, Config{})
	httpmock.RegisterResponder("GET", "https://blog.test/page",
		httpmock.NewStringResponder(200, "<html>hello</html>"))

	res, err := c.Get(context.Background(), "https://blog.test/page", nil)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if res.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	if res.Body != "<html>hello</html>" {
		t.Fatalf("body = %q", res.Body)
	}
}

func TestGetRejectsBadScheme(t *testing.T) {
	c := newTestClient(t, Config{})
	if _, err := c.Get(context.Background(), "ftp://blog.test/x", nil); err == nil {
		t.Fatalf("expected error for ftp scheme")
	}
}

func TestGetDecompressesGzip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write([]byte("<html>compressed</html>"))
	gz.Close()

	c := newTestClient(t, Config{})
	httpmock.RegisterResponder("GET", "https://blog.test/gz",
		func(req *http.Request) (*http.Response, error) {
			resp := httpmock.NewBytesResponse(200, buf.Bytes())
			resp.Header.Set("Content-Encoding", "gzip")
			resp.Request = req
			return resp, nil
		})

	res, err := c.Get(context.Background(), "https://blog.test/gz", nil)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if res.Body != "<html>compressed</html>" {
		t.Fatalf("body = %q, want decompressed text", res.Body)
	}
}

func TestGetRetriesThenSucceeds(t *testing.T) {
	c := newTestClient(t, Config{MaxRetries: 3})

	calls := 0
	httpmock.RegisterResponder("GET", "https://blog.test/flaky",
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls < 3 {
				return httpmock.NewStringResponse(500, ""), nil
			}
			resp := httpmock.NewStringResponse(200, "ok")
			resp.Request = req
			return resp, nil
		})

	res, err := c.Get(context.Background(), "https://blog.test/flaky", nil)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if res.Body != "ok" {
		t.Fatalf("body = %q", res.Body)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestGetExhaustsRetries(t *testing.T) {
	c := newTestClient(t, Config{MaxRetries: 2})

	calls := 0
	httpmock.RegisterResponder("GET", "https://blog.test/down",
		func(*http.Request) (*http.Response, error) {
			calls++
			return httpmock.NewStringResponse(503, ""), nil
		})

	_, err := c.Get(context.Background(), "https://blog.test/down", nil)
	if err == nil {
		t.Fatalf("expected error after retry exhaustion")
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error type = %T, want *RequestError", err)
	}
	if reqErr.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", reqErr.Attempts)
	}
	var status ErrHTTPStatus
	if !errors.As(err, &status) || status.StatusCode != 503 {
		t.Fatalf("cause = %v, want http status 503", reqErr.Err)
	}
}

func TestGet429CountsTowardRetryBudget(t *testing.T) {
	c := newTestClient(t, Config{MaxRetries: 1})

	calls := 0
	httpmock.RegisterResponder("GET", "https://blog.test/limited",
		func(*http.Request) (*http.Response, error) {
			calls++
			return httpmock.NewStringResponse(429, ""), nil
		})

	_, err := c.Get(context.Background(), "https://blog.test/limited", nil)
	var rateLimited ErrRateLimited
	if !errors.As(err, &rateLimited) {
		t.Fatalf("error = %v, want ErrRateLimited cause", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestLimiterGatesEveryAttempt(t *testing.T) {
	c := newTestClient(t, Config{MaxRetries: 2})

	httpmock.RegisterResponder("GET", "https://blog.test/down",
		httpmock.NewStringResponder(500, ""))

	c.Get(context.Background(), "https://blog.test/down", nil)
	if got := c.limiter.Recorded(); got != 3 {
		t.Fatalf("limiter recorded %d attempts, want 3", got)
	}
}

func TestRobotsDisallowedBlocksFetch(t *testing.T) {
	c := newTestClient(t, Config{RespectRobots: true})

	httpmock.RegisterResponder("GET", "https://blog.test/robots.txt",
		httpmock.NewStringResponder(200, "User-agent: *\nDisallow: /private/"))

	_, err := c.Get(context.Background(), "https://blog.test/private/page", nil)
	var robots ErrRobotsDisallowed
	if !errors.As(err, &robots) {
		t.Fatalf("error = %v, want ErrRobotsDisallowed", err)
	}
}

func TestErrorLabel(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil", err: nil, expected: "unknown"},
		{name: "timeout", err: ErrTimeout{Err: context.DeadlineExceeded}, expected: "timeout"},
		{name: "connection", err: ErrConnection{Err: errors.New("refused")}, expected: "connection"},
		{name: "rate limited", err: ErrRateLimited{URL: "u"}, expected: "rate_limited"},
		{name: "robots", err: ErrRobotsDisallowed{URL: "u"}, expected: "robots_disallowed"},
		{name: "status", err: ErrHTTPStatus{StatusCode: 404}, expected: "http_404"},
		{name: "wrapped", err: &RequestError{Err: ErrTimeout{Err: context.DeadlineExceeded}}, expected: "timeout"},
		{name: "other", err: errors.New("boom"), expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorLabel(tt.err); got != tt.expected {
				t.Fatalf("ErrorLabel(%v) = %q, want %q", tt.err, got, tt.expected)
			}
		})
	}
}
