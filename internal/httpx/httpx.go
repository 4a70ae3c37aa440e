package httpx

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"
)

// HTTPClient describes an HTTP client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Limiter gates outbound requests before they are issued.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Client is a small wrapper around http.Client with sane defaults.
type Client struct {
	HTTP      HTTPClient
	UserAgent string
	Headers   map[string]string
	Limiter   Limiter
	// Sleep is used between rate-limited retries in DoRetry. Nil means a
	// context-aware real sleep; tests inject a recorder.
	Sleep func(ctx context.Context, d time.Duration) error
}

func New(timeout time.Duration) *Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          200,
		MaxIdleConnsPerHost:   100,
		MaxConnsPerHost:       100,
		ForceAttemptHTTP2:     true,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   3 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 5 * time.Second,
	}
	return &Client{HTTP: &http.Client{Timeout: timeout, Transport: transport}, UserAgent: "marketfeed/1.0"}
}

// WithLimiter returns a shallow copy of c gated by l. The underlying
// transport is shared, so per-vendor limits do not multiply connection pools.
func (c *Client) WithLimiter(l Limiter) *Client {
	cp := *c
	cp.Limiter = l
	return &cp
}

func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	for k, v := range c.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return c.HTTP.Do(req)
}

// BackoffDelay is the wait before rate-limited retry attempt (0-based):
// 60s, 90s, 120s, ...
func BackoffDelay(attempt int) time.Duration {
	return time.Duration(60+30*attempt) * time.Second
}

// DoRetry issues the request produced by build, retrying on HTTP 429 with
// linear backoff. Any non-429 response, success or otherwise, is returned
// immediately; retrying on 5xx or transport errors is the caller's call.
// After maxRetries rate-limited attempts the final 429 response is returned
// rather than an error, so callers must still inspect the status.
func (c *Client) DoRetry(ctx context.Context, maxRetries int, build func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		req, err := build(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := c.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests || attempt >= maxRetries {
			return resp, nil
		}
		// Drain so the connection can be reused, then back off.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		_ = resp.Body.Close()
		if err := c.sleep(ctx, BackoffDelay(attempt)); err != nil {
			return nil, err
		}
	}
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if c.Sleep != nil {
		return c.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
