// Package healthcheck probes the game server's HTTP health endpoint.
package healthcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

var ErrUnhealthy = errors.New("server unhealthy")

// Status is the /health response body.
type Status struct {
	Status string `json:"status"`
}

func (s Status) OK() bool { return strings.EqualFold(s.Status, "ok") }

type Client struct {
	url  string
	http *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

// WithHTTPClient swaps the underlying fasthttp client (tests dial in-memory).
func WithHTTPClient(hc *fasthttp.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient targets the full health URL, e.g. https://host/health.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:            strings.TrimSpace(url),
		http:           &fasthttp.Client{ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second, MaxConnsPerHost: 4},
		defaultTimeout: 5 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check fetches /health, retrying transport errors and 5xx with backoff. A reply
// other than {"status":"ok"} wraps ErrUnhealthy.
func (c *Client) Check(ctx context.Context) (*Status, error) {
	if c.url == "" {
		return nil, errors.New("healthcheck: empty url")
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()
	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(c.url)
	req.Header.Set("Accept", "application/json")

	attempts := c.retryMax
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err == nil {
			code := resp.StatusCode()
			if code >= 200 && code < 300 {
				var st Status
				if err := json.Unmarshal(resp.Body(), &st); err != nil {
					return nil, fmt.Errorf("decode health: %w", err)
				}
				if !st.OK() {
					return &st, fmt.Errorf("%w: status=%q", ErrUnhealthy, st.Status)
				}
				return &st, nil
			}
			err = fmt.Errorf("%w: status=%d body=%s", ErrUnhealthy, code, truncate(string(resp.Body()), 256))
			if !shouldRetryStatus(code) {
				return nil, err
			}
		} else {
			err = fmt.Errorf("health request failed: %w", err)
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
