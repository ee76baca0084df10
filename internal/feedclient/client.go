// Package feedclient downloads feed text over HTTP.
package feedclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultMaxBodyBytes caps a single feed download.
	DefaultMaxBodyBytes = 32 << 20
	// DefaultFetchTimeout bounds one coalesced fetch, retries included.
	DefaultFetchTimeout = time.Minute
)

// ErrBodyTooLarge means the feed exceeded the size cap. The body is dropped
// rather than parsed in part.
var ErrBodyTooLarge = errors.New("feed body exceeds size limit")

// StatusError is a non-2xx response from the feed host.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("feed request failed: status=%d url=%s", e.StatusCode, e.URL)
}

// Temporary reports whether retrying may help (5xx and 429).
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Client fetches one feed URL. Concurrent fetches share a single request.
type Client struct {
	url        string
	hc         *http.Client
	retries    uint64
	maxBody    int64
	timeout    time.Duration
	logger     zerolog.Logger
	newBackOff func() backoff.BackOff
	group      singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithRetries sets how many times a failed fetch is retried.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retries = uint64(n)
		}
	}
}

// WithMaxBodyBytes changes the download size cap.
func WithMaxBodyBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// WithFetchTimeout bounds a shared fetch independently of any one caller.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger injects a logger; the default discards.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithBackOff replaces the exponential policy between retries.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(c *Client) {
		if f != nil {
			c.newBackOff = f
		}
	}
}

// NewClient creates a client for url. If httpClient is nil, a default with timeout is used.
func NewClient(url string, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	c := &Client{
		url:     url,
		hc:      httpClient,
		retries: 2,
		maxBody: DefaultMaxBodyBytes,
		timeout: DefaultFetchTimeout,
		logger:  zerolog.Nop(),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("feed_url", url).Logger()
	return c
}

// URL returns the feed location.
func (c *Client) URL() string { return c.url }

// Fetch returns the feed body, retrying transport errors and temporary
// statuses with exponential backoff. Concurrent callers share one fetch that
// runs detached from any single caller, bounded by the fetch timeout; a
// caller whose ctx ends stops waiting without cancelling it for the others.
func (c *Client) Fetch(ctx context.Context) ([]byte, error) {
	ch := c.group.DoChan(c.url, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.fetchWithRetry(fetchCtx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.logger.Debug().Msg("feed fetch coalesced")
		}
		return res.Val.([]byte), nil
	}
}

func (c *Client) fetchWithRetry(ctx context.Context) ([]byte, error) {
	var body []byte
	op := func() error {
		b, err := c.get(ctx)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && !se.Temporary() {
				return backoff.Permanent(err)
			}
			if errors.Is(err, ErrBodyTooLarge) {
				return backoff.Permanent(err)
			}
			return err
		}
		body = b
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.retries), ctx)
	notify := func(err error, next time.Duration) {
		c.logger.Warn().Err(err).Dur("retry_in", next).Msg("feed fetch failed, retrying")
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) get(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("feed new request: %w", err)
	}
	req.Header.Set("Accept", "text/csv, text/plain;q=0.9, */*;q=0.5")

	start := time.Now()
	resp, err := c.hc.Do(req)
	latency := time.Since(start)
	if err != nil {
		c.logger.Debug().Err(err).Dur("latency", latency).Msg("feed request")
		return nil, fmt.Errorf("feed request failed: %w", err)
	}
	defer resp.Body.Close()
	c.logger.Debug().Int("status", resp.StatusCode).Dur("latency", latency).Msg("feed request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: c.url}
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("feed read body: %w", err)
	}
	if int64(len(b)) > c.maxBody {
		return nil, fmt.Errorf("%w: more than %d bytes from %s", ErrBodyTooLarge, c.maxBody, c.url)
	}
	return b, nil
}
