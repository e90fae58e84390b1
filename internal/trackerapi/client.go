package trackerapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/vporoshin/flowtime/internal/config"
	"github.com/vporoshin/flowtime/internal/logging"
)

// maxAttempts bounds retries for transient failures (429/5xx/network).
const maxAttempts = 3

// APIError is a non-2xx response after retries were exhausted (or a
// non-retryable status on first sight). It carries the request shape so
// failures are diagnosable from logs alone.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Query      string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tracker API %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Retryable reports whether the status warrants another attempt. The scroll
// endpoint is known to 504 under load; 429 means the gate is too fast.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client provides HTTP access to a Tracker instance. All methods are safe for
// concurrent use; the rate gate is shared across every request the process
// makes.
type Client struct {
	baseURL string
	token   string
	orgID   string

	pageSize  int
	scrollTTL time.Duration
	batchSize int

	httpClient *http.Client
	limiter    *rate.Limiter
	log        zerolog.Logger

	slowOnce sync.Once
	requests atomic.Int64
}

// NewClient creates a Tracker client from config. The request delay becomes
// the shared rate gate; the connection pool is capped near the worker count.
func NewClient(cfg config.TrackerConfig) *Client {
	delay := cfg.RequestDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	pageSize := cfg.ScrollPageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 50
	}
	scrollTTL := cfg.ScrollTTL
	if scrollTTL <= 0 {
		scrollTTL = 5 * time.Minute
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 || batchSize > 100 {
		batchSize = 100
	}
	poolSize := cfg.MaxWorkers + 2
	if poolSize < 4 {
		poolSize = 4
	}

	return &Client{
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		token:     cfg.Token,
		orgID:     cfg.OrgID,
		pageSize:  pageSize,
		scrollTTL: scrollTTL,
		batchSize: batchSize,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxConnsPerHost:     poolSize,
				MaxIdleConnsPerHost: poolSize,
			},
		},
		limiter: rate.NewLimiter(rate.Every(delay), 1),
		log:     logging.WithComponent("trackerapi"),
	}
}

// RequestCount returns the number of outbound HTTP requests made so far.
func (c *Client) RequestCount() int64 { return c.requests.Load() }

// doRequest executes one authenticated request with the rate gate and retry
// policy applied. Returns the response body and headers.
func (c *Client) doRequest(ctx context.Context, method, apiURL string, body []byte) ([]byte, http.Header, error) {
	if c.token == "" {
		return nil, nil, fmt.Errorf("tracker API token not configured")
	}

	var respBody []byte
	var respHeader http.Header

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second

	attempt := 0
	op := func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, apiURL, bodyReader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Authorization", "OAuth "+c.token)
		req.Header.Set("X-Org-ID", c.orgID)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "flowtime/1.0")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		c.requests.Add(1)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logFailure(method, apiURL, body, attempt, 0, err)
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			err = fmt.Errorf("read response: %w", err)
			c.logFailure(method, apiURL, body, attempt, resp.StatusCode, err)
			return err
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := newAPIError(resp.StatusCode, method, apiURL, data)
			c.logFailure(method, apiURL, body, attempt, resp.StatusCode, apiErr)
			if resp.StatusCode == http.StatusTooManyRequests {
				c.slowDown()
			}
			if apiErr.Retryable() {
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}

		respBody = data
		respHeader = resp.Header
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, maxAttempts-1), ctx))
	if err != nil {
		return nil, nil, err
	}
	return respBody, respHeader, nil
}

// slowDown halves the shared rate (doubling the inter-request delay) for the
// remainder of the run. Applied once, on the first 429.
func (c *Client) slowDown() {
	c.slowOnce.Do(func() {
		c.limiter.SetLimit(c.limiter.Limit() / 2)
		c.log.Warn().Msg("server rate limit hit; doubling request delay for the rest of the run")
	})
}

func (c *Client) logFailure(method, apiURL string, reqBody []byte, attempt, status int, err error) {
	path, query := apiURL, ""
	if u, perr := url.Parse(apiURL); perr == nil {
		path, query = u.Path, u.RawQuery
	}
	ev := c.log.Warn().
		Str("method", method).
		Str("path", path).
		Str("query", query).
		Int("attempt", attempt)
	if status != 0 {
		ev = ev.Int("status", status)
	}
	if len(reqBody) > 0 {
		ev = ev.Str("request_body", truncate(string(reqBody), 200))
	}
	ev.Err(err).Msg("tracker request failed")
}

func newAPIError(status int, method, apiURL string, body []byte) *APIError {
	path, query := apiURL, ""
	if u, err := url.Parse(apiURL); err == nil {
		path, query = u.Path, u.RawQuery
	}
	return &APIError{
		StatusCode: status,
		Method:     method,
		Path:       path,
		Query:      query,
		Body:       truncate(string(body), 500),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
