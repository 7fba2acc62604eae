// Package testrail implements the TestRailClient port against the TestRail
// API v2.
package testrail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gregjones/httpcache"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/ericfisherdev/railpanel/internal/domain/model"
	"github.com/ericfisherdev/railpanel/internal/domain/port/driven"
	"github.com/ericfisherdev/railpanel/internal/telemetry"
)

// Compile-time interface satisfaction check.
var _ driven.TestRailClient = (*Client)(nil)

const (
	defaultPageSize = 250
	maxBodyBytes    = 64 << 20
	maxPages        = 10000
)

// Config carries the connection settings for one TestRail instance. It is
// passed explicitly to New; the client never reads ambient configuration.
type Config struct {
	BaseURL  string
	Username string
	APIKey   string

	RequestTimeout    time.Duration // Per attempt.
	MaxAttempts       int
	RetryWaitMin      time.Duration
	RetryWaitMax      time.Duration
	MaxRateLimitWait  time.Duration // Longest Retry-After honored on 429.
	RequestsPerSecond float64       // Zero or less disables pacing.
	Burst             int

	IncludePlans bool // Also list runs nested in test plans.
	PageSize     int
}

func (c *Config) applyDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryWaitMin <= 0 {
		c.RetryWaitMin = time.Second
	}
	if c.RetryWaitMax < c.RetryWaitMin {
		c.RetryWaitMax = 30 * c.RetryWaitMin
	}
	if c.MaxRateLimitWait <= 0 {
		c.MaxRateLimitWait = 2 * time.Minute
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.PageSize <= 0 {
		c.PageSize = defaultPageSize
	}
}

// Client implements the driven.TestRailClient port. It is safe for concurrent
// use; all goroutines share one rate limiter.
type Client struct {
	http    *retryablehttp.Client
	cfg     Config
	baseURL string
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

type attemptsKey struct{}

// New creates a TestRail client with the following transport stack:
//  1. go-retryablehttp (bounded exponential backoff, Retry-After on 429/503)
//  2. x/time/rate limiter (paces every attempt, shared by all callers)
//  3. httpcache (conditional request caching)
//  4. http.DefaultTransport
func New(cfg Config, logger *slog.Logger, metrics *telemetry.Metrics) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid TestRail base URL %q", cfg.BaseURL)
	}
	if cfg.Username == "" || cfg.APIKey == "" {
		return nil, errors.New("TestRail username and API key are required")
	}
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	cacheTransport := httpcache.NewMemoryCacheTransport()
	cacheTransport.Transport = http.DefaultTransport
	cacheTransport.MarkCachedResponses = true

	c := &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(u.String(), "/"),
		logger:  logger,
		metrics: metrics,
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{
		Timeout: cfg.RequestTimeout,
		Transport: &limitedTransport{
			limiter: rate.NewLimiter(limit, cfg.Burst),
			next:    cacheTransport,
		},
	}
	rc.RetryMax = cfg.MaxAttempts - 1
	rc.RetryWaitMin = cfg.RetryWaitMin
	rc.RetryWaitMax = cfg.RetryWaitMax
	rc.Logger = logger
	rc.CheckRetry = c.checkRetry
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.RequestLogHook = c.countAttempt
	c.http = rc

	return c, nil
}

// limitedTransport waits on a shared limiter before every round trip.
type limitedTransport struct {
	limiter *rate.Limiter
	next    http.RoundTripper
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.next.RoundTrip(req)
}

// checkRetry never retries rejected credentials or a 429 whose Retry-After
// exceeds MaxRateLimitWait, and otherwise defers to the default policy.
func (c *Client) checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return false, nil
		case http.StatusTooManyRequests:
			if wait, ok := retryAfter(resp.Header); ok && wait > c.cfg.MaxRateLimitWait {
				return false, nil
			}
		}
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

func (c *Client) countAttempt(_ retryablehttp.Logger, req *http.Request, _ int) {
	n := int32(1)
	if p, ok := req.Context().Value(attemptsKey{}).(*int32); ok {
		n = atomic.AddInt32(p, 1)
	}
	if n > 1 {
		endpoint := endpointName(req.URL.RawQuery)
		c.metrics.IncRetry(endpoint)
		c.logger.Debug("retrying TestRail request", "endpoint", endpoint, "attempt", n)
	}
}

// get performs one logical GET against path ("/api/v2/...") and returns the
// body of a 200 response. Any other outcome is classified into a typed error.
func (c *Client) get(ctx context.Context, op, path string) ([]byte, error) {
	var attempts int32
	ctx = context.WithValue(ctx, attemptsKey{}, &attempts)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/index.php?"+path, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: building request: %w", op, err)
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	endpoint := endpointName(path)
	start := time.Now()
	resp, doErr := c.http.Do(req)
	n := int(atomic.LoadInt32(&attempts))

	if resp == nil {
		c.metrics.ObserveAPICall(endpoint, 0, time.Since(start))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", op, ctxErr)
		}
		return nil, &model.FetchError{Op: op, Attempts: n, Err: doErr}
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	c.metrics.ObserveAPICall(endpoint, resp.StatusCode, time.Since(start))

	if resp.StatusCode == http.StatusOK {
		if readErr != nil {
			return nil, &model.FetchError{Op: op, Attempts: n, StatusCode: resp.StatusCode, Err: readErr}
		}
		logRequest(c.logger, endpoint, n, resp)
		return body, nil
	}

	return nil, c.classify(op, resp, body, n)
}

// classify maps a non-200 response to a domain error.
func (c *Client) classify(op string, resp *http.Response, body []byte, attempts int) error {
	msg := errorMessage(body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &model.AuthError{Op: op, StatusCode: resp.StatusCode, Message: msg}
	case resp.StatusCode == http.StatusTooManyRequests:
		wait, _ := retryAfter(resp.Header)
		c.logger.Warn("TestRail rate limit not cleared",
			"op", op, "retry_after", wait, "max_wait", c.cfg.MaxRateLimitWait, "attempts", attempts)
		return &model.RateLimitError{Op: op, RetryAfter: wait, MaxWait: c.cfg.MaxRateLimitWait}
	case resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(msg), "not a valid"):
		return &model.NotFoundError{Kind: "resource", Name: op}
	default:
		return &model.FetchError{Op: op, Attempts: attempts, StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}
}

func logRequest(logger *slog.Logger, endpoint string, attempts int, resp *http.Response) {
	attrs := []any{"endpoint", endpoint, "attempts", attempts}
	if resp.Header.Get(httpcache.XFromCache) != "" {
		attrs = append(attrs, "cached", true)
	}
	logger.Debug("TestRail request completed", attrs...)
}

// errorMessage extracts TestRail's {"error": "..."} text, falling back to the
// raw body.
func errorMessage(body []byte) string {
	var e errorDTO
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	if s == "" {
		return "empty response"
	}
	return s
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(h http.Header) (time.Duration, bool) {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// endpointName returns the API method of a path, e.g. "get_runs" for
// "/api/v2/get_runs/9&offset=0".
func endpointName(path string) string {
	p := strings.TrimPrefix(path, "/api/v2/")
	if i := strings.IndexAny(p, "/&"); i >= 0 {
		p = p[:i]
	}
	return p
}

// getPaged collects the items under key across all pages of endpoint.
// Enveloped responses are followed through _links.next; bare arrays (older
// TestRail versions) are paged by offset until a short page. Collection stops
// early once limit items are held (limit <= 0 means no limit).
func getPaged[T any](ctx context.Context, c *Client, op, endpoint, key string, limit int) ([]T, error) {
	var all []T
	size := c.cfg.PageSize
	offset := 0
	path := fmt.Sprintf("/api/v2/%s&limit=%d&offset=0", endpoint, size)

	for page := 0; page < maxPages; page++ {
		body, err := c.get(ctx, op, path)
		if err != nil {
			return nil, fmt.Errorf("%s (page %d): %w", op, page, err)
		}

		items, next, bare, err := decodePage[T](body, key)
		if err != nil {
			return nil, &model.FetchError{Op: op, Attempts: 1, StatusCode: http.StatusOK, Err: fmt.Errorf("decoding page %d: %w", page, err)}
		}
		all = append(all, items...)

		if limit > 0 && len(all) >= limit {
			break
		}
		if bare {
			if len(items) < size {
				break
			}
			offset += len(items)
			path = fmt.Sprintf("/api/v2/%s&limit=%d&offset=%d", endpoint, size, offset)
			continue
		}
		if next == "" || next == path || len(items) == 0 {
			break
		}
		path = next
	}

	return all, nil
}

// decodePage accepts either a paged envelope or a bare JSON array.
func decodePage[T any](body []byte, key string) (items []T, next string, bare bool, err error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, "", false, errors.New("empty body")
	}

	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, "", true, err
		}
		return items, "", true, nil
	}

	var env map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, "", false, err
	}
	raw, ok := env[key]
	if !ok {
		return nil, "", false, fmt.Errorf("response has no %q field", key)
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, "", false, err
	}
	if l, ok := env["_links"]; ok {
		var links linksDTO
		if err := json.Unmarshal(l, &links); err == nil && links.Next != nil {
			next = *links.Next
		}
	}
	return items, next, false, nil
}

func (c *Client) getObject(ctx context.Context, op, endpoint string, v any) error {
	body, err := c.get(ctx, op, "/api/v2/"+endpoint)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &model.FetchError{Op: op, Attempts: 1, StatusCode: http.StatusOK, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
