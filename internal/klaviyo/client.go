package klaviyo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/revlens/attribution/internal/config"
	"github.com/revlens/attribution/internal/metrics"
)

// ErrNoData marks calls that completed without yielding a usable payload:
// non-success responses other than throttling, and transport failures.
// Callers treat it as a soft stop, not a crash.
var ErrNoData = errors.New("klaviyo: no data")

// apiError is a non-success API response. It matches ErrNoData so callers
// can soft-stop without inspecting the details.
type apiError struct {
	endpoint string
	status   int
	body     string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("klaviyo: %s returned %d: %s", e.endpoint, e.status, e.body)
}

func (e *apiError) Is(target error) bool {
	return target == ErrNoData
}

// transportError is a connection-level failure. It also matches ErrNoData.
type transportError struct {
	endpoint string
	cause    error
}

func (e *transportError) Error() string {
	return fmt.Sprintf("klaviyo: request to %s failed: %v", e.endpoint, e.cause)
}

func (e *transportError) Unwrap() error { return e.cause }

func (e *transportError) Is(target error) bool {
	return target == ErrNoData
}

// SleepFunc suspends for d or returns early with ctx.Err() on cancellation.
// Injected so throttling backoff is testable without real delays.
type SleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Request is one logical operation against the API.
type Request struct {
	Method string
	Path   string
	Query  map[string]string
	Body   any
}

// Page is the standard response envelope. Data is kept raw because its
// shape varies per resource; Links.Next drives pagination.
type Page struct {
	Data  json.RawMessage `json:"data"`
	Links PageLinks       `json:"links"`
}

// PageLinks holds the cursor-linked pagination URLs. A null or absent
// "next" decodes to the empty string and is terminal.
type PageLinks struct {
	Next string `json:"next"`
}

// Records decodes the data array into individual raw records. A page whose
// data is absent, null or not an array yields no records, which pagination
// treats as the end of the collection.
func (p *Page) Records() []json.RawMessage {
	if len(p.Data) == 0 {
		return nil
	}
	var records []json.RawMessage
	if err := json.Unmarshal(p.Data, &records); err != nil {
		return nil
	}
	return records
}

// Client issues rate-limit-aware requests against the analytics API.
// On throttling it waits the server-advised duration and retries the same
// operation indefinitely; every other failure resolves to ErrNoData.
type Client struct {
	httpClient *http.Client
	cfg        config.KlaviyoConfig
	logger     *zap.Logger
	metrics    *metrics.Metrics
	sleep      SleepFunc
}

// NewClient constructs a Client. metrics may be nil.
func NewClient(cfg config.KlaviyoConfig, logger *zap.Logger, m *metrics.Metrics) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
		sleep:      defaultSleep,
	}
}

// Do executes one logical request. The call may block across any number
// of throttle-wait cycles; cancellation is honored through ctx.
func (c *Client) Do(ctx context.Context, req Request) (*Page, error) {
	for {
		page, retryAfter, err := c.attempt(ctx, req)
		if err != nil {
			return nil, err
		}
		if retryAfter <= 0 {
			return page, nil
		}

		c.logger.Warn("rate limit reached, backing off",
			zap.String("endpoint", req.Path),
			zap.Duration("wait", retryAfter),
		)
		if c.metrics != nil {
			c.metrics.ThrottleWaits.WithLabelValues(req.Path).Inc()
			c.metrics.ThrottleWaitTime.Add(retryAfter.Seconds())
		}
		if err := c.sleep(ctx, retryAfter); err != nil {
			return nil, err
		}
	}
}

// attempt performs a single HTTP round trip. A positive retryAfter means
// the server throttled us and the caller should wait and go again.
func (c *Client) attempt(ctx context.Context, req Request) (page *Page, retryAfter time.Duration, err error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	url := c.cfg.BaseURL + "/" + strings.TrimPrefix(req.Path, "/")

	var body io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, 0, fmt.Errorf("klaviyo: encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, 0, fmt.Errorf("klaviyo: build request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Klaviyo-API-Key "+c.cfg.APIKey)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("revision", c.cfg.Revision)
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	if len(req.Query) > 0 {
		q := httpReq.URL.Query()
		for k, v := range req.Query {
			q.Set(k, v)
		}
		httpReq.URL.RawQuery = q.Encode()
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		c.logger.Error("API request failed",
			zap.String("endpoint", req.Path),
			zap.Error(err),
		)
		c.observe(req.Path, "transport_error", start)
		return nil, 0, &transportError{endpoint: req.Path, cause: err}
	}
	defer resp.Body.Close()

	c.observe(req.Path, strconv.Itoa(resp.StatusCode), start)

	if resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, resp.Body)
		return nil, c.retryAfter(resp), nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("API error response",
			zap.String("endpoint", req.Path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", raw),
		)
		return nil, 0, &apiError{endpoint: req.Path, status: resp.StatusCode, body: string(raw)}
	}

	var decoded Page
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		c.logger.Error("failed to decode API response",
			zap.String("endpoint", req.Path),
			zap.Error(err),
		)
		return nil, 0, &transportError{endpoint: req.Path, cause: err}
	}

	return &decoded, 0, nil
}

// retryAfter reads the server-advised wait from a throttling response.
func (c *Client) retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return c.cfg.DefaultRetryAfter
}

func (c *Client) observe(endpoint, status string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.APIRequests.WithLabelValues(endpoint, status).Inc()
	c.metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
