// Package api is the HTTP client for the analytics backend that publishes raw
// option Greek samples, handles login and serves the admin console.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"greeks-dashboard/internal/errors"
	"greeks-dashboard/internal/logging"
	"greeks-dashboard/internal/resilience"
	"greeks-dashboard/pkg/utils"
)

const maxErrorBody = 4096

// Option configures a Client.
type Option func(*Client)

// Client talks to the analytics backend. Create one per process and pass it
// to whoever needs it.
type Client struct {
	baseURL      *url.URL
	http         *http.Client
	timeout      time.Duration
	interceptors []Interceptor
	limiter      *rate.Limiter
	breaker      *resilience.CircuitBreaker
	retry        utils.RetryConfig
	logger       zerolog.Logger
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.NewConfigError("backend.url", baseURL, "must be an absolute URL", nil)
	}

	c := &Client{
		baseURL: u,
		timeout: 15 * time.Second,
		retry:   utils.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	if c.breaker == nil {
		cfg := resilience.DefaultCircuitBreakerConfig()
		cfg.IsFailure = IsTransient
		c.breaker = resilience.NewCircuitBreaker("backend", cfg)
	}
	c.retry.Retryable = IsTransient

	return c, nil
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithInterceptor appends a request interceptor. Interceptors run in order.
func WithInterceptor(i Interceptor) Option {
	return func(c *Client) {
		c.interceptors = append(c.interceptors, i)
	}
}

// WithRateLimit caps outbound requests per second. rps <= 0 disables the limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCircuitBreaker sets the breaker guarding every call.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *Client) {
		c.breaker = cb
	}
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(cfg utils.RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// WithLogger sets the logger used for API call tracing.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Breaker exposes the circuit breaker for health checks.
func (c *Client) Breaker() *resilience.CircuitBreaker {
	return c.breaker
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// request describes one backend call.
type request struct {
	method string
	path   string
	query  url.Values
	body   interface{}
}

// do runs req with retry, circuit breaking and rate limiting, decoding the
// JSON response into dest when dest is non-nil.
func (c *Client) do(ctx context.Context, req request, dest interface{}) error {
	raw, err := utils.RetryWithResult(ctx, c.retry, func() ([]byte, error) {
		return resilience.ExecuteWithResult(c.breaker, ctx, func(ctx context.Context) ([]byte, error) {
			return c.attempt(ctx, req)
		})
	})
	if err != nil {
		return err
	}
	if dest == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return errors.NewDataError("response", req.path, "decode json", err)
	}
	return nil
}

func (c *Client) attempt(ctx context.Context, req request) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(errors.ErrRateLimited, err.Error())
		}
	}

	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	for _, i := range c.interceptors {
		if err := i.Intercept(httpReq); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		err = classifyTransportError(ctx, err)
		logging.LogAPICall(c.logger, req.method, req.path, 0, time.Since(start), err)
		return nil, err
	}
	defer resp.Body.Close()

	for _, i := range c.interceptors {
		if o, ok := i.(ResponseObserver); ok {
			o.Observe(httpReq, resp.StatusCode)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := statusError(resp.StatusCode, req.path, body)
		logging.LogAPICall(c.logger, req.method, req.path, resp.StatusCode, time.Since(start), apiErr)
		return nil, apiErr
	}

	body, err := io.ReadAll(resp.Body)
	logging.LogAPICall(c.logger, req.method, req.path, resp.StatusCode, time.Since(start), err)
	if err != nil {
		return nil, errors.Wrap(errors.ErrConnectionFailed, err.Error())
	}
	return body, nil
}

func (c *Client) buildRequest(ctx context.Context, req request) (*http.Request, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + req.path
	if len(req.query) > 0 {
		u.RawQuery = req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("marshal json: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if id := logging.RequestIDFromContext(ctx); id != "" {
		httpReq.Header.Set("X-Request-ID", id)
	}
	return httpReq, nil
}

func classifyTransportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Wrap(errors.ErrTimeout, err.Error())
	}
	return errors.Wrap(errors.ErrConnectionFailed, err.Error())
}

// statusError maps a non-2xx answer onto the domain sentinels.
func statusError(status int, path string, body []byte) *errors.APIError {
	var sentinel error
	switch {
	case status == http.StatusUnauthorized:
		sentinel = errors.ErrNotAuthenticated
	case status == http.StatusForbidden:
		sentinel = errors.ErrForbidden
	case status == http.StatusNotFound:
		sentinel = errors.ErrDataNotFound
	case status == http.StatusTooManyRequests:
		sentinel = errors.ErrRateLimited
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		sentinel = errors.ErrInputValidation
	case status >= 500:
		sentinel = errors.ErrConnectionFailed
	}
	return errors.NewAPIError(status, path, errorMessage(body), sentinel)
}

// errorMessage extracts a human message from common error bodies.
func errorMessage(body []byte) string {
	var payload struct {
		Detail  interface{} `json:"detail"`
		Message string      `json:"message"`
		Error   string      `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Message != "":
			return payload.Message
		case payload.Error != "":
			return payload.Error
		case payload.Detail != nil:
			if s, ok := payload.Detail.(string); ok {
				return s
			}
			b, _ := json.Marshal(payload.Detail)
			return string(b)
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

// IsTransient reports whether retrying err may succeed: network failures,
// timeouts and 5xx answers. Client errors and auth failures are final.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *errors.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}
	return errors.Is(err, errors.ErrConnectionFailed) || errors.Is(err, errors.ErrTimeout)
}
