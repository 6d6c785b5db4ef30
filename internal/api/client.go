// Package api implements the REST transport every resource service goes
// through: request shaping, authentication headers, idempotency keys,
// retry classification, and tolerant response decoding.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"moviesnow/internal/api/metrics"
	"moviesnow/internal/api/tracer"
	"moviesnow/pkg/apierror"
)

// TokenSource supplies the bearer token for authenticated requests.
// Implementations must be safe for concurrent use.
type TokenSource interface {
	// Token returns the current access token. An empty token with a nil
	// error means the caller is anonymous.
	Token(ctx context.Context) (string, error)

	// Refresh obtains a fresh access token after the server rejected the
	// current one. Implementations are expected to collapse concurrent
	// refreshes into a single flight.
	Refresh(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource for a fixed token, used by tests and
// service accounts that have no refresh credential.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error)   { return string(t), nil }
func (t StaticToken) Refresh(context.Context) (string, error) { return string(t), nil }

// Client is the shared HTTP transport. Construct it once and hand it to
// every resource service; it is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     tracer.Tracer
	metrics    *metrics.Metrics
	tokens     TokenSource
	retry      RetryPolicy
	userAgent  string
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client (for testing or custom
// transports).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTracer sets the tracer used to wrap each request in a span.
func WithTracer(t tracer.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// WithMetrics sets the Prometheus collectors for transport observations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithTokenSource sets the source of bearer tokens.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient creates a transport rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:     tracer.NewNoop(),
		retry:      DefaultRetryPolicy(),
		userAgent:  "moviesnow-go/1.0",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// SetTokenSource installs the token source after construction. The auth
// session needs the client to perform its refresh call, so the two are
// wired in this order.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.tokens = ts
}

// BaseURL returns the configured API root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// NewIdempotencyKey returns a fresh key for one logical mutation attempt.
// The same key must be reused for every network retry of that attempt and
// must never be reused across distinct user actions.
func NewIdempotencyKey() string {
	return uuid.New().String()
}

// Do executes the request and decodes a JSON response into out. A 204 or
// empty body leaves out at its zero value. out may be nil when the caller
// does not care about the body.
func (c *Client) Do(ctx context.Context, req *Request, out any) error {
	ctx, span := c.tracer.Start(ctx, tracer.SpanRequest,
		tracer.String(tracer.AttrMethod, req.method),
		tracer.String(tracer.AttrPath, req.operation),
		tracer.Bool(tracer.AttrIdempotent, req.idempotencyKey != ""),
	)
	start := time.Now()

	var body []byte
	if req.body != nil {
		var err error
		body, err = json.Marshal(req.body)
		if err != nil {
			wrapped := apierror.Wrap(err, apierror.CodeInternal, "failed to encode request body")
			span.End(wrapped)
			return wrapped
		}
	}

	status, err := c.doWithRetry(ctx, span, req, body, out)

	if c.metrics != nil {
		c.metrics.ObserveRequest(req.method, req.operation, statusClass(status, err), float64(time.Since(start).Milliseconds()))
		if err != nil {
			c.metrics.IncrementError(req.operation, string(apierror.CodeOf(err)))
		}
	}
	span.SetAttributes(tracer.Int(tracer.AttrStatus, status))
	span.End(err)
	return err
}

// doWithRetry runs the attempt loop. It returns the last HTTP status seen
// (0 when no response arrived) alongside the final error.
func (c *Client) doWithRetry(ctx context.Context, span tracer.Span, req *Request, body []byte, out any) (int, error) {
	var (
		lastStatus int
		refreshed  bool
	)

	for attempt := 0; ; attempt++ {
		span.SetAttributes(tracer.Int(tracer.AttrAttempt, attempt+1))

		status, retryAfter, err := c.attempt(ctx, req, body, out)
		lastStatus = status
		if err == nil {
			return status, nil
		}
		if ctx.Err() != nil {
			return lastStatus, contextError(ctx)
		}

		// A rejected token gets one refresh-and-retry, independent of the
		// retry budget. Anonymous requests (login, refresh itself) skip it.
		if status == http.StatusUnauthorized && !req.anonymous && !refreshed && c.tokens != nil && !apierror.HasCode(err, apierror.CodeMFARequired) {
			refreshed = true
			if _, refreshErr := c.tokens.Refresh(ctx); refreshErr == nil {
				span.AddEvent(tracer.EventTokenRefreshed)
				if c.metrics != nil {
					c.metrics.IncrementTokenRefreshes()
				}
				continue
			}
			// Refresh failed: surface the original unauthorized error.
			return lastStatus, err
		}

		if !c.shouldRetry(req, err, attempt) {
			return lastStatus, err
		}

		delay := c.retry.Delay(attempt, retryAfter)
		span.AddEvent(tracer.EventRetryScheduled, tracer.Duration("delay", delay))
		if c.metrics != nil {
			c.metrics.IncrementRetry(string(apierror.CodeOf(err)))
		}
		c.logger.DebugContext(ctx, "retrying request",
			"operation", req.operation,
			"attempt", attempt+1,
			"delay_ms", delay.Milliseconds(),
			"code", string(apierror.CodeOf(err)),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastStatus, contextError(ctx)
		case <-timer.C:
		}
	}
}

// shouldRetry applies the classification from the retry policy: transient
// failures retry while budget remains, everything else surfaces at once.
func (c *Client) shouldRetry(req *Request, err error, attempt int) bool {
	if req.noRetry || attempt >= c.retry.MaxRetries {
		return false
	}
	if apierror.HasCode(err, apierror.CodeRateLimited) && req.noRateLimitRetry {
		return false
	}
	return apierror.Retryable(err)
}

// attempt performs a single network exchange.
func (c *Client) attempt(ctx context.Context, req *Request, body []byte, out any) (status int, retryAfter time.Duration, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.url(), bytes.NewReader(body))
	if err != nil {
		return 0, 0, apierror.Wrap(err, apierror.CodeInternal, "failed to create request")
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("X-Request-ID", uuid.New().String())
	if len(body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.idempotencyKey != "" {
		httpReq.Header.Set(HeaderIdempotencyKey, req.idempotencyKey)
	}
	if req.reauthToken != "" {
		httpReq.Header.Set(HeaderReauthToken, req.reauthToken)
	}
	if !req.anonymous && c.tokens != nil {
		token, tokenErr := c.tokens.Token(ctx)
		if tokenErr != nil {
			return 0, 0, apierror.Wrap(tokenErr, apierror.CodeUnauthorized, "no access token available")
		}
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return 0, 0, contextError(ctx)
		}
		return 0, 0, apierror.Wrap(err, apierror.CodeNetwork, "request failed")
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, 0, apierror.Wrap(err, apierror.CodeNetwork, "failed to read response body")
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(raw)) == 0 {
			return resp.StatusCode, 0, nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, 0, apierror.Wrap(err, apierror.CodeInternal,
				fmt.Sprintf("failed to decode %s response", req.operation))
		}
		return resp.StatusCode, 0, nil
	}

	return resp.StatusCode, parseRetryAfter(resp.Header.Get("Retry-After")), decodeError(resp, raw)
}

// contextError distinguishes deadline expiry from explicit cancellation.
func contextError(ctx context.Context) error {
	if ctx.Err() == context.DeadlineExceeded {
		return apierror.Wrap(ctx.Err(), apierror.CodeTimeout, "request timed out")
	}
	return apierror.Wrap(ctx.Err(), apierror.CodeNetwork, "request cancelled")
}

// statusClass buckets a status for the duration histogram.
func statusClass(status int, err error) string {
	switch {
	case status == 0 && err != nil:
		return "error"
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// maxResponseBytes caps response reads; the API never returns bodies
// anywhere near this size.
const maxResponseBytes = 8 << 20

// Headers the MoviesNow API contracts on.
const (
	HeaderIdempotencyKey = "X-Idempotency-Key"
	HeaderReauthToken    = "X-Reauth-Token"
)
