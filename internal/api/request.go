package api

import (
	"net/url"
	"strconv"
)

// Request describes one API call. Build it with NewRequest and the
// request options; Client.Do executes it.
type Request struct {
	method    string
	path      string
	operation string
	query     url.Values
	body      any

	idempotencyKey   string
	reauthToken      string
	anonymous        bool
	noRetry          bool
	noRateLimitRetry bool
}

// RequestOption configures a Request.
type RequestOption func(*Request)

// NewRequest creates a request. operation is a stable low-cardinality name
// ("sessions.list") used for metrics and traces; path is the concrete URL
// path with segments already escaped.
func NewRequest(operation, method, path string, opts ...RequestOption) *Request {
	r := &Request{
		method:    method,
		path:      path,
		operation: operation,
		query:     url.Values{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// WithJSON sets the request body, encoded as JSON.
func WithJSON(body any) RequestOption {
	return func(r *Request) { r.body = body }
}

// WithQuery adds a query parameter.
func WithQuery(key, value string) RequestOption {
	return func(r *Request) { r.query.Add(key, value) }
}

// WithPage adds cursor or offset pagination parameters.
func WithPage(p Page) RequestOption {
	return func(r *Request) {
		if p.Cursor != "" {
			r.query.Set("cursor", p.Cursor)
		} else if p.Offset > 0 {
			r.query.Set("offset", strconv.Itoa(p.Offset))
		}
		if p.Limit > 0 {
			r.query.Set("limit", strconv.Itoa(p.Limit))
		}
	}
}

// WithIdempotencyKey attaches the idempotency key for a mutation. The key
// identifies one logical user action: it survives transparent retries and
// is never shared between actions.
func WithIdempotencyKey(key string) RequestOption {
	return func(r *Request) { r.idempotencyKey = key }
}

// WithReauth attaches a step-up token obtained from a recent password or
// passcode confirmation. Destructive operations require it.
func WithReauth(token string) RequestOption {
	return func(r *Request) { r.reauthToken = token }
}

// WithAnonymous skips the Authorization header and the refresh-on-401
// path. Login and token refresh use it to avoid recursing into
// themselves.
func WithAnonymous() RequestOption {
	return func(r *Request) { r.anonymous = true }
}

// WithNoRetry disables all transparent retries for this request.
func WithNoRetry() RequestOption {
	return func(r *Request) { r.noRetry = true }
}

// WithNoRateLimitRetry surfaces 429 responses immediately instead of
// waiting out the Retry-After window. Credential submissions use it so a
// throttled login shows the user an error rather than silently hammering
// the endpoint.
func WithNoRateLimitRetry() RequestOption {
	return func(r *Request) { r.noRateLimitRetry = true }
}

// url renders the path plus encoded query string.
func (r *Request) url() string {
	if len(r.query) == 0 {
		return r.path
	}
	return r.path + "?" + r.query.Encode()
}
