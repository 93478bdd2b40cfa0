package client

import (
	"net/http"
	"net/url"
	"time"
)

type requestOptions struct {
	header  http.Header
	query   url.Values
	timeout time.Duration
}

// RequestOption overrides the defaults for a single request.
type RequestOption func(*requestOptions)

// WithHeader sets a request header. Headers set here replace the defaults,
// except for Authorization which always follows the session.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		o.header.Set(key, value)
	}
}

// WithTimeout overrides the client timeout. Zero disables the timeout and
// leaves cancellation to the context.
func WithTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) {
		o.timeout = d
	}
}

// WithQuery adds a query parameter. Empty values are skipped.
func WithQuery(key, value string) RequestOption {
	return func(o *requestOptions) {
		if value != "" {
			o.query.Add(key, value)
		}
	}
}
