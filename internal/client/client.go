package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/internportal/internal/logger"
	"github.com/wolfeidau/internportal/internal/session"
	"github.com/wolfeidau/internportal/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "github.com/wolfeidau/internportal/internal/client"

	// APIPrefix is the path prefix carried by every portal endpoint.
	APIPrefix = "/api/v1"
)

// Config holds common client configuration
type Config struct {
	// Origin is used to resolve a relative BaseURL.
	Origin   string
	BaseURL  string
	Timeout  time.Duration
	Debug    bool
	Cache    bool
	CacheDir string
}

// DefaultConfig returns a default client configuration
func DefaultConfig() Config {
	return Config{
		Origin:  "http://localhost:8080",
		BaseURL: APIPrefix,
		Timeout: 15 * time.Second,
	}
}

// Client calls the portal API on behalf of the session held in its State.
// It is safe for concurrent use.
type Client struct {
	cfg        Config
	base       *url.URL
	httpClient *http.Client
	state      *session.State
	logger     zerolog.Logger
	metrics    *telemetry.Metrics
	tracer     trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Caching and debug
// logging from Config are not applied to it.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger used when the request context carries none.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a client. A nil state is replaced with an empty one.
func New(cfg Config, state *session.State, opts ...Option) (*Client, error) {
	base, err := resolveBase(cfg.Origin, cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	if state == nil {
		state = session.NewState()
	}

	c := &Client{
		cfg:     cfg,
		base:    base,
		state:   state,
		logger:  log.Logger,
		metrics: telemetry.GetMetrics(),
		tracer:  otel.Tracer(tracerName),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Transport: c.transport()}
	}

	return c, nil
}

func (c *Client) transport() http.RoundTripper {
	var rt http.RoundTripper = http.DefaultTransport
	if c.cfg.Cache {
		rt = NewCachingTransport(rt, c.cfg.CacheDir)
	}
	if c.cfg.Debug {
		rt = logger.NewRoundTripper(c.logger, rt)
	}
	return rt
}

// State returns the session state the client authenticates with.
func (c *Client) State() *session.State {
	return c.state
}

// BaseURL returns the resolved base URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// WithState returns a copy of the client bound to another session state. The
// copy shares the HTTP client and its transport.
func (c *Client) WithState(state *session.State) *Client {
	cp := *c
	cp.state = state
	return &cp
}

// Do performs a request and returns the unwrapped response payload.
//
// A 401 response destroys the session that was sent with the request, unless
// it was already replaced by a newer login.
func (c *Client) Do(ctx context.Context, method, path string, body any, opts ...RequestOption) (json.RawMessage, error) {
	ro := requestOptions{
		header:  http.Header{},
		query:   url.Values{},
		timeout: c.cfg.Timeout,
	}
	for _, opt := range opts {
		opt(&ro)
	}

	target, err := c.resolve(path, ro.query)
	if err != nil {
		return nil, fmt.Errorf("invalid request path %q: %w", path, err)
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	if ro.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ro.timeout)
		defer cancel()
	}

	ctx, span := c.tracer.Start(ctx, method+" "+path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", target.Path),
		),
	)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range ro.header {
		req.Header[key] = values
	}

	sess := c.state.Session()
	req = BeforeSend(req, sess)

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		apiErr := &APIError{Kind: KindNetwork, Err: err}
		c.fail(ctx, span, req, apiErr, started)
		return nil, apiErr
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	payload, err := OnResponse(resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Kind == KindUnauthorized && sess != nil {
			if c.state.Invalidate(sess) {
				c.metrics.SessionInvalidations.Add(ctx, 1)
			}
		}
		c.fail(ctx, span, req, err, started)
		return nil, err
	}

	c.record(ctx, method, time.Since(started))
	return payload, nil
}

func (c *Client) fail(ctx context.Context, span trace.Span, req *http.Request, err error, started time.Time) {
	elapsed := time.Since(started)
	kind := KindOf(err)

	span.RecordError(err)
	span.SetStatus(codes.Error, kind.String())

	c.record(ctx, req.Method, elapsed)
	c.metrics.ClientErrorsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", req.Method),
		attribute.String("kind", kind.String()),
	))

	var status int
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		status = apiErr.Status
	}

	lg := c.log(ctx)
	evt := lg.Error()
	msg := "portal api response error"
	if kind == KindNetwork && status == 0 {
		evt = lg.Warn()
		msg = "portal api request failed"
	}

	evt.Err(err).
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Str("request_id", req.Header.Get(HeaderRequestID)).
		Int("status", status).
		Str("kind", kind.String()).
		Dur("duration", elapsed).
		Msg(msg)
}

func (c *Client) record(ctx context.Context, method string, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("method", method))
	c.metrics.ClientRequestsTotal.Add(ctx, 1, attrs)
	c.metrics.ClientRequestDuration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
}

func (c *Client) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &c.logger
}

// resolve joins path onto the base URL. Absolute URLs are used as given. When
// the base already ends in the API prefix, a leading prefix on path is dropped.
func (c *Client) resolve(path string, query url.Values) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, err
	}

	var u *url.URL
	if ref.IsAbs() {
		u = ref
	} else {
		p := ref.Path
		if strings.HasSuffix(strings.TrimSuffix(c.base.Path, "/"), APIPrefix) &&
			(p == APIPrefix || strings.HasPrefix(p, APIPrefix+"/")) {
			p = strings.TrimPrefix(p, APIPrefix)
		}
		u = c.base.JoinPath(p)
		u.RawQuery = ref.RawQuery
	}

	if len(query) > 0 {
		q := u.Query()
		for key, values := range query {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	return u, nil
}

func resolveBase(origin, base string) (*url.URL, error) {
	if base == "" {
		base = APIPrefix
	}

	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", base, err)
	}
	if u.IsAbs() {
		return u, nil
	}

	if origin == "" {
		origin = DefaultConfig().Origin
	}
	o, err := url.Parse(origin)
	if err != nil || !o.IsAbs() {
		return nil, fmt.Errorf("invalid origin %q: base url %q is relative", origin, base)
	}

	return o.ResolveReference(u), nil
}

// Get performs a GET request and decodes the payload into T.
func Get[T any](ctx context.Context, c *Client, path string, opts ...RequestOption) (T, error) {
	return call[T](ctx, c, http.MethodGet, path, nil, opts)
}

// Post performs a POST request with body encoded as JSON.
func Post[T any](ctx context.Context, c *Client, path string, body any, opts ...RequestOption) (T, error) {
	return call[T](ctx, c, http.MethodPost, path, body, opts)
}

// Put performs a PUT request with body encoded as JSON.
func Put[T any](ctx context.Context, c *Client, path string, body any, opts ...RequestOption) (T, error) {
	return call[T](ctx, c, http.MethodPut, path, body, opts)
}

// Delete performs a DELETE request.
func Delete[T any](ctx context.Context, c *Client, path string, opts ...RequestOption) (T, error) {
	return call[T](ctx, c, http.MethodDelete, path, nil, opts)
}

func call[T any](ctx context.Context, c *Client, method, path string, body any, opts []RequestOption) (T, error) {
	raw, err := c.Do(ctx, method, path, body, opts...)
	if err != nil {
		var zero T
		return zero, err
	}

	v, err := decode[T](raw)
	if err != nil {
		c.log(ctx).Error().Err(err).
			Str("method", method).
			Str("path", path).
			Msg("portal api response could not be decoded")
		return v, err
	}
	return v, nil
}

