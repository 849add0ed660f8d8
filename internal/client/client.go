// Package client wraps the pharmacy backend REST API.
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
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/robertguss/rxflow-go/internal/tracing"
)

// DefaultTimeout bounds every request
const DefaultTimeout = 15 * time.Second

// ErrUnauthorized is returned for HTTP 401. If a token was sent it has
// already been cleared when this is returned.
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-2xx response from the backend
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the backend
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to the pharmacy backend
type Client struct {
	baseURL string
	http    *http.Client
	tracer  trace.Tracer
	logger  *logrus.Entry

	mu             sync.RWMutex
	token          string
	onUnauthorized []func()
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithToken sets the initial bearer token
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTracer sets the tracer used for request spans
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) { c.tracer = tracer }
}

// WithLogger sets the logger
func WithLogger(logger *logrus.Entry) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client for the API rooted at baseURL
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracer == nil {
		c.tracer = tracing.Tracer()
	}
	if c.logger == nil {
		c.logger = logrus.WithField("module", "client")
	}
	return c
}

// BaseURL returns the API root
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetToken sets the bearer token sent with every request
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current bearer token
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// OnUnauthorized registers fn to run after a 401 clears the token
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = append(c.onUnauthorized, fn)
}

// Ping checks that the backend answers at all. Any status below 500 counts.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return &APIError{StatusCode: resp.StatusCode}
	}
	return nil
}

// do sends a JSON request and decodes the JSON response into out (if non-nil)
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "client."+strings.ToLower(method),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(tracing.HTTPMethodKey, method),
			attribute.String(tracing.HTTPPathKey, path),
		),
	)
	defer func() { tracing.End(span, err) }()

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token := c.Token()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int(tracing.HTTPStatusKey, resp.StatusCode))
	c.logger.WithFields(logrus.Fields{
		"method":   method,
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("API request")

	if resp.StatusCode == http.StatusUnauthorized {
		if token != "" {
			c.invalidate()
		}
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: readErrorMessage(resp.Body)}
		c.logger.WithFields(logrus.Fields{"status": apiErr.StatusCode, "path": path}).
			Warn("API error: " + apiErr.Message)
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// invalidate clears the token and notifies listeners outside the lock
func (c *Client) invalidate() {
	c.mu.Lock()
	c.token = ""
	listeners := make([]func(), len(c.onUnauthorized))
	copy(listeners, c.onUnauthorized)
	c.mu.Unlock()

	c.logger.Warn("Backend rejected credentials, token cleared")
	for _, fn := range listeners {
		fn()
	}
}

// readErrorMessage extracts {"message": ...} or {"error": ...}, falling back to the raw body
func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil || len(data) == 0 {
		return ""
	}

	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(data))
}
