package agent

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/modernreader/sensoria/internal/fault"
)

// HTTPConnector exposes http.get and http.post against one base URL, with
// connector-level retries on transient failures.
type HTTPConnector struct {
	name      string
	baseURL   string
	policy    RetryPolicy
	client    *http.Client
	connected atomic.Bool
}

var _ Connector = (*HTTPConnector)(nil)

// HTTPOption is a functional option for [NewHTTP].
type HTTPOption func(*HTTPConnector)

// WithHTTPPolicy overrides the retry policy.
func WithHTTPPolicy(p RetryPolicy) HTTPOption {
	return func(c *HTTPConnector) { c.policy = p }
}

// WithHTTPClientOverride overrides the HTTP client, used by tests.
func WithHTTPClientOverride(client *http.Client) HTTPOption {
	return func(c *HTTPConnector) { c.client = client }
}

// NewHTTP creates an HTTP connector named name against baseURL.
func NewHTTP(name, baseURL string, opts ...HTTPOption) (*HTTPConnector, error) {
	if name == "" || baseURL == "" {
		return nil, fault.New(fault.InvalidArgument, "agent: http connector needs name and baseURL")
	}
	c := &HTTPConnector{
		name:    name,
		baseURL: baseURL,
		policy:  DefaultRetryPolicy(),
		client:  &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *HTTPConnector) Name() string        { return c.name }
func (c *HTTPConnector) Policy() RetryPolicy { return c.policy }

// Connect marks the connector usable. HTTP needs no handshake.
func (c *HTTPConnector) Connect(context.Context) error {
	c.connected.Store(true)
	return nil
}

// Disconnect closes idle connections.
func (c *HTTPConnector) Disconnect(context.Context) error {
	c.connected.Store(false)
	c.client.CloseIdleConnections()
	return nil
}

// Get performs http.get against path and returns the response body.
func (c *HTTPConnector) Get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, "", nil)
}

// Post performs http.post against path and returns the response body.
func (c *HTTPConnector) Post(ctx context.Context, path, contentType string, body []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, contentType, body)
}

func (c *HTTPConnector) do(ctx context.Context, method, path, contentType string, body []byte) ([]byte, error) {
	if !c.connected.Load() {
		return nil, fault.New(fault.Internal, "agent: http connector %q is not connected", c.name)
	}

	attempts := 0
	for {
		attempts++
		data, err := c.attempt(ctx, method, path, contentType, body)
		if err == nil {
			return data, nil
		}
		if !fault.KindOf(err).IsTransient() || attempts > c.policy.MaxRetries {
			return nil, err
		}
		if err := sleepRetry(ctx, c.policy, attempts); err != nil {
			return nil, fault.Wrap(fault.Timeout, err, "agent: http %s retry aborted", c.name)
		}
	}
}

func (c *HTTPConnector) attempt(ctx context.Context, method, path, contentType string, body []byte) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.policy.Timeout())
	defer cancel()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fault.Wrap(fault.Internal, err, "agent: build %s %s", method, path)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if attemptCtx.Err() != nil {
			return nil, fault.Wrap(fault.Timeout, err, "agent: %s %s", method, path)
		}
		return nil, fault.Wrap(fault.UpstreamUnavailable, err, "agent: %s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.Wrap(fault.UpstreamUnavailable, err, "agent: read %s %s", method, path)
	}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= 500:
		return nil, fault.New(fault.UpstreamUnavailable, "agent: %s %s returned %d", method, path, resp.StatusCode)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fault.New(fault.Unauthorized, "agent: %s %s returned %d", method, path, resp.StatusCode)
	default:
		return nil, fault.New(fault.Internal, "agent: %s %s returned %d", method, path, resp.StatusCode)
	}
}
