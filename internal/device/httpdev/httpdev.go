// Package httpdev bridges a device reachable over HTTP: the payload is posted
// as JSON to the device's configured address. Vendor bridges (bHaptics local
// player, Aromajoin controller, AR companion apps) expose exactly this kind
// of ingestion endpoint.
package httpdev

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/modernreader/sensoria/internal/device"
	"github.com/modernreader/sensoria/internal/fault"
	"github.com/modernreader/sensoria/pkg/types"
)

var _ device.Port = (*Port)(nil)

// Port posts payloads to a single device endpoint.
type Port struct {
	addr   string
	client *http.Client
}

// Option is a functional option for [New].
type Option func(*Port)

// WithClient overrides the HTTP client (tests inject an httptest client).
func WithClient(c *http.Client) Option {
	return func(p *Port) { p.client = c }
}

// New creates a port posting to addr. addr must be non-empty.
func New(addr string, opts ...Option) (*Port, error) {
	if addr == "" {
		return nil, fault.New(fault.InvalidArgument, "httpdev: addr must not be empty")
	}
	p := &Port{addr: addr, client: &http.Client{}}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Send posts the payload as JSON. Status codes map onto the error taxonomy
// so the fan-out retries only transient failures: 408/5xx are transient,
// 401/403 permanent, 422 incompatible, any other 4xx invalid_argument.
func (p *Port) Send(ctx context.Context, payload types.SensoryPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fault.Wrap(fault.Internal, err, "httpdev: encode payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.addr, bytes.NewReader(body))
	if err != nil {
		return fault.Wrap(fault.Internal, err, "httpdev: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fault.Wrap(fault.Timeout, err, "httpdev: send to %s", p.addr)
		}
		return fault.Wrap(fault.UpstreamUnavailable, err, "httpdev: send to %s", p.addr)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fault.New(fault.Unauthorized, "httpdev: device rejected credentials (%d)", resp.StatusCode)
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return fault.New(fault.Incompatible, "httpdev: device cannot consume payload")
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= 500:
		return fault.New(fault.UpstreamUnavailable, "httpdev: device returned %d", resp.StatusCode)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// The device rejected the request; retrying the same payload
		// cannot succeed.
		return fault.New(fault.InvalidArgument, "httpdev: device rejected payload (%d)", resp.StatusCode)
	default:
		return fault.New(fault.Internal, "httpdev: unexpected status %d", resp.StatusCode)
	}
}
