package agent

import (
	"context"
	"time"
)

// RetryPolicy shapes a connector's retries and timeouts. Retries and
// timeouts are connector-level concerns: agents never re-implement them.
type RetryPolicy struct {
	TimeoutMS        int     `json:"timeout_ms" yaml:"timeout_ms"`
	MaxRetries       int     `json:"max_retries" yaml:"max_retries"`
	BackoffInitialMS int     `json:"backoff_initial_ms" yaml:"backoff_initial_ms"`
	BackoffFactor    float64 `json:"backoff_factor" yaml:"backoff_factor"`
}

// DefaultRetryPolicy matches the device fan-out defaults: 2 s attempts,
// 200 ms initial backoff doubling, two retries.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		TimeoutMS:        2000,
		MaxRetries:       2,
		BackoffInitialMS: 200,
		BackoffFactor:    2.0,
	}
}

// Timeout returns the per-attempt timeout as a duration.
func (p RetryPolicy) Timeout() time.Duration {
	if p.TimeoutMS <= 0 {
		return 2 * time.Second
	}
	return time.Duration(p.TimeoutMS) * time.Millisecond
}

// Backoff returns the delay before the given retry (1-based).
func (p RetryPolicy) Backoff(retry int) time.Duration {
	d := time.Duration(p.BackoffInitialMS) * time.Millisecond
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	factor := p.BackoffFactor
	if factor < 1 {
		factor = 2.0
	}
	for i := 1; i < retry; i++ {
		d = time.Duration(float64(d) * factor)
	}
	return d
}

// Connector is the uniform interface over an agent's external dependency.
// Service-specific verbs live on the concrete types ([HTTPConnector],
// [SQLConnector], [VectorConnector]); this interface covers lifecycle and
// identification.
type Connector interface {
	// Name is the stable identifier agents reference in their descriptors.
	Name() string

	// Connect prepares the connector for use. Idempotent.
	Connect(ctx context.Context) error

	// Disconnect releases the connector's resources. Idempotent.
	Disconnect(ctx context.Context) error

	// Policy returns the connector's retry and timeout configuration.
	Policy() RetryPolicy
}

// sleepRetry waits for the policy's backoff before the given retry, aborting
// when ctx is done.
func sleepRetry(ctx context.Context, p RetryPolicy, retry int) error {
	t := time.NewTimer(p.Backoff(retry))
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
