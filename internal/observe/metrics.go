// Package observe provides application-wide observability primitives for
// sensoria: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all sensoria metrics.
const meterName = "github.com/modernreader/sensoria"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use since the underlying OTel types
// handle their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// SegmentDuration tracks text segmentation latency.
	SegmentDuration metric.Float64Histogram

	// EmotionDuration tracks emotion classification latency.
	EmotionDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// DispatchDuration tracks device dispatch latency including retries.
	DispatchDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// Dispatches counts device dispatches. Use with attributes:
	//   attribute.String("device_class", ...), attribute.String("status", ...)
	Dispatches metric.Int64Counter

	// SegmentsPlayed counts segments played back. Use with attribute:
	//   attribute.String("emotion", ...)
	SegmentsPlayed metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live reading sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ConnectedDevices tracks the number of registered output devices.
	ConnectedDevices metric.Int64UpDownCounter

	// SyncSubscribers tracks the number of connected sync push clients.
	SyncSubscribers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// the synthesis and dispatch paths.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.SegmentDuration, err = m.Float64Histogram("sensoria.segment.duration",
		metric.WithDescription("Latency of text segmentation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EmotionDuration, err = m.Float64Histogram("sensoria.emotion.duration",
		metric.WithDescription("Latency of emotion classification."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("sensoria.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DispatchDuration, err = m.Float64Histogram("sensoria.dispatch.duration",
		metric.WithDescription("Latency of device dispatch including retries."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("sensoria.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.Dispatches, err = m.Int64Counter("sensoria.device.dispatches",
		metric.WithDescription("Total device dispatches by device class and status."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsPlayed, err = m.Int64Counter("sensoria.segments.played",
		metric.WithDescription("Total segments played back by emotion label."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("sensoria.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("sensoria.active_sessions",
		metric.WithDescription("Number of live reading sessions."),
	); err != nil {
		return nil, err
	}
	if met.ConnectedDevices, err = m.Int64UpDownCounter("sensoria.connected_devices",
		metric.WithDescription("Number of registered output devices."),
	); err != nil {
		return nil, err
	}
	if met.SyncSubscribers, err = m.Int64UpDownCounter("sensoria.sync_subscribers",
		metric.WithDescription("Number of connected sync push clients."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("sensoria.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordDispatch is a convenience method that records a device dispatch
// counter increment with the standard attribute set.
func (m *Metrics) RecordDispatch(ctx context.Context, deviceClass, status string) {
	m.Dispatches.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("device_class", deviceClass),
			attribute.String("status", status),
		),
	)
}

// RecordSegmentPlayed is a convenience method that records a played segment
// counter increment.
func (m *Metrics) RecordSegmentPlayed(ctx context.Context, emotion string) {
	m.SegmentsPlayed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("emotion", emotion)),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
