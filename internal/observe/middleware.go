package observe

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// responseTrace wraps [http.ResponseWriter] to capture the status code and
// body size written by the downstream handler.
type responseTrace struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rt *responseTrace) WriteHeader(code int) {
	rt.status = code
	rt.ResponseWriter.WriteHeader(code)
}

func (rt *responseTrace) Write(p []byte) (int, error) {
	n, err := rt.ResponseWriter.Write(p)
	rt.bytes += n
	return n, err
}

// Middleware wraps a handler in the observability envelope: it continues the
// W3C trace carried by the request (or starts a new one), answers with an
// X-Correlation-ID header derived from the trace ID, records the request
// duration to [Metrics.HTTPRequestDuration], and logs one completion line
// per request. A 5xx response marks the span as failed and raises the
// completion log to warn.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, "HTTP "+r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			cid := CorrelationID(ctx)
			if cid != "" {
				w.Header().Set("X-Correlation-ID", cid)
			}
			prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			rt := &responseTrace{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rt, r.WithContext(ctx))

			duration := time.Since(start)
			m.HTTPRequestDuration.Record(ctx, duration.Seconds(),
				metric.WithAttributes(
					attribute.String("method", r.Method),
					attribute.String("path", r.URL.Path),
				),
			)

			span.SetAttributes(semconv.HTTPResponseStatusCode(rt.status))
			level := slog.LevelInfo
			if rt.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rt.status))
				level = slog.LevelWarn
			}
			slog.LogAttrs(ctx, level, "request completed",
				slog.String("trace_id", cid),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rt.status),
				slog.Int("bytes", rt.bytes),
				slog.Duration("duration", duration),
			)
		})
	}
}
