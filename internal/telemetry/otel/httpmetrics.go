package otel

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetrics returns middleware that records a request counter and duration
// histogram per route and status class. provider may be nil; the middleware is
// then a pass-through.
func HTTPMetrics(provider metric.MeterProvider) func(http.Handler) http.Handler {
	if provider == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	meter := provider.Meter("stocktrack/backend")
	requests, err := meter.Int64Counter("http.server.requests",
		metric.WithDescription("Completed HTTP requests"))
	if err != nil {
		return func(next http.Handler) http.Handler { return next }
	}
	duration, err := meter.Float64Histogram("http.server.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			attrs := metric.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", r.URL.Path),
				attribute.Int("http.status_code", rec.status),
			)
			requests.Add(r.Context(), 1, attrs)
			duration.Record(r.Context(), float64(time.Since(start).Milliseconds()), attrs)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
