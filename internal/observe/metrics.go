// Package observe provides application-wide observability primitives for
// streamscribe: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all streamscribe metrics.
const meterName = "github.com/MrWong99/streamscribe"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// IterationDuration tracks one full processing iteration (prompt,
	// backend call, consolidation, chunking).
	IterationDuration metric.Float64Histogram

	// BackendDuration tracks transcription backend latency. Use with
	// attribute.String("backend", ...).
	BackendDuration metric.Float64Histogram

	// BufferedAudio records the audio window length in seconds handed to the
	// backend on each iteration.
	BufferedAudio metric.Float64Histogram

	// --- Counters ---

	// BackendRequests counts backend calls. Use with attributes:
	//   attribute.String("backend", ...), attribute.String("status", ...)
	BackendRequests metric.Int64Counter

	// WordsCommitted counts words confirmed by agreement between passes.
	WordsCommitted metric.Int64Counter

	// AudioTrimmed sums the seconds of audio discarded from session windows.
	// Use with attribute.String("reason", "sentence"|"segment").
	AudioTrimmed metric.Float64Counter

	// SessionsRejected counts streams refused because the session limit was
	// reached.
	SessionsRejected metric.Int64Counter

	// --- Error counters ---

	// BackendErrors counts failed backend calls. Use with attribute:
	//   attribute.String("backend", ...)
	BackendErrors metric.Int64Counter

	// StoreErrors counts transcript store writes that failed.
	StoreErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live streaming sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// inference latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// windowBuckets defines bucket boundaries (in seconds) for audio window
// lengths. The window is normally trimmed well before 30 s.
var windowBuckets = []float64{
	1, 2, 5, 10, 15, 20, 25, 30, 45, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.IterationDuration, err = m.Float64Histogram("streamscribe.iteration.duration",
		metric.WithDescription("Latency of one transcript consolidation iteration."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BackendDuration, err = m.Float64Histogram("streamscribe.backend.duration",
		metric.WithDescription("Latency of transcription backend calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BufferedAudio, err = m.Float64Histogram("streamscribe.audio.buffered",
		metric.WithDescription("Length of the audio window sent to the backend."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(windowBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.BackendRequests, err = m.Int64Counter("streamscribe.backend.requests",
		metric.WithDescription("Total backend requests by backend and status."),
	); err != nil {
		return nil, err
	}
	if met.WordsCommitted, err = m.Int64Counter("streamscribe.words.committed",
		metric.WithDescription("Total words confirmed across all sessions."),
	); err != nil {
		return nil, err
	}
	if met.AudioTrimmed, err = m.Float64Counter("streamscribe.audio.trimmed",
		metric.WithDescription("Seconds of audio discarded from session windows by reason."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.SessionsRejected, err = m.Int64Counter("streamscribe.sessions.rejected",
		metric.WithDescription("Streams refused because the session limit was reached."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.BackendErrors, err = m.Int64Counter("streamscribe.backend.errors",
		metric.WithDescription("Total backend errors by backend."),
	); err != nil {
		return nil, err
	}
	if met.StoreErrors, err = m.Int64Counter("streamscribe.store.errors",
		metric.WithDescription("Total failed transcript store writes."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("streamscribe.active_sessions",
		metric.WithDescription("Number of live streaming sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("streamscribe.http.request.duration",
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

// RecordBackendRequest records a backend call with its latency and status.
func (m *Metrics) RecordBackendRequest(ctx context.Context, backend, status string, seconds float64) {
	m.BackendRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("status", status),
		),
	)
	m.BackendDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("backend", backend)),
	)
}

// RecordBackendError is a convenience method that records a backend error
// counter increment.
func (m *Metrics) RecordBackendError(ctx context.Context, backend string) {
	m.BackendErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("backend", backend)),
	)
}

// RecordTrim records seconds of audio discarded for the given reason.
func (m *Metrics) RecordTrim(ctx context.Context, reason string, seconds float64) {
	m.AudioTrimmed.Add(ctx, seconds,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}
