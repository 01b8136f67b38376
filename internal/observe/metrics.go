// Package observe provides application-wide observability primitives for
// matrixvoice: OpenTelemetry metrics, tracing, trace-aware structured
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported in
// Prometheus format via [InitProvider]. A package-level default [Metrics]
// instance ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all matrixvoice metrics.
const meterName = "github.com/alakbarr/Interview-Matrix"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// SetupDuration tracks the time from a start request to the server's
	// setup acknowledgement.
	SetupDuration metric.Float64Histogram

	// SessionDuration tracks how long sessions stay open.
	SessionDuration metric.Float64Histogram

	// --- Session counters ---

	// SessionsStarted counts start requests that left Idle.
	SessionsStarted metric.Int64Counter

	// SessionFailures counts sessions ended by an error. Use with attribute:
	//   attribute.String("reason", ...)
	SessionFailures metric.Int64Counter

	// --- Frame counters ---

	// FramesSent counts capture frames handed to the transport.
	FramesSent metric.Int64Counter

	// FramesDropped counts frames dropped before reaching their consumer.
	// Use with attribute:
	//   attribute.String("stage", ...)
	FramesDropped metric.Int64Counter

	// FramesEnqueued counts decoded frames added to the playback queue.
	FramesEnqueued metric.Int64Counter

	// FramesPlayed counts frames written to the output device.
	FramesPlayed metric.Int64Counter

	// FramesDiscarded counts queued frames thrown away by a flush or teardown.
	FramesDiscarded metric.Int64Counter

	// --- Protocol counters ---

	// DecodeErrors counts inbound messages or parts that could not be
	// decoded. Use with attribute:
	//   attribute.String("reason", ...)
	DecodeErrors metric.Int64Counter

	// ServerErrors counts in-band error messages from the remote endpoint.
	ServerErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions is 1 while a session is Connecting or Active.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// connection setup.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10,
}

// sessionBuckets covers session lengths from seconds to an hour.
var sessionBuckets = []float64{
	5, 15, 30, 60, 120, 300, 600, 1800, 3600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SetupDuration, err = m.Float64Histogram("matrixvoice.session.setup.duration",
		metric.WithDescription("Time from start request to setup acknowledgement."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("matrixvoice.session.duration",
		metric.WithDescription("Length of voice sessions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.SessionsStarted, "matrixvoice.sessions.started", "Total session start requests accepted."},
		{&met.SessionFailures, "matrixvoice.sessions.failed", "Total sessions ended by an error, by reason."},
		{&met.FramesSent, "matrixvoice.frames.sent", "Total capture frames sent to the remote endpoint."},
		{&met.FramesDropped, "matrixvoice.frames.dropped", "Total frames dropped, by stage."},
		{&met.FramesEnqueued, "matrixvoice.playback.enqueued", "Total decoded frames added to the playback queue."},
		{&met.FramesPlayed, "matrixvoice.playback.played", "Total frames written to the output device."},
		{&met.FramesDiscarded, "matrixvoice.playback.discarded", "Total queued frames discarded by flush or teardown."},
		{&met.DecodeErrors, "matrixvoice.protocol.decode_errors", "Total inbound messages or parts discarded as undecodable."},
		{&met.ServerErrors, "matrixvoice.protocol.server_errors", "Total in-band errors reported by the remote endpoint."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("matrixvoice.sessions.active",
		metric.WithDescription("Number of sessions currently connecting or active."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("matrixvoice.http.request.duration",
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
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// RecordSessionFailure increments the failure counter for reason.
func (m *Metrics) RecordSessionFailure(ctx context.Context, reason string) {
	m.SessionFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordDecodeError increments the decode error counter for reason.
func (m *Metrics) RecordDecodeError(ctx context.Context, reason string) {
	m.DecodeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordFramesDropped adds n to the drop counter for stage.
func (m *Metrics) RecordFramesDropped(ctx context.Context, stage string, n int64) {
	if n <= 0 {
		return
	}
	m.FramesDropped.Add(ctx, n, metric.WithAttributes(attribute.String("stage", stage)))
}
