// Package observe provides the observability primitives of the interview
// call: OpenTelemetry metrics, tracing, trace-aware structured logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [InitProvider]
// installs a Prometheus exporter bridge so they can be scraped from /metrics.
// [DefaultMetrics] returns a package-level [Metrics] bound to the global
// provider; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/MrWong99/mockinterview"

// Metrics holds all OpenTelemetry metric instruments for the application.
// The underlying OTel types are safe for concurrent use.
type Metrics struct {
	// ChatDuration tracks remote chat request latency. Attributes:
	//   attribute.String("status", "ok"|"error")
	ChatDuration metric.Float64Histogram

	// UploadRequests counts per-turn audio uploads. Attributes:
	//   attribute.String("status", "ok"|"error"|"circuit_open")
	UploadRequests metric.Int64Counter

	// RecognitionErrors counts recognition error codes. Attributes:
	//   attribute.String("code", "aborted"|"no-speech"|"network"|"not-allowed")
	RecognitionErrors metric.Int64Counter

	// Playbacks counts finished utterances. Attributes:
	//   attribute.String("outcome", "end"|"error")
	Playbacks metric.Int64Counter

	// Turns counts appended transcript messages. Attributes:
	//   attribute.String("role", "user"|"model")
	Turns metric.Int64Counter

	// DeviceAcquisitions counts stream acquisitions. Attributes:
	//   attribute.String("result", "ok"|"audio_only"|"denied"|"error")
	DeviceAcquisitions metric.Int64Counter

	// ProviderRequests counts speech provider calls made through failover
	// groups. Attributes: provider, kind, status.
	ProviderRequests metric.Int64Counter

	// ActiveCalls tracks mounted interview calls.
	ActiveCalls metric.Int64UpDownCounter

	// HTTPRequestDuration tracks health and metrics endpoint latency.
	// Attributes: method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// chatBuckets covers multi-second model replies.
var chatBuckets = []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60, 120}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.UploadRequests, "mockinterview.upload.requests", "Per-turn audio uploads by status."},
		{&met.RecognitionErrors, "mockinterview.recognition.errors", "Recognition errors by code."},
		{&met.Playbacks, "mockinterview.playbacks", "Finished utterances by outcome."},
		{&met.Turns, "mockinterview.turns", "Transcript messages by role."},
		{&met.DeviceAcquisitions, "mockinterview.device.acquisitions", "Media stream acquisitions by result."},
		{&met.ProviderRequests, "mockinterview.provider.requests", "Speech provider requests by provider, kind, and status."},
	}
	for _, c := range counters {
		ctr, err := m.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
		*c.dst = ctr
	}

	var err error
	if met.ChatDuration, err = m.Float64Histogram("mockinterview.chat.duration",
		metric.WithDescription("Latency of remote chat requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(chatBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("mockinterview.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.ActiveCalls, err = m.Int64UpDownCounter("mockinterview.active_calls",
		metric.WithDescription("Number of mounted interview calls."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. It panics if instrument creation
// fails, which does not happen with the global provider.
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

// Attr is a shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordChat records one chat request.
func (m *Metrics) RecordChat(ctx context.Context, d time.Duration, status string) {
	m.ChatDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("status", status)))
}

// RecordUpload records one audio upload.
func (m *Metrics) RecordUpload(ctx context.Context, status string) {
	m.UploadRequests.Add(ctx, 1, metric.WithAttributes(Attr("status", status)))
}

// RecordRecognitionError records one recognition error code.
func (m *Metrics) RecordRecognitionError(ctx context.Context, code string) {
	m.RecognitionErrors.Add(ctx, 1, metric.WithAttributes(Attr("code", code)))
}

// RecordPlayback records one finished utterance.
func (m *Metrics) RecordPlayback(ctx context.Context, outcome string) {
	m.Playbacks.Add(ctx, 1, metric.WithAttributes(Attr("outcome", outcome)))
}

// RecordTurn records one appended message.
func (m *Metrics) RecordTurn(ctx context.Context, role string) {
	m.Turns.Add(ctx, 1, metric.WithAttributes(Attr("role", role)))
}

// RecordDeviceAcquisition records one stream acquisition.
func (m *Metrics) RecordDeviceAcquisition(ctx context.Context, result string) {
	m.DeviceAcquisitions.Add(ctx, 1, metric.WithAttributes(Attr("result", result)))
}

// RecordProviderRequest records one speech provider request.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider),
		Attr("kind", kind),
		Attr("status", status),
	))
}
