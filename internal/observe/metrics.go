// Package observe provides observability primitives for contractd:
// OpenTelemetry metrics, distributed tracing, trace-aware logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed for
// scraping through the Prometheus bridge set up by [InitProvider]. Tests
// should use [NewMetrics] with a dedicated [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all contractd metrics.
const meterName = "github.com/ovleluv/AIContract-STT"

// Metrics holds all OpenTelemetry metric instruments for the service.
type Metrics struct {
	// GatewayDuration tracks a full gateway invocation including retries.
	// Attributes: stage, status.
	GatewayDuration metric.Float64Histogram

	// GatewayRequests counts gateway invocations. Attributes: stage, status.
	GatewayRequests metric.Int64Counter

	// GatewayRetries counts additional attempts after a failed first call.
	// Attribute: stage.
	GatewayRetries metric.Int64Counter

	// GatewayInFlight tracks calls currently holding a concurrency slot.
	GatewayInFlight metric.Int64UpDownCounter

	// StageDuration tracks each pipeline stage end to end. Attribute: stage.
	StageDuration metric.Float64Histogram

	// StageDegradations counts stages that fell back to a default instead of
	// failing. Attributes: stage, reason.
	StageDegradations metric.Int64Counter

	// LanguageResolutions counts language resolver outcomes. Attribute:
	// outcome (pinned, detected, fallback).
	LanguageResolutions metric.Int64Counter

	// MergePlaceholders counts placeholders seen by the merger. Attributes:
	// strategy, result (substituted, preserved).
	MergePlaceholders metric.Int64Counter

	// STTDuration tracks transcription latency.
	STTDuration metric.Float64Histogram

	// BreakerTransitions counts circuit breaker state changes. Attributes:
	// breaker, to.
	BreakerTransitions metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	// method, route.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// chat-completion latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histogram := func(name, desc string) (metric.Float64Histogram, error) {
		return m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
	}

	if met.GatewayDuration, err = histogram("contractd.gateway.duration",
		"Latency of text generation calls including retries."); err != nil {
		return nil, err
	}
	if met.StageDuration, err = histogram("contractd.stage.duration",
		"Latency of pipeline stages."); err != nil {
		return nil, err
	}
	if met.STTDuration, err = histogram("contractd.stt.duration",
		"Latency of speech-to-text transcription."); err != nil {
		return nil, err
	}

	if met.GatewayRequests, err = m.Int64Counter("contractd.gateway.requests",
		metric.WithDescription("Text generation calls by stage and status."),
	); err != nil {
		return nil, err
	}
	if met.GatewayRetries, err = m.Int64Counter("contractd.gateway.retries",
		metric.WithDescription("Retried text generation attempts by stage."),
	); err != nil {
		return nil, err
	}
	if met.GatewayInFlight, err = m.Int64UpDownCounter("contractd.gateway.in_flight",
		metric.WithDescription("Text generation calls currently holding a concurrency slot."),
	); err != nil {
		return nil, err
	}
	if met.StageDegradations, err = m.Int64Counter("contractd.stage.degradations",
		metric.WithDescription("Stages that degraded to a default result by stage and reason."),
	); err != nil {
		return nil, err
	}
	if met.LanguageResolutions, err = m.Int64Counter("contractd.language.resolutions",
		metric.WithDescription("Language resolver outcomes."),
	); err != nil {
		return nil, err
	}
	if met.MergePlaceholders, err = m.Int64Counter("contractd.merge.placeholders",
		metric.WithDescription("Template placeholders by merge strategy and result."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("contractd.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes by breaker and target state."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("contractd.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordGatewayCall records one finished gateway invocation.
func (m *Metrics) RecordGatewayCall(ctx context.Context, stage, status string, seconds float64) {
	attrs := metric.WithAttributes(Attr("stage", stage), Attr("status", status))
	m.GatewayRequests.Add(ctx, 1, attrs)
	m.GatewayDuration.Record(ctx, seconds, attrs)
}

// RecordStage records the duration of one pipeline stage.
func (m *Metrics) RecordStage(ctx context.Context, stage string, seconds float64) {
	m.StageDuration.Record(ctx, seconds, metric.WithAttributes(Attr("stage", stage)))
}

// RecordDegradation records a stage falling back to a default result.
func (m *Metrics) RecordDegradation(ctx context.Context, stage, reason string) {
	m.StageDegradations.Add(ctx, 1, metric.WithAttributes(Attr("stage", stage), Attr("reason", reason)))
}

// RecordLanguage records a language resolver outcome.
func (m *Metrics) RecordLanguage(ctx context.Context, outcome string) {
	m.LanguageResolutions.Add(ctx, 1, metric.WithAttributes(Attr("outcome", outcome)))
}

// RecordMerge records how many placeholders a merge substituted and preserved.
func (m *Metrics) RecordMerge(ctx context.Context, strategy string, substituted, preserved int) {
	if substituted > 0 {
		m.MergePlaceholders.Add(ctx, int64(substituted),
			metric.WithAttributes(Attr("strategy", strategy), Attr("result", "substituted")))
	}
	if preserved > 0 {
		m.MergePlaceholders.Add(ctx, int64(preserved),
			metric.WithAttributes(Attr("strategy", strategy), Attr("result", "preserved")))
	}
}

// RecordBreakerTransition records a circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, to string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(Attr("breaker", breaker), Attr("to", to)))
}
