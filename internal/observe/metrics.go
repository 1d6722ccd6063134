// Package observe provides the observability primitives shared by the
// analysis engine, the CLI and the HTTP host: OpenTelemetry metrics,
// tracing helpers, trace-aware slog loggers and an HTTP middleware.
//
// Metrics go through the OpenTelemetry Metrics API. [InitProvider] bridges
// them to a Prometheus exporter so they can be scraped from /metrics. Tests
// should build their own [Metrics] with [NewMetrics] over a ManualReader
// instead of using [DefaultMetrics].
package observe

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all elocute metrics.
const meterName = "github.com/MrWong99/elocute"

// Collaborator kinds used as the "kind" attribute.
const (
	KindTranscriber = "transcriber"
	KindAssessor    = "assessor"
	KindStore       = "store"
)

// Metrics holds the metric instruments of the application. The underlying
// OTel instruments are safe for concurrent use.
type Metrics struct {
	// AnalysisDuration is the wall time of a full Analyze call.
	AnalysisDuration metric.Float64Histogram

	// StageDuration is the wall time of one pipeline stage. Attribute: stage.
	StageDuration metric.Float64Histogram

	// AnalysisScore is the distribution of overall scores.
	AnalysisScore metric.Float64Histogram

	// CollaboratorRequests counts calls to external collaborators.
	// Attributes: kind, provider, status.
	CollaboratorRequests metric.Int64Counter

	// CollaboratorErrors counts failed collaborator calls.
	// Attributes: kind, provider.
	CollaboratorErrors metric.Int64Counter

	// AnalysesDegraded counts analyses that completed with a recovered
	// failure. Attribute: reason.
	AnalysesDegraded metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes.
	// Attributes: breaker, state.
	BreakerTransitions metric.Int64Counter

	// HTTPRequestDuration is the latency of the HTTP host.
	// Attributes: method, route, status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are boundaries in seconds. Analyses involve one or two
// network round trips on top of local DSP work.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

var scoreBuckets = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var errs []error

	hist := func(name, desc, unit string, buckets []float64) metric.Float64Histogram {
		h, err := m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit(unit),
			metric.WithExplicitBucketBoundaries(buckets...),
		)
		errs = append(errs, err)
		return h
	}
	counter := func(name, desc string) metric.Int64Counter {
		c, err := m.Int64Counter(name, metric.WithDescription(desc))
		errs = append(errs, err)
		return c
	}

	met.AnalysisDuration = hist("elocute.analysis.duration",
		"Latency of a complete pronunciation analysis.", "s", latencyBuckets)
	met.StageDuration = hist("elocute.stage.duration",
		"Latency of a single analysis stage by stage name.", "s", latencyBuckets)
	met.AnalysisScore = hist("elocute.analysis.score",
		"Distribution of overall pronunciation scores.", "1", scoreBuckets)
	met.HTTPRequestDuration = hist("elocute.http.request.duration",
		"HTTP request latency by method, route and status.", "s", latencyBuckets)

	met.CollaboratorRequests = counter("elocute.collaborator.requests",
		"External collaborator calls by kind, provider and status.")
	met.CollaboratorErrors = counter("elocute.collaborator.errors",
		"Failed external collaborator calls by kind and provider.")
	met.AnalysesDegraded = counter("elocute.analysis.degraded",
		"Analyses completed with a recovered collaborator failure, by reason.")
	met.BreakerTransitions = counter("elocute.breaker.transitions",
		"Circuit breaker state changes by breaker and target state.")

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] built on the global
// meter provider. Call [InitProvider] first if the metrics should be
// exported.
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

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordStage records the duration of one analysis stage.
func (m *Metrics) RecordStage(ctx context.Context, stage string, elapsed time.Duration) {
	m.StageDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(Attr("stage", stage)))
}

// RecordCollaborator records one collaborator call. A nil err counts as
// status "ok"; otherwise the call counts as "error" and the error counter is
// incremented too.
func (m *Metrics) RecordCollaborator(ctx context.Context, kind, provider string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.CollaboratorErrors.Add(ctx, 1, metric.WithAttributes(Attr("kind", kind), Attr("provider", provider)))
	}
	m.CollaboratorRequests.Add(ctx, 1, metric.WithAttributes(
		Attr("kind", kind),
		Attr("provider", provider),
		Attr("status", status),
	))
}

// RecordAnalysis records a completed analysis.
func (m *Metrics) RecordAnalysis(ctx context.Context, elapsed time.Duration, score float64, degradedReasons []string) {
	m.AnalysisDuration.Record(ctx, elapsed.Seconds())
	m.AnalysisScore.Record(ctx, score)
	for _, r := range degradedReasons {
		m.AnalysesDegraded.Add(ctx, 1, metric.WithAttributes(Attr("reason", r)))
	}
}

// RecordBreakerTransition records a circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, state string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(Attr("breaker", breaker), Attr("state", state)))
}
