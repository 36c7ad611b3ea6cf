// Package observe provides application-wide observability primitives for
// Liber: OpenTelemetry metrics, distributed tracing, structured logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all Liber metrics.
const meterName = "github.com/liberhq/liber"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// ProfileDuration tracks taste-profiling latency.
	ProfileDuration metric.Float64Histogram

	// RetrievalDuration tracks candidate retrieval latency, embedding
	// included.
	RetrievalDuration metric.Float64Histogram

	// ExplanationDuration tracks explanation generation latency.
	ExplanationDuration metric.Float64Histogram

	// PipelineDuration tracks end-to-end recommendation latency.
	PipelineDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// Recommendations counts served recommendation requests. Use with
	// attribute: attribute.String("cache", "hit"|"miss").
	Recommendations metric.Int64Counter

	// TokensConsumed counts LLM and embedding tokens. Use with attribute:
	//   attribute.String("model", ...)
	TokensConsumed metric.Int64Counter

	// ReviewsScraped counts reviews collected by the scraper.
	ReviewsScraped metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveRequests tracks in-flight recommendation requests.
	ActiveRequests metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). The
// pipeline makes multiple model calls per request, so the tail reaches well
// past typical HTTP latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ProfileDuration, err = m.Float64Histogram("liber.profile.duration",
		metric.WithDescription("Latency of taste profile generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RetrievalDuration, err = m.Float64Histogram("liber.retrieval.duration",
		metric.WithDescription("Latency of candidate retrieval including query embedding."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ExplanationDuration, err = m.Float64Histogram("liber.explanation.duration",
		metric.WithDescription("Latency of explanation generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PipelineDuration, err = m.Float64Histogram("liber.pipeline.duration",
		metric.WithDescription("End-to-end recommendation pipeline latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("liber.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.Recommendations, err = m.Int64Counter("liber.recommendations",
		metric.WithDescription("Total recommendation requests served by cache outcome."),
	); err != nil {
		return nil, err
	}
	if met.TokensConsumed, err = m.Int64Counter("liber.tokens.consumed",
		metric.WithDescription("Total tokens consumed by model."),
	); err != nil {
		return nil, err
	}
	if met.ReviewsScraped, err = m.Int64Counter("liber.reviews.scraped",
		metric.WithDescription("Total reviews collected by the scraper."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("liber.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveRequests, err = m.Int64UpDownCounter("liber.active_requests",
		metric.WithDescription("Number of in-flight recommendation requests."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("liber.http.request.duration",
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
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

// RecordProviderRequest records a provider request counter increment with
// the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordRecommendation records one served recommendation request with its
// cache outcome ("hit" or "miss").
func (m *Metrics) RecordRecommendation(ctx context.Context, cacheOutcome string) {
	m.Recommendations.Add(ctx, 1,
		metric.WithAttributes(attribute.String("cache", cacheOutcome)),
	)
}

// RecordTokens records token consumption attributed to a model.
func (m *Metrics) RecordTokens(ctx context.Context, model string, tokens int64) {
	m.TokensConsumed.Add(ctx, tokens,
		metric.WithAttributes(attribute.String("model", model)),
	)
}
