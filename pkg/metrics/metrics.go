// Package metrics holds the gateway's Prometheus instruments and the
// /metrics handler. Instruments are package-level so call sites record
// without plumbing a registry through every constructor.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// JobsEnqueued counts async jobs accepted by the API.
	JobsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aigateway_jobs_enqueued_total",
		Help: "Async jobs accepted for processing.",
	})

	// JobsFinished counts terminal job outcomes.
	JobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aigateway_jobs_finished_total",
		Help: "Jobs reaching a terminal state, by outcome.",
	}, []string{"outcome"})

	// JobDuration observes job processing time in seconds.
	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "aigateway_job_duration_seconds",
		Help:    "Wall-clock job processing time.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 12),
	})

	// ProviderCalls counts model invocations by provider and outcome.
	ProviderCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aigateway_provider_calls_total",
		Help: "LLM provider invocations, by provider and outcome.",
	}, []string{"provider", "outcome"})

	// ProviderRetries counts retried provider invocations.
	ProviderRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aigateway_provider_retries_total",
		Help: "Provider invocations retried after a transient failure.",
	}, []string{"provider"})

	// ProviderDuration observes provider call latency in seconds.
	ProviderDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aigateway_provider_call_duration_seconds",
		Help:    "LLM provider invocation latency.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"provider"})

	// ProviderTokens counts tokens reported or estimated per provider.
	ProviderTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aigateway_provider_tokens_total",
		Help: "Tokens consumed across provider invocations.",
	}, []string{"provider"})

	// SourceFetches counts enrichment source fetches by source and outcome.
	SourceFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aigateway_source_fetches_total",
		Help: "Enrichment source fetches, by source and outcome.",
	}, []string{"source", "outcome"})

	// SourceFetchDuration observes enrichment fetch latency in seconds.
	SourceFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aigateway_source_fetch_duration_seconds",
		Help:    "Enrichment source fetch latency.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"source"})

	// ActiveSessions tracks open coaching sessions on this instance's watch.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aigateway_coaching_sessions_active",
		Help: "Coaching sessions currently active or paused.",
	})
)

// Handler serves the Prometheus exposition endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveProviderCall records one provider invocation.
func ObserveProviderCall(provider, outcome string, elapsed time.Duration, tokens int) {
	ProviderCalls.WithLabelValues(provider, outcome).Inc()
	ProviderDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
	if tokens > 0 {
		ProviderTokens.WithLabelValues(provider).Add(float64(tokens))
	}
}

// ObserveSourceFetch records one enrichment source fetch.
func ObserveSourceFetch(source, outcome string, elapsed time.Duration) {
	SourceFetches.WithLabelValues(source, outcome).Inc()
	SourceFetchDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

// ObserveJobFinished records a terminal job outcome.
func ObserveJobFinished(outcome string, elapsed time.Duration) {
	JobsFinished.WithLabelValues(outcome).Inc()
	JobDuration.Observe(elapsed.Seconds())
}
