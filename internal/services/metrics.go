package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector exposes the engine's Prometheus metrics. All methods
// are safe to call with a nil receiver so tests can skip wiring it.
type MetricsCollector struct {
	recommendationRequests *prometheus.CounterVec
	recommendationLatency  prometheus.Histogram
	degradedResponses      prometheus.Counter

	recommendationCache *prometheus.CounterVec
	singleFlightShared  prometheus.Counter

	externalCache    *prometheus.CounterVec
	providerFailures *prometheus.CounterVec

	feedbackEvents *prometheus.CounterVec
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		recommendationRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "recommendation_requests_total",
			Help: "Total recommendation requests by list type",
		}, []string{"list_type"}),

		recommendationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "recommendation_latency_seconds",
			Help:    "Recommendation request latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		}),

		degradedResponses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "recommendation_degraded_responses_total",
			Help: "Responses served in degraded mode after total provider failure",
		}),

		recommendationCache: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "recommendation_cache_lookups_total",
			Help: "Recommendation cache lookups by outcome",
		}, []string{"outcome"}),

		singleFlightShared: promauto.NewCounter(prometheus.CounterOpts{
			Name: "recommendation_singleflight_shared_total",
			Help: "Computations whose result was shared across concurrent callers",
		}),

		externalCache: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "external_cache_lookups_total",
			Help: "External provider cache lookups by provider and outcome",
		}, []string{"provider", "outcome"}),

		providerFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "provider_failures_total",
			Help: "Failed provider fetches after retries, by provider",
		}, []string{"provider"}),

		feedbackEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "feedback_events_total",
			Help: "Feedback events accepted, by kind",
		}, []string{"kind"}),
	}
}

func (mc *MetricsCollector) RecommendationRequest(listType string) {
	if mc == nil {
		return
	}
	mc.recommendationRequests.WithLabelValues(listType).Inc()
}

func (mc *MetricsCollector) RecommendationLatency(d time.Duration) {
	if mc == nil {
		return
	}
	mc.recommendationLatency.Observe(d.Seconds())
}

func (mc *MetricsCollector) DegradedResponse() {
	if mc == nil {
		return
	}
	mc.degradedResponses.Inc()
}

func (mc *MetricsCollector) RecommendationCacheHit() {
	if mc == nil {
		return
	}
	mc.recommendationCache.WithLabelValues("hit").Inc()
}

func (mc *MetricsCollector) RecommendationCacheMiss() {
	if mc == nil {
		return
	}
	mc.recommendationCache.WithLabelValues("miss").Inc()
}

func (mc *MetricsCollector) SingleFlightShared() {
	if mc == nil {
		return
	}
	mc.singleFlightShared.Inc()
}

func (mc *MetricsCollector) ExternalCacheHit(provider string) {
	if mc == nil {
		return
	}
	mc.externalCache.WithLabelValues(provider, "hit").Inc()
}

func (mc *MetricsCollector) ExternalCacheMiss(provider string) {
	if mc == nil {
		return
	}
	mc.externalCache.WithLabelValues(provider, "miss").Inc()
}

func (mc *MetricsCollector) ProviderFailure(provider string) {
	if mc == nil {
		return
	}
	mc.providerFailures.WithLabelValues(provider).Inc()
}

func (mc *MetricsCollector) FeedbackEvent(kind string) {
	if mc == nil {
		return
	}
	mc.feedbackEvents.WithLabelValues(kind).Inc()
}
