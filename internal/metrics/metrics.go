// Package metrics provides Prometheus metrics for the booking service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	RequestsTotal       *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	ResolutionsTotal    *prometheus.CounterVec
	SelectorCacheTotal  *prometheus.CounterVec
	SelectorHitRatio    prometheus.Gauge
	AnalyticsEvents     *prometheus.CounterVec
	AnalyticsQueueDepth prometheus.Gauge
	ErrorsTotal         *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_requests_total",
				Help: "Total number of HTTP requests by route and status code.",
			},
			[]string{"route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "booking_request_duration_seconds",
				Help:    "HTTP request duration by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_resolutions_total",
				Help: "Partner access resolutions by outcome.",
			},
			[]string{"outcome"},
		),
		SelectorCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_selector_cache_total",
				Help: "Partner access selector lookups by result (hit or miss).",
			},
			[]string{"result"},
		),
		SelectorHitRatio: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "booking_selector_cache_hit_ratio",
				Help: "Share of selector lookups served from cache since start.",
			},
		),
		AnalyticsEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_analytics_events_total",
				Help: "Analytics events by name and delivery result.",
			},
			[]string{"event", "result"},
		),
		AnalyticsQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "booking_analytics_queue_depth",
				Help: "Analytics events waiting for delivery.",
			},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_errors_total",
				Help: "Total errors by module and type.",
			},
			[]string{"module", "type"},
		),
		registry: reg,
	}

	reg.MustRegister(m.RequestsTotal)
	reg.MustRegister(m.RequestDuration)
	reg.MustRegister(m.ResolutionsTotal)
	reg.MustRegister(m.SelectorCacheTotal)
	reg.MustRegister(m.SelectorHitRatio)
	reg.MustRegister(m.AnalyticsEvents)
	reg.MustRegister(m.AnalyticsQueueDepth)
	reg.MustRegister(m.ErrorsTotal)
	reg.MustRegister(collectors.NewGoCollector())

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest increments the request counter and observes its duration.
func (m *Metrics) RecordRequest(route, status string, seconds float64) {
	m.RequestsTotal.WithLabelValues(route, status).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(seconds)
}

// RecordResolution counts a partner access resolution and whether the
// selector served it from cache.
func (m *Metrics) RecordResolution(outcome string, cacheHit bool) {
	m.ResolutionsTotal.WithLabelValues(outcome).Inc()
	result := "miss"
	if cacheHit {
		result = "hit"
	}
	m.SelectorCacheTotal.WithLabelValues(result).Inc()
}

// SetSelectorHitRatio sets the selector cache hit ratio gauge.
func (m *Metrics) SetSelectorHitRatio(ratio float64) {
	m.SelectorHitRatio.Set(ratio)
}

// RecordEvent counts an analytics event outcome: queued, delivered, dropped
// or failed.
func (m *Metrics) RecordEvent(event, result string) {
	m.AnalyticsEvents.WithLabelValues(event, result).Inc()
}

// SetQueueDepth sets the analytics queue gauge.
func (m *Metrics) SetQueueDepth(n int) {
	m.AnalyticsQueueDepth.Set(float64(n))
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(module, errType string) {
	m.ErrorsTotal.WithLabelValues(module, errType).Inc()
}
