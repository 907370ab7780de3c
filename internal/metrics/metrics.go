// Package metrics defines the Prometheus instruments for the cascade
// router, exposed by the metrics server's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cascade_decisions_total",
		Help: "Total routing decisions by target and deciding layer.",
	}, []string{"target", "layer"})

	Clarifications = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cascade_clarifications_total",
		Help: "Cascade runs that fell through every layer.",
	})

	LayerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cascade_layer_latency_seconds",
		Help:    "Per-layer attempt latency.",
		Buckets: []float64{.0005, .001, .005, .01, .05, .1, .25, .5, 1, 2.5},
	}, []string{"layer"})

	RouteLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cascade_route_latency_seconds",
		Help:    "End-to-end routing latency.",
		Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
	})

	ActiveRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cascade_active_requests",
		Help: "Routing requests currently in flight.",
	})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cascade_cache_hits_total",
		Help: "Decision cache hits.",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cascade_cache_misses_total",
		Help: "Decision cache misses.",
	})

	LayerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cascade_layer_errors_total",
		Help: "Adapter errors and timeouts by layer.",
	}, []string{"layer", "kind"})

	LayerThreshold = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cascade_layer_threshold",
		Help: "Current confidence threshold per layer.",
	}, []string{"layer"})

	Outcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cascade_outcomes_total",
		Help: "Outcome callbacks by reported status.",
	}, []string{"status"})

	ThresholdAdjustments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cascade_threshold_adjustments_total",
		Help: "Tuner threshold moves by layer and direction.",
	}, []string{"layer", "direction"})
)
