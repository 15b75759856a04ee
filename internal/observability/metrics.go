// README: Prometheus metrics shared by dispatch, cache, drivers and HTTP.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ridecore"

var (
	MatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "matches_total", Help: "Dispatch attempts by outcome"},
		[]string{"outcome"},
	)
	MatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "match_latency_seconds",
		Help:      "End-to-end dispatch latency",
		Buckets:   prometheus.DefBuckets,
	})
	DispatchFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "dispatch_fallbacks_total", Help: "Assignments that did not honor the advisory pick"},
		[]string{"reason"},
	)
	DriverLocksSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "driver_locks_skipped_total",
		Help:      "Candidates skipped because they were locked or already assigned",
	})
	DriversOnline = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "drivers_online", Help: "Drivers toggled online by this instance minus those toggled offline"})

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "cache_errors_total", Help: "Cache backend failures by operation"},
		[]string{"op"},
	)
	AdvisoryCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "advisory_calls_total", Help: "Advisory component calls by kind and result"},
		[]string{"kind", "result"},
	)
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "events_published_total", Help: "Ride events handed to the broker"},
		[]string{"result"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
