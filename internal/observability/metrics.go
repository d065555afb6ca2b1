package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	registerOnce sync.Once
	registry     = prometheus.NewRegistry()

	serverRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "linkollector",
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "Requests acknowledged and decoded, by activity.",
		},
		[]string{"activity"},
	)
	serverDecodeFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "linkollector",
			Subsystem: "server",
			Name:      "decode_failures_total",
			Help:      "Requests acknowledged but not parseable.",
		},
	)
	serverLoopStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "linkollector",
			Subsystem: "server",
			Name:      "loop_stops_total",
			Help:      "Server loop terminations by reason.",
		},
		[]string{"reason"},
	)
	serverRequestBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "linkollector",
			Subsystem: "server",
			Name:      "request_bytes",
			Help:      "Size of received request payloads in bytes.",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 8),
		},
	)
	metricsScrapes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "linkollector",
			Subsystem: "metrics",
			Name:      "http_requests_total",
			Help:      "Requests served by the metrics listener.",
		},
		[]string{"status"},
	)
)

// RegisterMetrics registers every collector once on the package registry.
func RegisterMetrics() {
	registerOnce.Do(func() {
		registry.MustRegister(
			serverRequests,
			serverDecodeFailures,
			serverLoopStops,
			serverRequestBytes,
			metricsScrapes,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// Registry returns the registry the recorders write to.
func Registry() *prometheus.Registry {
	RegisterMetrics()
	return registry
}

// RecordRequest counts one received request and its size.
func RecordRequest(bytes int) {
	RegisterMetrics()
	serverRequestBytes.Observe(float64(bytes))
}

// RecordDecoded counts one request that decoded to activity.
func RecordDecoded(activity string) {
	RegisterMetrics()
	serverRequests.WithLabelValues(activity).Inc()
}

func RecordDecodeFailure() {
	RegisterMetrics()
	serverDecodeFailures.Inc()
}

func RecordLoopStop(reason string) {
	RegisterMetrics()
	serverLoopStops.WithLabelValues(reason).Inc()
}
