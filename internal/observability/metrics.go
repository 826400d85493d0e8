// Package observability provides Prometheus metrics for the router and the
// Phind adapter.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets covers inference latencies from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// Inference outcomes used as the "outcome" label.
const (
	OutcomeCompleted      = "completed"
	OutcomeBackendError   = "backend_error"
	OutcomeTransportError = "transport_error"
	OutcomeCancelled      = "cancelled"
)

var (
	// RequestsTotal counts HTTP requests by method, route and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hpn_p_router_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hpn_p_router_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method", "route"},
	)

	// SeedFetchDuration records how long acquiring challenge seeds took.
	SeedFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hpn_p_router_seed_fetch_duration_seconds",
			Help:    "Challenge seed acquisition latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	// InferenceTotal counts finished inference streams by outcome.
	InferenceTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hpn_p_router_inference_total",
			Help: "Inference streams by outcome",
		},
		[]string{"outcome"},
	)

	// FragmentsTotal counts text fragments delivered from upstream.
	FragmentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hpn_p_router_fragments_total",
			Help: "Text fragments received from upstream",
		},
	)

	// ActiveStreams tracks inference streams currently open.
	ActiveStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hpn_p_router_streams_active",
			Help: "Open upstream inference streams",
		},
	)

	// ProxyFailoversTotal counts proxies taken out of rotation after a failure.
	ProxyFailoversTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hpn_p_router_proxy_failovers_total",
			Help: "Proxies marked dead",
		},
	)

	// CacheLookupsTotal counts answer cache lookups by result (hit/miss).
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hpn_p_router_cache_lookups_total",
			Help: "Answer cache lookups",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		SeedFetchDuration,
		InferenceTotal,
		FragmentsTotal,
		ActiveStreams,
		ProxyFailoversTotal,
		CacheLookupsTotal,
	)
}
