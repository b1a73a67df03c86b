package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/abakirov/outdialer/internal/health"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Dispatcher metrics

	DispatchPickupLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "outdialer",
		Name:      "dispatch_pickup_latency_seconds",
		Help:      "Time from enqueue to a worker picking the item up.",
		Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	CallInitiationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "outdialer",
		Name:      "call_initiation_duration_seconds",
		Help:      "Duration of one call-initiation attempt at the voice gateway.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"outcome"})

	CallsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "outdialer",
		Name:      "dispatch_calls_in_flight",
		Help:      "Number of call initiations currently in progress.",
	})

	DispatchOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "outdialer",
		Name:      "dispatch_outcomes_total",
		Help:      "Dispatch attempts finished, by outcome.",
	}, []string{"outcome"})

	// Orchestrator metrics

	BatchCallsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "outdialer",
		Name:      "batch_calls_created_total",
		Help:      "Scheduled calls created by batch runs.",
	})

	BatchDuplicatesSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "outdialer",
		Name:      "batch_duplicates_skipped_total",
		Help:      "Batch candidates skipped because a call was already scheduled.",
	})

	BatchRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "outdialer",
		Name:      "batch_runs_total",
		Help:      "Batch runs, by trigger.",
	}, []string{"trigger"})

	// Retention sweep

	SweepDeletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "outdialer",
		Name:      "sweep_deleted_total",
		Help:      "Terminal scheduled-call records removed by the retention sweep.",
	})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "outdialer",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "outdialer",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		DispatchPickupLatency,
		CallInitiationDuration,
		CallsInFlight,
		DispatchOutcomesTotal,
		BatchCallsCreatedTotal,
		BatchDuplicatesSkippedTotal,
		BatchRunsTotal,
		SweepDeletedTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

// NewServer serves /metrics plus the liveness and readiness probes on the
// internal port.
func NewServer(addr string, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Liveness(r.Context()))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		result := checker.Readiness(r.Context())
		if result.Status != "up" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		writeHealth(w, result)
	})
	return &http.Server{Addr: addr, Handler: mux}
}

func writeHealth(w http.ResponseWriter, result health.HealthResult) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}
