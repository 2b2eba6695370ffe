package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Scheduler metrics

	EntriesScheduledTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "longrun",
		Name:      "entries_scheduled_total",
		Help:      "Schedule entries registered, by entry type.",
	}, []string{"type"})

	EntriesDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "longrun",
		Name:      "entries_dropped_total",
		Help:      "Plan entries dropped because they fall outside the run window.",
	})

	FireLateness = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "longrun",
		Name:      "fire_lateness_seconds",
		Help:      "Delay between an entry's fire time and its actual dispatch.",
		Buckets:   []float64{.01, .05, .1, .5, 1, 5, 30, 60, 300, 900, 3600},
	})

	// Job metrics

	JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "longrun",
		Name:      "job_duration_seconds",
		Help:      "Duration of a dispatched job, including its internal retries.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"outcome"})

	JobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "longrun",
		Name:      "jobs_in_flight",
		Help:      "Jobs currently running. Never exceeds 1.",
	})

	JobsCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "longrun",
		Name:      "jobs_completed_total",
		Help:      "Total jobs finished, by outcome.",
	}, []string{"outcome"})

	RetryAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "longrun",
		Name:      "retry_attempts_total",
		Help:      "Failed attempts that were retried, by operation.",
	}, []string{"operation"})

	// Run lifecycle

	RunStartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "longrun",
		Name:      "run_start_time_seconds",
		Help:      "Unix timestamp of the run window start.",
	})

	RunEndTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "longrun",
		Name:      "run_end_time_seconds",
		Help:      "Unix timestamp of the run window end.",
	})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "longrun",
		Name:      "http_request_duration_seconds",
		Help:      "Control panel request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "longrun",
		Name:      "http_requests_total",
		Help:      "Total control panel requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		EntriesScheduledTotal,
		EntriesDroppedTotal,
		FireLateness,
		JobDuration,
		JobsInFlight,
		JobsCompletedTotal,
		RetryAttemptsTotal,
		RunStartTime,
		RunEndTime,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}
