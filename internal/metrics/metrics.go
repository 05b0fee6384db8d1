// Package metrics exposes engine counters to prometheus.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quantmind-br/photofeed/internal/utils"
)

// Poll run results
const (
	ResultOK      = "ok"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
)

// Fetch kinds
const (
	FetchReplace = "replace"
	FetchAppend  = "append"
	FetchPoll    = "poll"
)

// API request outcomes
const (
	RequestOK     = "ok"
	RequestCached = "cached"
	RequestFailed = "failed"
)

var (
	namespace = "photofeed"

	apiRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Photo API requests by outcome, after retries",
		},
		[]string{"outcome"},
	)

	pollRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "runs_total",
			Help:      "Reconciler runs by result",
		},
		[]string{"result"},
	)

	pollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "run_duration_seconds",
			Help:      "Duration of reconciler runs",
			Buckets:   prometheus.DefBuckets,
		},
	)

	newItems = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "new_items_total",
			Help:      "Photos reported as new by the reconciler",
		},
	)

	fetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "fetch_failures_total",
			Help:      "Failed page fetches by kind",
		},
		[]string{"kind"},
	)

	staleResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "stale_responses_total",
			Help:      "Fetch results dropped because a newer request superseded them",
		},
	)

	stateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "state_transitions_total",
			Help:      "List state transitions by target state",
		},
		[]string{"state"},
	)

	taskRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "task_runs_total",
			Help:      "Scheduled task executions by task and result",
		},
		[]string{"task", "result"},
	)
)

// ObservePollRun records one reconciler run
func ObservePollRun(result string, duration time.Duration) {
	pollRuns.WithLabelValues(result).Inc()
	pollDuration.Observe(duration.Seconds())
}

// AddNewItems counts photos reported as new
func AddNewItems(n int) {
	if n > 0 {
		newItems.Add(float64(n))
	}
}

// IncFetchFailure counts a failed fetch of the given kind
func IncFetchFailure(kind string) {
	fetchFailures.WithLabelValues(kind).Inc()
}

// IncStaleResponse counts a dropped stale result
func IncStaleResponse() {
	staleResponses.Inc()
}

// IncStateTransition counts a transition into state
func IncStateTransition(state string) {
	stateTransitions.WithLabelValues(state).Inc()
}

// IncTaskRun counts a scheduled task execution
func IncTaskRun(task, result string) {
	taskRuns.WithLabelValues(task, result).Inc()
}

// IncAPIRequest counts one logical API request
func IncAPIRequest(outcome string) {
	apiRequests.WithLabelValues(outcome).Inc()
}

// SetupMetricsEndpoint starts an HTTP server exposing /metrics on addr
func SetupMetricsEndpoint(addr string, logger *utils.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("address", addr).Msg("Metrics endpoint stopped")
		}
	}()

	return server
}
