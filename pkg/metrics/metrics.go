package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	Formulations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_formulations_total",
		Help: "The total number of formulation attempts by outcome",
	}, []string{"outcome"})

	FormulationCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orchestrator_formulation_cache_hits_total",
		Help: "Formulation requests answered from the operation store without a service call",
	})

	OperationsFormulated = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "orchestrator_operations_per_request",
		Help:    "Number of operations in a formulated plan",
		Buckets: prometheus.LinearBuckets(1, 1, 8),
	})

	SigningFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_signing_failures_total",
		Help: "Signing failures by reason, each aborting a whole request",
	}, []string{"reason"})

	SubmissionBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_submission_batches_total",
		Help: "Submission calls issued by batch kind and call outcome",
	}, []string{"kind", "outcome"})

	StatusPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_status_polls_total",
		Help: "Status service polls by outcome",
	}, []string{"outcome"})

	ActiveWatches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "orchestrator_active_watches",
		Help: "Polling loops currently watching submitted requests",
	})

	StoreEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "orchestrator_store_entries",
		Help: "Request entries currently held in the operation store",
	})

	RequestsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_requests_resolved_total",
		Help: "Requests that reached a terminal state, by result",
	}, []string{"result"})

	ResolutionTime = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "orchestrator_resolution_seconds",
		Help:    "Time from submission to terminal resolution",
		Buckets: prometheus.ExponentialBuckets(6, 2, 10), // one poll interval up through ~100 minutes
	})
)
