// Package metrics provides Prometheus metrics for the dedupe pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal tracks dedupe runs by outcome
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "run",
			Name:      "runs_total",
			Help:      "Total number of dedupe runs by outcome",
		},
		[]string{"workspace_id", "outcome"},
	)

	// RunDuration tracks full run duration in seconds
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Duration of dedupe runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"workspace_id"},
	)

	// CandidatesEvaluated tracks scored candidate pairs
	CandidatesEvaluated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "matching",
			Name:      "candidates_evaluated_total",
			Help:      "Total number of candidate pairs scored above threshold",
		},
		[]string{"workspace_id"},
	)

	// MergesTotal tracks merge attempts by status
	MergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "merging",
			Name:      "merges_total",
			Help:      "Total number of merge attempts by status",
		},
		[]string{"workspace_id", "status"},
	)

	// MergeDuration tracks per-decision merge transaction duration
	MergeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "merging",
			Name:      "merge_duration_seconds",
			Help:      "Duration of merge transactions in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"workspace_id"},
	)

	// OrphansResolved tracks linked activities by strategy
	OrphansResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "linking",
			Name:      "orphans_resolved_total",
			Help:      "Total number of orphaned activities resolved by strategy",
		},
		[]string{"workspace_id", "strategy"},
	)

	// OrphansUnresolved tracks activities that exhausted the strategy chain
	OrphansUnresolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "linking",
			Name:      "orphans_unresolved_total",
			Help:      "Total number of orphaned activities left unresolved",
		},
		[]string{"workspace_id"},
	)

	// PagesInFlight tracks pages currently being processed
	PagesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "clover",
			Subsystem: "run",
			Name:      "pages_in_flight",
			Help:      "Pages currently being processed",
		},
	)
)
