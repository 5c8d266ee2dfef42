package aggregation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recompute outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

var (
	RecomputeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rating_recompute_total",
		Help: "Total number of rating aggregate recomputations by outcome",
	}, []string{"entity_kind", "outcome"})

	RecomputeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rating_recompute_duration_seconds",
		Help:    "Duration of rating recomputations in seconds, lock wait included",
		Buckets: prometheus.DefBuckets,
	}, []string{"entity_kind"})

	LockWaitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rating_lock_wait_seconds",
		Help:    "Time spent waiting for the per-entity recompute lock",
		Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
	}, []string{"entity_kind"})

	ReconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rating_reconcile_entities_total",
		Help: "Entities visited by the reconciler by outcome",
	}, []string{"entity_kind", "outcome"})
)
