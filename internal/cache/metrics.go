package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

// Cache tiers used as metric labels.
const (
	TierLocal = "local"
	TierRedis = "redis"
)

var (
	cacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rating_cache_hits_total",
		Help: "Total number of rating cache hits by tier",
	}, []string{"tier"})

	cacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rating_cache_misses_total",
		Help: "Total number of rating cache misses by tier",
	}, []string{"tier"})

	cacheErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rating_cache_errors_total",
		Help: "Total number of failed rating cache operations by tier and operation",
	}, []string{"tier", "op"})

	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Current state of the circuit breaker (0=closed, 1=half-open, 2=open)",
	}, []string{"name"})
)

// stateToFloat maps gobreaker states to prometheus gauge values.
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
