package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/utafrali/storefront-ratings/internal/domain"
)

// BreakerConfig tunes the circuit breaker in front of Redis.
type BreakerConfig struct {
	Name         string
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

// DefaultBreakerConfig trips after half of at least five calls fail and probes
// again after ten seconds.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      10 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// Redis is the shared aggregate cache. Every call goes through a circuit
// breaker so a slow or dead Redis degrades reads to the database instead of
// stalling them.
type Redis struct {
	client  *redis.Client
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *slog.Logger
}

func NewRedis(client *redis.Client, ttl time.Duration, cfg BreakerConfig, logger *slog.Logger) *Redis {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			circuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	}
	circuitBreakerState.WithLabelValues(cfg.Name).Set(stateToFloat(gobreaker.StateClosed))

	return &Redis{
		client:  client,
		ttl:     ttl,
		breaker: gobreaker.NewCircuitBreaker[[]byte](settings),
		logger:  logger,
	}
}

// Get returns the cached aggregate. A miss is (zero, false, nil).
func (c *Redis) Get(ctx context.Context, ref domain.EntityRef) (domain.Aggregate, bool, error) {
	data, err := c.breaker.Execute(func() ([]byte, error) {
		return c.client.Get(ctx, ref.Key()).Bytes()
	})
	if err != nil {
		if errors.Is(err, redis.Nil) {
			cacheMissesTotal.WithLabelValues(TierRedis).Inc()
			return domain.Aggregate{}, false, nil
		}
		cacheErrorsTotal.WithLabelValues(TierRedis, "get").Inc()
		return domain.Aggregate{}, false, fmt.Errorf("redis get %s: %w", ref.Key(), err)
	}

	var agg domain.Aggregate
	if err := json.Unmarshal(data, &agg); err != nil {
		cacheErrorsTotal.WithLabelValues(TierRedis, "decode").Inc()
		return domain.Aggregate{}, false, fmt.Errorf("decode cached rating %s: %w", ref.Key(), err)
	}
	cacheHitsTotal.WithLabelValues(TierRedis).Inc()
	return agg, true, nil
}

func (c *Redis) Set(ctx context.Context, ref domain.EntityRef, agg domain.Aggregate) error {
	data, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("encode rating: %w", err)
	}
	if _, err := c.breaker.Execute(func() ([]byte, error) {
		return nil, c.client.Set(ctx, ref.Key(), data, c.ttl).Err()
	}); err != nil {
		cacheErrorsTotal.WithLabelValues(TierRedis, "set").Inc()
		return fmt.Errorf("redis set %s: %w", ref.Key(), err)
	}
	return nil
}

func (c *Redis) Delete(ctx context.Context, ref domain.EntityRef) error {
	if _, err := c.breaker.Execute(func() ([]byte, error) {
		return nil, c.client.Del(ctx, ref.Key()).Err()
	}); err != nil {
		cacheErrorsTotal.WithLabelValues(TierRedis, "del").Inc()
		return fmt.Errorf("redis del %s: %w", ref.Key(), err)
	}
	return nil
}

// State exposes the breaker state.
func (c *Redis) State() gobreaker.State {
	return c.breaker.State()
}
