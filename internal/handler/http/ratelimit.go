package http

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/utafrali/storefront-ratings/pkg/httputil"
)

const (
	limiterCacheSize = 50_000
	limiterIdleTTL   = 3 * time.Minute
)

// RecomputeLimiter applies a token bucket per recompute target so a caller
// cannot hold an entity's lock with back-to-back on-demand recomputes.
// A nil *RecomputeLimiter allows everything.
type RecomputeLimiter struct {
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
}

// NewRecomputeLimiter returns nil when rps is not positive, which disables limiting.
func NewRecomputeLimiter(rps float64, burst int) *RecomputeLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &RecomputeLimiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](limiterCacheSize, nil, limiterIdleTTL),
		limit:    rate.Limit(rps),
		burst:    burst,
	}
}

// Allow reports whether one more recompute of key may run now.
func (l *RecomputeLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	limiter, ok := l.limiters.Get(key)
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
	}
	// Re-adding refreshes the idle expiry.
	l.limiters.Add(key, limiter)
	l.mu.Unlock()
	return limiter.Allow()
}

// Middleware rejects requests over the limit with 429, keyed by request path.
func (l *RecomputeLimiter) Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(r.URL.Path) {
				logger.WarnContext(r.Context(), "recompute rate limit exceeded",
					slog.String("path", r.URL.Path),
				)
				httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.Response{
					Error: &httputil.ErrorResponse{Code: "RATE_LIMITED", Message: "too many recompute requests"},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
