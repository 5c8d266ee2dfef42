package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/storefront-ratings/internal/domain"
	"github.com/utafrali/storefront-ratings/internal/service"
	"github.com/utafrali/storefront-ratings/pkg/health"
	"github.com/utafrali/storefront-ratings/pkg/middleware"
)

// NewRouter creates a chi router with all rating service routes registered.
func NewRouter(
	reviewService *service.ReviewService,
	ratingService *service.RatingService,
	healthHandler *health.Handler,
	recomputeLimiter *RecomputeLimiter,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("rating"))
	r.Use(middleware.Tracing())
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	reviewHandler := NewReviewHandler(reviewService, logger)
	ratingHandler := NewRatingHandler(ratingService, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Route("/reviews", func(r chi.Router) {
			r.With(RequireUser).Post("/", reviewHandler.CreateReview)
			r.Get("/{id}", reviewHandler.GetReview)
			r.With(RequireUser).Patch("/{id}", reviewHandler.UpdateReview)
		})

		for _, e := range []struct {
			path string
			kind domain.EntityKind
		}{
			{"/products/{id}", domain.EntityProduct},
			{"/stores/{id}", domain.EntityStore},
		} {
			r.Route(e.path, func(r chi.Router) {
				r.Get("/reviews", reviewHandler.ListReviews(e.kind))
				r.Get("/rating", ratingHandler.GetRating(e.kind))
				r.With(recomputeLimiter.Middleware(logger)).Post("/rating/recompute", ratingHandler.Recompute(e.kind))
			})
		}
	})

	return r
}
