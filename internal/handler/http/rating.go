package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront-ratings/internal/domain"
	"github.com/utafrali/storefront-ratings/internal/service"
	"github.com/utafrali/storefront-ratings/pkg/httputil"
)

// RatingHandler serves product and store rating aggregates.
type RatingHandler struct {
	service *service.RatingService
	logger  *slog.Logger
}

func NewRatingHandler(svc *service.RatingService, logger *slog.Logger) *RatingHandler {
	return &RatingHandler{
		service: svc,
		logger:  logger,
	}
}

// GetRating handles GET /api/v1/{products|stores}/{id}/rating
func (h *RatingHandler) GetRating(kind domain.EntityKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := domain.EntityRef{Kind: kind, ID: chi.URLParam(r, "id")}

		rating, err := h.service.GetRating(r.Context(), ref)
		if err != nil {
			writeError(w, r, err, h.logger)
			return
		}

		httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: rating})
	}
}

// Recompute handles POST /api/v1/{products|stores}/{id}/rating/recompute
func (h *RatingHandler) Recompute(kind domain.EntityKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := domain.EntityRef{Kind: kind, ID: chi.URLParam(r, "id")}

		agg, err := h.service.Recompute(r.Context(), ref)
		if err != nil {
			writeError(w, r, err, h.logger)
			return
		}

		h.logger.InfoContext(r.Context(), "rating recomputed on demand",
			slog.String("entity_kind", string(kind)),
			slog.String("entity_id", ref.ID),
			slog.String("rating", agg.RatingString()),
		)
		httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: domain.EntityRating{EntityRef: ref, Aggregate: agg}})
	}
}
