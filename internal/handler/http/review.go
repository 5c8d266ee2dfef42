package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront-ratings/internal/domain"
	"github.com/utafrali/storefront-ratings/internal/service"
	"github.com/utafrali/storefront-ratings/pkg/httputil"
	"github.com/utafrali/storefront-ratings/pkg/middleware"
	"github.com/utafrali/storefront-ratings/pkg/pagination"
	"github.com/utafrali/storefront-ratings/pkg/validator"
)

const maxBodyBytes = 1 << 20

// ReviewHandler handles HTTP requests for review endpoints.
type ReviewHandler struct {
	service *service.ReviewService
	logger  *slog.Logger
}

func NewReviewHandler(svc *service.ReviewService, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{
		service: svc,
		logger:  logger,
	}
}

// CreateReviewRequest is the JSON request body for creating a review. The
// author is taken from the X-User-ID header.
type CreateReviewRequest struct {
	ProductID          *string  `json:"product_id"`
	StoreID            *string  `json:"store_id"`
	OrderID            *string  `json:"order_id"`
	Rating             int      `json:"rating"`
	Title              string   `json:"title"`
	Comment            string   `json:"comment"`
	Images             []string `json:"images"`
	IsVerifiedPurchase bool     `json:"is_verified_purchase"`
}

// CreateReview handles POST /api/v1/reviews
func (h *ReviewHandler) CreateReview(w http.ResponseWriter, r *http.Request) {
	var req CreateReviewRequest
	if !decodeBody(w, r, &req) {
		return
	}

	review, err := h.service.CreateReview(r.Context(), &service.CreateReviewInput{
		AuthorID:           r.Header.Get(middleware.UserHeader),
		ProductID:          req.ProductID,
		StoreID:            req.StoreID,
		OrderID:            req.OrderID,
		Rating:             req.Rating,
		Title:              req.Title,
		Comment:            req.Comment,
		Images:             req.Images,
		IsVerifiedPurchase: req.IsVerifiedPurchase,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: review})
}

// GetReview handles GET /api/v1/reviews/{id}
func (h *ReviewHandler) GetReview(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	review, err := h.service.GetReview(r.Context(), id.String())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: review})
}

// UpdateReview handles PATCH /api/v1/reviews/{id}
// Both authors and moderators edit reviews, so authorship is not checked here;
// the gateway decides which roles may reach this route.
func (h *ReviewHandler) UpdateReview(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var patch domain.ReviewPatch
	if !decodeBody(w, r, &patch) {
		return
	}

	review, err := h.service.UpdateReview(r.Context(), id.String(), &patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: review})
}

// ListReviews handles GET /api/v1/{products|stores}/{id}/reviews
func (h *ReviewHandler) ListReviews(kind domain.EntityKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := domain.EntityRef{Kind: kind, ID: chi.URLParam(r, "id")}
		page := pagination.FromRequest(r)

		reviews, total, err := h.service.ListReviews(r.Context(), ref, page)
		if err != nil {
			h.writeError(w, r, err)
			return
		}

		httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse(reviews, total, page.Page, page.PerPage))
	}
}

func (h *ReviewHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, err, h.logger)
}

func writeError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		httputil.WriteValidationError(w, err)
		return
	}
	httputil.WriteError(w, r, err, logger)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return false
	}
	return true
}
