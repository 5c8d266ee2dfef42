package domain

import (
	"time"

	apperrors "github.com/utafrali/storefront-ratings/pkg/errors"
)

// Rating bounds accepted for a single review.
const (
	MinRating = 1
	MaxRating = 5
)

// Review is a unit of user feedback about a product, a store, or both.
type Review struct {
	ID                 string    `json:"id"`
	AuthorID           string    `json:"author_id" validate:"required"`
	ProductID          *string   `json:"product_id,omitempty"`
	StoreID            *string   `json:"store_id,omitempty"`
	OrderID            *string   `json:"order_id,omitempty"`
	Rating             int       `json:"rating" validate:"required,gte=1,lte=5"`
	Title              string    `json:"title,omitempty" validate:"max=255"`
	Comment            string    `json:"comment" validate:"required"`
	Images             []string  `json:"images"`
	IsVerifiedPurchase bool      `json:"is_verified_purchase"`
	IsActive           bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ValidateAssociation rejects a review that references neither a product nor a store.
// It must run before the review is persisted.
func ValidateAssociation(r *Review) error {
	if isBlank(r.ProductID) && isBlank(r.StoreID) {
		return apperrors.Validation("review must reference a product or a store",
			map[string]string{
				"product_id": "product_id or store_id is required",
				"store_id":   "product_id or store_id is required",
			})
	}
	return nil
}

// Refs returns the entities the review currently points at, product first.
func (r *Review) Refs() []EntityRef {
	refs := make([]EntityRef, 0, 2)
	if !isBlank(r.ProductID) {
		refs = append(refs, EntityRef{Kind: EntityProduct, ID: *r.ProductID})
	}
	if !isBlank(r.StoreID) {
		refs = append(refs, EntityRef{Kind: EntityStore, ID: *r.StoreID})
	}
	return refs
}

// HasDualReference reports whether the review points at both a product and a store.
// Such records are accepted but flagged for product-owner review.
func (r *Review) HasDualReference() bool {
	return !isBlank(r.ProductID) && !isBlank(r.StoreID)
}

// ReviewPatch describes a single-document update. Nil fields are left unchanged.
// Entity references can be reassigned but never cleared.
type ReviewPatch struct {
	Rating    *int      `json:"rating,omitempty" validate:"omitempty,gte=1,lte=5"`
	Title     *string   `json:"title,omitempty" validate:"omitempty,max=255"`
	Comment   *string   `json:"comment,omitempty" validate:"omitempty,min=1"`
	Images    *[]string `json:"images,omitempty"`
	IsActive  *bool     `json:"is_active,omitempty"`
	ProductID *string   `json:"product_id,omitempty" validate:"omitempty,min=1"`
	StoreID   *string   `json:"store_id,omitempty" validate:"omitempty,min=1"`
}

// IsEmpty reports whether the patch changes nothing.
func (p *ReviewPatch) IsEmpty() bool {
	return p.Rating == nil && p.Title == nil && p.Comment == nil && p.Images == nil &&
		p.IsActive == nil && p.ProductID == nil && p.StoreID == nil
}

// AffectsAggregate reports whether the patch touches a field that feeds rating aggregates.
func (p *ReviewPatch) AffectsAggregate() bool {
	return p.Rating != nil || p.IsActive != nil || p.ProductID != nil || p.StoreID != nil
}

// Apply copies the patch onto r.
func (p *ReviewPatch) Apply(r *Review) {
	if p.Rating != nil {
		r.Rating = *p.Rating
	}
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.Comment != nil {
		r.Comment = *p.Comment
	}
	if p.Images != nil {
		r.Images = append([]string(nil), (*p.Images)...)
	}
	if p.IsActive != nil {
		r.IsActive = *p.IsActive
	}
	if p.ProductID != nil {
		id := *p.ProductID
		r.ProductID = &id
	}
	if p.StoreID != nil {
		id := *p.StoreID
		r.StoreID = &id
	}
}

// ReviewUpdate is the result of a single-document update-and-fetch: the post-update
// document and the entity references the review held before the write.
type ReviewUpdate struct {
	Review       *Review
	PreviousRefs []EntityRef
}

// DetachedRefs returns the references the review held before the update but no
// longer holds.
func (u *ReviewUpdate) DetachedRefs() []EntityRef {
	current := u.Review.Refs()
	var detached []EntityRef
	for _, prev := range u.PreviousRefs {
		found := false
		for _, cur := range current {
			if cur == prev {
				found = true
				break
			}
		}
		if !found {
			detached = append(detached, prev)
		}
	}
	return detached
}

func isBlank(s *string) bool {
	return s == nil || *s == ""
}
