package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// EntityKind identifies which kind of catalog entity carries a rating aggregate.
type EntityKind string

const (
	EntityProduct EntityKind = "product"
	EntityStore   EntityKind = "store"
)

// IsValid reports whether k is a known entity kind.
func (k EntityKind) IsValid() bool {
	return k == EntityProduct || k == EntityStore
}

// ParseEntityKind converts a string into an EntityKind.
func ParseEntityKind(s string) (EntityKind, error) {
	k := EntityKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("unknown entity kind %q", s)
	}
	return k, nil
}

// EntityRef addresses one product or store.
type EntityRef struct {
	Kind EntityKind `json:"entity_kind"`
	ID   string     `json:"entity_id"`
}

// Key returns the serialization key used for per-entity locking and caching.
func (r EntityRef) Key() string {
	return "rating:" + string(r.Kind) + ":" + r.ID
}

func (r EntityRef) String() string {
	return string(r.Kind) + "/" + r.ID
}

// Aggregate holds the denormalized rating fields stored on a product or store.
// RatingTenths is the mean rating times ten, rounded half away from zero.
type Aggregate struct {
	RatingTenths int
	ReviewCount  int
}

// ComputeAggregate derives the aggregate from the ratings of active reviews.
// An empty set yields a zero rating and count.
func ComputeAggregate(ratings []int) Aggregate {
	if len(ratings) == 0 {
		return Aggregate{}
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	n := len(ratings)
	// round(10*sum/n) with halves away from zero, in integer arithmetic.
	tenths := (20*sum + n) / (2 * n)
	return Aggregate{RatingTenths: tenths, ReviewCount: n}
}

// Rating returns the mean rating as a float with one fractional digit.
func (a Aggregate) Rating() float64 {
	return float64(a.RatingTenths) / 10
}

// RatingString formats the rating with exactly one fractional digit, or "0" when
// there are no reviews.
func (a Aggregate) RatingString() string {
	if a.ReviewCount == 0 {
		return "0"
	}
	return fmt.Sprintf("%d.%d", a.RatingTenths/10, a.RatingTenths%10)
}

// ParseRatingTenths parses a decimal rating such as "4.3", "4" or "0.0" into tenths.
func ParseRatingTenths(s string) (int, error) {
	s = strings.TrimSpace(s)
	whole, frac, hasFrac := strings.Cut(s, ".")
	w, err := strconv.Atoi(whole)
	if err != nil {
		return 0, fmt.Errorf("parse rating %q: %w", s, err)
	}
	tenths := w * 10
	if hasFrac && frac != "" {
		d, err := strconv.Atoi(frac[:1])
		if err != nil {
			return 0, fmt.Errorf("parse rating %q: %w", s, err)
		}
		tenths += d
	}
	return tenths, nil
}

type aggregateJSON struct {
	Rating      string `json:"rating"`
	ReviewCount int    `json:"review_count"`
}

// MarshalJSON encodes the rating in its storefront string form.
func (a Aggregate) MarshalJSON() ([]byte, error) {
	return json.Marshal(aggregateJSON{Rating: a.RatingString(), ReviewCount: a.ReviewCount})
}

// UnmarshalJSON decodes the storefront string form.
func (a *Aggregate) UnmarshalJSON(data []byte) error {
	var v aggregateJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	tenths, err := ParseRatingTenths(v.Rating)
	if err != nil {
		return err
	}
	a.RatingTenths = tenths
	a.ReviewCount = v.ReviewCount
	return nil
}

// EntityRating is an aggregate bound to the entity it describes.
type EntityRating struct {
	EntityRef
	Aggregate
}

// MarshalJSON flattens the reference and aggregate into one object.
func (e EntityRating) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind        EntityKind `json:"entity_kind"`
		ID          string     `json:"entity_id"`
		Rating      string     `json:"rating"`
		ReviewCount int        `json:"review_count"`
	}{e.Kind, e.ID, e.RatingString(), e.ReviewCount})
}
