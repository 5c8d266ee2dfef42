package aggregation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront-ratings/internal/domain"
)

func TestReconcileOnce_RepairsDrift(t *testing.T) {
	p2 := domain.EntityRef{Kind: domain.EntityProduct, ID: "p2"}
	p3 := domain.EntityRef{Kind: domain.EntityProduct, ID: "p3"}
	f := newFixture(t, productP1, p2, p3, storeS1)
	ctx := context.Background()

	f.addReview(t, productP1, 5)
	f.addReview(t, p3, 3)
	f.addReview(t, p3, 4)
	stale := f.addReview(t, storeS1, 1)
	f.addReview(t, storeS1, 5)

	engine := NewEngine(f.reviews, f.entities, NewKeyedMutex(), discardLogger())
	_, err := engine.Recompute(ctx, storeS1)
	require.NoError(t, err)
	f.reviews.SetActive(stale, false)
	require.NoError(t, f.entities.ApplyAggregate(ctx, p2, domain.Aggregate{RatingTenths: 10, ReviewCount: 9}))

	rec := NewReconciler(f.entities, engine, time.Hour, 2, discardLogger())
	stats, err := rec.ReconcileOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, ReconcileStats{Processed: 4}, stats)
	assert.Equal(t, "5.0", f.aggregate(t, productP1).RatingString())
	assert.Equal(t, domain.Aggregate{}, f.aggregate(t, p2))
	assert.Equal(t, "3.5", f.aggregate(t, p3).RatingString())
	assert.Equal(t, domain.Aggregate{RatingTenths: 50, ReviewCount: 1}, f.aggregate(t, storeS1))
}

type flakyRecomputer struct {
	failID string
	seen   []string
}

func (r *flakyRecomputer) Recompute(_ context.Context, ref domain.EntityRef) (domain.Aggregate, error) {
	r.seen = append(r.seen, ref.String())
	if ref.ID == r.failID {
		return domain.Aggregate{}, errors.New("timeout")
	}
	return domain.Aggregate{}, nil
}

func TestReconcileOnce_CountsFailuresAndContinues(t *testing.T) {
	f := newFixture(t, productP1, domain.EntityRef{Kind: domain.EntityProduct, ID: "p2"}, storeS1)
	recomputer := &flakyRecomputer{failID: "p1"}

	stats, err := NewReconciler(f.entities, recomputer, time.Hour, 1, discardLogger()).ReconcileOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ReconcileStats{Processed: 2, Failed: 1}, stats)
	assert.Equal(t, []string{"product/p1", "product/p2", "store/s1"}, recomputer.seen)
}

func TestReconcilerRun(t *testing.T) {
	f := newFixture(t, productP1)
	f.addReview(t, productP1, 4)
	engine := NewEngine(f.reviews, f.entities, NewKeyedMutex(), discardLogger())

	t.Run("disabled", func(t *testing.T) {
		assert.NoError(t, NewReconciler(f.entities, engine, 0, 10, discardLogger()).Run(context.Background()))
	})

	t.Run("ticks until cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- NewReconciler(f.entities, engine, 5*time.Millisecond, 10, discardLogger()).Run(ctx) }()

		assert.Eventually(t, func() bool {
			agg, err := f.entities.GetAggregate(context.Background(), productP1)
			return err == nil && agg.ReviewCount == 1
		}, time.Second, 5*time.Millisecond)

		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("reconciler did not stop")
		}
	})
}
