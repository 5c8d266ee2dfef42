package aggregation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront-ratings/internal/domain"
	"github.com/utafrali/storefront-ratings/internal/repository/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

type fixture struct {
	reviews  *memory.ReviewRepository
	entities *memory.EntityRepository
	seq      atomic.Int64
}

func newFixture(t *testing.T, refs ...domain.EntityRef) *fixture {
	t.Helper()
	f := &fixture{
		reviews:  memory.NewReviewRepository(),
		entities: memory.NewEntityRepository(),
	}
	for _, ref := range refs {
		require.NoError(t, f.entities.Register(context.Background(), ref))
	}
	return f
}

// addReview stores an active review of ref and returns its id.
func (f *fixture) addReview(t *testing.T, ref domain.EntityRef, rating int) string {
	t.Helper()
	n := f.seq.Add(1)
	rv := &domain.Review{
		ID:        fmt.Sprintf("r%d", n),
		AuthorID:  "u-1",
		Rating:    rating,
		Comment:   "fine",
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	switch ref.Kind {
	case domain.EntityProduct:
		rv.ProductID = strPtr(ref.ID)
	case domain.EntityStore:
		rv.StoreID = strPtr(ref.ID)
	}
	require.NoError(t, f.reviews.Create(context.Background(), rv))
	return rv.ID
}

func (f *fixture) aggregate(t *testing.T, ref domain.EntityRef) domain.Aggregate {
	t.Helper()
	agg, err := f.entities.GetAggregate(context.Background(), ref)
	require.NoError(t, err)
	return agg
}

// gatedSource parks the first reader after it has read, until release is closed.
type gatedSource struct {
	inner    ReviewSource
	calls    atomic.Int32
	readDone chan struct{}
	release  chan struct{}
}

func newGatedSource(inner ReviewSource) *gatedSource {
	return &gatedSource{
		inner:    inner,
		readDone: make(chan struct{}),
		release:  make(chan struct{}),
	}
}

func (g *gatedSource) ListActiveRatings(ctx context.Context, ref domain.EntityRef) ([]int, error) {
	ratings, err := g.inner.ListActiveRatings(ctx, ref)
	if g.calls.Add(1) == 1 {
		close(g.readDone)
		<-g.release
	}
	return ratings, err
}

type recordingObserver struct {
	mu      sync.Mutex
	ratings []domain.EntityRating
}

func (o *recordingObserver) RatingUpdated(_ context.Context, r domain.EntityRating) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ratings = append(o.ratings, r)
}

// blockingObserver parks the first notification until release is closed or its
// context ends, and reports which of the two happened on done.
type blockingObserver struct {
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
	done    chan error
}

func newBlockingObserver() *blockingObserver {
	return &blockingObserver{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		done:    make(chan error, 1),
	}
}

func (o *blockingObserver) RatingUpdated(ctx context.Context, _ domain.EntityRating) {
	if o.calls.Add(1) != 1 {
		return
	}
	close(o.entered)
	select {
	case <-o.release:
		o.done <- nil
	case <-ctx.Done():
		o.done <- ctx.Err()
	}
}
