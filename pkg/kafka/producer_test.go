package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront-ratings/pkg/logger"
)

func TestNewEvent_CarriesCorrelationID(t *testing.T) {
	ctx := logger.WithCorrelationID(context.Background(), "corr-7")
	payload := map[string]any{"entity_id": "p-1", "rating": "4.5"}

	event, err := NewEvent(ctx, "rating.updated", "p-1", "product", "rating-service", payload)
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, 1, event.Version)
	assert.Equal(t, "corr-7", event.CorrelationID)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, 2*time.Second)

	var got map[string]any
	require.NoError(t, event.UnmarshalData(&got))
	assert.Equal(t, "4.5", got["rating"])
}

func TestNewEvent_RejectsUnserializableData(t *testing.T) {
	_, err := NewEvent(context.Background(), "x", "a", "t", "svc", make(chan int))
	require.Error(t, err)
}

func TestUnmarshalEvent_InvalidJSON(t *testing.T) {
	_, err := UnmarshalEvent([]byte(`{broken`))
	require.Error(t, err)
}

func TestProducer_PublishKeysByAggregate(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, []string{"localhost:9092"}, testLogger())

	ctx := logger.WithCorrelationID(context.Background(), "corr-1")
	event, err := NewEvent(ctx, "review.created", "store-9", "store", "rating-service", map[string]string{"id": "r1"})
	require.NoError(t, err)

	topic := Topic("review", "created")
	before := testutil.ToFloat64(ProducerMessagesPublished.WithLabelValues(topic))
	require.NoError(t, p.Publish(ctx, topic, event))

	msgs := w.written()
	require.Len(t, msgs, 1)
	assert.Equal(t, "ecommerce.review.created", msgs[0].Topic)
	assert.Equal(t, "store-9", string(msgs[0].Key))
	assert.Equal(t, "review.created", header(msgs[0], "event_type"))
	assert.Equal(t, "corr-1", header(msgs[0], "correlation_id"))
	assert.Equal(t, before+1, testutil.ToFloat64(ProducerMessagesPublished.WithLabelValues(topic)))

	decoded, err := UnmarshalEvent(msgs[0].Value)
	require.NoError(t, err)
	assert.Equal(t, event.EventID, decoded.EventID)
}

func TestProducer_PublishError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := NewProducerWithWriter(w, nil, testLogger())

	event, err := NewEvent(context.Background(), "rating.updated", "p-1", "product", "svc", nil)
	require.NoError(t, err)

	topic := "ecommerce.rating.updated.err"
	err = p.Publish(context.Background(), topic, event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
	assert.Equal(t, float64(1), testutil.ToFloat64(ProducerPublishErrors.WithLabelValues(topic)))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestDefaultProducerConfig(t *testing.T) {
	cfg := DefaultProducerConfig([]string{"b1:9092"})
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 10*time.Millisecond, cfg.BatchTimeout)
	assert.False(t, cfg.Async)
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "ecommerce.rating.recompute_requested", Topic("rating", "recompute_requested"))
	assert.Equal(t, "ecommerce.dlq.ecommerce.store.deleted", DLQTopic(Topic("store", "deleted")))
}

func TestPingBrokers_NoBrokers(t *testing.T) {
	err := PingBrokers(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no brokers configured")
}
