package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockflow-io/stockflow/internal/events"
	"github.com/stockflow-io/stockflow/pkg/logging"
)

type fakeDedup struct {
	marked map[string]bool
}

func newFakeDedup() *fakeDedup {
	return &fakeDedup{marked: map[string]bool{}}
}

func (f *fakeDedup) Key(topic string, partition int, offset int64) string {
	return topic
}

func (f *fakeDedup) Seen(_ context.Context, key string) (bool, error) {
	return f.marked[key], nil
}

func (f *fakeDedup) Mark(_ context.Context, key string) error {
	f.marked[key] = true
	return nil
}

type fakeHandlers struct {
	reservedCalls     int
	insufficientCalls int
	reservedErr       error
}

func (f *fakeHandlers) HandleInventoryReserved(_ context.Context, _ events.InventoryReserved) error {
	f.reservedCalls++
	return f.reservedErr
}

func (f *fakeHandlers) HandleInventoryInsufficient(_ context.Context, _ events.InventoryInsufficient) error {
	f.insufficientCalls++
	return nil
}

func reservedMessage(t *testing.T) kafka.Message {
	t.Helper()
	payload, err := json.Marshal(events.InventoryReserved{OrderID: "o-1"})
	require.NoError(t, err)
	return kafka.Message{
		Topic:   events.TopicInventory,
		Value:   payload,
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(events.TypeInventoryReserved)}},
	}
}

func TestHandleMarksOnlyAfterSuccess(t *testing.T) {
	idem := newFakeDedup()
	handlers := &fakeHandlers{reservedErr: errors.New("db blip")}
	c := &Consumer{log: logging.New("test"), idem: idem, svc: handlers}
	msg := reservedMessage(t)

	// failed handling leaves the key unmarked so the broker redelivery
	// is processed again
	require.Error(t, c.handle(context.Background(), msg))
	assert.Empty(t, idem.marked)

	handlers.reservedErr = nil
	require.NoError(t, c.handle(context.Background(), msg))
	assert.Equal(t, 2, handlers.reservedCalls)
	assert.True(t, idem.marked[idem.Key(msg.Topic, msg.Partition, msg.Offset)])

	// a duplicate after success is skipped
	require.NoError(t, c.handle(context.Background(), msg))
	assert.Equal(t, 2, handlers.reservedCalls)
}

func TestHandleDropsPoisonMessage(t *testing.T) {
	idem := newFakeDedup()
	handlers := &fakeHandlers{}
	c := &Consumer{log: logging.New("test"), idem: idem, svc: handlers}

	msg := reservedMessage(t)
	msg.Value = []byte("not json")

	require.NoError(t, c.handle(context.Background(), msg))
	assert.Zero(t, handlers.reservedCalls)
}

func TestHandleIgnoresForeignEvents(t *testing.T) {
	c := &Consumer{log: logging.New("test"), idem: newFakeDedup(), svc: &fakeHandlers{}}

	msg := kafka.Message{
		Topic:   events.TopicInventory,
		Value:   []byte(`{}`),
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(events.TypeLowStockAlert)}},
	}
	require.NoError(t, c.handle(context.Background(), msg))
}
