package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/stockflow-io/stockflow/internal/events"
	"github.com/stockflow-io/stockflow/internal/order/application"
	"github.com/stockflow-io/stockflow/pkg/idempotency"
	"github.com/stockflow-io/stockflow/pkg/tracing"
)

// dedup is the slice of the idempotency store the consumer needs.
type dedup interface {
	Key(topic string, partition int, offset int64) string
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

// sagaHandlers is the slice of the order service the consumer drives.
type sagaHandlers interface {
	HandleInventoryReserved(ctx context.Context, evt events.InventoryReserved) error
	HandleInventoryInsufficient(ctx context.Context, evt events.InventoryInsufficient) error
}

// Consumer reads inventory events and feeds the saga handlers.
//
// Offsets are committed manually, only after a message is handled or
// deliberately skipped. A handler error leaves the offset untouched so
// the broker redelivers; the idempotency key is recorded only after the
// handler succeeds, so a redelivery of a failed message is processed
// again rather than skipped.
type Consumer struct {
	log    *slog.Logger
	reader *kafka.Reader
	idem   dedup
	svc    sagaHandlers
}

func NewConsumer(log *slog.Logger, brokers []string, groupID string, idem *idempotency.Store, svc *application.Service) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   events.TopicInventory,
	})
	return &Consumer{log: log, reader: reader, idem: idem, svc: svc}
}

func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				c.log.Info("consumer stopping")
				return nil
			}
			return err
		}

		msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
		if err := c.handle(msgCtx, msg); err != nil {
			c.log.Error("message handling failed, will redeliver",
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Error("offset commit failed", "err", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	key := c.idem.Key(msg.Topic, msg.Partition, msg.Offset)
	seen, err := c.idem.Seen(ctx, key)
	if err != nil {
		// redis down: fall through and rely on handler idempotence
		c.log.Warn("idempotency check failed", "err", err)
	} else if seen {
		c.log.Info("duplicate message skipped", "key", key)
		return nil
	}

	if err := c.dispatch(ctx, msg); err != nil {
		return err
	}
	// best effort: an unmarked key only means the duplicate is handled
	// again, which the forward-only status machine absorbs
	if err := c.idem.Mark(ctx, key); err != nil {
		c.log.Warn("idempotency mark failed", "key", key, "err", err)
	}
	return nil
}

func (c *Consumer) dispatch(ctx context.Context, msg kafka.Message) error {
	eventType := headerValue(msg.Headers, "event_type")
	switch eventType {
	case events.TypeInventoryReserved:
		var evt events.InventoryReserved
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return c.poison(msg, err)
		}
		return c.svc.HandleInventoryReserved(ctx, evt)
	case events.TypeInventoryInsufficient:
		var evt events.InventoryInsufficient
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return c.poison(msg, err)
		}
		return c.svc.HandleInventoryInsufficient(ctx, evt)
	default:
		// other inventory events are not this service's concern
		return nil
	}
}

// poison logs an unparseable message and drops it: retrying a payload
// that cannot unmarshal can never succeed.
func (c *Consumer) poison(msg kafka.Message, err error) error {
	c.log.Error("dropping malformed message",
		"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
	return nil
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
