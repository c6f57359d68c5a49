// Package notify pushes DTOs to named subscriber groups over redis
// pub/sub. Delivery is fire-and-forget: a failed push is logged and
// never surfaces to the business operation that triggered it.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

type Publisher struct {
	log *slog.Logger
	rdb *redis.Client
}

func NewPublisher(log *slog.Logger, rdb *redis.Client) *Publisher {
	return &Publisher{log: log, rdb: rdb}
}

// Push serializes payload and publishes it to the group's channel.
// Errors are swallowed by design.
func (p *Publisher) Push(ctx context.Context, group string, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		p.log.Error("notify marshal failed", "group", group, "err", err)
		return
	}
	if err := p.rdb.Publish(ctx, "notify:"+group, b).Err(); err != nil {
		p.log.Warn("notify push failed", "group", group, "err", err)
	}
}
