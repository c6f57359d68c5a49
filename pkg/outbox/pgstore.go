package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore persists outbox rows in postgres. Claiming uses
// FOR UPDATE SKIP LOCKED so several relays can drain the same table
// without handing out the same row twice.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE outbox_events SET
			status = $1,
			relay_id = $2,
			lease_until = now() + $3
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE status = $4
			   OR (status = $1 AND lease_until < now())
			ORDER BY id
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, aggregate_type, aggregate_id, event_type, routing_key,
			payload, traceparent, created_at, status, relay_id, retry_count, last_error`,
		StatusInProgress, relayID, lease, StatusPending, batchSize)
	if err != nil {
		return nil, fmt.Errorf("lock outbox batch: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.Type, &e.RoutingKey,
			&e.Payload, &e.Traceparent, &e.CreatedAt, &e.Status, &e.RelayID, &e.RetryCount, &e.LastError); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *PgStore) MarkSent(ctx context.Context, ids []int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE outbox_events SET status = $1, sent_at = now() WHERE id = ANY($2)`,
		StatusSent, ids)
	if err != nil {
		return fmt.Errorf("mark outbox sent: %w", err)
	}
	return nil
}

func (s *PgStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox_events SET
			status = CASE WHEN retry_count + 1 >= 10 THEN $1 ELSE $2 END,
			retry_count = retry_count + 1,
			last_error = $3
		WHERE id = $4`,
		StatusFailed, StatusPending, errMsg, id)
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return nil
}

func (s *PgStore) ExtendLease(ctx context.Context, relayID string, ids []int64, lease time.Duration) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE outbox_events SET lease_until = now() + $1 WHERE relay_id = $2 AND id = ANY($3)`,
		lease, relayID, ids)
	if err != nil {
		return fmt.Errorf("extend outbox lease: %w", err)
	}
	return nil
}
