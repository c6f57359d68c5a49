package outbox

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// Event is a row of the outbox table: a domain event recorded in the same
// transaction as the business write that produced it, delivered by the Relay
// only after that transaction committed.
type Event struct {
	ID            int64
	AggregateType string
	AggregateID   string
	Type          string
	RoutingKey    string
	Payload       []byte
	Traceparent   string
	CreatedAt     time.Time
	Status        Status
	RelayID       string
	RetryCount    int
	LastError     *string
}
