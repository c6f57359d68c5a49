package application

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/stockflow-io/stockflow/internal/events"
	"github.com/stockflow-io/stockflow/internal/order/domain"
)

// Tx is the transactional slice of the order repository.
type Tx interface {
	// OrderForUpdate locks and returns an order with its items and
	// status history, or nil when absent.
	OrderForUpdate(ctx context.Context, id string) (*domain.Order, error)
	InsertOrder(ctx context.Context, o *domain.Order) error
	UpdateOrder(ctx context.Context, o *domain.Order) error

	// Enqueue records an outgoing event in the outbox within this
	// transaction; the relay publishes it after commit.
	Enqueue(ctx context.Context, aggregateID, eventType, routingKey string, payload []byte) error
}

type OrderFilter struct {
	Status        string
	CustomerEmail string
	Limit         int
	Offset        int
}

type Repository interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	OrderByID(ctx context.Context, id string) (*domain.Order, error)
	Orders(ctx context.Context, filter OrderFilter) ([]domain.Order, error)
}

// ReserveOutcome is the flattened result of a synchronous reservation
// call. Connectivity failures surface as Success=false, not as an
// error: the saga treats an unreachable peer like an unfulfilled
// reservation and lets the asynchronous path settle the order.
type ReserveOutcome struct {
	Success          bool
	ReservedItems    []events.ReservedItem
	UnavailableItems []events.InsufficientItem
}

// InventoryClient talks to the inventory service. Commit and Release
// return a not-found fault when no active reservation exists for the
// order, and an infrastructure fault when the peer is unreachable.
type InventoryClient interface {
	Reserve(ctx context.Context, orderID string, items []events.OrderCreatedItem) ReserveOutcome
	Commit(ctx context.Context, orderID string) error
	Release(ctx context.Context, orderID string) error
}

type Product struct {
	ID    string
	Name  string
	SKU   string
	Price decimal.Decimal
}

// ProductClient resolves product ids against the catalog. Unknown ids
// are simply absent from the result; callers decide whether that is an
// error.
type ProductClient interface {
	Products(ctx context.Context, ids []string) (map[string]Product, error)
}

// Notifier pushes order lifecycle notices to a subscriber group,
// fire-and-forget.
type Notifier interface {
	Push(ctx context.Context, group string, payload any)
}
