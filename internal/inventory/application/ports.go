package application

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockflow-io/stockflow/internal/inventory/domain"
)

// Tx is the transactional slice of the store. Every method runs inside
// the local transaction opened by Store.WithinTx; an error from the
// callback rolls back everything written so far.
type Tx interface {
	// RecordsByProductForUpdate returns all records for a product with
	// the rows locked, so two concurrent reservations cannot both read
	// and decrement the same quantity.
	RecordsByProductForUpdate(ctx context.Context, productID string) ([]domain.InventoryRecord, error)
	// RecordForUpdate locks and returns the record at the unique
	// (product, warehouse, location) key, or nil when absent.
	RecordForUpdate(ctx context.Context, productID, warehouseID, locationCode string) (*domain.InventoryRecord, error)
	RecordByIDForUpdate(ctx context.Context, id string) (*domain.InventoryRecord, error)
	InsertRecord(ctx context.Context, rec *domain.InventoryRecord) error
	UpdateRecord(ctx context.Context, rec *domain.InventoryRecord) error
	DeleteRecord(ctx context.Context, id string) error

	InsertReservation(ctx context.Context, res *domain.Reservation) error
	ActiveReservationsByOrder(ctx context.Context, orderID string) ([]domain.Reservation, error)
	DeactivateReservation(ctx context.Context, id string) error

	AppendTransaction(ctx context.Context, tx domain.InventoryTransaction) error

	WarehouseNames(ctx context.Context, ids []string) (map[string]string, error)

	// Enqueue records an outgoing event in the outbox within this
	// transaction; the relay publishes it after commit.
	Enqueue(ctx context.Context, aggregateID, eventType, routingKey string, payload []byte) error
}

type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	RecordByID(ctx context.Context, id string) (*domain.InventoryRecord, error)
	ReservationsByOrder(ctx context.Context, orderID string) ([]domain.Reservation, error)
	ActiveReservationExists(ctx context.Context, productID, warehouseID, locationCode string) (bool, error)
	LowStockRecords(ctx context.Context) ([]domain.InventoryRecord, error)
	TransactionsByProduct(ctx context.Context, productID string, from, to time.Time) ([]domain.InventoryTransaction, error)
}

type Product struct {
	ID    string
	Name  string
	SKU   string
	Price decimal.Decimal
}

// ProductClient resolves product ids to catalog details. It may return
// partial results or none; callers treat the data as enrichment only.
type ProductClient interface {
	Products(ctx context.Context, ids []string) (map[string]Product, error)
}

// Notifier pushes DTOs to a subscriber group, fire-and-forget.
type Notifier interface {
	Push(ctx context.Context, group string, payload any)
}
