package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockflow-io/stockflow/internal/inventory/application"
	"github.com/stockflow-io/stockflow/internal/inventory/domain"
	"github.com/stockflow-io/stockflow/pkg/tracing"
)

const recordColumns = `id, product_id, warehouse_id, location_code, quantity,
	reorder_threshold, target_stock_level, created_at, last_updated`

const reservationColumns = `id, product_id, warehouse_id, location_code, quantity,
	order_id, reserved_at, expires_at, is_active`

// Store implements the inventory persistence ports over pgx. All writes
// go through WithinTx; FOR UPDATE locks serialize concurrent access to a
// product's records so allocations never read a stale quantity.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx application.Tx) error) error {
	pgtx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer pgtx.Rollback(ctx)

	if err := fn(&storeTx{tx: pgtx}); err != nil {
		return err
	}
	if err := pgtx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) RecordByID(ctx context.Context, id string) (*domain.InventoryRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM inventory_records WHERE id = $1`, id)
	return scanRecord(row)
}

func (s *Store) ReservationsByOrder(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE order_id = $1 ORDER BY reserved_at`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query reservations: %w", err)
	}
	defer rows.Close()
	return scanReservations(rows)
}

func (s *Store) ActiveReservationExists(ctx context.Context, productID, warehouseID, locationCode string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM reservations
			WHERE product_id = $1 AND warehouse_id = $2 AND location_code = $3 AND is_active
		)`, productID, warehouseID, locationCode).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query active reservations: %w", err)
	}
	return exists, nil
}

func (s *Store) LowStockRecords(ctx context.Context) ([]domain.InventoryRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+recordColumns+` FROM inventory_records
		WHERE quantity <= reorder_threshold
		ORDER BY product_id, warehouse_id`)
	if err != nil {
		return nil, fmt.Errorf("query low stock records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *Store) TransactionsByProduct(ctx context.Context, productID string, from, to time.Time) ([]domain.InventoryTransaction, error) {
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		from = to.AddDate(0, -1, 0)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, product_id, warehouse_id, location_code, type, quantity,
			timestamp, reference_number, notes, created_by
		FROM inventory_transactions
		WHERE product_id = $1 AND timestamp BETWEEN $2 AND $3
		ORDER BY timestamp DESC`, productID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.InventoryTransaction
	for rows.Next() {
		var t domain.InventoryTransaction
		if err := rows.Scan(&t.ID, &t.ProductID, &t.WarehouseID, &t.LocationCode, &t.Type,
			&t.Quantity, &t.Timestamp, &t.ReferenceNumber, &t.Notes, &t.CreatedBy); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type storeTx struct {
	tx pgx.Tx
}

func (t *storeTx) RecordsByProductForUpdate(ctx context.Context, productID string) ([]domain.InventoryRecord, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+recordColumns+` FROM inventory_records
		WHERE product_id = $1
		ORDER BY warehouse_id, location_code
		FOR UPDATE`, productID)
	if err != nil {
		return nil, fmt.Errorf("lock records by product: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (t *storeTx) RecordForUpdate(ctx context.Context, productID, warehouseID, locationCode string) (*domain.InventoryRecord, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+recordColumns+` FROM inventory_records
		WHERE product_id = $1 AND warehouse_id = $2 AND location_code = $3
		FOR UPDATE`, productID, warehouseID, locationCode)
	return scanRecord(row)
}

func (t *storeTx) RecordByIDForUpdate(ctx context.Context, id string) (*domain.InventoryRecord, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM inventory_records WHERE id = $1 FOR UPDATE`, id)
	return scanRecord(row)
}

func (t *storeTx) InsertRecord(ctx context.Context, rec *domain.InventoryRecord) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO inventory_records (id, product_id, warehouse_id, location_code, quantity,
			reorder_threshold, target_stock_level, created_at, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.ProductID, rec.WarehouseID, rec.LocationCode, rec.Quantity,
		rec.ReorderThreshold, rec.TargetStockLevel, rec.CreatedAt, rec.LastUpdated)
	if err != nil {
		return fmt.Errorf("insert inventory record: %w", err)
	}
	return nil
}

func (t *storeTx) UpdateRecord(ctx context.Context, rec *domain.InventoryRecord) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE inventory_records SET
			quantity = $2,
			reorder_threshold = $3,
			target_stock_level = $4,
			last_updated = $5
		WHERE id = $1`,
		rec.ID, rec.Quantity, rec.ReorderThreshold, rec.TargetStockLevel, rec.LastUpdated)
	if err != nil {
		return fmt.Errorf("update inventory record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update inventory record %s: no row", rec.ID)
	}
	return nil
}

func (t *storeTx) DeleteRecord(ctx context.Context, id string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM inventory_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete inventory record: %w", err)
	}
	return nil
}

func (t *storeTx) InsertReservation(ctx context.Context, res *domain.Reservation) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO reservations (id, product_id, warehouse_id, location_code, quantity,
			order_id, reserved_at, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		res.ID, res.ProductID, res.WarehouseID, res.LocationCode, res.Quantity,
		res.OrderID, res.ReservedAt, res.ExpiresAt, res.IsActive)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (t *storeTx) ActiveReservationsByOrder(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE order_id = $1 AND is_active
		ORDER BY reserved_at
		FOR UPDATE`, orderID)
	if err != nil {
		return nil, fmt.Errorf("lock reservations by order: %w", err)
	}
	defer rows.Close()
	return scanReservations(rows)
}

func (t *storeTx) DeactivateReservation(ctx context.Context, id string) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE reservations SET is_active = false WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deactivate reservation %s: no row", id)
	}
	return nil
}

func (t *storeTx) AppendTransaction(ctx context.Context, tr domain.InventoryTransaction) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO inventory_transactions (product_id, warehouse_id, location_code, type,
			quantity, timestamp, reference_number, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		tr.ProductID, tr.WarehouseID, tr.LocationCode, tr.Type,
		tr.Quantity, tr.Timestamp, tr.ReferenceNumber, tr.Notes, tr.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert inventory transaction: %w", err)
	}
	return nil
}

func (t *storeTx) WarehouseNames(ctx context.Context, ids []string) (map[string]string, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, name FROM warehouses WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query warehouse names: %w", err)
	}
	defer rows.Close()

	names := map[string]string{}
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan warehouse: %w", err)
		}
		names[id] = name
	}
	return names, rows.Err()
}

func (t *storeTx) Enqueue(ctx context.Context, aggregateID, eventType, routingKey string, payload []byte) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, routing_key, payload, traceparent)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		"inventory", aggregateID, eventType, routingKey, payload, tracing.Traceparent(ctx))
	if err != nil {
		return fmt.Errorf("enqueue outbox event: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.InventoryRecord, error) {
	var r domain.InventoryRecord
	err := row.Scan(&r.ID, &r.ProductID, &r.WarehouseID, &r.LocationCode, &r.Quantity,
		&r.ReorderThreshold, &r.TargetStockLevel, &r.CreatedAt, &r.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan inventory record: %w", err)
	}
	return &r, nil
}

func scanRecords(rows pgx.Rows) ([]domain.InventoryRecord, error) {
	var out []domain.InventoryRecord
	for rows.Next() {
		var r domain.InventoryRecord
		if err := rows.Scan(&r.ID, &r.ProductID, &r.WarehouseID, &r.LocationCode, &r.Quantity,
			&r.ReorderThreshold, &r.TargetStockLevel, &r.CreatedAt, &r.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan inventory record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanReservations(rows pgx.Rows) ([]domain.Reservation, error) {
	var out []domain.Reservation
	for rows.Next() {
		var r domain.Reservation
		if err := rows.Scan(&r.ID, &r.ProductID, &r.WarehouseID, &r.LocationCode, &r.Quantity,
			&r.OrderID, &r.ReservedAt, &r.ExpiresAt, &r.IsActive); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
