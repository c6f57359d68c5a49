package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockflow-io/stockflow/internal/order/application"
	"github.com/stockflow-io/stockflow/internal/order/domain"
	"github.com/stockflow-io/stockflow/pkg/tracing"
)

const orderColumns = `id, customer_name, customer_email, shipping_address, status,
	order_date, shipped_date, delivered_date, notes, total_amount`

// Repository implements the order persistence ports over pgx. Items and
// status history live in child tables and are loaded with the order.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithinTx(ctx context.Context, fn func(tx application.Tx) error) error {
	pgtx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer pgtx.Rollback(ctx)

	if err := fn(&repoTx{tx: pgtx}); err != nil {
		return err
	}
	if err := pgtx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *Repository) OrderByID(ctx context.Context, id string) (*domain.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if err != nil || order == nil {
		return order, err
	}
	if err := loadChildren(ctx, r.pool, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *Repository) Orders(ctx context.Context, filter application.OrderFilter) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE 1=1`
	args := []any{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.CustomerEmail != "" {
		args = append(args, filter.CustomerEmail)
		query += fmt.Sprintf(" AND customer_email = $%d", len(args))
	}
	args = append(args, filter.Limit)
	query += fmt.Sprintf(" ORDER BY order_date DESC LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if err := loadChildren(ctx, r.pool, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type repoTx struct {
	tx pgx.Tx
}

func (t *repoTx) OrderForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
	order, err := scanOrder(row)
	if err != nil || order == nil {
		return order, err
	}
	if err := loadChildren(ctx, t.tx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (t *repoTx) InsertOrder(ctx context.Context, o *domain.Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders (id, customer_name, customer_email, shipping_address, status,
			order_date, shipped_date, delivered_date, notes, total_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		o.ID, o.CustomerName, o.CustomerEmail, o.ShippingAddress, o.Status,
		o.OrderDate, o.ShippedDate, o.DeliveredDate, o.Notes, o.TotalAmount)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return t.writeChildren(ctx, o)
}

func (t *repoTx) UpdateOrder(ctx context.Context, o *domain.Order) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE orders SET
			customer_name = $2,
			customer_email = $3,
			shipping_address = $4,
			status = $5,
			shipped_date = $6,
			delivered_date = $7,
			notes = $8,
			total_amount = $9
		WHERE id = $1`,
		o.ID, o.CustomerName, o.CustomerEmail, o.ShippingAddress, o.Status,
		o.ShippedDate, o.DeliveredDate, o.Notes, o.TotalAmount)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update order %s: no row", o.ID)
	}

	// children are replaced wholesale; both lists are small and already
	// locked through the parent row
	for _, table := range []string{"order_items", "order_status_history"} {
		if _, err := t.tx.Exec(ctx, `DELETE FROM `+table+` WHERE order_id = $1`, o.ID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return t.writeChildren(ctx, o)
}

func (t *repoTx) writeChildren(ctx context.Context, o *domain.Order) error {
	for _, it := range o.Items {
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, product_id, product_name, quantity, unit_price, is_reserved, reservation_notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			it.ID, o.ID, it.ProductID, it.ProductName, it.Quantity, it.UnitPrice, it.IsReserved, it.ReservationNotes); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	for _, sc := range o.StatusHistory {
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO order_status_history (order_id, previous_status, status, timestamp, changed_by, notes)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			o.ID, sc.PreviousStatus, sc.Status, sc.Timestamp, sc.ChangedBy, sc.Notes); err != nil {
			return fmt.Errorf("insert status history: %w", err)
		}
	}
	return nil
}

func (t *repoTx) Enqueue(ctx context.Context, aggregateID, eventType, routingKey string, payload []byte) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, routing_key, payload, traceparent)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		"order", aggregateID, eventType, routingKey, payload, tracing.Traceparent(ctx))
	if err != nil {
		return fmt.Errorf("enqueue outbox event: %w", err)
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadChildren(ctx context.Context, q querier, o *domain.Order) error {
	rows, err := q.Query(ctx, `
		SELECT id, product_id, product_name, quantity, unit_price, is_reserved, reservation_notes
		FROM order_items WHERE order_id = $1 ORDER BY id`, o.ID)
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice, &it.IsReserved, &it.ReservationNotes); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	hrows, err := q.Query(ctx, `
		SELECT previous_status, status, timestamp, changed_by, notes
		FROM order_status_history WHERE order_id = $1 ORDER BY timestamp, id`, o.ID)
	if err != nil {
		return fmt.Errorf("query status history: %w", err)
	}
	defer hrows.Close()
	for hrows.Next() {
		var sc domain.StatusChange
		if err := hrows.Scan(&sc.PreviousStatus, &sc.Status, &sc.Timestamp, &sc.ChangedBy, &sc.Notes); err != nil {
			return fmt.Errorf("scan status change: %w", err)
		}
		o.StatusHistory = append(o.StatusHistory, sc)
	}
	return hrows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.CustomerName, &o.CustomerEmail, &o.ShippingAddress, &o.Status,
		&o.OrderDate, &o.ShippedDate, &o.DeliveredDate, &o.Notes, &o.TotalAmount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}
	return &o, nil
}
