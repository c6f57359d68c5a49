package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stockflow-io/stockflow/internal/events"
	"github.com/stockflow-io/stockflow/internal/inventory/domain"
	"github.com/stockflow-io/stockflow/internal/principal"
	"github.com/stockflow-io/stockflow/pkg/fault"
)

// NotifyGroupInventory is the subscriber group that receives real-time
// inventory notifications.
const NotifyGroupInventory = "inventory"

type Service struct {
	log      *slog.Logger
	store    Store
	products ProductClient
	notifier Notifier
	policy   AllocationPolicy
}

func NewService(log *slog.Logger, store Store, products ProductClient, notifier Notifier, policy AllocationPolicy) *Service {
	return &Service{log: log, store: store, products: products, notifier: notifier, policy: policy}
}

type ReserveLine struct {
	ProductID string
	Quantity  int
}

type ReserveStockInput struct {
	OrderID  string
	Items    []ReserveLine
	Duration time.Duration
}

type ReserveStockResult struct {
	Reserved      []domain.Reservation
	ReservedItems []events.ReservedItem
	Unavailable   []events.InsufficientItem
}

// Success reports whether every line was reserved.
func (r *ReserveStockResult) Success() bool {
	return len(r.Unavailable) == 0 && len(r.Reserved) > 0
}

// ReserveStock allocates stock for an order's demand list. Each line is
// handled independently: a line is either reserved in full across one or
// more records, or rejected whole when total availability falls short.
// All lines share one local transaction; a malformed batch fails before
// any write. Reserved and insufficient events are enqueued in the same
// transaction.
func (s *Service) ReserveStock(ctx context.Context, in ReserveStockInput) (*ReserveStockResult, error) {
	if len(in.Items) == 0 {
		return nil, fault.Validationf("no items to reserve")
	}
	for _, item := range in.Items {
		if item.Quantity <= 0 {
			return nil, fault.Validationf("quantity for product %s must be greater than zero", item.ProductID)
		}
	}
	if in.Duration <= 0 {
		in.Duration = 24 * time.Hour
	}

	products := s.lookupProducts(ctx, productIDs(in.Items))
	actor := principal.From(ctx)
	now := time.Now().UTC()

	result := &ReserveStockResult{}
	err := s.store.WithinTx(ctx, func(tx Tx) error {
		for _, item := range in.Items {
			records, err := tx.RecordsByProductForUpdate(ctx, item.ProductID)
			if err != nil {
				return err
			}

			candidates := records[:0]
			available := 0
			for _, rec := range records {
				if rec.Quantity > 0 {
					candidates = append(candidates, rec)
					available += rec.Quantity
				}
			}
			s.policy.Sort(candidates)

			if available < item.Quantity {
				result.Unavailable = append(result.Unavailable, events.InsufficientItem{
					ProductID:         item.ProductID,
					ProductName:       products[item.ProductID].Name,
					RequestedQuantity: item.Quantity,
					AvailableQuantity: available,
				})
				continue
			}

			remaining := item.Quantity
			for i := range candidates {
				if remaining <= 0 {
					break
				}
				rec := &candidates[i]
				take := min(remaining, rec.Quantity)

				res := domain.Reservation{
					ID:           uuid.NewString(),
					ProductID:    item.ProductID,
					WarehouseID:  rec.WarehouseID,
					LocationCode: rec.LocationCode,
					Quantity:     take,
					OrderID:      in.OrderID,
					ReservedAt:   now,
					ExpiresAt:    now.Add(in.Duration),
					IsActive:     true,
				}
				if err := tx.InsertReservation(ctx, &res); err != nil {
					return err
				}
				result.Reserved = append(result.Reserved, res)

				if err := rec.RemoveStock(take); err != nil {
					return err
				}
				if err := tx.UpdateRecord(ctx, rec); err != nil {
					return err
				}

				if err := tx.AppendTransaction(ctx, domain.InventoryTransaction{
					ProductID:       item.ProductID,
					WarehouseID:     rec.WarehouseID,
					LocationCode:    rec.LocationCode,
					Type:            domain.TxReserved,
					Quantity:        take,
					Timestamp:       now,
					ReferenceNumber: in.OrderID,
					Notes:           fmt.Sprintf("reserved for order %s", in.OrderID),
					CreatedBy:       actor,
				}); err != nil {
					return err
				}

				remaining -= take
			}
		}

		if len(result.Unavailable) > 0 {
			payload, err := json.Marshal(events.InventoryInsufficient{
				OrderID:   in.OrderID,
				Items:     result.Unavailable,
				Timestamp: now,
			})
			if err != nil {
				return err
			}
			if err := tx.Enqueue(ctx, in.OrderID, events.TypeInventoryInsufficient, events.RouteInventoryInsufficient, payload); err != nil {
				return err
			}
		}

		if len(result.Reserved) > 0 {
			items, err := s.groupReserved(ctx, tx, result.Reserved, products)
			if err != nil {
				return err
			}
			result.ReservedItems = items

			payload, err := json.Marshal(events.InventoryReserved{
				OrderID:   in.OrderID,
				Items:     items,
				Timestamp: now,
			})
			if err != nil {
				return err
			}
			if err := tx.Enqueue(ctx, in.OrderID, events.TypeInventoryReserved, events.RouteInventoryReserved, payload); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Best effort, after commit. Failures are the notifier's problem.
	if len(result.Reserved) > 0 {
		s.notifier.Push(ctx, NotifyGroupInventory, result.Reserved)
	}

	s.log.Info("stock reservation processed",
		"order_id", in.OrderID,
		"reserved", len(result.Reserved),
		"unavailable", len(result.Unavailable),
		"policy", s.policy.Name())
	return result, nil
}

// CommitReservation permanently consumes an order's reservations: the
// goods shipped, so stock is NOT restored. Reports not-found when no
// active reservations remain, so a second commit never double-applies.
func (s *Service) CommitReservation(ctx context.Context, orderID string) error {
	actor := principal.From(ctx)
	now := time.Now().UTC()

	return s.store.WithinTx(ctx, func(tx Tx) error {
		reservations, err := tx.ActiveReservationsByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if len(reservations) == 0 {
			return fault.NotFoundf("no active reservations found for order %s", orderID)
		}

		for _, res := range reservations {
			if err := tx.DeactivateReservation(ctx, res.ID); err != nil {
				return err
			}
			if err := tx.AppendTransaction(ctx, domain.InventoryTransaction{
				ProductID:       res.ProductID,
				WarehouseID:     res.WarehouseID,
				LocationCode:    res.LocationCode,
				Type:            domain.TxShipped,
				Quantity:        res.Quantity,
				Timestamp:       now,
				ReferenceNumber: orderID,
				Notes:           fmt.Sprintf("shipped for order %s", orderID),
				CreatedBy:       actor,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReleaseReservation is the compensating action: each active reservation
// is deactivated and its quantity restored to the matching record. A
// record deleted in the interim is recreated with default thresholds.
func (s *Service) ReleaseReservation(ctx context.Context, orderID string) error {
	actor := principal.From(ctx)
	now := time.Now().UTC()

	return s.store.WithinTx(ctx, func(tx Tx) error {
		reservations, err := tx.ActiveReservationsByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if len(reservations) == 0 {
			return fault.NotFoundf("no active reservations found for order %s", orderID)
		}

		for _, res := range reservations {
			rec, err := tx.RecordForUpdate(ctx, res.ProductID, res.WarehouseID, res.LocationCode)
			if err != nil {
				return err
			}
			if rec == nil {
				rec = &domain.InventoryRecord{
					ID:               uuid.NewString(),
					ProductID:        res.ProductID,
					WarehouseID:      res.WarehouseID,
					LocationCode:     res.LocationCode,
					Quantity:         0,
					ReorderThreshold: 1,
					TargetStockLevel: 10,
					CreatedAt:        now,
					LastUpdated:      now,
				}
				if err := tx.InsertRecord(ctx, rec); err != nil {
					return err
				}
			}

			if err := rec.AddStock(res.Quantity); err != nil {
				return err
			}
			if err := tx.UpdateRecord(ctx, rec); err != nil {
				return err
			}
			if err := tx.DeactivateReservation(ctx, res.ID); err != nil {
				return err
			}
			if err := tx.AppendTransaction(ctx, domain.InventoryTransaction{
				ProductID:       res.ProductID,
				WarehouseID:     res.WarehouseID,
				LocationCode:    res.LocationCode,
				Type:            domain.TxReleased,
				Quantity:        res.Quantity,
				Timestamp:       now,
				ReferenceNumber: orderID,
				Notes:           fmt.Sprintf("released reservation for order %s", orderID),
				CreatedBy:       actor,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) ReservationsByOrder(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	return s.store.ReservationsByOrder(ctx, orderID)
}

// groupReserved collapses per-record reservations into one event item
// per (product, warehouse), enriched with catalog and warehouse names.
func (s *Service) groupReserved(ctx context.Context, tx Tx, reservations []domain.Reservation, products map[string]Product) ([]events.ReservedItem, error) {
	type key struct{ productID, warehouseID string }
	grouped := map[key]*events.ReservedItem{}
	order := make([]key, 0, len(reservations))

	warehouseIDs := make([]string, 0, len(reservations))
	seen := map[string]bool{}
	for _, res := range reservations {
		if !seen[res.WarehouseID] {
			seen[res.WarehouseID] = true
			warehouseIDs = append(warehouseIDs, res.WarehouseID)
		}
	}
	names, err := tx.WarehouseNames(ctx, warehouseIDs)
	if err != nil {
		return nil, err
	}

	for _, res := range reservations {
		k := key{res.ProductID, res.WarehouseID}
		item, ok := grouped[k]
		if !ok {
			item = &events.ReservedItem{
				ProductID:     res.ProductID,
				ProductName:   products[res.ProductID].Name,
				ProductSKU:    products[res.ProductID].SKU,
				WarehouseID:   res.WarehouseID,
				WarehouseName: names[res.WarehouseID],
			}
			grouped[k] = item
			order = append(order, k)
		}
		item.Quantity += res.Quantity
	}

	out := make([]events.ReservedItem, 0, len(order))
	for _, k := range order {
		out = append(out, *grouped[k])
	}
	return out, nil
}

// lookupProducts fetches catalog details for enrichment. A lookup
// failure degrades to empty names rather than failing the reservation.
func (s *Service) lookupProducts(ctx context.Context, ids []string) map[string]Product {
	products, err := s.products.Products(ctx, ids)
	if err != nil {
		s.log.Warn("product lookup failed", "err", err)
		return map[string]Product{}
	}
	return products
}

func productIDs(items []ReserveLine) []string {
	ids := make([]string, 0, len(items))
	seen := map[string]bool{}
	for _, it := range items {
		if !seen[it.ProductID] {
			seen[it.ProductID] = true
			ids = append(ids, it.ProductID)
		}
	}
	return ids
}
