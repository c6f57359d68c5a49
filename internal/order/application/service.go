package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockflow-io/stockflow/internal/events"
	"github.com/stockflow-io/stockflow/internal/order/domain"
	"github.com/stockflow-io/stockflow/internal/principal"
	"github.com/stockflow-io/stockflow/pkg/fault"
)

// NotifyGroupOrders is the subscriber group that receives real-time
// order lifecycle notices.
const NotifyGroupOrders = "orders"

type Service struct {
	log       *slog.Logger
	repo      Repository
	products  ProductClient
	inventory InventoryClient
	notifier  Notifier
}

func NewService(log *slog.Logger, repo Repository, products ProductClient, inventory InventoryClient, notifier Notifier) *Service {
	return &Service{log: log, repo: repo, products: products, inventory: inventory, notifier: notifier}
}

type CreateOrderItem struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

type CreateOrderInput struct {
	CustomerName    string
	CustomerEmail   string
	ShippingAddress string
	Notes           string
	Items           []CreateOrderItem
}

func (in CreateOrderInput) validate() error {
	if strings.TrimSpace(in.CustomerName) == "" {
		return fault.Validationf("customer name is required")
	}
	if _, err := mail.ParseAddress(in.CustomerEmail); err != nil {
		return fault.Validationf("invalid customer email %q", in.CustomerEmail)
	}
	if strings.TrimSpace(in.ShippingAddress) == "" {
		return fault.Validationf("shipping address is required")
	}
	if len(in.Items) == 0 {
		return fault.Validationf("order must contain at least one item")
	}
	for _, it := range in.Items {
		if it.ProductID == "" {
			return fault.Validationf("item product id is required")
		}
		if it.Quantity <= 0 {
			return fault.Validationf("quantity for product %s must be greater than zero", it.ProductID)
		}
		if it.UnitPrice.IsNegative() {
			return fault.Validationf("unit price for product %s cannot be negative", it.ProductID)
		}
	}
	return nil
}

// CreateOrder runs the happy path of the saga: persist the order, emit
// OrderCreated through the outbox, then attempt a synchronous
// reservation. A successful reservation advances the order to Reserved
// immediately; anything else leaves it in PendingInventory for the
// asynchronous inventory events to settle.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*domain.Order, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	catalog, err := s.lookupProducts(ctx, in.Items)
	if err != nil {
		return nil, err
	}

	actor := principal.From(ctx)
	now := time.Now().UTC()

	order := &domain.Order{
		ID:              uuid.NewString(),
		CustomerName:    in.CustomerName,
		CustomerEmail:   in.CustomerEmail,
		ShippingAddress: in.ShippingAddress,
		Status:          domain.StatusCreated,
		OrderDate:       now,
		Notes:           in.Notes,
		StatusHistory: []domain.StatusChange{
			{PreviousStatus: domain.StatusCreated, Status: domain.StatusCreated, Timestamp: now, ChangedBy: actor, Notes: "order placed"},
		},
	}
	demand := make([]events.OrderCreatedItem, 0, len(in.Items))
	for _, it := range in.Items {
		order.Items = append(order.Items, newOrderItem(it, catalog))
		demand = append(demand, events.OrderCreatedItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	order.RecalculateTotal()

	err = s.repo.WithinTx(ctx, func(tx Tx) error {
		if err := order.UpdateStatus(domain.StatusPendingInventory, actor, "awaiting inventory reservation", now); err != nil {
			return err
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		payload, err := json.Marshal(events.OrderCreated{
			OrderID:       order.ID,
			CustomerEmail: order.CustomerEmail,
			Items:         demand,
			Timestamp:     now,
		})
		if err != nil {
			return err
		}
		return tx.Enqueue(ctx, order.ID, events.TypeOrderCreated, events.RouteOrderCreated, payload)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Push(ctx, NotifyGroupOrders, order)

	outcome := s.inventory.Reserve(ctx, order.ID, demand)
	if !outcome.Success {
		s.log.Info("reservation not confirmed synchronously",
			"order_id", order.ID, "unavailable", len(outcome.UnavailableItems))
		if len(outcome.UnavailableItems) > 0 {
			notes, err := s.noteUnavailable(ctx, order.ID, outcome.UnavailableItems)
			if err != nil {
				s.log.Error("failed to note unavailable lines", "order_id", order.ID, "err", err)
			} else {
				order.Notes = notes
			}
		}
		return order, nil
	}

	if err := s.confirmReservation(ctx, order.ID, outcome.ReservedItems); err != nil {
		// the reservation stands; the async InventoryReserved event
		// will retry the same forward transition
		s.log.Error("failed to mark order reserved", "order_id", order.ID, "err", err)
		return order, nil
	}
	order.Status = domain.StatusReserved
	return order, nil
}

// lookupProducts resolves the referenced catalog entries and rejects
// ids the catalog does not know.
func (s *Service) lookupProducts(ctx context.Context, items []CreateOrderItem) (map[string]Product, error) {
	ids := make([]string, 0, len(items))
	seen := map[string]bool{}
	for _, it := range items {
		if seen[it.ProductID] {
			continue
		}
		seen[it.ProductID] = true
		ids = append(ids, it.ProductID)
	}

	catalog, err := s.products.Products(ctx, ids)
	if err != nil {
		return nil, fault.Infra("product lookup failed", err)
	}
	var missing []string
	for _, id := range ids {
		if _, ok := catalog[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, fault.Validationf("unknown products: %s", strings.Join(missing, ", "))
	}
	return catalog, nil
}

// newOrderItem builds a line, filling name and price from the catalog
// when the request omits them.
func newOrderItem(it CreateOrderItem, catalog map[string]Product) domain.OrderItem {
	p := catalog[it.ProductID]
	name := it.ProductName
	if name == "" {
		name = p.Name
	}
	price := it.UnitPrice
	if price.IsZero() {
		price = p.Price
	}
	return domain.OrderItem{
		ID:          uuid.NewString(),
		ProductID:   it.ProductID,
		ProductName: name,
		Quantity:    it.Quantity,
		UnitPrice:   price,
	}
}

// confirmReservation advances the order to Reserved and flags each
// reserved line with its supplying warehouses. Used by both the
// synchronous branch and the async InventoryReserved handler; the
// forward-only transition makes the two paths commute.
func (s *Service) confirmReservation(ctx context.Context, orderID string, items []events.ReservedItem) error {
	actor := principal.From(ctx)
	now := time.Now().UTC()

	warehouses := map[string][]string{}
	for _, it := range items {
		name := it.WarehouseName
		if name == "" {
			name = it.WarehouseID
		}
		warehouses[it.ProductID] = append(warehouses[it.ProductID], name)
	}

	var updated *domain.Order
	err := s.repo.WithinTx(ctx, func(tx Tx) error {
		order, err := tx.OrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return fault.NotFoundf("order %s not found", orderID)
		}

		previous := order.Status
		if err := order.UpdateStatus(domain.StatusReserved, actor, "inventory reserved", now); err != nil {
			return err
		}
		for productID, names := range warehouses {
			order.MarkItemReserved(productID, "reserved from "+strings.Join(names, ", "))
		}
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		if previous == order.Status {
			return nil
		}
		updated = order

		payload, err := json.Marshal(events.OrderStatusChanged{
			OrderID:        orderID,
			PreviousStatus: string(previous),
			NewStatus:      string(order.Status),
			Timestamp:      now,
		})
		if err != nil {
			return err
		}
		return tx.Enqueue(ctx, orderID, events.TypeOrderStatusChanged, events.RouteOrderStatusChanged, payload)
	})
	if err != nil {
		return err
	}
	if updated != nil {
		s.notifier.Push(ctx, NotifyGroupOrders, updated)
	}
	return nil
}

// noteUnavailable records which lines could not be reserved while the
// order waits in PendingInventory, returning the updated notes. Orders
// that already settled and redelivered reports are left untouched.
func (s *Service) noteUnavailable(ctx context.Context, orderID string, items []events.InsufficientItem) (string, error) {
	summary := insufficientSummary(items)
	err := s.repo.WithinTx(ctx, func(tx Tx) error {
		order, err := tx.OrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return fault.NotFoundf("order %s not found", orderID)
		}
		if order.Status != domain.StatusPendingInventory || strings.Contains(order.Notes, summary) {
			summary = order.Notes
			return nil
		}
		if order.Notes != "" {
			summary = order.Notes + "; " + summary
		}
		order.Notes = summary
		return tx.UpdateOrder(ctx, order)
	})
	if err != nil {
		return "", err
	}
	return summary, nil
}

func (s *Service) OrderByID(ctx context.Context, id string) (*domain.Order, error) {
	order, err := s.repo.OrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fault.NotFoundf("order %s not found", id)
	}
	return order, nil
}

func (s *Service) Orders(ctx context.Context, filter OrderFilter) ([]domain.Order, error) {
	if filter.Status != "" {
		if _, err := domain.ParseStatus(filter.Status); err != nil {
			return nil, err
		}
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return s.repo.Orders(ctx, filter)
}

func (s *Service) StatusHistory(ctx context.Context, id string) ([]domain.StatusChange, error) {
	order, err := s.OrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return order.StatusHistory, nil
}

type UpdateItemsInput struct {
	OrderID string
	Items   []CreateOrderItem
}

// UpdateOrderItems replaces the item list while the demand is still
// mutable, before any reservation holds stock.
func (s *Service) UpdateOrderItems(ctx context.Context, in UpdateItemsInput) (*domain.Order, error) {
	if len(in.Items) == 0 {
		return nil, fault.Validationf("order must contain at least one item")
	}
	for _, it := range in.Items {
		if it.Quantity <= 0 {
			return nil, fault.Validationf("quantity for product %s must be greater than zero", it.ProductID)
		}
	}
	catalog, err := s.lookupProducts(ctx, in.Items)
	if err != nil {
		return nil, err
	}

	var order *domain.Order
	err = s.repo.WithinTx(ctx, func(tx Tx) error {
		var err error
		order, err = tx.OrderForUpdate(ctx, in.OrderID)
		if err != nil {
			return err
		}
		if order == nil {
			return fault.NotFoundf("order %s not found", in.OrderID)
		}
		if !order.CanUpdateItems() {
			return fault.Conflictf("order %s items are frozen in status %s", in.OrderID, order.Status)
		}

		order.Items = order.Items[:0]
		for _, it := range in.Items {
			order.Items = append(order.Items, newOrderItem(it, catalog))
		}
		order.RecalculateTotal()
		return tx.UpdateOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// UpdateOrderStatus drives the saga's manual transitions. Moving to
// Processing commits the reservation at the inventory service first, so
// stock is never consumed for an order that failed to advance. Moving
// to Cancelled goes through CancelOrder to run the compensation.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, next domain.Status, notes string) error {
	if next == domain.StatusCancelled {
		return s.CancelOrder(ctx, orderID, notes)
	}

	if next == domain.StatusProcessing {
		if err := s.inventory.Commit(ctx, orderID); err != nil {
			if fault.IsNotFound(err) {
				return fault.Conflictf("order %s has no active reservation to commit", orderID)
			}
			return err
		}
	}
	return s.transition(ctx, orderID, next, notes)
}

// CancelOrder runs the compensating branch: release any held stock,
// then move the order to Cancelled and emit OrderCancelled.
func (s *Service) CancelOrder(ctx context.Context, orderID string, reason string) error {
	order, err := s.OrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if !order.CanCancel() {
		return fault.Conflictf("order %s cannot be cancelled in status %s", orderID, order.Status)
	}

	// A partially fulfilled batch leaves reservations behind even while
	// the order is still PendingInventory, so release on any status past
	// Created and tolerate "nothing held".
	if order.Status != domain.StatusCreated {
		if err := s.inventory.Release(ctx, orderID); err != nil && !fault.IsNotFound(err) {
			return err
		}
	}

	actor := principal.From(ctx)
	now := time.Now().UTC()

	var cancelled *domain.Order
	err = s.repo.WithinTx(ctx, func(tx Tx) error {
		order, err := tx.OrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return fault.NotFoundf("order %s not found", orderID)
		}
		if order.Status == domain.StatusCancelled {
			return nil
		}
		if err := order.UpdateStatus(domain.StatusCancelled, actor, reason, now); err != nil {
			return err
		}
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		cancelled = order
		payload, err := json.Marshal(events.OrderCancelled{
			OrderID:   orderID,
			Reason:    reason,
			Timestamp: now,
		})
		if err != nil {
			return err
		}
		return tx.Enqueue(ctx, orderID, events.TypeOrderCancelled, events.RouteOrderCancelled, payload)
	})
	if err != nil {
		return err
	}
	if cancelled != nil {
		s.notifier.Push(ctx, NotifyGroupOrders, cancelled)
	}
	return nil
}

// transition applies a forward status change and emits
// OrderStatusChanged in the same transaction.
func (s *Service) transition(ctx context.Context, orderID string, next domain.Status, notes string) error {
	actor := principal.From(ctx)
	now := time.Now().UTC()

	var updated *domain.Order
	err := s.repo.WithinTx(ctx, func(tx Tx) error {
		order, err := tx.OrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return fault.NotFoundf("order %s not found", orderID)
		}

		previous := order.Status
		if err := order.UpdateStatus(next, actor, notes, now); err != nil {
			return err
		}
		if previous == order.Status {
			return nil
		}
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		updated = order

		payload, err := json.Marshal(events.OrderStatusChanged{
			OrderID:        orderID,
			PreviousStatus: string(previous),
			NewStatus:      string(next),
			Timestamp:      now,
		})
		if err != nil {
			return err
		}
		return tx.Enqueue(ctx, orderID, events.TypeOrderStatusChanged, events.RouteOrderStatusChanged, payload)
	})
	if err != nil {
		return err
	}
	if updated != nil {
		s.notifier.Push(ctx, NotifyGroupOrders, updated)
	}
	return nil
}

func insufficientSummary(items []events.InsufficientItem) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, fmt.Sprintf("%s (requested %d, available %d)",
			it.ProductID, it.RequestedQuantity, it.AvailableQuantity))
	}
	return "insufficient stock: " + strings.Join(parts, ", ")
}
