package application

import (
	"context"

	"github.com/stockflow-io/stockflow/internal/events"
	"github.com/stockflow-io/stockflow/pkg/fault"
)

// HandleInventoryReserved confirms a reservation asynchronously. The
// synchronous path usually advanced the order already; the forward-only
// transition absorbs the duplicate. A conflict means a later status
// overtook this event, which is fine for an at-least-once broker.
func (s *Service) HandleInventoryReserved(ctx context.Context, evt events.InventoryReserved) error {
	err := s.confirmReservation(ctx, evt.OrderID, evt.Items)
	switch {
	case err == nil:
		return nil
	case fault.IsConflict(err):
		s.log.Info("stale inventory reserved event skipped", "order_id", evt.OrderID)
		return nil
	case fault.IsNotFound(err):
		s.log.Warn("inventory reserved for unknown order", "order_id", evt.OrderID)
		return nil
	default:
		return err
	}
}

// HandleInventoryInsufficient records the lines the allocation engine
// could not fulfill. The order stays in PendingInventory with a note
// enumerating the shortfall; any lines that did reserve keep their hold
// until the customer cancels or an operator resolves the stock.
func (s *Service) HandleInventoryInsufficient(ctx context.Context, evt events.InventoryInsufficient) error {
	_, err := s.noteUnavailable(ctx, evt.OrderID, evt.Items)
	switch {
	case err == nil:
		return nil
	case fault.IsNotFound(err):
		s.log.Warn("insufficient stock for unknown order", "order_id", evt.OrderID)
		return nil
	default:
		return err
	}
}
