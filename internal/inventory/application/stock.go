package application

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stockflow-io/stockflow/internal/events"
	"github.com/stockflow-io/stockflow/internal/inventory/domain"
	"github.com/stockflow-io/stockflow/internal/principal"
	"github.com/stockflow-io/stockflow/pkg/fault"
)

type CreateRecordInput struct {
	ProductID        string
	WarehouseID      string
	LocationCode     string
	Quantity         int
	ReorderThreshold int
	TargetStockLevel int
}

// CreateRecord registers a stock record for a new (product, warehouse,
// location) key. An opening balance gets a Received ledger entry and a
// level-changed event.
func (s *Service) CreateRecord(ctx context.Context, in CreateRecordInput) (*domain.InventoryRecord, error) {
	if in.Quantity < 0 {
		return nil, fault.Validationf("quantity cannot be negative")
	}
	if in.ReorderThreshold < 0 {
		return nil, fault.Validationf("reorder threshold cannot be negative")
	}
	if in.TargetStockLevel < in.ReorderThreshold {
		return nil, fault.Validationf("target stock level must be greater than or equal to reorder threshold")
	}

	now := time.Now().UTC()
	rec := &domain.InventoryRecord{
		ID:               uuid.NewString(),
		ProductID:        in.ProductID,
		WarehouseID:      in.WarehouseID,
		LocationCode:     in.LocationCode,
		Quantity:         in.Quantity,
		ReorderThreshold: in.ReorderThreshold,
		TargetStockLevel: in.TargetStockLevel,
		CreatedAt:        now,
		LastUpdated:      now,
	}
	actor := principal.From(ctx)

	err := s.store.WithinTx(ctx, func(tx Tx) error {
		existing, err := tx.RecordForUpdate(ctx, in.ProductID, in.WarehouseID, in.LocationCode)
		if err != nil {
			return err
		}
		if existing != nil {
			return fault.Conflictf("inventory record already exists for product %s in warehouse %s at %s",
				in.ProductID, in.WarehouseID, in.LocationCode)
		}
		if err := tx.InsertRecord(ctx, rec); err != nil {
			return err
		}
		if rec.Quantity > 0 {
			if err := tx.AppendTransaction(ctx, domain.InventoryTransaction{
				ProductID:    rec.ProductID,
				WarehouseID:  rec.WarehouseID,
				LocationCode: rec.LocationCode,
				Type:         domain.TxReceived,
				Quantity:     rec.Quantity,
				Timestamp:    now,
				Notes:        "initial inventory setup",
				CreatedBy:    actor,
			}); err != nil {
				return err
			}
		}
		return s.enqueueLevelChanged(ctx, tx, rec, 0)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

type AdjustStockInput struct {
	RecordID string
	Quantity int
	Addition bool
	Notes    string
}

// AdjustStock adds or removes stock on one record, with a ledger entry
// and a level-changed event. Dropping to or below the reorder threshold
// raises a low-stock alert.
func (s *Service) AdjustStock(ctx context.Context, in AdjustStockInput) (*domain.InventoryRecord, error) {
	if in.Quantity <= 0 {
		return nil, fault.Validationf("adjustment quantity must be greater than zero")
	}

	actor := principal.From(ctx)
	now := time.Now().UTC()

	var rec *domain.InventoryRecord
	err := s.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		rec, err = tx.RecordByIDForUpdate(ctx, in.RecordID)
		if err != nil {
			return err
		}
		if rec == nil {
			return fault.NotFoundf("inventory record %s not found", in.RecordID)
		}

		oldQuantity := rec.Quantity
		txType := domain.TxReceived
		if in.Addition {
			if err := rec.AddStock(in.Quantity); err != nil {
				return err
			}
		} else {
			txType = domain.TxShipped
			if err := rec.RemoveStock(in.Quantity); err != nil {
				return err
			}
		}
		if err := tx.UpdateRecord(ctx, rec); err != nil {
			return err
		}

		if err := tx.AppendTransaction(ctx, domain.InventoryTransaction{
			ProductID:    rec.ProductID,
			WarehouseID:  rec.WarehouseID,
			LocationCode: rec.LocationCode,
			Type:         txType,
			Quantity:     in.Quantity,
			Timestamp:    now,
			Notes:        in.Notes,
			CreatedBy:    actor,
		}); err != nil {
			return err
		}

		if err := s.enqueueLevelChanged(ctx, tx, rec, oldQuantity); err != nil {
			return err
		}
		if rec.IsLowStock() {
			if err := s.enqueueLowStock(ctx, tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if rec.IsLowStock() {
		s.notifier.Push(ctx, NotifyGroupInventory, rec)
	}
	return rec, nil
}

type TransferStockInput struct {
	ProductID       string
	SourceWarehouse string
	SourceLocation  string
	DestWarehouse   string
	DestLocation    string
	Quantity        int
	Notes           string
}

// TransferStock moves quantity between two locations in one transaction,
// writing a Transferred ledger entry per side. The destination record is
// created on demand with the source's thresholds.
func (s *Service) TransferStock(ctx context.Context, in TransferStockInput) error {
	if in.Quantity <= 0 {
		return fault.Validationf("transfer quantity must be greater than zero")
	}
	if in.SourceWarehouse == in.DestWarehouse && in.SourceLocation == in.DestLocation {
		return fault.Validationf("source and destination locations must be different")
	}

	actor := principal.From(ctx)
	now := time.Now().UTC()
	ref := fmt.Sprintf("transfer:%s:%s->%s", in.ProductID, in.SourceWarehouse, in.DestWarehouse)

	return s.store.WithinTx(ctx, func(tx Tx) error {
		src, err := tx.RecordForUpdate(ctx, in.ProductID, in.SourceWarehouse, in.SourceLocation)
		if err != nil {
			return err
		}
		if src == nil {
			return fault.NotFoundf("no inventory record for product %s in warehouse %s at %s",
				in.ProductID, in.SourceWarehouse, in.SourceLocation)
		}

		srcOld := src.Quantity
		if err := src.RemoveStock(in.Quantity); err != nil {
			return err
		}
		if err := tx.UpdateRecord(ctx, src); err != nil {
			return err
		}

		dst, err := tx.RecordForUpdate(ctx, in.ProductID, in.DestWarehouse, in.DestLocation)
		if err != nil {
			return err
		}
		if dst == nil {
			dst = &domain.InventoryRecord{
				ID:               uuid.NewString(),
				ProductID:        in.ProductID,
				WarehouseID:      in.DestWarehouse,
				LocationCode:     in.DestLocation,
				ReorderThreshold: src.ReorderThreshold,
				TargetStockLevel: src.TargetStockLevel,
				CreatedAt:        now,
				LastUpdated:      now,
			}
			if err := tx.InsertRecord(ctx, dst); err != nil {
				return err
			}
		}

		dstOld := dst.Quantity
		if err := dst.AddStock(in.Quantity); err != nil {
			return err
		}
		if err := tx.UpdateRecord(ctx, dst); err != nil {
			return err
		}

		for _, side := range []struct {
			rec *domain.InventoryRecord
			old int
		}{{src, srcOld}, {dst, dstOld}} {
			if err := tx.AppendTransaction(ctx, domain.InventoryTransaction{
				ProductID:       in.ProductID,
				WarehouseID:     side.rec.WarehouseID,
				LocationCode:    side.rec.LocationCode,
				Type:            domain.TxTransferred,
				Quantity:        in.Quantity,
				Timestamp:       now,
				ReferenceNumber: ref,
				Notes:           in.Notes,
				CreatedBy:       actor,
			}); err != nil {
				return err
			}
			if err := s.enqueueLevelChanged(ctx, tx, side.rec, side.old); err != nil {
				return err
			}
		}

		if src.IsLowStock() {
			return s.enqueueLowStock(ctx, tx, src)
		}
		return nil
	})
}

// DeleteRecord removes a record, refusing while active reservations
// still reference it.
func (s *Service) DeleteRecord(ctx context.Context, id string) error {
	rec, err := s.store.RecordByID(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fault.NotFoundf("inventory record %s not found", id)
	}

	active, err := s.store.ActiveReservationExists(ctx, rec.ProductID, rec.WarehouseID, rec.LocationCode)
	if err != nil {
		return err
	}
	if active {
		return fault.Conflictf("cannot delete inventory record %s: active reservations reference it", id)
	}

	return s.store.WithinTx(ctx, func(tx Tx) error {
		return tx.DeleteRecord(ctx, id)
	})
}

type UpdateLevelsInput struct {
	RecordID         string
	ReorderThreshold int
	TargetStockLevel int
}

// UpdateStockLevels changes a record's reorder threshold and target
// level. A low-stock alert fires immediately when the new threshold
// puts the current balance under it.
func (s *Service) UpdateStockLevels(ctx context.Context, in UpdateLevelsInput) (*domain.InventoryRecord, error) {
	var rec *domain.InventoryRecord
	err := s.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		rec, err = tx.RecordByIDForUpdate(ctx, in.RecordID)
		if err != nil {
			return err
		}
		if rec == nil {
			return fault.NotFoundf("inventory record %s not found", in.RecordID)
		}
		if err := rec.UpdateStockLevels(in.ReorderThreshold, in.TargetStockLevel); err != nil {
			return err
		}
		if err := tx.UpdateRecord(ctx, rec); err != nil {
			return err
		}
		if rec.IsLowStock() {
			return s.enqueueLowStock(ctx, tx, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) RecordByID(ctx context.Context, id string) (*domain.InventoryRecord, error) {
	rec, err := s.store.RecordByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fault.NotFoundf("inventory record %s not found", id)
	}
	return rec, nil
}

func (s *Service) LowStockRecords(ctx context.Context) ([]domain.InventoryRecord, error) {
	return s.store.LowStockRecords(ctx)
}

func (s *Service) TransactionsByProduct(ctx context.Context, productID string, from, to time.Time) ([]domain.InventoryTransaction, error) {
	return s.store.TransactionsByProduct(ctx, productID, from, to)
}

func (s *Service) enqueueLevelChanged(ctx context.Context, tx Tx, rec *domain.InventoryRecord, oldQuantity int) error {
	payload, err := json.Marshal(events.InventoryLevelChanged{
		ProductID:    rec.ProductID,
		WarehouseID:  rec.WarehouseID,
		LocationCode: rec.LocationCode,
		OldQuantity:  oldQuantity,
		NewQuantity:  rec.Quantity,
		Timestamp:    time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return tx.Enqueue(ctx, rec.ProductID, events.TypeInventoryLevelChanged, events.RouteInventoryLevelChanged, payload)
}

func (s *Service) enqueueLowStock(ctx context.Context, tx Tx, rec *domain.InventoryRecord) error {
	payload, err := json.Marshal(events.LowStockAlert{
		ProductID:              rec.ProductID,
		WarehouseID:            rec.WarehouseID,
		LocationCode:           rec.LocationCode,
		CurrentQuantity:        rec.Quantity,
		ReorderThreshold:       rec.ReorderThreshold,
		TargetStockLevel:       rec.TargetStockLevel,
		SuggestedOrderQuantity: rec.TargetStockLevel - rec.Quantity,
		Timestamp:              time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return tx.Enqueue(ctx, rec.ProductID, events.TypeLowStockAlert, events.RouteLowStockAlert, payload)
}
