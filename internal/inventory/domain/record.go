package domain

import (
	"time"

	"github.com/stockflow-io/stockflow/pkg/fault"
)

// InventoryRecord is the stock balance for one product at one
// warehouse location. (ProductID, WarehouseID, LocationCode) is unique.
// Quantity is only mutated through AddStock/RemoveStock so LastUpdated
// stays honest.
type InventoryRecord struct {
	ID               string    `json:"id"`
	ProductID        string    `json:"productId"`
	WarehouseID      string    `json:"warehouseId"`
	LocationCode     string    `json:"locationCode"`
	Quantity         int       `json:"quantity"`
	ReorderThreshold int       `json:"reorderThreshold"`
	TargetStockLevel int       `json:"targetStockLevel"`
	CreatedAt        time.Time `json:"createdAt"`
	LastUpdated      time.Time `json:"lastUpdated"`
}

func (r *InventoryRecord) IsLowStock() bool {
	return r.Quantity <= r.ReorderThreshold
}

func (r *InventoryRecord) AddStock(quantity int) error {
	if quantity <= 0 {
		return fault.Validationf("quantity must be greater than zero")
	}
	r.Quantity += quantity
	r.LastUpdated = time.Now().UTC()
	return nil
}

func (r *InventoryRecord) RemoveStock(quantity int) error {
	if quantity <= 0 {
		return fault.Validationf("quantity must be greater than zero")
	}
	if quantity > r.Quantity {
		return fault.Conflictf("cannot remove %d units, only %d available", quantity, r.Quantity)
	}
	r.Quantity -= quantity
	r.LastUpdated = time.Now().UTC()
	return nil
}

func (r *InventoryRecord) UpdateStockLevels(reorderThreshold, targetStockLevel int) error {
	if reorderThreshold < 0 {
		return fault.Validationf("reorder threshold cannot be negative")
	}
	if targetStockLevel < reorderThreshold {
		return fault.Validationf("target stock level must be greater than or equal to reorder threshold")
	}
	r.ReorderThreshold = reorderThreshold
	r.TargetStockLevel = targetStockLevel
	r.LastUpdated = time.Now().UTC()
	return nil
}
