package application

import (
	"sort"

	"github.com/stockflow-io/stockflow/internal/inventory/domain"
	"github.com/stockflow-io/stockflow/pkg/fault"
)

// AllocationPolicy decides which records supply a reservation when a
// product is stocked in several places. The sort must be deterministic:
// the engine consumes records greedily in the order the policy leaves
// them in.
type AllocationPolicy interface {
	Name() string
	Sort(records []domain.InventoryRecord)
}

const (
	PolicyAscendingWarehouse = "ascending-warehouse"
	PolicyMostStockedFirst   = "most-stocked-first"
)

// PolicyByName resolves a configured policy name.
func PolicyByName(name string) (AllocationPolicy, error) {
	switch name {
	case PolicyAscendingWarehouse, "":
		return ascendingWarehouse{}, nil
	case PolicyMostStockedFirst:
		return mostStockedFirst{}, nil
	default:
		return nil, fault.Validationf("unknown allocation policy %q", name)
	}
}

// ascendingWarehouse is the baseline: drain warehouses in id order.
type ascendingWarehouse struct{}

func (ascendingWarehouse) Name() string { return PolicyAscendingWarehouse }

func (ascendingWarehouse) Sort(records []domain.InventoryRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].WarehouseID != records[j].WarehouseID {
			return records[i].WarehouseID < records[j].WarehouseID
		}
		return records[i].LocationCode < records[j].LocationCode
	})
}

// mostStockedFirst drains the fullest location first, minimizing the
// number of records a single line spans.
type mostStockedFirst struct{}

func (mostStockedFirst) Name() string { return PolicyMostStockedFirst }

func (mostStockedFirst) Sort(records []domain.InventoryRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].Quantity != records[j].Quantity {
			return records[i].Quantity > records[j].Quantity
		}
		if records[i].WarehouseID != records[j].WarehouseID {
			return records[i].WarehouseID < records[j].WarehouseID
		}
		return records[i].LocationCode < records[j].LocationCode
	})
}
