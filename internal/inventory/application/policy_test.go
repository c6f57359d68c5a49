package application

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockflow-io/stockflow/internal/inventory/domain"
	"github.com/stockflow-io/stockflow/pkg/fault"
)

func TestPolicyByName(t *testing.T) {
	p, err := PolicyByName("")
	require.NoError(t, err)
	assert.Equal(t, PolicyAscendingWarehouse, p.Name())

	p, err = PolicyByName(PolicyMostStockedFirst)
	require.NoError(t, err)
	assert.Equal(t, PolicyMostStockedFirst, p.Name())

	_, err = PolicyByName("round-robin")
	assert.True(t, fault.IsValidation(err))
}

func TestAscendingWarehouseOrder(t *testing.T) {
	records := []domain.InventoryRecord{
		{WarehouseID: "W3", LocationCode: "A-1", Quantity: 9},
		{WarehouseID: "W1", LocationCode: "B-2", Quantity: 1},
		{WarehouseID: "W1", LocationCode: "A-1", Quantity: 2},
		{WarehouseID: "W2", LocationCode: "A-1", Quantity: 5},
	}
	p, _ := PolicyByName(PolicyAscendingWarehouse)
	p.Sort(records)

	got := make([]string, len(records))
	for i, r := range records {
		got[i] = r.WarehouseID + "/" + r.LocationCode
	}
	assert.Equal(t, []string{"W1/A-1", "W1/B-2", "W2/A-1", "W3/A-1"}, got)
}

func TestMostStockedFirstOrder(t *testing.T) {
	records := []domain.InventoryRecord{
		{WarehouseID: "W2", LocationCode: "A-1", Quantity: 5},
		{WarehouseID: "W1", LocationCode: "A-1", Quantity: 5},
		{WarehouseID: "W3", LocationCode: "A-1", Quantity: 9},
		{WarehouseID: "W1", LocationCode: "B-2", Quantity: 1},
	}
	p, _ := PolicyByName(PolicyMostStockedFirst)
	p.Sort(records)

	got := make([]string, len(records))
	for i, r := range records {
		got[i] = r.WarehouseID
	}
	// ties on quantity fall back to warehouse id
	assert.Equal(t, []string{"W3", "W1", "W2", "W1"}, got)
}
