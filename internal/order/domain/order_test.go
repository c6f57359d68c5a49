package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockflow-io/stockflow/pkg/fault"
)

func newOrder(status Status) *Order {
	return &Order{ID: "o-1", Status: status}
}

func TestUpdateStatusForwardOnly(t *testing.T) {
	now := time.Now().UTC()

	o := newOrder(StatusReserved)
	require.NoError(t, o.UpdateStatus(StatusProcessing, "system", "", now))
	assert.Equal(t, StatusProcessing, o.Status)
	require.Len(t, o.StatusHistory, 1)
	assert.Equal(t, StatusReserved, o.StatusHistory[0].PreviousStatus)
	assert.Equal(t, StatusProcessing, o.StatusHistory[0].Status)

	// a stale reservation event cannot drag the order back
	err := o.UpdateStatus(StatusPendingInventory, "system", "", now)
	assert.True(t, fault.IsConflict(err))
	assert.Equal(t, StatusProcessing, o.Status)
}

func TestUpdateStatusSameStatusIsNoOp(t *testing.T) {
	o := newOrder(StatusReserved)
	require.NoError(t, o.UpdateStatus(StatusReserved, "system", "", time.Now()))
	assert.Empty(t, o.StatusHistory)
}

func TestUpdateStatusStampsDates(t *testing.T) {
	now := time.Now().UTC()
	o := newOrder(StatusProcessing)

	require.NoError(t, o.UpdateStatus(StatusShipped, "ops", "", now))
	require.NotNil(t, o.ShippedDate)
	assert.Equal(t, now, *o.ShippedDate)
	assert.Nil(t, o.DeliveredDate)

	later := now.Add(48 * time.Hour)
	require.NoError(t, o.UpdateStatus(StatusDelivered, "carrier", "", later))
	require.NotNil(t, o.DeliveredDate)
	assert.Equal(t, later, *o.DeliveredDate)
}

func TestCancellationRules(t *testing.T) {
	now := time.Now().UTC()

	for _, st := range []Status{StatusCreated, StatusPendingInventory, StatusReserved, StatusProcessing} {
		o := newOrder(st)
		assert.True(t, o.CanCancel(), string(st))
		assert.NoError(t, o.UpdateStatus(StatusCancelled, "customer", "changed mind", now))
	}

	for _, st := range []Status{StatusShipped, StatusDelivered} {
		o := newOrder(st)
		assert.False(t, o.CanCancel(), string(st))
		assert.True(t, fault.IsConflict(o.UpdateStatus(StatusCancelled, "customer", "", now)))
	}
}

func TestReturnOnlyAfterDelivery(t *testing.T) {
	now := time.Now().UTC()

	o := newOrder(StatusDelivered)
	require.NoError(t, o.UpdateStatus(StatusReturned, "customer", "defective", now))

	o = newOrder(StatusShipped)
	assert.True(t, fault.IsConflict(o.UpdateStatus(StatusReturned, "customer", "", now)))
}

func TestCanUpdateItems(t *testing.T) {
	assert.True(t, newOrder(StatusCreated).CanUpdateItems())
	assert.True(t, newOrder(StatusPendingInventory).CanUpdateItems())
	assert.False(t, newOrder(StatusReserved).CanUpdateItems())
	assert.False(t, newOrder(StatusCancelled).CanUpdateItems())
}

func TestMarkItemReserved(t *testing.T) {
	o := &Order{Items: []OrderItem{
		{ProductID: "P1"},
		{ProductID: "P2"},
	}}
	o.MarkItemReserved("P2", "reserved from Main DC")

	assert.False(t, o.Items[0].IsReserved)
	assert.True(t, o.Items[1].IsReserved)
	assert.Equal(t, "reserved from Main DC", o.Items[1].ReservationNotes)
}

func TestRecalculateTotal(t *testing.T) {
	o := &Order{Items: []OrderItem{
		{Quantity: 2, UnitPrice: decimal.RequireFromString("19.99")},
		{Quantity: 1, UnitPrice: decimal.RequireFromString("5.50")},
	}}
	o.RecalculateTotal()
	assert.True(t, o.TotalAmount.Equal(decimal.RequireFromString("45.48")))
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("Reserved")
	require.NoError(t, err)
	assert.Equal(t, StatusReserved, st)

	_, err = ParseStatus("reserved")
	assert.True(t, fault.IsValidation(err))
}
