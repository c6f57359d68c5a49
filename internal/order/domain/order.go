package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockflow-io/stockflow/pkg/fault"
)

type Status string

const (
	StatusCreated          Status = "Created"
	StatusPendingInventory Status = "PendingInventory"
	StatusReserved         Status = "Reserved"
	StatusProcessing       Status = "Processing"
	StatusShipped          Status = "Shipped"
	StatusDelivered        Status = "Delivered"
	StatusCancelled        Status = "Cancelled"
	StatusReturned         Status = "Returned"
)

// statusRank orders the lifecycle so a late-arriving event cannot move
// an order backwards. Cancelled and Returned are terminal branches that
// outrank every forward state.
var statusRank = map[Status]int{
	StatusCreated:          0,
	StatusPendingInventory: 1,
	StatusReserved:         2,
	StatusProcessing:       3,
	StatusShipped:          4,
	StatusDelivered:        5,
	StatusReturned:         6,
	StatusCancelled:        7,
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := statusRank[st]; !ok {
		return "", fault.Validationf("unknown order status %q", s)
	}
	return st, nil
}

type OrderItem struct {
	ID               string          `json:"id"`
	ProductID        string          `json:"productId"`
	ProductName      string          `json:"productName"`
	Quantity         int             `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unitPrice"`
	IsReserved       bool            `json:"isReserved"`
	ReservationNotes string          `json:"reservationNotes,omitempty"`
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type StatusChange struct {
	PreviousStatus Status    `json:"previousStatus"`
	Status         Status    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	ChangedBy      string    `json:"changedBy"`
	Notes          string    `json:"notes"`
}

type Order struct {
	ID              string          `json:"id"`
	CustomerName    string          `json:"customerName"`
	CustomerEmail   string          `json:"customerEmail"`
	ShippingAddress string          `json:"shippingAddress"`
	Status          Status          `json:"status"`
	OrderDate       time.Time       `json:"orderDate"`
	ShippedDate     *time.Time      `json:"shippedDate,omitempty"`
	DeliveredDate   *time.Time      `json:"deliveredDate,omitempty"`
	Notes           string          `json:"notes"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	Items           []OrderItem     `json:"items"`
	StatusHistory   []StatusChange  `json:"statusHistory"`
}

// RecalculateTotal sums line totals into TotalAmount.
func (o *Order) RecalculateTotal() {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.LineTotal())
	}
	o.TotalAmount = total
}

// CanAdvanceTo reports whether moving to next respects the forward-only
// lifecycle. Same-status transitions are allowed and treated as no-ops
// by UpdateStatus, which absorbs duplicate event deliveries.
func (o *Order) CanAdvanceTo(next Status) bool {
	return statusRank[next] >= statusRank[o.Status]
}

// UpdateStatus advances the order, recording the change in the history.
// Shipped and Delivered stamp their dates. Updating to the current
// status is a no-op so redelivered events leave no duplicate history.
func (o *Order) UpdateStatus(next Status, changedBy, notes string, now time.Time) error {
	if next == o.Status {
		return nil
	}
	if !o.CanAdvanceTo(next) {
		return fault.Conflictf("order %s cannot move from %s to %s", o.ID, o.Status, next)
	}
	if next == StatusCancelled && !o.CanCancel() {
		return fault.Conflictf("order %s cannot be cancelled after shipment", o.ID)
	}
	if next == StatusReturned && o.Status != StatusDelivered {
		return fault.Conflictf("order %s can only be returned after delivery", o.ID)
	}

	previous := o.Status
	o.Status = next
	switch next {
	case StatusShipped:
		o.ShippedDate = &now
	case StatusDelivered:
		o.DeliveredDate = &now
	}
	o.StatusHistory = append(o.StatusHistory, StatusChange{
		PreviousStatus: previous,
		Status:         next,
		Timestamp:      now,
		ChangedBy:      changedBy,
		Notes:          notes,
	})
	return nil
}

// MarkItemReserved flags the line for productID as reserved, noting the
// supplying warehouses.
func (o *Order) MarkItemReserved(productID, note string) {
	for i := range o.Items {
		if o.Items[i].ProductID == productID {
			o.Items[i].IsReserved = true
			o.Items[i].ReservationNotes = note
		}
	}
}

// CanCancel reports whether the order may still be cancelled: anything
// before shipment qualifies.
func (o *Order) CanCancel() bool {
	return statusRank[o.Status] < statusRank[StatusShipped]
}

// CanUpdateItems reports whether the item list may still change. Once
// inventory is reserved the demand is frozen.
func (o *Order) CanUpdateItems() bool {
	return o.Status == StatusCreated || o.Status == StatusPendingInventory
}
