package domain

import "time"

// Reservation pins quantity for one order line against one inventory
// record. The quantity has already been deducted from the record when
// the reservation row is created; committing or releasing deactivates
// the row, it is never deleted.
type Reservation struct {
	ID           string    `json:"id"`
	ProductID    string    `json:"productId"`
	WarehouseID  string    `json:"warehouseId"`
	LocationCode string    `json:"locationCode"`
	Quantity     int       `json:"quantity"`
	OrderID      string    `json:"orderId"`
	ReservedAt   time.Time `json:"reservedAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	IsActive     bool      `json:"isActive"`
}

// IsExpired is informational only; nothing sweeps expired reservations.
func (r *Reservation) IsExpired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && r.ExpiresAt.Before(now)
}
