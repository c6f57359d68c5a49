package domain

import "time"

type TransactionType string

const (
	TxReceived    TransactionType = "received"
	TxShipped     TransactionType = "shipped"
	TxAdjusted    TransactionType = "adjusted"
	TxTransferred TransactionType = "transferred"
	TxReserved    TransactionType = "reserved"
	TxReleased    TransactionType = "released"
	TxReturned    TransactionType = "returned"
)

// InventoryTransaction is an append-only ledger entry. One row per
// stock-affecting operation; immutable once written.
type InventoryTransaction struct {
	ID              int64           `json:"id"`
	ProductID       string          `json:"productId"`
	WarehouseID     string          `json:"warehouseId"`
	LocationCode    string          `json:"locationCode"`
	Type            TransactionType `json:"type"`
	Quantity        int             `json:"quantity"`
	Timestamp       time.Time       `json:"timestamp"`
	ReferenceNumber string          `json:"referenceNumber"`
	Notes           string          `json:"notes"`
	CreatedBy       string          `json:"createdBy"`
}
