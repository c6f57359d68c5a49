// Package events holds the cross-service message contracts. Payloads are
// flat and JSON-serializable; consumers must tolerate duplicates and
// out-of-order delivery (the broker guarantees at-least-once only).
package events

import "time"

// Topics, one per owning domain. Partition key is the aggregate id.
const (
	TopicInventory = "inventory.events"
	TopicOrders    = "order.events"
)

// Routing keys, carried as a kafka header next to the event type.
const (
	RouteInventoryReserved     = "inventory.reserved"
	RouteInventoryInsufficient = "inventory.insufficient"
	RouteInventoryLevelChanged = "inventory.level.changed"
	RouteLowStockAlert         = "inventory.low.stock"
	RouteOrderCreated          = "order.created"
	RouteOrderStatusChanged    = "order.status.changed"
	RouteOrderCancelled        = "order.cancelled"
)

// Event type names as stored on outbox rows and kafka headers.
const (
	TypeInventoryReserved     = "InventoryReserved"
	TypeInventoryInsufficient = "InventoryInsufficient"
	TypeInventoryLevelChanged = "InventoryLevelChanged"
	TypeLowStockAlert         = "LowStockAlert"
	TypeOrderCreated          = "OrderCreated"
	TypeOrderStatusChanged    = "OrderStatusChanged"
	TypeOrderCancelled        = "OrderCancelled"
)

type ReservedItem struct {
	ProductID     string `json:"productId"`
	ProductName   string `json:"productName"`
	ProductSKU    string `json:"productSku"`
	Quantity      int    `json:"quantity"`
	WarehouseID   string `json:"warehouseId"`
	WarehouseName string `json:"warehouseName"`
}

// InventoryReserved reports every line that was reserved for an order,
// grouped by product and warehouse.
type InventoryReserved struct {
	OrderID   string         `json:"orderId"`
	Items     []ReservedItem `json:"items"`
	Timestamp time.Time      `json:"timestamp"`
}

type InsufficientItem struct {
	ProductID         string `json:"productId"`
	ProductName       string `json:"productName"`
	RequestedQuantity int    `json:"requestedQuantity"`
	AvailableQuantity int    `json:"availableQuantity"`
}

// InventoryInsufficient lists every order line the allocation engine
// rejected for lack of stock.
type InventoryInsufficient struct {
	OrderID   string             `json:"orderId"`
	Items     []InsufficientItem `json:"items"`
	Timestamp time.Time          `json:"timestamp"`
}

type InventoryLevelChanged struct {
	ProductID    string    `json:"productId"`
	WarehouseID  string    `json:"warehouseId"`
	LocationCode string    `json:"locationCode"`
	OldQuantity  int       `json:"oldQuantity"`
	NewQuantity  int       `json:"newQuantity"`
	Timestamp    time.Time `json:"timestamp"`
}

type LowStockAlert struct {
	ProductID              string    `json:"productId"`
	WarehouseID            string    `json:"warehouseId"`
	LocationCode           string    `json:"locationCode"`
	CurrentQuantity        int       `json:"currentQuantity"`
	ReorderThreshold       int       `json:"reorderThreshold"`
	TargetStockLevel       int       `json:"targetStockLevel"`
	SuggestedOrderQuantity int       `json:"suggestedOrderQuantity"`
	Timestamp              time.Time `json:"timestamp"`
}

type OrderCreatedItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type OrderCreated struct {
	OrderID       string             `json:"orderId"`
	CustomerEmail string             `json:"customerEmail"`
	Items         []OrderCreatedItem `json:"items"`
	Timestamp     time.Time          `json:"timestamp"`
}

type OrderStatusChanged struct {
	OrderID        string    `json:"orderId"`
	PreviousStatus string    `json:"previousStatus"`
	NewStatus      string    `json:"newStatus"`
	Timestamp      time.Time `json:"timestamp"`
}

type OrderCancelled struct {
	OrderID   string    `json:"orderId"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}
