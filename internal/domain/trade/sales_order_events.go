package trade

import (
	"github.com/adminkit/backend/internal/domain/shared"
	"github.com/adminkit/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// Aggregate type constant
const AggregateTypeSalesOrder = "SalesOrder"

// Event type constants
const (
	EventTypeSalesOrderCreated             = "SalesOrderCreated"
	EventTypeSalesOrderItemAdded           = "SalesOrderItemAdded"
	EventTypeSalesOrderItemQuantityChanged = "SalesOrderItemQuantityChanged"
	EventTypeSalesOrderConfirmed           = "SalesOrderConfirmed"
	EventTypeSalesOrderCancelled           = "SalesOrderCancelled"
)

// SalesOrderCreatedEvent is raised when a new sales order is created
type SalesOrderCreatedEvent struct {
	shared.BaseDomainEvent
	OrderNumber  string               `json:"order_number"`
	CustomerID   shared.UUID          `json:"customer_id"`
	CustomerName string               `json:"customer_name"`
	Currency     valueobject.Currency `json:"currency"`
}

// NewSalesOrderCreatedEvent creates a new SalesOrderCreatedEvent
func NewSalesOrderCreatedEvent(orderID shared.UUID, orderNumber string, customerID shared.UUID, customerName string, currency valueobject.Currency) *SalesOrderCreatedEvent {
	return &SalesOrderCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSalesOrderCreated, AggregateTypeSalesOrder, orderID),
		OrderNumber:     orderNumber,
		CustomerID:      customerID,
		CustomerName:    customerName,
		Currency:        currency,
	}
}

// SalesOrderItemAddedEvent is raised when a line is added to a draft order
type SalesOrderItemAddedEvent struct {
	shared.BaseDomainEvent
	ItemID      shared.UUID     `json:"item_id"`
	ProductID   shared.UUID     `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// NewSalesOrderItemAddedEvent creates a new SalesOrderItemAddedEvent
func NewSalesOrderItemAddedEvent(orderID, itemID, productID shared.UUID, productName string, quantity valueobject.Quantity, unitPrice valueobject.Money) *SalesOrderItemAddedEvent {
	return &SalesOrderItemAddedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSalesOrderItemAdded, AggregateTypeSalesOrder, orderID),
		ItemID:          itemID,
		ProductID:       productID,
		ProductName:     productName,
		Quantity:        quantity.Amount(),
		Unit:            quantity.Unit(),
		UnitPrice:       unitPrice.Amount(),
	}
}

// SalesOrderItemQuantityChangedEvent is raised when the quantity of a line changes
type SalesOrderItemQuantityChangedEvent struct {
	shared.BaseDomainEvent
	ItemID      shared.UUID     `json:"item_id"`
	OldQuantity decimal.Decimal `json:"old_quantity"`
	NewQuantity decimal.Decimal `json:"new_quantity"`
}

// NewSalesOrderItemQuantityChangedEvent creates a new SalesOrderItemQuantityChangedEvent
func NewSalesOrderItemQuantityChangedEvent(orderID, itemID shared.UUID, oldQuantity, newQuantity decimal.Decimal) *SalesOrderItemQuantityChangedEvent {
	return &SalesOrderItemQuantityChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSalesOrderItemQuantityChanged, AggregateTypeSalesOrder, orderID),
		ItemID:          itemID,
		OldQuantity:     oldQuantity,
		NewQuantity:     newQuantity,
	}
}

// SalesOrderConfirmedEvent is raised when a sales order is confirmed
type SalesOrderConfirmedEvent struct {
	shared.BaseDomainEvent
	OrderNumber string          `json:"order_number"`
	ItemCount   int             `json:"item_count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// NewSalesOrderConfirmedEvent creates a new SalesOrderConfirmedEvent
func NewSalesOrderConfirmedEvent(order *SalesOrder) *SalesOrderConfirmedEvent {
	return &SalesOrderConfirmedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSalesOrderConfirmed, AggregateTypeSalesOrder, order.GetID()),
		OrderNumber:     order.OrderNumber(),
		ItemCount:       order.ItemCount(),
		TotalAmount:     order.TotalAmount().Amount(),
	}
}

// SalesOrderCancelledSchemaVersion is the current payload version of
// SalesOrderCancelledEvent. Version 2 added WasConfirmed.
const SalesOrderCancelledSchemaVersion = 2

// SalesOrderCancelledEvent is raised when a sales order is cancelled.
// WasConfirmed tells consumers whether downstream reservations must be released.
type SalesOrderCancelledEvent struct {
	shared.BaseDomainEvent
	OrderNumber  string `json:"order_number"`
	CancelReason string `json:"cancel_reason"`
	WasConfirmed bool   `json:"was_confirmed"`
}

// NewSalesOrderCancelledEvent creates a new SalesOrderCancelledEvent
func NewSalesOrderCancelledEvent(order *SalesOrder, reason string) *SalesOrderCancelledEvent {
	return &SalesOrderCancelledEvent{
		BaseDomainEvent: shared.NewVersionedBaseDomainEvent(EventTypeSalesOrderCancelled, AggregateTypeSalesOrder, order.GetID(), SalesOrderCancelledSchemaVersion),
		OrderNumber:     order.OrderNumber(),
		CancelReason:    reason,
		WasConfirmed:    order.Status() == OrderStatusConfirmed,
	}
}
