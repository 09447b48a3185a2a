package trade

import (
	"time"

	"github.com/adminkit/backend/internal/domain/shared"
	"github.com/adminkit/backend/internal/domain/trade"
	"github.com/shopspring/decimal"
)

// ==================== Sales Order DTOs ====================

// CreateSalesOrderRequest represents a request to create a sales order
type CreateSalesOrderRequest struct {
	OrderNumber  string                      `json:"order_number" validate:"omitempty,max=50"`
	CustomerID   shared.UUID                 `json:"customer_id" validate:"required"`
	CustomerName string                      `json:"customer_name" validate:"required,min=1,max=200"`
	Currency     string                      `json:"currency" validate:"omitempty,len=3"`
	Items        []CreateSalesOrderItemInput `json:"items" validate:"dive"`
	Remark       string                      `json:"remark" validate:"max=500"`
}

// CreateSalesOrderItemInput represents an item in the create order request
type CreateSalesOrderItemInput struct {
	ProductID   shared.UUID     `json:"product_id" validate:"required"`
	ProductName string          `json:"product_name" validate:"required,min=1,max=200"`
	Unit        string          `json:"unit" validate:"required,min=1,max=20"`
	Quantity    decimal.Decimal `json:"quantity" validate:"required,gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price" validate:"gte=0"`
	Remark      string          `json:"remark" validate:"max=500"`
}

// AddOrderItemRequest represents a request to add an item to an order
type AddOrderItemRequest struct {
	ProductID   shared.UUID     `json:"product_id" validate:"required"`
	ProductName string          `json:"product_name" validate:"required,min=1,max=200"`
	Unit        string          `json:"unit" validate:"required,min=1,max=20"`
	Quantity    decimal.Decimal `json:"quantity" validate:"required,gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price" validate:"gte=0"`
	Remark      string          `json:"remark" validate:"max=500"`
}

// ChangeItemQuantityRequest represents a request to change the quantity of an order item
type ChangeItemQuantityRequest struct {
	ItemID   shared.UUID     `json:"item_id" validate:"required"`
	Quantity decimal.Decimal `json:"quantity" validate:"required,gt=0"`
}

// CancelOrderRequest represents a request to cancel an order
type CancelOrderRequest struct {
	Reason string `json:"reason" validate:"required,min=1,max=500"`
}

// SalesOrderResponse represents a sales order in API responses
type SalesOrderResponse struct {
	ID           shared.UUID              `json:"id"`
	OrderNumber  string                   `json:"order_number"`
	CustomerID   shared.UUID              `json:"customer_id"`
	CustomerName string                   `json:"customer_name"`
	Currency     string                   `json:"currency"`
	Items        []SalesOrderItemResponse `json:"items"`
	ItemCount    int                      `json:"item_count"`
	TotalAmount  decimal.Decimal          `json:"total_amount"`
	Status       string                   `json:"status"`
	Remark       string                   `json:"remark"`
	ConfirmedAt  *time.Time               `json:"confirmed_at,omitempty"`
	CancelledAt  *time.Time               `json:"cancelled_at,omitempty"`
	CancelReason string                   `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time                `json:"created_at"`
	UpdatedAt    time.Time                `json:"updated_at"`
	Version      int                      `json:"version"`
}

// SalesOrderItemResponse represents an order item in API responses
type SalesOrderItemResponse struct {
	ID          shared.UUID     `json:"id"`
	ProductID   shared.UUID     `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
	Remark      string          `json:"remark,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ToSalesOrderResponse converts domain SalesOrder to response DTO
func ToSalesOrderResponse(order *trade.SalesOrder) SalesOrderResponse {
	orderItems := order.Items()
	items := make([]SalesOrderItemResponse, len(orderItems))
	for i, item := range orderItems {
		items[i] = ToSalesOrderItemResponse(item)
	}

	props := order.Props()
	return SalesOrderResponse{
		ID:           order.GetID(),
		OrderNumber:  props.OrderNumber,
		CustomerID:   props.CustomerID,
		CustomerName: props.CustomerName,
		Currency:     string(props.Currency),
		Items:        items,
		ItemCount:    len(items),
		TotalAmount:  props.TotalAmount.Amount(),
		Status:       string(props.Status),
		Remark:       props.Remark,
		ConfirmedAt:  props.ConfirmedAt,
		CancelledAt:  props.CancelledAt,
		CancelReason: props.CancelReason,
		CreatedAt:    order.GetCreatedAt(),
		UpdatedAt:    order.GetUpdatedAt(),
		Version:      order.GetVersion(),
	}
}

// ToSalesOrderResponses converts a slice of domain orders to responses
func ToSalesOrderResponses(orders []*trade.SalesOrder) []SalesOrderResponse {
	responses := make([]SalesOrderResponse, len(orders))
	for i, order := range orders {
		responses[i] = ToSalesOrderResponse(order)
	}
	return responses
}

// ToSalesOrderItemResponse converts domain SalesOrderItem to response DTO
func ToSalesOrderItemResponse(item *trade.SalesOrderItem) SalesOrderItemResponse {
	return SalesOrderItemResponse{
		ID:          item.GetID(),
		ProductID:   item.ProductID(),
		ProductName: item.ProductName(),
		Quantity:    item.Quantity().Amount(),
		Unit:        item.Quantity().Unit(),
		UnitPrice:   item.UnitPrice().Amount(),
		Amount:      item.Amount().Amount(),
		Remark:      item.Remark(),
		CreatedAt:   item.GetCreatedAt(),
		UpdatedAt:   item.GetUpdatedAt(),
	}
}
