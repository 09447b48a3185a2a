package models

import (
	"fmt"
	"time"

	"github.com/adminkit/backend/internal/domain/shared"
	"github.com/adminkit/backend/internal/domain/shared/valueobject"
	"github.com/adminkit/backend/internal/domain/trade"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SalesOrderModel is the persistence model for the SalesOrder aggregate root.
type SalesOrderModel struct {
	AggregateModel
	OrderNumber  string                `gorm:"type:varchar(50);not null;uniqueIndex:idx_sales_order_number"`
	CustomerID   uuid.UUID             `gorm:"type:uuid;not null;index"`
	CustomerName string                `gorm:"type:varchar(200);not null"`
	Currency     string                `gorm:"type:varchar(3);not null"`
	Items        []SalesOrderItemModel `gorm:"foreignKey:OrderID;references:ID"`
	TotalAmount  decimal.Decimal       `gorm:"type:decimal(18,4);not null;default:0"`
	Status       trade.OrderStatus     `gorm:"type:varchar(20);not null;default:'DRAFT'"`
	Remark       string                `gorm:"type:text"`
	ConfirmedAt  *time.Time            `gorm:"index"`
	CancelledAt  *time.Time
	CancelReason string `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (SalesOrderModel) TableName() string {
	return "sales_orders"
}

// ToDomain converts the persistence model to a clean domain SalesOrder.
// Items must have been loaded with the order.
func (m *SalesOrderModel) ToDomain(opts ...shared.AggregateOption) (*trade.SalesOrder, error) {
	currency := valueobject.Currency(m.Currency)
	total, err := valueobject.NewMoney(m.TotalAmount, currency)
	if err != nil {
		return nil, fmt.Errorf("sales order %s: %w", m.ID, err)
	}

	items := make([]*trade.SalesOrderItem, len(m.Items))
	for i := range m.Items {
		item, err := m.Items[i].ToDomain(currency)
		if err != nil {
			return nil, err
		}
		items[i] = item
	}

	props := trade.SalesOrderProps{
		OrderNumber:  m.OrderNumber,
		CustomerID:   shared.UUIDFrom(m.CustomerID),
		CustomerName: m.CustomerName,
		Currency:     currency,
		Status:       m.Status,
		TotalAmount:  total,
		Remark:       m.Remark,
		ConfirmedAt:  m.ConfirmedAt,
		CancelledAt:  m.CancelledAt,
		CancelReason: m.CancelReason,
	}
	return trade.RestoreSalesOrder(m.DomainID(), props, items, m.CreatedAt, m.UpdatedAt, m.Version, opts...), nil
}

// FromDomain populates the persistence model from a domain SalesOrder.
// Items are not copied; they are written through their own change tracking.
func (m *SalesOrderModel) FromDomain(o *trade.SalesOrder) {
	m.FromDomainAggregateRoot(o)
	m.OrderNumber = o.OrderNumber()
	m.CustomerID = o.CustomerID().UUID()
	m.CustomerName = o.CustomerName()
	m.Currency = string(o.Currency())
	m.TotalAmount = o.TotalAmount().Amount()
	m.Status = o.Status()
	m.Remark = o.Remark()
	m.ConfirmedAt = o.Props().ConfirmedAt
	m.CancelledAt = o.Props().CancelledAt
	m.CancelReason = o.CancelReason()
}

// SalesOrderModelFromDomain creates a new persistence model from a domain SalesOrder.
func SalesOrderModelFromDomain(o *trade.SalesOrder) *SalesOrderModel {
	m := &SalesOrderModel{}
	m.FromDomain(o)
	return m
}

var salesOrderFieldColumns = map[string]string{
	"OrderNumber":  "order_number",
	"CustomerID":   "customer_id",
	"CustomerName": "customer_name",
	"Currency":     "currency",
	"Status":       "status",
	"TotalAmount":  "total_amount",
	"Remark":       "remark",
	"ConfirmedAt":  "confirmed_at",
	"CancelledAt":  "cancelled_at",
	"CancelReason": "cancel_reason",
}

// SalesOrderColumns maps changed SalesOrderProps fields to column values.
// Unknown fields are an error so a new props field cannot be silently dropped.
func SalesOrderColumns(changed map[string]any) (map[string]any, error) {
	return mapColumns("sales order", salesOrderFieldColumns, changed)
}

// SalesOrderItemModel is the persistence model for the SalesOrderItem entity.
type SalesOrderItemModel struct {
	BaseModel
	OrderID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductID   uuid.UUID       `gorm:"type:uuid;not null"`
	ProductName string          `gorm:"type:varchar(200);not null"`
	Quantity    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Unit        string          `gorm:"type:varchar(20);not null"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Remark      string          `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (SalesOrderItemModel) TableName() string {
	return "sales_order_items"
}

// ToDomain converts the persistence model to a clean domain SalesOrderItem.
// Prices are expressed in the currency of the owning order.
func (m *SalesOrderItemModel) ToDomain(currency valueobject.Currency) (*trade.SalesOrderItem, error) {
	quantity, err := valueobject.NewQuantity(m.Quantity, m.Unit)
	if err != nil {
		return nil, fmt.Errorf("sales order item %s: %w", m.ID, err)
	}
	unitPrice, err := valueobject.NewMoney(m.UnitPrice, currency)
	if err != nil {
		return nil, fmt.Errorf("sales order item %s: %w", m.ID, err)
	}

	props := trade.SalesOrderItemProps{
		OrderID:     shared.UUIDFrom(m.OrderID),
		ProductID:   shared.UUIDFrom(m.ProductID),
		ProductName: m.ProductName,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		Amount:      valueobject.MustNewMoney(m.Amount, currency),
		Remark:      m.Remark,
	}
	return trade.RestoreSalesOrderItem(m.DomainID(), props, m.CreatedAt, m.UpdatedAt), nil
}

// FromDomain populates the persistence model from a domain SalesOrderItem.
func (m *SalesOrderItemModel) FromDomain(i *trade.SalesOrderItem) {
	m.FromDomainEntity(i)
	m.OrderID = i.OrderID().UUID()
	m.ProductID = i.ProductID().UUID()
	m.ProductName = i.ProductName()
	m.Quantity = i.Quantity().Amount()
	m.Unit = i.Quantity().Unit()
	m.UnitPrice = i.UnitPrice().Amount()
	m.Amount = i.Amount().Amount()
	m.Remark = i.Remark()
}

// SalesOrderItemModelFromDomain creates a new persistence model from a domain SalesOrderItem.
func SalesOrderItemModelFromDomain(i *trade.SalesOrderItem) *SalesOrderItemModel {
	m := &SalesOrderItemModel{}
	m.FromDomain(i)
	return m
}

var salesOrderItemFieldColumns = map[string]string{
	"OrderID":     "order_id",
	"ProductID":   "product_id",
	"ProductName": "product_name",
	"Quantity":    "quantity",
	"UnitPrice":   "unit_price",
	"Amount":      "amount",
	"Remark":      "remark",
}

// SalesOrderItemColumns maps changed SalesOrderItemProps fields to column values.
// A quantity change writes both the value and its unit.
func SalesOrderItemColumns(changed map[string]any) (map[string]any, error) {
	return mapColumns("sales order item", salesOrderItemFieldColumns, changed)
}

func mapColumns(entity string, fieldColumns map[string]string, changed map[string]any) (map[string]any, error) {
	columns := make(map[string]any, len(changed)+1)
	for field, value := range changed {
		column, ok := fieldColumns[field]
		if !ok {
			return nil, fmt.Errorf("%s field %s has no column", entity, field)
		}
		switch v := value.(type) {
		case shared.UUID:
			columns[column] = v.UUID()
		case valueobject.Money:
			columns[column] = v.Amount()
		case valueobject.Quantity:
			columns[column] = v.Amount()
			columns["unit"] = v.Unit()
		case valueobject.Currency:
			columns[column] = string(v)
		default:
			columns[column] = value
		}
	}
	return columns, nil
}
