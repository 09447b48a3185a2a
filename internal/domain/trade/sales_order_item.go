package trade

import (
	"time"

	"github.com/adminkit/backend/internal/domain/shared"
	"github.com/adminkit/backend/internal/domain/shared/valueobject"
)

// SalesOrderItemProps holds the tracked state of a sales order line
type SalesOrderItemProps struct {
	OrderID     shared.UUID
	ProductID   shared.UUID
	ProductName string
	Quantity    valueobject.Quantity
	UnitPrice   valueobject.Money
	Amount      valueobject.Money // Quantity * UnitPrice
	Remark      string
}

// SalesOrderItem is a line of a sales order. It is a child entity of the
// order and is persisted through the order's repository.
type SalesOrderItem struct {
	shared.BaseEntity[SalesOrderItemProps]
}

// NewSalesOrderItem creates a new, unsaved order line
func NewSalesOrderItem(id, orderID, productID shared.UUID, productName string, quantity valueobject.Quantity, unitPrice valueobject.Money) (*SalesOrderItem, error) {
	if productID.IsZero() {
		return nil, shared.NewDomainError("INVALID_PRODUCT", "Product ID cannot be empty")
	}
	if productName == "" {
		return nil, shared.NewDomainError("INVALID_PRODUCT_NAME", "Product name cannot be empty")
	}
	if !quantity.IsPositive() {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}
	if unitPrice.IsNegative() {
		return nil, shared.NewDomainError("INVALID_PRICE", "Unit price cannot be negative")
	}

	return &SalesOrderItem{
		BaseEntity: shared.NewBaseEntityWithID(id, SalesOrderItemProps{
			OrderID:     orderID,
			ProductID:   productID,
			ProductName: productName,
			Quantity:    quantity,
			UnitPrice:   unitPrice,
			Amount:      unitPrice.Multiply(quantity.Amount()),
		}),
	}, nil
}

// RestoreSalesOrderItem rebuilds a persisted order line
func RestoreSalesOrderItem(id shared.UUID, props SalesOrderItemProps, createdAt, updatedAt time.Time) *SalesOrderItem {
	return &SalesOrderItem{BaseEntity: shared.RestoreBaseEntity(id, props, createdAt, updatedAt)}
}

// changeQuantity sets a new quantity and recalculates the amount
func (i *SalesOrderItem) changeQuantity(quantity valueobject.Quantity) {
	i.Update(func(p *SalesOrderItemProps) {
		p.Quantity = quantity
		p.Amount = p.UnitPrice.Multiply(quantity.Amount())
	})
}

// SetRemark sets the remark for the item
func (i *SalesOrderItem) SetRemark(remark string) {
	i.Update(func(p *SalesOrderItemProps) {
		p.Remark = remark
	})
}

func (i *SalesOrderItem) OrderID() shared.UUID {
	return i.Props().OrderID
}

func (i *SalesOrderItem) ProductID() shared.UUID {
	return i.Props().ProductID
}

func (i *SalesOrderItem) ProductName() string {
	return i.Props().ProductName
}

func (i *SalesOrderItem) Quantity() valueobject.Quantity {
	return i.Props().Quantity
}

func (i *SalesOrderItem) UnitPrice() valueobject.Money {
	return i.Props().UnitPrice
}

func (i *SalesOrderItem) Amount() valueobject.Money {
	return i.Props().Amount
}

func (i *SalesOrderItem) Remark() string {
	return i.Props().Remark
}
