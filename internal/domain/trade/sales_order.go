package trade

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/adminkit/backend/internal/domain/shared"
	"github.com/adminkit/backend/internal/domain/shared/valueobject"
)

// OrderStatus represents the status of a sales order
type OrderStatus string

const (
	OrderStatusDraft     OrderStatus = "DRAFT"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// IsValid checks if the status is a valid OrderStatus
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusDraft, OrderStatusConfirmed, OrderStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of OrderStatus
func (s OrderStatus) String() string {
	return string(s)
}

// CanTransitionTo checks if the status can transition to the target status
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	switch s {
	case OrderStatusDraft:
		return target == OrderStatusConfirmed || target == OrderStatusCancelled
	case OrderStatusConfirmed:
		return target == OrderStatusCancelled
	}
	return false
}

// SalesOrderProps holds the tracked state of a sales order
type SalesOrderProps struct {
	OrderNumber  string
	CustomerID   shared.UUID
	CustomerName string
	Currency     valueobject.Currency
	Status       OrderStatus
	TotalAmount  valueobject.Money
	Remark       string
	ConfirmedAt  *time.Time
	CancelledAt  *time.Time
	CancelReason string
}

// SalesOrder is the sales order aggregate root. Every state transition is
// expressed as a domain event; the registered handlers apply it, so the
// same code path rebuilds an order from its history.
type SalesOrder struct {
	shared.BaseAggregateRoot[SalesOrderProps]
	items []*SalesOrderItem
}

func wrapSalesOrder(root shared.BaseAggregateRoot[SalesOrderProps], items []*SalesOrderItem) *SalesOrder {
	o := &SalesOrder{BaseAggregateRoot: root}
	for _, item := range items {
		o.attachItem(item)
	}
	shared.OnEvent(&o.BaseAggregateRoot, o.onCreated)
	shared.OnEvent(&o.BaseAggregateRoot, o.onItemAdded)
	shared.OnEvent(&o.BaseAggregateRoot, o.onItemQuantityChanged)
	shared.OnEvent(&o.BaseAggregateRoot, o.onConfirmed)
	shared.OnEvent(&o.BaseAggregateRoot, o.onCancelled)
	return o
}

// NewSalesOrder creates a new draft sales order and raises SalesOrderCreated
func NewSalesOrder(ctx context.Context, orderNumber string, customerID shared.UUID, customerName string, currency valueobject.Currency, opts ...shared.AggregateOption) (*SalesOrder, error) {
	if orderNumber == "" {
		return nil, shared.NewDomainError("INVALID_ORDER_NUMBER", "Order number cannot be empty")
	}
	if len(orderNumber) > 50 {
		return nil, shared.NewDomainError("INVALID_ORDER_NUMBER", "Order number cannot exceed 50 characters")
	}
	if customerID.IsZero() {
		return nil, shared.NewDomainError("INVALID_CUSTOMER", "Customer ID cannot be empty")
	}
	if customerName == "" {
		return nil, shared.NewDomainError("INVALID_CUSTOMER_NAME", "Customer name cannot be empty")
	}
	if currency == "" {
		currency = valueobject.DefaultCurrency
	}

	order := wrapSalesOrder(shared.NewBaseAggregateRoot(SalesOrderProps{}, opts...), nil)
	event := NewSalesOrderCreatedEvent(order.GetID(), orderNumber, customerID, customerName, currency)
	if err := order.Apply(ctx, event); err != nil {
		return nil, err
	}
	return order, nil
}

// RestoreSalesOrder rebuilds a persisted order together with its items
func RestoreSalesOrder(id shared.UUID, props SalesOrderProps, items []*SalesOrderItem, createdAt, updatedAt time.Time, version int, opts ...shared.AggregateOption) *SalesOrder {
	return wrapSalesOrder(shared.RestoreBaseAggregateRoot(id, props, createdAt, updatedAt, version, opts...), items)
}

// RebuildSalesOrder replays the event history of an order. The result is
// clean: nothing is buffered and nothing needs saving.
func RebuildSalesOrder(ctx context.Context, id shared.UUID, history []shared.DomainEvent, opts ...shared.AggregateOption) (*SalesOrder, error) {
	if len(history) == 0 {
		return nil, shared.ErrNotFound
	}
	if _, ok := history[0].(*SalesOrderCreatedEvent); !ok {
		return nil, shared.NewDomainError("INVALID_HISTORY", "Order history must start with "+EventTypeSalesOrderCreated)
	}
	order := wrapSalesOrder(shared.NewBaseAggregateRootWithID(id, SalesOrderProps{}, opts...), nil)
	if err := order.LoadFromHistory(ctx, history); err != nil {
		return nil, err
	}
	order.SetSaved()
	return order, nil
}

// AddItem adds a new line to a draft order
func (o *SalesOrder) AddItem(ctx context.Context, productID shared.UUID, productName string, quantity valueobject.Quantity, unitPrice valueobject.Money) (*SalesOrderItem, error) {
	if o.Status() != OrderStatusDraft {
		return nil, shared.NewDomainError("INVALID_STATE", "Cannot add items to a non-draft order")
	}
	if o.ItemByProduct(productID) != nil {
		return nil, shared.NewDomainError("DUPLICATE_PRODUCT", "Product already exists in order, update quantity instead")
	}
	if unitPrice.Currency() != o.Currency() {
		return nil, shared.NewDomainError("INVALID_CURRENCY", fmt.Sprintf("Unit price must be in %s", o.Currency()))
	}
	// validates the line before the event is raised
	itemID := shared.NewUUID()
	if _, err := NewSalesOrderItem(itemID, o.GetID(), productID, productName, quantity, unitPrice); err != nil {
		return nil, err
	}

	event := NewSalesOrderItemAddedEvent(o.GetID(), itemID, productID, productName, quantity, unitPrice)
	if err := o.Apply(ctx, event); err != nil {
		return nil, err
	}
	return o.Item(itemID), nil
}

// ChangeItemQuantity sets the quantity of an existing line of a draft order.
// Setting the current quantity again is a no-op.
func (o *SalesOrder) ChangeItemQuantity(ctx context.Context, itemID shared.UUID, quantity valueobject.Quantity) error {
	if o.Status() != OrderStatusDraft {
		return shared.NewDomainError("INVALID_STATE", "Cannot update items in a non-draft order")
	}
	item := o.Item(itemID)
	if item == nil {
		return shared.NewDomainError("ITEM_NOT_FOUND", "Order item not found")
	}
	if !quantity.IsPositive() {
		return shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}
	if quantity.Unit() != item.Quantity().Unit() {
		return shared.NewDomainError("INVALID_UNIT", fmt.Sprintf("Quantity must be in %q", item.Quantity().Unit()))
	}
	if quantity.Equals(item.Quantity()) {
		return nil
	}

	return o.Apply(ctx, NewSalesOrderItemQuantityChangedEvent(o.GetID(), itemID, item.Quantity().Amount(), quantity.Amount()))
}

// Confirm confirms the order, transitioning from DRAFT to CONFIRMED.
// Requires at least one item and a positive total.
func (o *SalesOrder) Confirm(ctx context.Context) error {
	if !o.Status().CanTransitionTo(OrderStatusConfirmed) {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot confirm order in %s status", o.Status()))
	}
	if len(o.items) == 0 {
		return shared.NewDomainError("NO_ITEMS", "Cannot confirm order without items")
	}
	if !o.TotalAmount().Amount().IsPositive() {
		return shared.NewDomainError("INVALID_AMOUNT", "Order total amount must be positive")
	}

	return o.Apply(ctx, NewSalesOrderConfirmedEvent(o))
}

// Cancel cancels a draft or confirmed order
func (o *SalesOrder) Cancel(ctx context.Context, reason string) error {
	if !o.Status().CanTransitionTo(OrderStatusCancelled) {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot cancel order in %s status", o.Status()))
	}
	if reason == "" {
		return shared.NewDomainError("INVALID_REASON", "Cancel reason is required")
	}

	return o.Apply(ctx, NewSalesOrderCancelledEvent(o, reason))
}

// SetRemark sets the order remark. Remarks are not domain events.
func (o *SalesOrder) SetRemark(remark string) {
	o.Update(func(p *SalesOrderProps) {
		p.Remark = remark
	})
}

func (o *SalesOrder) onCreated(e *SalesOrderCreatedEvent) {
	o.Update(func(p *SalesOrderProps) {
		p.OrderNumber = e.OrderNumber
		p.CustomerID = e.CustomerID
		p.CustomerName = e.CustomerName
		p.Currency = e.Currency
		p.Status = OrderStatusDraft
		p.TotalAmount = valueobject.Zero(e.Currency)
	})
}

func (o *SalesOrder) onItemAdded(e *SalesOrderItemAddedEvent) {
	props := SalesOrderItemProps{
		OrderID:     o.GetID(),
		ProductID:   e.ProductID,
		ProductName: e.ProductName,
		Quantity:    valueobject.MustNewQuantity(e.Quantity, e.Unit),
		UnitPrice:   valueobject.MustNewMoney(e.UnitPrice, o.Currency()),
	}
	props.Amount = props.UnitPrice.Multiply(props.Quantity.Amount())

	o.attachItem(&SalesOrderItem{BaseEntity: shared.NewBaseEntityWithID(e.ItemID, props)})
	o.recalculateTotal()
}

func (o *SalesOrder) onItemQuantityChanged(e *SalesOrderItemQuantityChangedEvent) {
	item := o.Item(e.ItemID)
	if item == nil {
		return
	}
	item.changeQuantity(valueobject.MustNewQuantity(e.NewQuantity, item.Quantity().Unit()))
	o.recalculateTotal()
}

func (o *SalesOrder) onConfirmed(e *SalesOrderConfirmedEvent) {
	at := e.OccurredAt()
	o.Update(func(p *SalesOrderProps) {
		p.Status = OrderStatusConfirmed
		p.ConfirmedAt = &at
	})
}

func (o *SalesOrder) onCancelled(e *SalesOrderCancelledEvent) {
	at := e.OccurredAt()
	o.Update(func(p *SalesOrderProps) {
		p.Status = OrderStatusCancelled
		p.CancelledAt = &at
		p.CancelReason = e.CancelReason
	})
}

func (o *SalesOrder) attachItem(item *SalesOrderItem) {
	o.items = append(o.items, item)
	o.AddChildEntity(item)
}

func (o *SalesOrder) recalculateTotal() {
	total := valueobject.Zero(o.Currency())
	for _, item := range o.items {
		total = total.MustAdd(item.Amount())
	}
	if total.Equals(o.TotalAmount()) {
		return
	}
	o.Update(func(p *SalesOrderProps) {
		p.TotalAmount = total
	})
}

func (o *SalesOrder) OrderNumber() string {
	return o.Props().OrderNumber
}

func (o *SalesOrder) CustomerID() shared.UUID {
	return o.Props().CustomerID
}

func (o *SalesOrder) CustomerName() string {
	return o.Props().CustomerName
}

func (o *SalesOrder) Currency() valueobject.Currency {
	return o.Props().Currency
}

func (o *SalesOrder) Status() OrderStatus {
	return o.Props().Status
}

func (o *SalesOrder) TotalAmount() valueobject.Money {
	return o.Props().TotalAmount
}

func (o *SalesOrder) Remark() string {
	return o.Props().Remark
}

func (o *SalesOrder) CancelReason() string {
	return o.Props().CancelReason
}

// Items returns the order lines in the order they were added
func (o *SalesOrder) Items() []*SalesOrderItem {
	return slices.Clone(o.items)
}

// ItemCount returns the number of items in the order
func (o *SalesOrder) ItemCount() int {
	return len(o.items)
}

// Item returns an item by its ID, or nil
func (o *SalesOrder) Item(itemID shared.UUID) *SalesOrderItem {
	for _, item := range o.items {
		if item.GetID() == itemID {
			return item
		}
	}
	return nil
}

// ItemByProduct returns the item for a product, or nil
func (o *SalesOrder) ItemByProduct(productID shared.UUID) *SalesOrderItem {
	for _, item := range o.items {
		if item.ProductID() == productID {
			return item
		}
	}
	return nil
}

// IsDraft returns true if order is in draft status
func (o *SalesOrder) IsDraft() bool {
	return o.Status() == OrderStatusDraft
}

// IsTerminal returns true if the order can no longer change
func (o *SalesOrder) IsTerminal() bool {
	return o.Status() == OrderStatusCancelled
}
