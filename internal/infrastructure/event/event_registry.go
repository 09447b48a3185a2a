package event

import (
	"fmt"

	"github.com/adminkit/backend/internal/domain/trade"
)

// RegisterTradeEvents registers every sales order event with the serializer.
//
// SalesOrderCancelled v1 stored the reason under "reason" and did not say
// whether the order had been confirmed. v1 payloads are read as cancellations
// of unconfirmed orders.
func RegisterTradeEvents(serializer *EventSerializer) error {
	serializer.Register(trade.EventTypeSalesOrderCreated, &trade.SalesOrderCreatedEvent{})
	serializer.Register(trade.EventTypeSalesOrderItemAdded, &trade.SalesOrderItemAddedEvent{})
	serializer.Register(trade.EventTypeSalesOrderItemQuantityChanged, &trade.SalesOrderItemQuantityChangedEvent{})
	serializer.Register(trade.EventTypeSalesOrderConfirmed, &trade.SalesOrderConfirmedEvent{})

	err := serializer.RegisterVersioned(trade.EventTypeSalesOrderCancelled, &trade.SalesOrderCancelledEvent{},
		trade.SalesOrderCancelledSchemaVersion,
		NewMapUpgrader(1,
			RenameField("reason", "cancel_reason"),
			DefaultField("was_confirmed", false),
		),
	)
	if err != nil {
		return fmt.Errorf("register trade events: %w", err)
	}
	return nil
}

// NewTradeEventSerializer returns a serializer with all trade events registered
func NewTradeEventSerializer() (*EventSerializer, error) {
	serializer := NewEventSerializer()
	if err := RegisterTradeEvents(serializer); err != nil {
		return nil, err
	}
	return serializer, nil
}
