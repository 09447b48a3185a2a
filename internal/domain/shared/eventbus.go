package shared

import "context"

// EventHandler consumes domain events
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
	// EventTypes lists the subscribed types. Empty means all of them.
	EventTypes() []string
}

// EventPublisher hands events to their subscribers
type EventPublisher interface {
	// Publish delivers events in order
	Publish(ctx context.Context, events ...DomainEvent) error
}

// EventPublisherFunc adapts a function to EventPublisher
type EventPublisherFunc func(ctx context.Context, events ...DomainEvent) error

// Publish calls f
func (f EventPublisherFunc) Publish(ctx context.Context, events ...DomainEvent) error {
	return f(ctx, events...)
}

// NopEventPublisher drops every event. It is the publisher of aggregates
// that were never given one.
var NopEventPublisher EventPublisher = EventPublisherFunc(func(context.Context, ...DomainEvent) error {
	return nil
})

// EventSubscriber manages subscriptions
type EventSubscriber interface {
	// Subscribe registers handler for eventTypes, falling back to its own
	// EventTypes when none are given.
	Subscribe(handler EventHandler, eventTypes ...string)
	Unsubscribe(handler EventHandler)
}

// EventBus is an in-process publisher with a lifecycle
type EventBus interface {
	EventPublisher
	EventSubscriber
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
