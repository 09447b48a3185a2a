package shared

import (
	"context"
	"reflect"
	"slices"
	"time"
)

// AggregateRoot is the base interface for all aggregate roots
type AggregateRoot interface {
	Entity
	GetVersion() int
	IncrementVersion()
	UncommittedEvents() []DomainEvent
	Commit(ctx context.Context) error
	Uncommit()
}

type applyOptions struct {
	fromHistory bool
	skipHandler bool
}

// ApplyOption tunes a single Apply call
type ApplyOption func(*applyOptions)

// FromHistory marks the event as replayed: it is neither buffered nor published
func FromHistory() ApplyOption {
	return func(o *applyOptions) {
		o.fromHistory = true
	}
}

// SkipHandler applies the event without invoking its registered handler
func SkipHandler() ApplyOption {
	return func(o *applyOptions) {
		o.skipHandler = true
	}
}

// AggregateOption configures a BaseAggregateRoot at construction
type AggregateOption func(*aggregateConfig)

type aggregateConfig struct {
	publisher  EventPublisher
	autoCommit bool
}

// WithEventPublisher sets the publisher used by Commit and auto-commit
func WithEventPublisher(publisher EventPublisher) AggregateOption {
	return func(c *aggregateConfig) {
		c.publisher = publisher
	}
}

// WithAutoCommit publishes applied events immediately instead of buffering them
func WithAutoCommit(autoCommit bool) AggregateOption {
	return func(c *aggregateConfig) {
		c.autoCommit = autoCommit
	}
}

// BaseAggregateRoot is a change-tracked entity that also buffers the domain
// events it raises until they are committed
type BaseAggregateRoot[T any] struct {
	BaseEntity[T]
	version    int
	events     []DomainEvent
	autoCommit bool
	publisher  EventPublisher
	handlers   map[reflect.Type]func(DomainEvent)
}

// NewBaseAggregateRoot creates a new aggregate root with a generated ID
func NewBaseAggregateRoot[T any](props T, opts ...AggregateOption) BaseAggregateRoot[T] {
	return newBaseAggregateRoot(NewBaseEntity(props), 1, opts)
}

// NewBaseAggregateRootWithID creates a new aggregate root with the given ID
func NewBaseAggregateRootWithID[T any](id UUID, props T, opts ...AggregateOption) BaseAggregateRoot[T] {
	return newBaseAggregateRoot(NewBaseEntityWithID(id, props), 1, opts)
}

// RestoreBaseAggregateRoot rebuilds an aggregate root hydrated from storage
func RestoreBaseAggregateRoot[T any](id UUID, props T, createdAt, updatedAt time.Time, version int, opts ...AggregateOption) BaseAggregateRoot[T] {
	return newBaseAggregateRoot(RestoreBaseEntity(id, props, createdAt, updatedAt), version, opts)
}

func newBaseAggregateRoot[T any](entity BaseEntity[T], version int, opts []AggregateOption) BaseAggregateRoot[T] {
	cfg := aggregateConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return BaseAggregateRoot[T]{
		BaseEntity: entity,
		version:    version,
		autoCommit: cfg.autoCommit,
		publisher:  cfg.publisher,
		handlers:   make(map[reflect.Type]func(DomainEvent)),
	}
}

// OnEvent registers handler for events of concrete type E. Apply invokes it
// for every event of that type unless SkipHandler is given.
func OnEvent[E DomainEvent, T any](a *BaseAggregateRoot[T], handler func(E)) {
	if a.handlers == nil {
		a.handlers = make(map[reflect.Type]func(DomainEvent))
	}
	a.handlers[reflect.TypeFor[E]()] = func(event DomainEvent) {
		handler(event.(E))
	}
}

// GetVersion returns the aggregate version for optimistic locking
func (a *BaseAggregateRoot[T]) GetVersion() int {
	return a.version
}

// IncrementVersion increments the version number
func (a *BaseAggregateRoot[T]) IncrementVersion() {
	a.version++
}

// SetVersion overwrites the version after the store has persisted it
func (a *BaseAggregateRoot[T]) SetVersion(version int) {
	a.version = version
}

// SetEventPublisher replaces the publisher of this instance
func (a *BaseAggregateRoot[T]) SetEventPublisher(publisher EventPublisher) {
	a.publisher = publisher
}

// SetAutoCommit switches between buffering and immediate publishing
func (a *BaseAggregateRoot[T]) SetAutoCommit(autoCommit bool) {
	a.autoCommit = autoCommit
}

// IsAutoCommit reports whether events are published as they are applied
func (a *BaseAggregateRoot[T]) IsAutoCommit() bool {
	return a.autoCommit
}

func (a *BaseAggregateRoot[T]) eventPublisher() EventPublisher {
	if a.publisher == nil {
		return NopEventPublisher
	}
	return a.publisher
}

// Apply records event. New events are buffered, or published right away in
// auto-commit mode; replayed events are neither. The registered handler runs
// afterwards unless SkipHandler is given.
func (a *BaseAggregateRoot[T]) Apply(ctx context.Context, event DomainEvent, opts ...ApplyOption) error {
	var o applyOptions
	for _, opt := range opts {
		opt(&o)
	}

	if !o.fromHistory {
		if a.autoCommit {
			if err := a.eventPublisher().Publish(ctx, event); err != nil {
				return err
			}
		} else {
			a.events = append(a.events, event)
		}
	}

	if !o.skipHandler {
		if handler, ok := a.handlers[reflect.TypeOf(event)]; ok {
			handler(event)
		}
	}
	return nil
}

// LoadFromHistory replays events in order to rebuild state without raising
// them again
func (a *BaseAggregateRoot[T]) LoadFromHistory(ctx context.Context, events []DomainEvent) error {
	for _, event := range events {
		if err := a.Apply(ctx, event, FromHistory()); err != nil {
			return err
		}
	}
	return nil
}

// Commit publishes all buffered events oldest first through the aggregate's
// publisher and empties the buffer. On error the buffer is left untouched.
func (a *BaseAggregateRoot[T]) Commit(ctx context.Context) error {
	return a.CommitTo(ctx, a.eventPublisher())
}

// CommitTo is Commit with an explicit publisher
func (a *BaseAggregateRoot[T]) CommitTo(ctx context.Context, publisher EventPublisher) error {
	if len(a.events) == 0 {
		return nil
	}
	if err := publisher.Publish(ctx, slices.Clone(a.events)...); err != nil {
		return err
	}
	a.events = nil
	return nil
}

// Uncommit discards buffered events without publishing them
func (a *BaseAggregateRoot[T]) Uncommit() {
	a.events = nil
}

// UncommittedEvents returns a snapshot of the buffered events
func (a *BaseAggregateRoot[T]) UncommittedEvents() []DomainEvent {
	return slices.Clone(a.events)
}

// HasUncommittedEvents returns true if events are waiting to be committed
func (a *BaseAggregateRoot[T]) HasUncommittedEvents() bool {
	return len(a.events) > 0
}
