// Package testutil holds fixtures shared by the integration tests: an
// event recorder for bus subscriptions, a throwaway event type and stable
// identifiers.
package testutil

import (
	"context"
	"slices"
	"sync"

	"github.com/adminkit/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// EventRecorder is an EventHandler that keeps every event it receives.
// Without event types it subscribes to everything.
type EventRecorder struct {
	types []string

	mu     sync.Mutex
	events []shared.DomainEvent
	err    error
}

func NewEventRecorder(eventTypes ...string) *EventRecorder {
	return &EventRecorder{types: eventTypes}
}

func (r *EventRecorder) EventTypes() []string {
	return r.types
}

// Handle records event and returns the error set by FailWith
func (r *EventRecorder) Handle(_ context.Context, event shared.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

// FailWith makes later calls to Handle return err. nil restores success.
func (r *EventRecorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Events returns a copy of the recorded events in arrival order
func (r *EventRecorder) Events() []shared.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

func (r *EventRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Types returns the event type of every recorded event in arrival order
func (r *EventRecorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.EventType())
	}
	return types
}

// Reset forgets the recorded events and the configured failure
func (r *EventRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	r.err = nil
}

var _ shared.EventHandler = (*EventRecorder)(nil)

const TestAggregateType = "TestAggregate"

// TestEvent is a minimal event raised by a fresh TestAggregate
type TestEvent struct {
	shared.BaseDomainEvent
	Data string `json:"data"`
}

func NewTestEvent(eventType string) *TestEvent {
	return &TestEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, TestAggregateType, shared.NewUUID()),
		Data:            "test-data",
	}
}

// fixtureNamespace seeds the name-based fixture identifiers
var fixtureNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// FixtureID derives a stable identifier from name, so separate tests
// refer to the same customer or product.
func FixtureID(name string) shared.UUID {
	return shared.UUIDFrom(uuid.NewSHA1(fixtureNamespace, []byte(name)))
}

func TestCustomerID() shared.UUID { return FixtureID("test-customer") }

func TestProductID() shared.UUID { return FixtureID("test-product") }
