package event

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/adminkit/backend/internal/domain/shared"
)

// registration is what the serializer knows about one event type
type registration struct {
	typ            reflect.Type
	currentVersion int
	upgraders      map[int]EventUpgrader // source version -> upgrader
}

// EventSerializer handles JSON serialization/deserialization of domain events.
// Payloads written by an older schema version are upgraded before they are
// decoded into the registered Go type.
type EventSerializer struct {
	mu       sync.RWMutex
	registry map[string]*registration
}

// NewEventSerializer creates a new event serializer
func NewEventSerializer() *EventSerializer {
	return &EventSerializer{
		registry: make(map[string]*registration),
	}
}

// Register registers an event type that has a single schema version.
// The eventType should match what EventType() returns on the event.
func (s *EventSerializer) Register(eventType string, eventInstance shared.DomainEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry[eventType] = &registration{
		typ:            eventGoType(eventInstance),
		currentVersion: 1,
		upgraders:      map[int]EventUpgrader{},
	}
}

// RegisterVersioned registers an event type whose current schema is
// currentVersion. One upgrader per step from version 1 is required.
func (s *EventSerializer) RegisterVersioned(eventType string, eventInstance shared.DomainEvent, currentVersion int, upgraders ...EventUpgrader) error {
	if currentVersion < 1 {
		return fmt.Errorf("invalid schema version %d for event type %s", currentVersion, eventType)
	}

	chain := make(map[int]EventUpgrader, len(upgraders))
	for _, u := range upgraders {
		if u.TargetVersion() != u.SourceVersion()+1 {
			return fmt.Errorf("upgrader for event type %s must advance one version, got v%d -> v%d",
				eventType, u.SourceVersion(), u.TargetVersion())
		}
		chain[u.SourceVersion()] = u
	}
	for v := 1; v < currentVersion; v++ {
		if _, ok := chain[v]; !ok {
			return fmt.Errorf("missing upgrader for version %d -> %d for event type %s", v, v+1, eventType)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry[eventType] = &registration{
		typ:            eventGoType(eventInstance),
		currentVersion: currentVersion,
		upgraders:      chain,
	}
	return nil
}

// Serialize serializes a domain event to JSON bytes
func (s *EventSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event %s: %w", event.EventType(), err)
	}
	return data, nil
}

// Deserialize deserializes JSON bytes to a domain event, upgrading the
// payload to the current schema version first
func (s *EventSerializer) Deserialize(eventType string, data []byte) (shared.DomainEvent, error) {
	s.mu.RLock()
	reg, ok := s.registry[eventType]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	payload, err := reg.upgrade(eventType, data)
	if err != nil {
		return nil, err
	}

	eventPtr := reflect.New(reg.typ).Interface()
	if err := json.Unmarshal(payload, eventPtr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	event, ok := eventPtr.(shared.DomainEvent)
	if !ok {
		return nil, fmt.Errorf("deserialized object does not implement DomainEvent")
	}
	return event, nil
}

// CurrentVersion returns the current schema version of an event type
func (s *EventSerializer) CurrentVersion(eventType string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.registry[eventType]
	if !ok {
		return 0, false
	}
	return reg.currentVersion, true
}

// IsRegistered checks if an event type is registered
func (s *EventSerializer) IsRegistered(eventType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.registry[eventType]
	return ok
}

// RegisteredTypes returns all registered event types in sorted order
func (s *EventSerializer) RegisteredTypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	types := make([]string, 0, len(s.registry))
	for t := range s.registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func (r *registration) upgrade(eventType string, payload []byte) ([]byte, error) {
	from := ExtractVersion(payload)
	if from > r.currentVersion {
		return nil, fmt.Errorf("event type %s has schema version %d, newer than supported %d",
			eventType, from, r.currentVersion)
	}

	var err error
	for v := from; v < r.currentVersion; v++ {
		payload, err = r.upgraders[v].Upgrade(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to upgrade %s from v%d to v%d: %w", eventType, v, v+1, err)
		}
	}
	return payload, nil
}

func eventGoType(eventInstance shared.DomainEvent) reflect.Type {
	t := reflect.TypeOf(eventInstance)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// ExtractVersion extracts the schema version from raw event JSON.
// Payloads without a version field are version 1.
func ExtractVersion(payload []byte) int {
	var info struct {
		SchemaVersion int `json:"schema_version"`
	}
	if err := json.Unmarshal(payload, &info); err != nil || info.SchemaVersion < 1 {
		return 1
	}
	return info.SchemaVersion
}
