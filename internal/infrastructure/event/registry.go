package event

import (
	"slices"
	"sync"

	"github.com/adminkit/backend/internal/domain/shared"
)

// wildcardKey holds the handlers subscribed to every event type
const wildcardKey = ""

// HandlerRegistry maps event types to their subscribers. It is safe for
// concurrent use.
type HandlerRegistry struct {
	mu     sync.RWMutex
	byType map[string][]shared.EventHandler
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{byType: make(map[string][]shared.EventHandler)}
}

// Register subscribes handler to eventTypes, or to every type when none
// are given. Registering the same pair twice has no effect.
func (r *HandlerRegistry) Register(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = []string{wildcardKey}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range eventTypes {
		if !slices.Contains(r.byType[t], handler) {
			r.byType[t] = append(r.byType[t], handler)
		}
	}
}

// Unregister drops every subscription of handler
func (r *HandlerRegistry) Unregister(handler shared.EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for t, subs := range r.byType {
		subs = slices.DeleteFunc(slices.Clone(subs), func(h shared.EventHandler) bool { return h == handler })
		if len(subs) == 0 {
			delete(r.byType, t)
			continue
		}
		r.byType[t] = subs
	}
}

// For returns the handlers of eventType in registration order, followed by
// the wildcard handlers. The slice is the caller's.
func (r *HandlerRegistry) For(eventType string) []shared.EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if eventType == wildcardKey {
		return slices.Clone(r.byType[wildcardKey])
	}
	return slices.Concat(r.byType[eventType], r.byType[wildcardKey])
}

// All returns each registered handler once, wildcard handlers first
func (r *HandlerRegistry) All() []shared.EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := slices.Clone(r.byType[wildcardKey])
	for t, subs := range r.byType {
		if t == wildcardKey {
			continue
		}
		for _, h := range subs {
			if !slices.Contains(all, h) {
				all = append(all, h)
			}
		}
	}
	return all
}
