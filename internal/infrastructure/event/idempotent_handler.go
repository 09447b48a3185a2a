package event

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync/atomic"

	"github.com/adminkit/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// outcome is what an IdempotentHandler did with one delivery
type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeDuplicate
	outcomeFailed
	outcomeCount
)

// IdempotencyMetrics counts deliveries per outcome. Handlers sharing an
// instance aggregate into it.
type IdempotencyMetrics struct {
	counts [outcomeCount]atomic.Int64
}

func (m *IdempotencyMetrics) record(o outcome) {
	m.counts[o].Add(1)
}

// Stats returns a snapshot of the counters
func (m *IdempotencyMetrics) Stats() IdempotencyStats {
	return IdempotencyStats{
		EventsProcessed: m.counts[outcomeProcessed].Load(),
		EventsDuplicate: m.counts[outcomeDuplicate].Load(),
		EventsFailed:    m.counts[outcomeFailed].Load(),
	}
}

type IdempotencyStats struct {
	EventsProcessed int64 `json:"events_processed"`
	EventsDuplicate int64 `json:"events_duplicate"`
	EventsFailed    int64 `json:"events_failed"`
}

// IdempotentHandler runs the wrapped handler at most once per event ID
// within the configured TTL, so relay redeliveries are absorbed. Claims are
// scoped to the handler, so subscribers sharing a store each see the event.
type IdempotentHandler struct {
	inner   shared.EventHandler
	scope   string
	store   shared.IdempotencyStore
	config  shared.IdempotencyConfig
	logger  *zap.Logger
	metrics *IdempotencyMetrics
}

type IdempotentHandlerOption func(*IdempotentHandler)

func WithIdempotencyConfig(config shared.IdempotencyConfig) IdempotentHandlerOption {
	return func(h *IdempotentHandler) { h.config = config }
}

// WithIdempotencyScope names the handler in its claim keys. It defaults to
// the wrapped handler's Go type, so set it when renaming a handler type must
// not reopen recent events.
func WithIdempotencyScope(scope string) IdempotentHandlerOption {
	return func(h *IdempotentHandler) { h.scope = scope }
}

// WithIdempotencyMetrics shares metrics with other handlers
func WithIdempotencyMetrics(metrics *IdempotencyMetrics) IdempotentHandlerOption {
	return func(h *IdempotentHandler) { h.metrics = metrics }
}

func NewIdempotentHandler(
	inner shared.EventHandler,
	store shared.IdempotencyStore,
	logger *zap.Logger,
	opts ...IdempotentHandlerOption,
) *IdempotentHandler {
	h := &IdempotentHandler{
		inner:   inner,
		scope:   fmt.Sprintf("%T", inner),
		store:   store,
		config:  shared.DefaultIdempotencyConfig(),
		logger:  logger,
		metrics: &IdempotencyMetrics{},
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *IdempotentHandler) EventTypes() []string {
	return h.inner.EventTypes()
}

// Handle claims the event ID and runs the wrapped handler. A duplicate is
// dropped without error. If the store cannot be reached the event is
// handled unguarded. A failed run releases the claim so the relay's retry
// gets through.
func (h *IdempotentHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if !h.config.Enabled {
		return h.inner.Handle(ctx, event)
	}

	key := h.key(event)
	log := h.logger.With(
		zap.String("event_id", event.EventID().String()),
		zap.String("event_type", event.EventType()),
		zap.String("scope", h.scope),
	)

	claimed, err := h.store.MarkProcessed(ctx, key, h.config.TTL)
	if err != nil {
		log.Warn("idempotency store unavailable, handling unguarded", zap.Error(err))
	} else if !claimed {
		h.metrics.record(outcomeDuplicate)
		log.Debug("duplicate event skipped")
		return nil
	}

	if err := h.inner.Handle(ctx, event); err != nil {
		h.metrics.record(outcomeFailed)
		log.Error("event handler failed", zap.Error(err))
		if claimed {
			h.release(ctx, key, log)
		}
		return err
	}

	h.metrics.record(outcomeProcessed)
	return nil
}

// key is the claim of this handler on event
func (h *IdempotentHandler) key(event shared.DomainEvent) string {
	return h.scope + ":" + event.EventID().String()
}

func (h *IdempotentHandler) release(ctx context.Context, key string, log *zap.Logger) {
	// the claim must go even if the delivery context is already cancelled
	if err := h.store.Release(context.WithoutCancel(ctx), key); err != nil {
		log.Warn("failed to release idempotency key", zap.Error(err))
	}
}

func (h *IdempotentHandler) Metrics() *IdempotencyMetrics {
	return h.metrics
}

// Unwrap returns the guarded handler
func (h *IdempotentHandler) Unwrap() shared.EventHandler {
	return h.inner
}

var _ shared.EventHandler = (*IdempotentHandler)(nil)

// WrapHandlersWithIdempotency guards every handler with the same store and
// options. Each handler claims events under its own scope; handlers of the
// same type are told apart by position ("#2", "#3", ...), which overrides
// any WithIdempotencyScope in opts.
func WrapHandlersWithIdempotency(
	handlers []shared.EventHandler,
	store shared.IdempotencyStore,
	logger *zap.Logger,
	opts ...IdempotentHandlerOption,
) []shared.EventHandler {
	seen := make(map[string]int, len(handlers))
	wrapped := make([]shared.EventHandler, 0, len(handlers))
	for _, h := range handlers {
		scope := fmt.Sprintf("%T", h)
		seen[scope]++
		if n := seen[scope]; n > 1 {
			scope += "#" + strconv.Itoa(n)
		}
		wrapped = append(wrapped, NewIdempotentHandler(h, store, logger,
			slices.Concat(opts, []IdempotentHandlerOption{WithIdempotencyScope(scope)})...))
	}
	return wrapped
}
