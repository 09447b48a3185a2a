package trade

import (
	"context"
	"fmt"
	"sync"

	"github.com/adminkit/backend/internal/domain/shared"
	"github.com/adminkit/backend/internal/domain/trade"
	"go.uber.org/zap"
)

// SalesOrderLifecycleHandler consumes relayed sales order events. It logs each
// lifecycle transition and keeps running counts of confirmed and cancelled
// orders, including cancellations that had to undo a confirmation.
type SalesOrderLifecycleHandler struct {
	logger *zap.Logger

	mu    sync.Mutex
	stats SalesOrderStats
}

// SalesOrderStats is a snapshot of the handler counters
type SalesOrderStats struct {
	Created            int
	Confirmed          int
	Cancelled          int
	CancelledConfirmed int
}

// NewSalesOrderLifecycleHandler creates a new handler for sales order lifecycle events
func NewSalesOrderLifecycleHandler(logger *zap.Logger) *SalesOrderLifecycleHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SalesOrderLifecycleHandler{logger: logger.Named("sales_order_lifecycle")}
}

// EventTypes returns the event types this handler is interested in
func (h *SalesOrderLifecycleHandler) EventTypes() []string {
	return []string{
		trade.EventTypeSalesOrderCreated,
		trade.EventTypeSalesOrderConfirmed,
		trade.EventTypeSalesOrderCancelled,
	}
}

// Handle processes a sales order lifecycle event
func (h *SalesOrderLifecycleHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	switch e := event.(type) {
	case *trade.SalesOrderCreatedEvent:
		h.logger.Info("sales order created",
			zap.String("order_id", e.AggregateID().String()),
			zap.String("order_number", e.OrderNumber),
			zap.String("customer_id", e.CustomerID.String()),
		)
		h.count(func(s *SalesOrderStats) { s.Created++ })

	case *trade.SalesOrderConfirmedEvent:
		h.logger.Info("sales order confirmed",
			zap.String("order_id", e.AggregateID().String()),
			zap.String("order_number", e.OrderNumber),
			zap.Int("items_count", e.ItemCount),
			zap.String("total_amount", e.TotalAmount.String()),
		)
		h.count(func(s *SalesOrderStats) { s.Confirmed++ })

	case *trade.SalesOrderCancelledEvent:
		h.logger.Info("sales order cancelled",
			zap.String("order_id", e.AggregateID().String()),
			zap.String("order_number", e.OrderNumber),
			zap.String("cancel_reason", e.CancelReason),
			zap.Bool("was_confirmed", e.WasConfirmed),
		)
		h.count(func(s *SalesOrderStats) {
			s.Cancelled++
			if e.WasConfirmed {
				s.CancelledConfirmed++
			}
		})

	default:
		h.logger.Error("unexpected event type",
			zap.Strings("expected", h.EventTypes()),
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: %s", event.EventType())
	}
	return nil
}

// Stats returns a snapshot of the counters
func (h *SalesOrderLifecycleHandler) Stats() SalesOrderStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

func (h *SalesOrderLifecycleHandler) count(update func(*SalesOrderStats)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	update(&h.stats)
}

// Ensure SalesOrderLifecycleHandler implements shared.EventHandler
var _ shared.EventHandler = (*SalesOrderLifecycleHandler)(nil)
