package event

import (
	"context"
	"fmt"

	"github.com/adminkit/backend/internal/domain/shared"
)

// OutboxPublisher turns committed aggregate events into pending outbox rows.
// Bound to the writer of an open transaction, the rows are written or rolled
// back together with the aggregate; OutboxProcessor delivers them later.
type OutboxPublisher struct {
	serializer *EventSerializer
	writer     shared.OutboxWriter
}

// NewOutboxPublisher creates a publisher that appends to writer
func NewOutboxPublisher(serializer *EventSerializer, writer shared.OutboxWriter) *OutboxPublisher {
	return &OutboxPublisher{serializer: serializer, writer: writer}
}

// Publish appends one entry per event, keeping commit order. The batch is
// all or nothing: an unregistered or unserializable event writes no rows.
func (p *OutboxPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	entries := make([]*shared.OutboxEntry, len(events))
	for i, event := range events {
		entry, err := p.entryFor(event)
		if err != nil {
			return err
		}
		entries[i] = entry
	}

	if err := p.writer.Save(ctx, entries...); err != nil {
		return fmt.Errorf("append %d events to outbox: %w", len(entries), err)
	}
	return nil
}

func (p *OutboxPublisher) entryFor(event shared.DomainEvent) (*shared.OutboxEntry, error) {
	// the relay could not decode an unregistered type, so refuse it at commit time
	if !p.serializer.IsRegistered(event.EventType()) {
		return nil, fmt.Errorf("event type %s has no registered decoder", event.EventType())
	}
	payload, err := p.serializer.Serialize(event)
	if err != nil {
		return nil, err
	}
	return shared.NewOutboxEntry(event, payload), nil
}

var _ shared.EventPublisher = (*OutboxPublisher)(nil)
