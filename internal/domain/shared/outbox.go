package shared

import (
	"context"
	"fmt"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// OutboxStatus is the delivery state of a committed event
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusSent       OutboxStatus = "SENT"
	OutboxStatusFailed     OutboxStatus = "FAILED"
	OutboxStatusDead       OutboxStatus = "DEAD"
)

const (
	DefaultMaxRetries  = 5
	DefaultBaseBackoff = time.Second
	MaxRetryBackoff    = 5 * time.Minute

	maxLastErrorLength = 2000
)

// outboxTransitions lists the states each status may move to
var outboxTransitions = map[OutboxStatus][]OutboxStatus{
	OutboxStatusPending:    {OutboxStatusProcessing},
	OutboxStatusProcessing: {OutboxStatusSent, OutboxStatusFailed, OutboxStatusDead},
	OutboxStatusFailed:     {OutboxStatusProcessing},
	OutboxStatusDead:       {OutboxStatusPending},
}

// OutboxEntry is a committed domain event waiting to be relayed to handlers.
// Entry ids are UUIDv7 so they sort by creation time.
type OutboxEntry struct {
	ID            uuid.UUID
	EventID       uuid.UUID
	EventType     string
	AggregateID   uuid.UUID
	AggregateType string
	Payload       []byte
	Status        OutboxStatus
	RetryCount    int
	MaxRetries    int
	LastError     string
	NextRetryAt   *time.Time
	ProcessedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewOutboxEntry wraps a serialized event as a pending entry
func NewOutboxEntry(event DomainEvent, payload []byte) *OutboxEntry {
	now := time.Now()
	return &OutboxEntry{
		ID:            NewUUID().UUID(),
		EventID:       event.EventID().UUID(),
		EventType:     event.EventType(),
		AggregateID:   event.AggregateID().UUID(),
		AggregateType: event.AggregateType(),
		Payload:       payload,
		Status:        OutboxStatusPending,
		MaxRetries:    DefaultMaxRetries,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// RetryBackoff returns the delay before the given retry attempt (1-based):
// 1s, 2s, 4s, ... capped at MaxRetryBackoff.
func RetryBackoff(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	if attempt > 30 {
		return MaxRetryBackoff
	}
	return min(DefaultBaseBackoff<<(attempt-1), MaxRetryBackoff)
}

// CanTransitionTo reports whether the entry may move to status
func (e *OutboxEntry) CanTransitionTo(status OutboxStatus) bool {
	return slices.Contains(outboxTransitions[e.Status], status)
}

func (e *OutboxEntry) transition(status OutboxStatus, now time.Time) error {
	if !e.CanTransitionTo(status) {
		return NewDomainError("INVALID_STATUS",
			fmt.Sprintf("outbox entry %s cannot move from %s to %s", e.ID, e.Status, status))
	}
	e.Status = status
	e.UpdatedAt = now
	return nil
}

// CanRetry reports whether a failed entry has attempts left
func (e *OutboxEntry) CanRetry() bool {
	return e.Status == OutboxStatusFailed && e.RetryCount < e.MaxRetries
}

// MarkProcessing claims a pending or failed entry for delivery
func (e *OutboxEntry) MarkProcessing() error {
	return e.transition(OutboxStatusProcessing, time.Now())
}

// MarkSent records a successful delivery
func (e *OutboxEntry) MarkSent() {
	now := time.Now()
	e.Status = OutboxStatusSent
	e.NextRetryAt = nil
	e.ProcessedAt = &now
	e.UpdatedAt = now
}

// MarkFailed records a failed delivery. The entry is scheduled for another
// attempt after RetryBackoff, or becomes a dead letter once MaxRetries
// attempts have failed.
func (e *OutboxEntry) MarkFailed(errMsg string) {
	now := time.Now()
	e.RetryCount++
	e.LastError = truncateError(errMsg)
	e.UpdatedAt = now

	if e.RetryCount >= e.MaxRetries {
		e.Status = OutboxStatusDead
		e.NextRetryAt = nil
		return
	}

	e.Status = OutboxStatusFailed
	next := now.Add(RetryBackoff(e.RetryCount))
	e.NextRetryAt = &next
}

// ResetForRetry puts a dead letter back in the pending queue with a fresh
// retry budget
func (e *OutboxEntry) ResetForRetry() error {
	if err := e.transition(OutboxStatusPending, time.Now()); err != nil {
		return err
	}
	e.RetryCount = 0
	e.LastError = ""
	e.NextRetryAt = nil
	return nil
}

// IsDead reports whether the entry is a dead letter
func (e *OutboxEntry) IsDead() bool {
	return e.Status == OutboxStatusDead
}

func truncateError(msg string) string {
	if len(msg) <= maxLastErrorLength {
		return msg
	}
	cut := maxLastErrorLength
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}

// OutboxWriter appends entries to the outbox. It is all an aggregate commit needs.
type OutboxWriter interface {
	Save(ctx context.Context, entries ...*OutboxEntry) error
}

// OutboxRepository is the full outbox store used by the relay and its tooling
type OutboxRepository interface {
	OutboxWriter
	// FindPending returns pending entries oldest first
	FindPending(ctx context.Context, limit int) ([]*OutboxEntry, error)
	// FindRetryable returns failed entries due before the given time
	FindRetryable(ctx context.Context, before time.Time, limit int) ([]*OutboxEntry, error)
	// FindDead returns a page of dead letters and the total count
	FindDead(ctx context.Context, page, pageSize int) ([]*OutboxEntry, int64, error)
	// FindByID wraps ErrNotFound when the entry does not exist
	FindByID(ctx context.Context, id uuid.UUID) (*OutboxEntry, error)
	// MarkProcessing claims the given entries and returns those it claimed
	MarkProcessing(ctx context.Context, ids []uuid.UUID) ([]*OutboxEntry, error)
	Update(ctx context.Context, entry *OutboxEntry) error
	// DeleteOlderThan removes sent entries processed before the given time
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[OutboxStatus]int64, error)
}
