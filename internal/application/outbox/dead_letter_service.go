// Package outbox exposes operator actions on the transactional outbox:
// inspecting the backlog and sending dead letters back to the relay.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adminkit/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Repository is the part of shared.OutboxRepository the service needs
type Repository interface {
	FindDead(ctx context.Context, page, pageSize int) ([]*shared.OutboxEntry, int64, error)
	FindByID(ctx context.Context, id uuid.UUID) (*shared.OutboxEntry, error)
	Update(ctx context.Context, entry *shared.OutboxEntry) error
	CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error)
}

// DeadLetterService lists, inspects and requeues outbox entries
type DeadLetterService struct {
	repo   Repository
	logger *zap.Logger
}

// NewDeadLetterService creates a new dead letter service
func NewDeadLetterService(repo Repository, logger *zap.Logger) *DeadLetterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeadLetterService{
		repo:   repo,
		logger: logger.Named("dead_letters"),
	}
}

// EntryDTO is an outbox entry without its payload
type EntryDTO struct {
	ID            uuid.UUID  `json:"id"`
	EventID       uuid.UUID  `json:"event_id"`
	EventType     string     `json:"event_type"`
	AggregateID   uuid.UUID  `json:"aggregate_id"`
	AggregateType string     `json:"aggregate_type"`
	Status        string     `json:"status"`
	RetryCount    int        `json:"retry_count"`
	MaxRetries    int        `json:"max_retries"`
	LastError     string     `json:"last_error,omitempty"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Page selects a page of entries. Zero values select the first page of 20.
type Page struct {
	Number int
	Size   int
}

func (p Page) normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = defaultPageSize
	}
	if p.Size > maxPageSize {
		p.Size = maxPageSize
	}
	return p
}

// ListResult is one page of dead letters
type ListResult struct {
	Entries    []EntryDTO `json:"entries"`
	Total      int64      `json:"total"`
	Page       int        `json:"page"`
	PageSize   int        `json:"page_size"`
	TotalPages int        `json:"total_pages"`
}

// Stats counts entries per status
type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Sent       int64 `json:"sent"`
	Failed     int64 `json:"failed"`
	Dead       int64 `json:"dead"`
	Total      int64 `json:"total"`
}

// List returns dead letters, most recently failed first
func (s *DeadLetterService) List(ctx context.Context, page Page) (*ListResult, error) {
	page = page.normalize()

	entries, total, err := s.repo.FindDead(ctx, page.Number, page.Size)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}

	totalPages := int(total) / page.Size
	if int(total)%page.Size > 0 {
		totalPages++
	}

	dtos := make([]EntryDTO, len(entries))
	for i, entry := range entries {
		dtos[i] = toEntryDTO(entry)
	}

	return &ListResult{
		Entries:    dtos,
		Total:      total,
		Page:       page.Number,
		PageSize:   page.Size,
		TotalPages: totalPages,
	}, nil
}

// Get returns a single entry in any status
func (s *DeadLetterService) Get(ctx context.Context, id uuid.UUID) (*EntryDTO, error) {
	entry, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := toEntryDTO(entry)
	return &dto, nil
}

// Retry moves a dead entry back to PENDING with a fresh retry budget
func (s *DeadLetterService) Retry(ctx context.Context, id uuid.UUID) (*EntryDTO, error) {
	entry, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := entry.ResetForRetry(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, entry); err != nil {
		return nil, fmt.Errorf("requeue outbox entry %s: %w", id, err)
	}

	s.logger.Info("dead letter requeued",
		zap.String("id", id.String()),
		zap.String("event_type", entry.EventType),
	)

	dto := toEntryDTO(entry)
	return &dto, nil
}

// RetryAll requeues every dead entry and returns how many were requeued.
// Requeued entries leave the dead set, so the first page is read until it
// is empty or nothing on it could be requeued.
func (s *DeadLetterService) RetryAll(ctx context.Context) (int64, error) {
	var count int64
	var errs []error

	for {
		entries, _, err := s.repo.FindDead(ctx, 1, maxPageSize)
		if err != nil {
			return count, fmt.Errorf("list dead letters: %w", err)
		}
		if len(entries) == 0 {
			break
		}

		requeued := 0
		for _, entry := range entries {
			if err := entry.ResetForRetry(); err != nil {
				continue
			}
			if err := s.repo.Update(ctx, entry); err != nil {
				s.logger.Error("failed to requeue dead letter",
					zap.String("id", entry.ID.String()),
					zap.Error(err),
				)
				errs = append(errs, fmt.Errorf("requeue outbox entry %s: %w", entry.ID, err))
				continue
			}
			requeued++
		}
		count += int64(requeued)

		if requeued == 0 || len(entries) < maxPageSize {
			break
		}
	}

	s.logger.Info("dead letters requeued", zap.Int64("count", count))
	return count, errors.Join(errs...)
}

// Stats returns the number of entries in each status
func (s *DeadLetterService) Stats(ctx context.Context) (*Stats, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count outbox entries: %w", err)
	}

	var total int64
	for _, count := range counts {
		total += count
	}

	return &Stats{
		Pending:    counts[shared.OutboxStatusPending],
		Processing: counts[shared.OutboxStatusProcessing],
		Sent:       counts[shared.OutboxStatusSent],
		Failed:     counts[shared.OutboxStatusFailed],
		Dead:       counts[shared.OutboxStatusDead],
		Total:      total,
	}, nil
}

func (s *DeadLetterService) find(ctx context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("outbox entry %s: %w", id, shared.ErrNotFound)
	}
	return entry, nil
}

func toEntryDTO(entry *shared.OutboxEntry) EntryDTO {
	return EntryDTO{
		ID:            entry.ID,
		EventID:       entry.EventID,
		EventType:     entry.EventType,
		AggregateID:   entry.AggregateID,
		AggregateType: entry.AggregateType,
		Status:        string(entry.Status),
		RetryCount:    entry.RetryCount,
		MaxRetries:    entry.MaxRetries,
		LastError:     entry.LastError,
		NextRetryAt:   entry.NextRetryAt,
		ProcessedAt:   entry.ProcessedAt,
		CreatedAt:     entry.CreatedAt,
		UpdatedAt:     entry.UpdatedAt,
	}
}

var _ Repository = (shared.OutboxRepository)(nil)
