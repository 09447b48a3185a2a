package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adminkit/backend/internal/domain/shared"
	"github.com/adminkit/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormOutboxRepository stores outbox entries in the outbox_events table
type GormOutboxRepository struct {
	db *gorm.DB
}

// NewGormOutboxRepository binds the repository to db. Pass a transaction
// handle to write entries in the same commit as an aggregate.
func NewGormOutboxRepository(db *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: db}
}

// WithTx returns a copy bound to tx
func (r *GormOutboxRepository) WithTx(tx *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: tx}
}

func (r *GormOutboxRepository) table(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.OutboxEntryModel{})
}

func withStatus(statuses ...shared.OutboxStatus) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if len(statuses) == 1 {
			return db.Where("status = ?", statuses[0])
		}
		return db.Where("status IN ?", statuses)
	}
}

func (r *GormOutboxRepository) list(q *gorm.DB) ([]*shared.OutboxEntry, error) {
	var rows []models.OutboxEntryModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	entries := make([]*shared.OutboxEntry, len(rows))
	for i := range rows {
		entries[i] = rows[i].ToDomain()
	}
	return entries, nil
}

// Save inserts entries in one statement
func (r *GormOutboxRepository) Save(ctx context.Context, entries ...*shared.OutboxEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]*models.OutboxEntryModel, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, models.OutboxEntryModelFromDomain(e))
	}

	err := r.db.WithContext(ctx).Create(rows).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("outbox entry: %w", shared.ErrAlreadyExists)
	}
	return err
}

// FindPending lists pending entries, oldest first
func (r *GormOutboxRepository) FindPending(ctx context.Context, limit int) ([]*shared.OutboxEntry, error) {
	return r.list(r.table(ctx).
		Scopes(withStatus(shared.OutboxStatusPending)).
		Order("created_at").
		Limit(limit))
}

// FindRetryable lists failed entries whose backoff expired at or before before
func (r *GormOutboxRepository) FindRetryable(ctx context.Context, before time.Time, limit int) ([]*shared.OutboxEntry, error) {
	return r.list(r.table(ctx).
		Scopes(withStatus(shared.OutboxStatusFailed)).
		Where("next_retry_at <= ?", before).
		Order("next_retry_at").
		Limit(limit))
}

// MarkProcessing moves the claimable entries among ids to processing and
// returns them. Rows locked by a concurrent relay are skipped.
func (r *GormOutboxRepository) MarkProcessing(ctx context.Context, ids []uuid.UUID) ([]*shared.OutboxEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var claimed []*shared.OutboxEntry
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := r.list(tx.Model(&models.OutboxEntryModel{}).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Scopes(withStatus(shared.OutboxStatusPending, shared.OutboxStatusFailed)).
			Where("id IN ?", ids).
			Order("created_at"))
		if err != nil || len(locked) == 0 {
			return err
		}

		won := make([]uuid.UUID, 0, len(locked))
		for _, e := range locked {
			won = append(won, e.ID)
		}
		now := time.Now()
		if err := tx.Model(&models.OutboxEntryModel{}).
			Where("id IN ?", won).
			Updates(map[string]any{"status": shared.OutboxStatusProcessing, "updated_at": now}).Error; err != nil {
			return err
		}

		for _, e := range locked {
			e.Status = shared.OutboxStatusProcessing
			e.UpdatedAt = now
		}
		claimed = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Update overwrites the mutable columns of entry
func (r *GormOutboxRepository) Update(ctx context.Context, entry *shared.OutboxEntry) error {
	entry.UpdatedAt = time.Now()
	row := models.OutboxEntryModelFromDomain(entry)

	res := r.db.WithContext(ctx).Model(row).Select("*").Omit("id", "event_id", "created_at").Updates(row)
	switch {
	case res.Error != nil:
		return res.Error
	case res.RowsAffected == 0:
		return fmt.Errorf("outbox entry %s: %w", entry.ID, shared.ErrNotFound)
	}
	return nil
}

// DeleteOlderThan purges sent entries processed before before
func (r *GormOutboxRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Scopes(withStatus(shared.OutboxStatusSent)).
		Where("processed_at < ?", before).
		Delete(&models.OutboxEntryModel{})
	return res.RowsAffected, res.Error
}

// FindDead pages through dead entries, most recently failed first. Pages
// start at 1.
func (r *GormOutboxRepository) FindDead(ctx context.Context, page, pageSize int) ([]*shared.OutboxEntry, int64, error) {
	page = max(page, 1)
	dead := withStatus(shared.OutboxStatusDead)

	var total int64
	if err := r.table(ctx).Scopes(dead).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	entries, err := r.list(r.table(ctx).
		Scopes(dead).
		Order("updated_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize))
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// FindByID loads one entry
func (r *GormOutboxRepository) FindByID(ctx context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	var row models.OutboxEntryModel
	err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("outbox entry %s: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return row.ToDomain(), nil
}

// CountByStatus counts entries per status. Statuses without entries are absent.
func (r *GormOutboxRepository) CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error) {
	var groups []struct {
		Status shared.OutboxStatus
		Count  int64
	}
	if err := r.table(ctx).Select("status, count(*) AS count").Group("status").Scan(&groups).Error; err != nil {
		return nil, err
	}

	counts := make(map[shared.OutboxStatus]int64, len(groups))
	for _, g := range groups {
		counts[g.Status] = g.Count
	}
	return counts, nil
}

var _ shared.OutboxRepository = (*GormOutboxRepository)(nil)
