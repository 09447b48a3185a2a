package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adminkit/backend/internal/domain/shared"
	"github.com/adminkit/backend/internal/domain/trade"
	"github.com/adminkit/backend/internal/infrastructure/persistence/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SalesOrderStore persists sales orders and their items for a
// ChangeTrackingRepository. Order rows are version-checked; item rows are
// inserted when new and otherwise only their changed columns are written.
type SalesOrderStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSalesOrderStore creates a new SalesOrderStore
func NewSalesOrderStore(db *gorm.DB) *SalesOrderStore {
	return &SalesOrderStore{db: db, now: time.Now}
}

// NewSalesOrderRepository creates the change-tracking sales order repository backed by db
func NewSalesOrderRepository(db *gorm.DB, logger *zap.Logger, opts ...shared.RepositoryOption) *shared.ChangeTrackingRepository[*trade.SalesOrder] {
	return shared.NewChangeTrackingRepository[*trade.SalesOrder](NewSalesOrderStore(db), logger, opts...)
}

func preloadItems(db *gorm.DB) *gorm.DB {
	return db.Preload("Items", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("created_at ASC, id ASC")
	})
}

// FindAll returns every sales order with its items, oldest first
func (s *SalesOrderStore) FindAll(ctx context.Context) ([]*trade.SalesOrder, error) {
	var rows []models.SalesOrderModel
	if err := preloadItems(s.db.WithContext(ctx)).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	orders := make([]*trade.SalesOrder, 0, len(rows))
	for i := range rows {
		order, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// FindByID finds a sales order by its ID
func (s *SalesOrderStore) FindByID(ctx context.Context, id shared.UUID) (*trade.SalesOrder, error) {
	var row models.SalesOrderModel
	if err := preloadItems(s.db.WithContext(ctx)).
		First(&row, "id = ?", id.UUID()).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return row.ToDomain()
}

// DoCreate inserts the order row. Items are written through HandleChildEntity.
func (s *SalesOrderStore) DoCreate(ctx context.Context, order *trade.SalesOrder) (*trade.SalesOrder, error) {
	row := models.SalesOrderModelFromDomain(order)
	if err := s.db.WithContext(ctx).Omit("Items").Create(row).Error; err != nil {
		return nil, translateWriteError(err, "sales order "+order.OrderNumber())
	}
	return order, nil
}

// DoUpdate writes the changed columns and bumps the version. An order that is
// dirty only through its items still gets its version bumped so concurrent
// edits of the same order conflict.
func (s *SalesOrderStore) DoUpdate(ctx context.Context, order *trade.SalesOrder, changed map[string]any) (*trade.SalesOrder, error) {
	columns, err := models.SalesOrderColumns(changed)
	if err != nil {
		return nil, err
	}

	version := order.GetVersion()
	columns["version"] = version + 1
	columns["updated_at"] = s.now()

	result := s.db.WithContext(ctx).
		Model(&models.SalesOrderModel{}).
		Where("id = ? AND version = ?", order.GetID().UUID(), version).
		Updates(columns)
	if result.Error != nil {
		return nil, translateWriteError(result.Error, "sales order "+order.OrderNumber())
	}
	if result.RowsAffected == 0 {
		return nil, shared.ErrConcurrencyConflict
	}

	order.SetVersion(version + 1)
	return order, nil
}

// DoRemove deletes the order row together with its item rows
func (s *SalesOrderStore) DoRemove(ctx context.Context, id shared.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", id.UUID()).
			Delete(&models.SalesOrderItemModel{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id.UUID()).Delete(&models.SalesOrderModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// HandleChildEntity inserts a new item or writes the changed columns of an existing one
func (s *SalesOrderStore) HandleChildEntity(ctx context.Context, child shared.Entity) error {
	item, ok := child.(*trade.SalesOrderItem)
	if !ok {
		return fmt.Errorf("sales order store: unsupported child entity %T", child)
	}

	if item.IsNew() {
		row := models.SalesOrderItemModelFromDomain(item)
		if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
			return translateWriteError(err, "sales order item "+item.GetID().String())
		}
		return nil
	}

	columns, err := models.SalesOrderItemColumns(item.ChangedData())
	if err != nil {
		return err
	}
	if len(columns) == 0 {
		return nil
	}
	columns["updated_at"] = item.GetUpdatedAt()

	result := s.db.WithContext(ctx).
		Model(&models.SalesOrderItemModel{}).
		Where("id = ?", item.GetID().UUID()).
		Updates(columns)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// HandleChildAggregateRoot rejects child aggregates; sales orders own none
func (s *SalesOrderStore) HandleChildAggregateRoot(_ context.Context, child shared.AggregateRoot) error {
	return fmt.Errorf("sales order store: unsupported child aggregate %T", child)
}

func translateWriteError(err error, subject string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%s: %w", subject, shared.ErrAlreadyExists)
	}
	return err
}

// Ensure SalesOrderStore implements shared.Store
var _ shared.Store[*trade.SalesOrder] = (*SalesOrderStore)(nil)
