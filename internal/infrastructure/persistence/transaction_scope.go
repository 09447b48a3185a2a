package persistence

import (
	"context"

	apptrade "github.com/adminkit/backend/internal/application/trade"
	"github.com/adminkit/backend/internal/domain/shared"
	"github.com/adminkit/backend/internal/domain/trade"
	"github.com/adminkit/backend/internal/infrastructure/event"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// Aggregate writes and the outbox entries for their events share the
// transaction, so an order is never saved without its events or vice versa.
type GormTransactionScope struct {
	db         *gorm.DB
	serializer *event.EventSerializer
	logger     *zap.Logger
	repoOpts   []shared.RepositoryOption
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB, serializer *event.EventSerializer, logger *zap.Logger, opts ...shared.RepositoryOption) *GormTransactionScope {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormTransactionScope{
		db:         db,
		serializer: serializer,
		logger:     logger,
		repoOpts:   opts,
	}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos apptrade.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{scope: s, tx: tx})
	})
}

// gormTransactionalRepositories provides access to all repositories within a transaction.
type gormTransactionalRepositories struct {
	scope *GormTransactionScope
	tx    *gorm.DB
}

// SalesOrders returns the sales order repository scoped to the current transaction.
func (r *gormTransactionalRepositories) SalesOrders() trade.SalesOrderRepository {
	return NewSalesOrderRepository(r.tx, r.scope.logger, r.scope.repoOpts...)
}

// Outbox returns a publisher writing events to the outbox within the current transaction.
func (r *gormTransactionalRepositories) Outbox() shared.EventPublisher {
	return event.NewOutboxPublisher(r.scope.serializer, event.NewGormOutboxRepository(r.tx))
}

// Ensure GormTransactionScope implements TransactionScope
var _ apptrade.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ apptrade.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
