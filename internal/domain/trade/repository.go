package trade

import (
	"context"

	"github.com/adminkit/backend/internal/domain/shared"
)

// SalesOrderRepository defines the interface for sales order persistence.
// Save cascades into the order items and clears their dirty state.
type SalesOrderRepository interface {
	// FindByID finds a sales order by ID
	FindByID(ctx context.Context, id shared.UUID) (*SalesOrder, error)

	// FindAll returns every sales order
	FindAll(ctx context.Context) ([]*SalesOrder, error)

	// Save creates or updates a sales order and its items
	Save(ctx context.Context, order *SalesOrder) (*SalesOrder, error)

	// SaveMany saves orders one after another, stopping at the first failure
	SaveMany(ctx context.Context, orders []*SalesOrder) ([]*SalesOrder, error)

	// Remove deletes a sales order
	Remove(ctx context.Context, order *SalesOrder) error
}

var _ SalesOrderRepository = (*shared.ChangeTrackingRepository[*SalesOrder])(nil)
