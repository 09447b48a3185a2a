package integration

import (
	"context"
	"testing"

	"github.com/adminkit/backend/internal/domain/shared"
	"github.com/adminkit/backend/internal/domain/shared/valueobject"
	"github.com/adminkit/backend/internal/domain/trade"
	"github.com/adminkit/backend/internal/infrastructure/persistence"
	"github.com/adminkit/backend/tests/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newDraftOrder(t *testing.T, ctx context.Context, number string, lines int) *trade.SalesOrder {
	t.Helper()

	order, err := trade.NewSalesOrder(ctx, number, testutil.TestCustomerID(), "Acme Ltd", valueobject.CNY)
	require.NoError(t, err)

	for i := 0; i < lines; i++ {
		qty, err := valueobject.NewQuantityFromInt(int64(i+1), "pcs")
		require.NoError(t, err)
		price, err := valueobject.NewMoneyFromString("19.90", valueobject.CNY)
		require.NoError(t, err)
		_, err = order.AddItem(ctx, shared.NewUUID(), "Widget", qty, price)
		require.NoError(t, err)
	}
	return order
}

func TestSalesOrderRepository_SaveAndReload(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := NewSharedTestDB(t)
	repo := persistence.NewSalesOrderRepository(testDB.DB, zap.NewNop())
	ctx := context.Background()

	order := newDraftOrder(t, ctx, "SO-IT-0001", 2)
	require.True(t, order.IsNew())

	saved, err := repo.Save(ctx, order)
	require.NoError(t, err)
	assert.False(t, saved.IsNew())
	assert.False(t, saved.IsChanged())
	for _, item := range saved.Items() {
		assert.False(t, item.IsNew(), "items are clean after save")
	}

	assert.Equal(t, int64(1), testDB.Count("sales_orders", ""))
	assert.Equal(t, int64(2), testDB.Count("sales_order_items", "order_id = ?", order.GetID().UUID()))

	found, err := repo.FindByID(ctx, order.GetID())
	require.NoError(t, err)
	assert.Equal(t, "SO-IT-0001", found.OrderNumber())
	assert.Equal(t, trade.OrderStatusDraft, found.Status())
	assert.Equal(t, 2, found.ItemCount())
	assert.True(t, found.TotalAmount().Amount().Equal(order.TotalAmount().Amount()))
	assert.False(t, found.IsNew())
	assert.False(t, found.HasUncommittedEvents())
}

func TestSalesOrderRepository_SavesOnlyChangedChildren(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := NewSharedTestDB(t)
	repo := persistence.NewSalesOrderRepository(testDB.DB, zap.NewNop())
	ctx := context.Background()

	order := newDraftOrder(t, ctx, "SO-IT-0002", 1)
	_, err := repo.Save(ctx, order)
	require.NoError(t, err)

	loaded, err := repo.FindByID(ctx, order.GetID())
	require.NoError(t, err)
	versionBefore := loaded.GetVersion()

	existing := loaded.Items()[0]
	qty, err := valueobject.NewQuantity(decimal.NewFromInt(5), "pcs")
	require.NoError(t, err)
	require.NoError(t, loaded.ChangeItemQuantity(ctx, existing.GetID(), qty))

	price, err := valueobject.NewMoneyFromInt(3, valueobject.CNY)
	require.NoError(t, err)
	one, err := valueobject.NewQuantityFromInt(1, "pcs")
	require.NoError(t, err)
	added, err := loaded.AddItem(ctx, shared.NewUUID(), "Gadget", one, price)
	require.NoError(t, err)
	assert.True(t, added.IsNew())
	assert.True(t, existing.IsChanged())

	_, err = repo.Save(ctx, loaded)
	require.NoError(t, err)
	assert.Equal(t, versionBefore+1, loaded.GetVersion())

	reloaded, err := repo.FindByID(ctx, order.GetID())
	require.NoError(t, err)
	require.Equal(t, 2, reloaded.ItemCount())
	assert.True(t, reloaded.Item(existing.GetID()).Quantity().Amount().Equal(decimal.NewFromInt(5)))
	assert.NotNil(t, reloaded.Item(added.GetID()))
	assert.Equal(t, versionBefore+1, reloaded.GetVersion())
}

func TestSalesOrderRepository_StaleVersionIsRejected(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := NewSharedTestDB(t)
	repo := persistence.NewSalesOrderRepository(testDB.DB, zap.NewNop())
	ctx := context.Background()

	order := newDraftOrder(t, ctx, "SO-IT-0003", 1)
	_, err := repo.Save(ctx, order)
	require.NoError(t, err)

	first, err := repo.FindByID(ctx, order.GetID())
	require.NoError(t, err)
	second, err := repo.FindByID(ctx, order.GetID())
	require.NoError(t, err)

	first.SetRemark("first writer")
	_, err = repo.Save(ctx, first)
	require.NoError(t, err)

	second.SetRemark("second writer")
	_, err = repo.Save(ctx, second)
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	assert.True(t, second.IsChanged(), "state is kept when the save fails")
}

func TestSalesOrderRepository_DuplicateOrderNumber(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := NewSharedTestDB(t)
	repo := persistence.NewSalesOrderRepository(testDB.DB, zap.NewNop())
	ctx := context.Background()

	_, err := repo.Save(ctx, newDraftOrder(t, ctx, "SO-IT-DUP", 0))
	require.NoError(t, err)

	_, err = repo.Save(ctx, newDraftOrder(t, ctx, "SO-IT-DUP", 0))
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)
}

func TestSalesOrderRepository_SaveManyStopsAtFirstFailure(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := NewSharedTestDB(t)
	repo := persistence.NewSalesOrderRepository(testDB.DB, zap.NewNop())
	ctx := context.Background()

	orders := []*trade.SalesOrder{
		newDraftOrder(t, ctx, "SO-IT-MANY-1", 1),
		newDraftOrder(t, ctx, "SO-IT-MANY-1", 1),
		newDraftOrder(t, ctx, "SO-IT-MANY-3", 1),
	}

	saved, err := repo.SaveMany(ctx, orders)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	require.Len(t, saved, 1)
	assert.Equal(t, orders[0].GetID(), saved[0].GetID())

	assert.Equal(t, int64(1), testDB.Count("sales_orders", ""))
	assert.False(t, orders[0].IsNew())
	assert.True(t, orders[2].IsNew(), "orders after the failure are not attempted")
}

func TestSalesOrderRepository_Remove(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := NewSharedTestDB(t)
	repo := persistence.NewSalesOrderRepository(testDB.DB, zap.NewNop())
	ctx := context.Background()

	order := newDraftOrder(t, ctx, "SO-IT-0004", 2)
	_, err := repo.Save(ctx, order)
	require.NoError(t, err)

	require.NoError(t, repo.Remove(ctx, order))

	_, err = repo.FindByID(ctx, order.GetID())
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.Equal(t, int64(0), testDB.Count("sales_order_items", "order_id = ?", order.GetID().UUID()))

	err = repo.RemoveByID(ctx, order.GetID())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
