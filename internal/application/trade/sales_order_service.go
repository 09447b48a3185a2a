package trade

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adminkit/backend/internal/domain/shared"
	"github.com/adminkit/backend/internal/domain/shared/valueobject"
	"github.com/adminkit/backend/internal/domain/trade"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// TransactionScope runs a unit of work inside a single database transaction
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories are the repositories bound to one transaction
type TransactionalRepositories interface {
	SalesOrders() trade.SalesOrderRepository
	// Outbox stores committed events in the same transaction
	Outbox() shared.EventPublisher
}

// SalesOrderService handles sales order business operations.
// Every command loads the order, mutates it, saves it through the repository
// and only then commits the buffered domain events to the publisher.
type SalesOrderService struct {
	orderRepo      trade.SalesOrderRepository
	eventPublisher shared.EventPublisher
	txScope        TransactionScope
	validate       *validator.Validate
	logger         *zap.Logger
	now            func() time.Time
}

// ServiceOption configures a SalesOrderService
type ServiceOption func(*SalesOrderService)

// WithTransactionScope saves orders and writes their events to the outbox
// in one transaction instead of publishing after the save
func WithTransactionScope(scope TransactionScope) ServiceOption {
	return func(s *SalesOrderService) {
		s.txScope = scope
	}
}

// NewSalesOrderService creates a new SalesOrderService.
// A nil publisher drops committed events.
func NewSalesOrderService(orderRepo trade.SalesOrderRepository, eventPublisher shared.EventPublisher, logger *zap.Logger, opts ...ServiceOption) *SalesOrderService {
	if eventPublisher == nil {
		eventPublisher = shared.NopEventPublisher
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SalesOrderService{
		orderRepo:      orderRepo,
		eventPublisher: eventPublisher,
		validate:       newValidator(),
		logger:         logger.Named("sales_order_service"),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create creates a new sales order with its initial items
func (s *SalesOrderService) Create(ctx context.Context, req CreateSalesOrderRequest) (*SalesOrderResponse, error) {
	if err := validateRequest(s.validate, req); err != nil {
		return nil, err
	}

	orderNumber := req.OrderNumber
	if orderNumber == "" {
		orderNumber = s.generateOrderNumber()
	}

	order, err := trade.NewSalesOrder(ctx, orderNumber, req.CustomerID, req.CustomerName,
		valueobject.Currency(strings.ToUpper(req.Currency)), shared.WithEventPublisher(s.eventPublisher))
	if err != nil {
		return nil, err
	}

	for _, input := range req.Items {
		if _, err := s.addItem(ctx, order, AddOrderItemRequest(input)); err != nil {
			return nil, err
		}
	}

	if req.Remark != "" {
		order.SetRemark(req.Remark)
	}

	return s.saveAndCommit(ctx, order)
}

// GetByID retrieves a sales order by ID
func (s *SalesOrderService) GetByID(ctx context.Context, orderID shared.UUID) (*SalesOrderResponse, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	response := ToSalesOrderResponse(order)
	return &response, nil
}

// List retrieves all sales orders
func (s *SalesOrderService) List(ctx context.Context) ([]SalesOrderResponse, error) {
	orders, err := s.orderRepo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	return ToSalesOrderResponses(orders), nil
}

// AddItem adds an item to a draft sales order
func (s *SalesOrderService) AddItem(ctx context.Context, orderID shared.UUID, req AddOrderItemRequest) (*SalesOrderResponse, error) {
	if err := validateRequest(s.validate, req); err != nil {
		return nil, err
	}
	return s.execute(ctx, orderID, func(order *trade.SalesOrder) error {
		_, err := s.addItem(ctx, order, req)
		return err
	})
}

// ChangeItemQuantity changes the quantity of an item of a draft sales order
func (s *SalesOrderService) ChangeItemQuantity(ctx context.Context, orderID shared.UUID, req ChangeItemQuantityRequest) (*SalesOrderResponse, error) {
	if err := validateRequest(s.validate, req); err != nil {
		return nil, err
	}
	return s.execute(ctx, orderID, func(order *trade.SalesOrder) error {
		item := order.Item(req.ItemID)
		if item == nil {
			return shared.NewDomainError("ITEM_NOT_FOUND", "Order item not found")
		}
		quantity, err := valueobject.NewQuantity(req.Quantity, item.Quantity().Unit())
		if err != nil {
			return shared.NewDomainError("INVALID_QUANTITY", err.Error())
		}
		return order.ChangeItemQuantity(ctx, req.ItemID, quantity)
	})
}

// Confirm confirms a sales order
func (s *SalesOrderService) Confirm(ctx context.Context, orderID shared.UUID) (*SalesOrderResponse, error) {
	return s.execute(ctx, orderID, func(order *trade.SalesOrder) error {
		return order.Confirm(ctx)
	})
}

// Cancel cancels a sales order.
// The cancelled event tells consumers whether the order had been confirmed.
func (s *SalesOrderService) Cancel(ctx context.Context, orderID shared.UUID, req CancelOrderRequest) (*SalesOrderResponse, error) {
	if err := validateRequest(s.validate, req); err != nil {
		return nil, err
	}
	return s.execute(ctx, orderID, func(order *trade.SalesOrder) error {
		return order.Cancel(ctx, req.Reason)
	})
}

// Delete deletes a sales order (only allowed in DRAFT status).
// Items are removed by the store together with the order row.
func (s *SalesOrderService) Delete(ctx context.Context, orderID shared.UUID) error {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if !order.IsDraft() {
		return shared.NewDomainError("INVALID_STATE", "Only draft orders can be deleted")
	}
	return s.orderRepo.Remove(ctx, order)
}

func (s *SalesOrderService) execute(ctx context.Context, orderID shared.UUID, mutate func(order *trade.SalesOrder) error) (*SalesOrderResponse, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	order.SetEventPublisher(s.eventPublisher)

	if err := mutate(order); err != nil {
		return nil, err
	}
	return s.saveAndCommit(ctx, order)
}

func (s *SalesOrderService) addItem(ctx context.Context, order *trade.SalesOrder, req AddOrderItemRequest) (*trade.SalesOrderItem, error) {
	quantity, err := valueobject.NewQuantity(req.Quantity, req.Unit)
	if err != nil {
		return nil, shared.NewDomainError("INVALID_QUANTITY", err.Error())
	}
	unitPrice, err := valueobject.NewMoney(req.UnitPrice, order.Currency())
	if err != nil {
		return nil, shared.NewDomainError("INVALID_PRICE", err.Error())
	}

	item, err := order.AddItem(ctx, req.ProductID, req.ProductName, quantity, unitPrice)
	if err != nil {
		return nil, err
	}
	if req.Remark != "" {
		item.SetRemark(req.Remark)
	}
	return item, nil
}

// saveAndCommit persists the order and then publishes its buffered events.
// A publish failure leaves the events buffered on the order.
func (s *SalesOrderService) saveAndCommit(ctx context.Context, order *trade.SalesOrder) (*SalesOrderResponse, error) {
	if s.txScope != nil {
		return s.saveWithOutbox(ctx, order)
	}

	pending := len(order.UncommittedEvents())

	saved, err := s.orderRepo.Save(ctx, order)
	if err != nil {
		s.logger.Warn("failed to save sales order",
			zap.String("order_id", order.GetID().String()),
			zap.Error(err),
		)
		return nil, err
	}

	if err := order.Commit(ctx); err != nil {
		s.logger.Error("failed to publish sales order events",
			zap.String("order_id", order.GetID().String()),
			zap.Int("events", pending),
			zap.Error(err),
		)
		return nil, fmt.Errorf("publish sales order events: %w", err)
	}

	s.logger.Debug("sales order saved",
		zap.String("order_id", saved.GetID().String()),
		zap.String("status", saved.Status().String()),
		zap.Int("events", pending),
	)

	response := ToSalesOrderResponse(saved)
	return &response, nil
}

// saveWithOutbox saves the order and stores its events in the outbox within
// one transaction. The relay publishes them later.
//
// On rollback the order keeps its uncommitted events and gets its version
// back, but its change tracking may already be cleared by the store. The
// order must not be saved again; every service call reloads it.
func (s *SalesOrderService) saveWithOutbox(ctx context.Context, order *trade.SalesOrder) (*SalesOrderResponse, error) {
	pending := len(order.UncommittedEvents())
	version := order.GetVersion()

	var saved *trade.SalesOrder
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		saved, err = repos.SalesOrders().Save(ctx, order)
		if err != nil {
			return err
		}
		return order.CommitTo(ctx, repos.Outbox())
	})
	if err != nil {
		order.SetVersion(version)
		s.logger.Warn("failed to save sales order with outbox",
			zap.String("order_id", order.GetID().String()),
			zap.Int("events", pending),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Debug("sales order saved with outbox",
		zap.String("order_id", saved.GetID().String()),
		zap.String("status", saved.Status().String()),
		zap.Int("events", pending),
	)

	response := ToSalesOrderResponse(saved)
	return &response, nil
}

func (s *SalesOrderService) generateOrderNumber() string {
	id := strings.ReplaceAll(shared.GenerateUUID(), "-", "")
	return fmt.Sprintf("SO-%s-%s", s.now().Format("20060102"), strings.ToUpper(id[len(id)-8:]))
}
