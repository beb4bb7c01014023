package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/order-ledger/internal/domain"
	"github.com/sakashimaa/order-ledger/internal/metrics"
	"github.com/sakashimaa/order-ledger/internal/repository"
	"github.com/sakashimaa/order-ledger/pkg/db"
	"github.com/sakashimaa/order-ledger/pkg/mylogger"
	"github.com/sakashimaa/order-ledger/pkg/outbox/worker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type OrderService interface {
	CreateOrder(ctx context.Context, buyerID int64, items []domain.OrderLine) (*domain.Order, error)
	UpdateStatus(ctx context.Context, orderID int64, status domain.OrderStatus, expectedVersion int64) (*domain.Order, error)
	GetOrder(ctx context.Context, orderID int64) (*domain.Order, error)
	ListOrdersByUser(ctx context.Context, userID int64) ([]domain.Order, error)
}

type OrderDeps struct {
	Pool        *pgxpool.Pool
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	UserRepo    repository.UserRepository
	ProductRepo repository.ProductRepository
	OrderRepo   repository.OrderRepository
	OutboxRepo  worker.OutboxRepository
	Ledger      InventoryLedger
}

type orderService struct {
	pool        *pgxpool.Pool
	logger      *zap.Logger
	metrics     *metrics.Metrics
	userRepo    repository.UserRepository
	productRepo repository.ProductRepository
	orderRepo   repository.OrderRepository
	outboxRepo  worker.OutboxRepository
	ledger      InventoryLedger
	tracer      trace.Tracer
}

func NewOrderService(deps OrderDeps) OrderService {
	return &orderService{
		pool:        deps.Pool,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		userRepo:    deps.UserRepo,
		productRepo: deps.ProductRepo,
		orderRepo:   deps.OrderRepo,
		outboxRepo:  deps.OutboxRepo,
		ledger:      deps.Ledger,
		tracer:      otel.Tracer("service/order_service"),
	}
}

func validateBasket(items []domain.OrderLine) error {
	if len(items) == 0 {
		return ErrEmptyBasket
	}

	seen := make(map[int64]struct{}, len(items))
	for _, item := range items {
		if item.Quantity <= 0 || item.Quantity > domain.MaxUnits {
			return ErrInvalidQuantity
		}

		if _, ok := seen[item.ProductID]; ok {
			return ErrDuplicateProduct
		}
		seen[item.ProductID] = struct{}{}
	}

	return nil
}

// CreateOrder validates the buyer and basket, freezes current prices as unit
// prices, and commits the order, its items, the stock decrements and the
// OrderCreated event as one transaction.
func (s *orderService) CreateOrder(ctx context.Context, buyerID int64, items []domain.OrderLine) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.CreateOrder")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user_id", buyerID),
		attribute.Int("items_count", len(items)),
	)

	if err := validateBasket(items); err != nil {
		mylogger.Warn(
			ctx,
			s.logger,
			"Rejected basket",
			zap.Int64("user_id", buyerID),
			zap.Error(err),
		)

		return nil, err
	}

	var order *domain.Order
	err := db.WithTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		if _, err := s.userRepo.FindActiveByID(ctx, tx, buyerID); err != nil {
			return err
		}

		ids := make([]int64, 0, len(items))
		for _, item := range items {
			ids = append(ids, item.ProductID)
		}

		products, err := s.productRepo.FindActiveByIDs(ctx, tx, ids)
		if err != nil {
			return err
		}

		if len(products) != len(items) {
			s.metrics.OrderRejections.WithLabelValues("product_not_found").Inc()

			mylogger.Warn(
				ctx,
				s.logger,
				"Basket references unknown or deleted products",
				zap.Int64s("product_ids", ids),
				zap.Int("found", len(products)),
			)

			return repository.ErrProductNotFound
		}

		byID := make(map[int64]domain.Product, len(products))
		for _, p := range products {
			byID[p.ID] = p
		}

		o := &domain.Order{
			UserID: buyerID,
			Status: domain.OrderStatusPending,
			Items:  make([]domain.OrderItem, 0, len(items)),
		}

		for _, item := range items {
			product := byID[item.ProductID]
			if product.Stock < item.Quantity {
				s.metrics.OrderRejections.WithLabelValues("insufficient_stock").Inc()

				mylogger.Warn(
					ctx,
					s.logger,
					"Insufficient stock",
					zap.Int64("product_id", product.ID),
					zap.Int64("stock", product.Stock),
					zap.Int64("quantity", item.Quantity),
				)

				return repository.ErrInsufficientStock
			}

			o.Items = append(o.Items, domain.OrderItem{
				ProductID: product.ID,
				Quantity:  item.Quantity,
				UnitPrice: product.Price,
			})
		}

		o.CalculateTotal()
		if o.Total.GreaterThan(domain.MaxOrderTotal) {
			s.metrics.OrderRejections.WithLabelValues("total_too_large").Inc()
			return ErrTotalTooLarge
		}

		if err := s.orderRepo.CreateOrder(ctx, tx, o); err != nil {
			return err
		}

		events := make([]domain.OrderItemEvent, 0, len(o.Items))
		for i := range o.Items {
			o.Items[i].OrderID = o.ID

			if err := s.orderRepo.CreateItem(ctx, tx, &o.Items[i]); err != nil {
				return err
			}

			if err := s.ledger.ReserveStock(ctx, tx, o.Items[i].ProductID, o.Items[i].Quantity); err != nil {
				return err
			}

			events = append(events, domain.OrderItemEvent{
				ProductID: o.Items[i].ProductID,
				Quantity:  o.Items[i].Quantity,
				UnitPrice: o.Items[i].UnitPrice,
			})
		}

		err = emitEvent(ctx, tx, s.outboxRepo, domain.TopicOrderEvents, domain.AggregateOrder, o.ID,
			domain.EventOrderCreated, &domain.OrderCreatedEvent{
				OrderID: o.ID,
				UserID:  o.UserID,
				Total:   o.Total,
				Items:   events,
			})
		if err != nil {
			return err
		}

		order = o
		return nil
	})
	if err != nil {
		if !isBusinessError(err) {
			span.RecordError(err)
		}

		return nil, err
	}

	s.metrics.OrdersCreated.Inc()

	mylogger.Info(
		ctx,
		s.logger,
		"Order created",
		zap.Int64("order_id", order.ID),
		zap.String("total", order.Total.String()),
	)

	return order, nil
}

func (s *orderService) UpdateStatus(
	ctx context.Context,
	orderID int64,
	status domain.OrderStatus,
	expectedVersion int64,
) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.UpdateStatus")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.String("status", string(status)),
		attribute.Int64("expected_version", expectedVersion),
	)

	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	if expectedVersion < 0 {
		return nil, ErrInvalidVersion
	}

	var order *domain.Order
	err := db.WithTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		o, err := s.orderRepo.UpdateStatus(ctx, tx, orderID, expectedVersion, status)
		if err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				s.metrics.VersionConflicts.WithLabelValues("order").Inc()
			}

			return err
		}

		o.Items, err = s.orderRepo.GetItems(ctx, tx, o.ID)
		if err != nil {
			return fmt.Errorf("failed to query items of order: %w", err)
		}

		err = emitEvent(ctx, tx, s.outboxRepo, domain.TopicOrderEvents, domain.AggregateOrder, o.ID,
			domain.EventOrderStatusChanged, &domain.OrderStatusChangedEvent{
				OrderID: o.ID,
				Status:  o.Status,
				Version: o.Version,
			})
		if err != nil {
			return err
		}

		order = o
		return nil
	})
	if err != nil {
		if !isBusinessError(err) {
			span.RecordError(err)
		}

		return nil, err
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Order status changed",
		zap.Int64("order_id", order.ID),
		zap.String("status", string(order.Status)),
		zap.Int64("version", order.Version),
	)

	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	return s.orderRepo.FindByID(ctx, orderID)
}

func (s *orderService) ListOrdersByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	return s.orderRepo.ListByUser(ctx, userID)
}

func isBusinessError(err error) bool {
	for _, target := range []error{
		repository.ErrVersionConflict,
		repository.ErrUserNotFound,
		repository.ErrProductNotFound,
		repository.ErrOrderNotFound,
		repository.ErrInsufficientStock,
		ErrProductDeleted,
		ErrTotalTooLarge,
	} {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}
