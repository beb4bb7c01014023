package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/order-ledger/internal/domain"
	"github.com/sakashimaa/order-ledger/internal/metrics"
	"github.com/sakashimaa/order-ledger/internal/repository"
	"github.com/sakashimaa/order-ledger/pkg/db"
	"github.com/sakashimaa/order-ledger/pkg/mylogger"
	"github.com/sakashimaa/order-ledger/pkg/outbox/worker"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
	SearchLimit      = 20
)

type ProductService interface {
	Create(ctx context.Context, input *domain.CreateProductInput) (*domain.Product, error)
	UpdatePrice(ctx context.Context, productID int64, newPrice decimal.Decimal, expectedVersion int64) (*domain.Product, error)
	Delete(ctx context.Context, productID int64) (*domain.Product, error)
	FindByID(ctx context.Context, productID int64) (*domain.Product, error)
	List(ctx context.Context, categoryID *int64, limit, offset int64) ([]domain.Product, error)
	Search(ctx context.Context, q string) ([]domain.Product, error)
	PriceHistory(ctx context.Context, productID int64) ([]domain.PriceHistory, error)
}

type productService struct {
	pool        *pgxpool.Pool
	productRepo repository.ProductRepository
	historyRepo repository.PriceHistoryRepository
	outboxRepo  worker.OutboxRepository
	metrics     *metrics.Metrics
	logger      *zap.Logger
	tracer      trace.Tracer
}

func NewProductService(
	pool *pgxpool.Pool,
	productRepo repository.ProductRepository,
	historyRepo repository.PriceHistoryRepository,
	outboxRepo worker.OutboxRepository,
	m *metrics.Metrics,
	logger *zap.Logger,
) ProductService {
	return &productService{
		pool:        pool,
		productRepo: productRepo,
		historyRepo: historyRepo,
		outboxRepo:  outboxRepo,
		metrics:     m,
		logger:      logger,
		tracer:      otel.Tracer("service/product_service"),
	}
}

// Create inserts the product together with its initial history row (old == new).
func (s *productService) Create(ctx context.Context, input *domain.CreateProductInput) (*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("sku", input.SKU),
	)

	price := domain.RoundMoney(input.Price)
	if !domain.ValidPrice(price) {
		return nil, ErrInvalidPrice
	}

	if input.Stock < 0 || input.Stock > domain.MaxUnits {
		return nil, ErrInvalidStock
	}

	normalized := *input
	normalized.Price = price

	var product *domain.Product
	err := db.WithTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		p, err := s.productRepo.Create(ctx, tx, &normalized)
		if err != nil {
			return err
		}

		if _, err := s.historyRepo.RecordPriceChange(ctx, tx, p.ID, p.Price, p.Price); err != nil {
			return err
		}

		err = emitEvent(ctx, tx, s.outboxRepo, domain.TopicProductEvents, domain.AggregateProduct, p.ID,
			domain.EventProductCreated, &domain.ProductCreatedEvent{
				ProductID: p.ID,
				SKU:       p.SKU,
				Price:     p.Price,
				Stock:     p.Stock,
			})
		if err != nil {
			return err
		}

		product = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Product created",
		zap.Int64("product_id", product.ID),
		zap.String("sku", product.SKU),
	)

	return product, nil
}

// UpdatePrice applies a version-gated price change and records (old, new) in
// the same transaction. The old price read here cannot go stale: any other
// price change or delete bumps the version and fails the gate.
func (s *productService) UpdatePrice(
	ctx context.Context,
	productID int64,
	newPrice decimal.Decimal,
	expectedVersion int64,
) (*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.UpdatePrice")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("product_id", productID),
		attribute.String("new_price", newPrice.String()),
		attribute.Int64("expected_version", expectedVersion),
	)

	price := domain.RoundMoney(newPrice)
	if !domain.ValidPrice(price) {
		return nil, ErrInvalidPrice
	}

	if expectedVersion < 0 {
		return nil, ErrInvalidVersion
	}

	var product *domain.Product
	err := db.WithTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		current, err := s.productRepo.FindByIDIncludingDeleted(ctx, tx, productID)
		if err != nil {
			return err
		}

		if current.IsDeleted() {
			mylogger.Warn(ctx, s.logger, "Price update on deleted product", zap.Int64("product_id", productID))
			return ErrProductDeleted
		}

		updated, err := s.productRepo.UpdatePrice(ctx, tx, productID, expectedVersion, price)
		if err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				s.metrics.VersionConflicts.WithLabelValues("product").Inc()
			}

			return err
		}

		if _, err := s.historyRepo.RecordPriceChange(ctx, tx, productID, current.Price, updated.Price); err != nil {
			return err
		}

		err = emitEvent(ctx, tx, s.outboxRepo, domain.TopicProductEvents, domain.AggregateProduct, productID,
			domain.EventProductPriceChanged, &domain.ProductPriceChangedEvent{
				ProductID: productID,
				OldPrice:  current.Price,
				NewPrice:  updated.Price,
				Version:   updated.Version,
			})
		if err != nil {
			return err
		}

		product = updated
		return nil
	})
	if err != nil {
		if !isBusinessError(err) {
			span.RecordError(err)
		}

		return nil, err
	}

	s.metrics.PriceChanges.Inc()

	return product, nil
}

func (s *productService) Delete(ctx context.Context, productID int64) (*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.Delete")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("product_id", productID),
	)

	var product *domain.Product
	err := db.WithTx(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		current, err := s.productRepo.FindByIDIncludingDeleted(ctx, tx, productID)
		if err != nil {
			return err
		}

		if current.IsDeleted() {
			return ErrProductDeleted
		}

		p, err := s.productRepo.SoftDelete(ctx, tx, productID)
		if err != nil {
			// lost a race with a concurrent delete
			if errors.Is(err, repository.ErrProductNotFound) {
				return ErrProductDeleted
			}

			return err
		}

		err = emitEvent(ctx, tx, s.outboxRepo, domain.TopicProductEvents, domain.AggregateProduct, productID,
			domain.EventProductDeleted, &domain.ProductDeletedEvent{ProductID: productID})
		if err != nil {
			return err
		}

		product = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	return product, nil
}

func (s *productService) FindByID(ctx context.Context, productID int64) (*domain.Product, error) {
	return s.productRepo.FindByID(ctx, productID)
}

func (s *productService) List(ctx context.Context, categoryID *int64, limit, offset int64) ([]domain.Product, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	return s.productRepo.List(ctx, categoryID, limit, offset)
}

func (s *productService) Search(ctx context.Context, q string) ([]domain.Product, error) {
	return s.productRepo.Search(ctx, strings.TrimSpace(q), SearchLimit)
}

func (s *productService) PriceHistory(ctx context.Context, productID int64) ([]domain.PriceHistory, error) {
	return s.historyRepo.ListByProduct(ctx, productID)
}
