package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/sakashimaa/order-ledger/internal/metrics"
	"github.com/sakashimaa/order-ledger/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// InventoryLedger reserves stock inside a caller-owned transaction. It never
// retries; any error is meant to abort the enclosing unit of work.
type InventoryLedger interface {
	ReserveStock(ctx context.Context, tx pgx.Tx, productID, quantity int64) error
}

type inventoryLedger struct {
	productRepo repository.ProductRepository
	metrics     *metrics.Metrics
	logger      *zap.Logger
	tracer      trace.Tracer
}

func NewInventoryLedger(productRepo repository.ProductRepository, m *metrics.Metrics, logger *zap.Logger) InventoryLedger {
	return &inventoryLedger{
		productRepo: productRepo,
		metrics:     m,
		logger:      logger,
		tracer:      otel.Tracer("service/inventory_ledger"),
	}
}

func (l *inventoryLedger) ReserveStock(ctx context.Context, tx pgx.Tx, productID, quantity int64) error {
	ctx, span := l.tracer.Start(ctx, "InventoryLedger.ReserveStock")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("product_id", productID),
		attribute.Int64("quantity", quantity),
	)

	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	err := l.productRepo.ReserveStock(ctx, tx, productID, quantity)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrInsufficientStock):
			l.metrics.OrderRejections.WithLabelValues("insufficient_stock").Inc()
		case errors.Is(err, repository.ErrProductNotFound):
			l.metrics.OrderRejections.WithLabelValues("product_not_found").Inc()
		default:
			span.RecordError(err)
		}

		return err
	}

	return nil
}
