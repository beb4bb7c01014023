package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/order-ledger/internal/domain"
	"github.com/sakashimaa/order-ledger/pkg/mylogger"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// PriceHistoryRepository is append-only: rows are never updated or deleted.
type PriceHistoryRepository interface {
	RecordPriceChange(ctx context.Context, tx pgx.Tx, productID int64, oldPrice, newPrice decimal.Decimal) (*domain.PriceHistory, error)
	ListByProduct(ctx context.Context, productID int64) ([]domain.PriceHistory, error)
}

type priceHistoryRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewPriceHistoryRepository(pool *pgxpool.Pool, logger *zap.Logger) PriceHistoryRepository {
	return &priceHistoryRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("repository/price_history_repo"),
	}
}

func (r *priceHistoryRepo) RecordPriceChange(
	ctx context.Context,
	tx pgx.Tx,
	productID int64,
	oldPrice, newPrice decimal.Decimal,
) (*domain.PriceHistory, error) {
	ctx, span := r.tracer.Start(ctx, "PriceHistoryRepository.RecordPriceChange")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("product_id", productID),
		attribute.String("old_price", oldPrice.String()),
		attribute.String("new_price", newPrice.String()),
	)

	query := `
		INSERT INTO product_price_history (product_id, old_price, new_price)
		VALUES ($1, $2, $3)
		RETURNING id, product_id, old_price, new_price, changed_at
	`

	var h domain.PriceHistory
	err := tx.QueryRow(ctx, query, productID, oldPrice, newPrice).
		Scan(&h.ID, &h.ProductID, &h.OldPrice, &h.NewPrice, &h.ChangedAt)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error recording price change",
			zap.Int64("product_id", productID),
			zap.Error(err),
		)

		return nil, fmt.Errorf("error recording price change: %w", err)
	}

	return &h, nil
}

func (r *priceHistoryRepo) ListByProduct(ctx context.Context, productID int64) ([]domain.PriceHistory, error) {
	ctx, span := r.tracer.Start(ctx, "PriceHistoryRepository.ListByProduct")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("product_id", productID),
	)

	query := `
		SELECT id, product_id, old_price, new_price, changed_at
		FROM product_price_history
		WHERE product_id = $1
		ORDER BY id ASC
	`

	rows, err := r.pool.Query(ctx, query, productID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error selecting price history: %w", err)
	}
	defer rows.Close()

	history := make([]domain.PriceHistory, 0)
	for rows.Next() {
		var h domain.PriceHistory
		if err := rows.Scan(&h.ID, &h.ProductID, &h.OldPrice, &h.NewPrice, &h.ChangedAt); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("error scanning price history: %w", err)
		}

		history = append(history, h)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return history, nil
}
