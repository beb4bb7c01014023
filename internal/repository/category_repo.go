package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/order-ledger/internal/domain"
	"github.com/sakashimaa/order-ledger/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type CategoryRepository interface {
	Create(ctx context.Context, name string) (*domain.Category, error)
}

type categoryRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewCategoryRepository(pool *pgxpool.Pool, logger *zap.Logger) CategoryRepository {
	return &categoryRepo{
		pool:   pool,
		tracer: otel.Tracer("repository/category_repo"),
		logger: logger,
	}
}

func (r *categoryRepo) Create(ctx context.Context, name string) (*domain.Category, error) {
	ctx, span := r.tracer.Start(ctx, "CategoryRepository.Create")
	defer span.End()

	query := `
		INSERT INTO categories (name)
		VALUES ($1)
		RETURNING id, name, created_at
	`

	var c domain.Category
	if err := r.pool.QueryRow(ctx, query, name).Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
		if pgErrorCode(err) == pgUniqueViolation {
			return nil, ErrCategoryAlreadyExists
		}

		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Error creating category", zap.Error(err))

		return nil, fmt.Errorf("error creating category: %w", err)
	}

	return &c, nil
}
