package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/order-ledger/internal/domain"
	"github.com/sakashimaa/order-ledger/pkg/db"
	"github.com/sakashimaa/order-ledger/pkg/mylogger"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const productColumns = "id, name, sku, price, stock, category_id, version, is_active, deleted_at, created_at, updated_at"

var productsTable = VersionedTable{Name: "products", Returning: productColumns}

type ProductRepository interface {
	Create(ctx context.Context, tx pgx.Tx, input *domain.CreateProductInput) (*domain.Product, error)
	FindByID(ctx context.Context, id int64) (*domain.Product, error)
	FindByIDIncludingDeleted(ctx context.Context, tx pgx.Tx, id int64) (*domain.Product, error)
	FindActiveByIDs(ctx context.Context, tx pgx.Tx, ids []int64) ([]domain.Product, error)
	ReserveStock(ctx context.Context, tx pgx.Tx, id, quantity int64) error
	UpdatePrice(ctx context.Context, tx pgx.Tx, id, expectedVersion int64, price decimal.Decimal) (*domain.Product, error)
	SoftDelete(ctx context.Context, tx pgx.Tx, id int64) (*domain.Product, error)
	List(ctx context.Context, categoryID *int64, limit, offset int64) ([]domain.Product, error)
	Search(ctx context.Context, q string, limit int64) ([]domain.Product, error)
}

type productRepo struct {
	pool   *pgxpool.Pool
	gate   *VersionGate
	tracer trace.Tracer
	logger *zap.Logger
}

func NewProductRepository(pool *pgxpool.Pool, gate *VersionGate, logger *zap.Logger) ProductRepository {
	return &productRepo{
		pool:   pool,
		gate:   gate,
		logger: logger,
		tracer: otel.Tracer("repository/product_repo"),
	}
}

func productDest(p *domain.Product) []any {
	return []any{
		&p.ID,
		&p.Name,
		&p.SKU,
		&p.Price,
		&p.Stock,
		&p.CategoryID,
		&p.Version,
		&p.IsActive,
		&p.DeletedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	}
}

func collectProducts(rows pgx.Rows) ([]domain.Product, error) {
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(productDest(&p)...); err != nil {
			return nil, fmt.Errorf("error scanning product: %w", err)
		}

		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return products, nil
}

func (r *productRepo) Create(ctx context.Context, tx pgx.Tx, input *domain.CreateProductInput) (*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("sku", input.SKU),
		attribute.Int64("category_id", input.CategoryID),
	)

	query := `
		INSERT INTO products (name, sku, price, stock, category_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + productColumns

	var p domain.Product
	err := tx.QueryRow(
		ctx,
		query,
		input.Name,
		input.SKU,
		input.Price,
		input.Stock,
		input.CategoryID,
	).Scan(productDest(&p)...)
	if err != nil {
		switch pgErrorCode(err) {
		case pgUniqueViolation:
			mylogger.Warn(ctx, r.logger, "Product sku already exists", zap.String("sku", input.SKU))
			return nil, ErrSKUAlreadyExists
		case pgForeignKeyViolation:
			mylogger.Warn(ctx, r.logger, "Category not found", zap.Int64("category_id", input.CategoryID))
			return nil, ErrCategoryNotFound
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error creating product",
			zap.Error(err),
		)

		return nil, fmt.Errorf("error creating product: %w", err)
	}

	return &p, nil
}

func (r *productRepo) FindByID(ctx context.Context, id int64) (*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.FindByID")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("id", id),
	)

	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE id = $1 AND deleted_at IS NULL AND is_active
	`

	var p domain.Product
	if err := r.pool.QueryRow(ctx, query, id).Scan(productDest(&p)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error get by id",
			zap.Int64("id", id),
			zap.Error(err),
		)

		return nil, fmt.Errorf("error getting product: %w", err)
	}

	return &p, nil
}

func (r *productRepo) FindByIDIncludingDeleted(ctx context.Context, tx pgx.Tx, id int64) (*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.FindByIDIncludingDeleted")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("id", id),
	)

	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE id = $1
	`

	var p domain.Product
	if err := tx.QueryRow(ctx, query, id).Scan(productDest(&p)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}

		span.RecordError(err)

		return nil, fmt.Errorf("error getting product: %w", err)
	}

	return &p, nil
}

func (r *productRepo) FindActiveByIDs(ctx context.Context, tx pgx.Tx, ids []int64) ([]domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.FindActiveByIDs")
	defer span.End()

	span.SetAttributes(
		attribute.Int64Slice("ids", ids),
	)

	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE id = ANY($1) AND deleted_at IS NULL AND is_active
	`

	rows, err := tx.Query(ctx, query, ids)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error selecting products by ids",
			zap.Int64s("ids", ids),
			zap.Error(err),
		)

		return nil, fmt.Errorf("error selecting products: %w", err)
	}

	products, err := collectProducts(rows)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return products, nil
}

// ReserveStock decrements stock only if enough is left. The predicate is
// evaluated against the row at write time, so no prior read can go stale.
func (r *productRepo) ReserveStock(ctx context.Context, tx pgx.Tx, id, quantity int64) error {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.ReserveStock")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("id", id),
		attribute.Int64("quantity", quantity),
	)

	query := `
		UPDATE products
		SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1
			AND stock >= $2
			AND deleted_at IS NULL
	`

	commandTag, err := tx.Exec(ctx, query, id, quantity)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error decreasing stock",
			zap.Int64("id", id),
			zap.Int64("quantity", quantity),
			zap.Error(err),
		)

		return fmt.Errorf("error decreasing stock for product %d: %w", id, err)
	}

	if commandTag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	probe := `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1 AND deleted_at IS NULL)`
	if err := tx.QueryRow(ctx, probe, id).Scan(&exists); err != nil {
		span.RecordError(err)
		return fmt.Errorf("error probing product %d: %w", id, err)
	}

	if !exists {
		mylogger.Warn(ctx, r.logger, "Product not found", zap.Int64("product_id", id))
		return ErrProductNotFound
	}

	mylogger.Warn(
		ctx,
		r.logger,
		"Insufficient stock",
		zap.Int64("product_id", id),
		zap.Int64("quantity", quantity),
	)

	return ErrInsufficientStock
}

func (r *productRepo) UpdatePrice(
	ctx context.Context,
	tx pgx.Tx,
	id, expectedVersion int64,
	price decimal.Decimal,
) (*domain.Product, error) {
	var p domain.Product

	err := r.gate.Update(
		ctx,
		tx,
		productsTable,
		id,
		expectedVersion,
		[]Assignment{{Column: "price", Value: price}},
		productDest(&p)...,
	)
	if err != nil {
		return nil, err
	}

	return &p, nil
}

func (r *productRepo) SoftDelete(ctx context.Context, tx pgx.Tx, id int64) (*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.SoftDelete")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("id", id),
	)

	query := `
		UPDATE products
		SET deleted_at = NOW(), is_active = FALSE, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING ` + productColumns

	var p domain.Product
	if err := tx.QueryRow(ctx, query, id).Scan(productDest(&p)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error deleting product by id",
			zap.Int64("id", id),
			zap.Error(err),
		)

		return nil, fmt.Errorf("error deleting product by id: %w", err)
	}

	return &p, nil
}

func (r *productRepo) List(ctx context.Context, categoryID *int64, limit, offset int64) ([]domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.List")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("limit", limit),
		attribute.Int64("offset", offset),
	)

	query := `SELECT ` + productColumns + `
		FROM products
		WHERE deleted_at IS NULL AND is_active`

	var args []any
	argId := 1

	if categoryID != nil {
		query += fmt.Sprintf(" AND category_id = $%d", argId)
		args = append(args, *categoryID)
		argId++

		span.SetAttributes(attribute.Int64("category_id", *categoryID))
	}

	query += fmt.Sprintf(" ORDER BY price DESC, id ASC LIMIT $%d OFFSET $%d", argId, argId+1)
	args = append(args, limit, offset)

	return r.queryProducts(ctx, span, r.pool, query, args...)
}

func (r *productRepo) Search(ctx context.Context, q string, limit int64) ([]domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.Search")
	defer span.End()

	span.SetAttributes(
		attribute.String("search", q),
		attribute.Int64("limit", limit),
	)

	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE deleted_at IS NULL
			AND (name ILIKE $1 OR sku ILIKE $1)
		ORDER BY id ASC
		LIMIT $2
	`

	return r.queryProducts(ctx, span, r.pool, query, "%"+escapeLike(q)+"%", limit)
}

func (r *productRepo) queryProducts(
	ctx context.Context,
	span trace.Span,
	q db.Querier,
	query string,
	args ...any,
) ([]domain.Product, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error getting products",
			zap.Error(err),
		)

		return nil, fmt.Errorf("error selecting products: %w", err)
	}

	products, err := collectProducts(rows)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("result_count", len(products)))

	return products, nil
}
