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
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const orderColumns = "id, user_id, status, total, version, created_at, updated_at"

var ordersTable = VersionedTable{Name: "orders", Returning: orderColumns}

type OrderRepository interface {
	CreateOrder(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	CreateItem(ctx context.Context, tx pgx.Tx, item *domain.OrderItem) error
	UpdateStatus(ctx context.Context, tx pgx.Tx, id, expectedVersion int64, status domain.OrderStatus) (*domain.Order, error)
	GetItems(ctx context.Context, q db.Querier, orderID int64) ([]domain.OrderItem, error)
	FindByID(ctx context.Context, id int64) (*domain.Order, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Order, error)
}

type orderRepo struct {
	pool   *pgxpool.Pool
	gate   *VersionGate
	logger *zap.Logger
	tracer trace.Tracer
}

func NewOrderRepository(pool *pgxpool.Pool, gate *VersionGate, logger *zap.Logger) OrderRepository {
	return &orderRepo{
		pool:   pool,
		gate:   gate,
		logger: logger,
		tracer: otel.Tracer("repository/order_repo"),
	}
}

func orderDest(o *domain.Order) []any {
	return []any{&o.ID, &o.UserID, &o.Status, &o.Total, &o.Version, &o.CreatedAt, &o.UpdatedAt}
}

func (r *orderRepo) CreateOrder(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.CreateOrder")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user_id", order.UserID),
		attribute.Int("items_count", len(order.Items)),
	)

	query := `
		INSERT INTO orders (user_id, status, total, version)
		VALUES ($1, $2, $3, 0)
		RETURNING ` + orderColumns

	if err := tx.QueryRow(
		ctx,
		query,
		order.UserID,
		string(order.Status),
		order.Total,
	).Scan(orderDest(order)...); err != nil {
		span.RecordError(err)

		if pgErrorCode(err) == pgForeignKeyViolation {
			return ErrUserNotFound
		}

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to insert order",
			zap.Error(err),
		)

		return fmt.Errorf("failed to insert order: %w", err)
	}

	return nil
}

func (r *orderRepo) CreateItem(ctx context.Context, tx pgx.Tx, item *domain.OrderItem) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.CreateItem")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", item.OrderID),
		attribute.Int64("product_id", item.ProductID),
		attribute.Int64("quantity", item.Quantity),
	)

	query := `
		INSERT INTO order_items (order_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	err := tx.QueryRow(ctx, query, item.OrderID, item.ProductID, item.Quantity, item.UnitPrice).
		Scan(&item.ID)
	if err != nil {
		span.RecordError(err)

		switch pgErrorCode(err) {
		case pgForeignKeyViolation:
			return ErrProductNotFound
		case pgCheckViolation:
			return fmt.Errorf("order item rejected by check constraint: %w", err)
		}

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to insert order item",
			zap.Int64("order_id", item.OrderID),
			zap.Error(err),
		)

		return fmt.Errorf("failed to insert order item: %w", err)
	}

	return nil
}

func (r *orderRepo) UpdateStatus(
	ctx context.Context,
	tx pgx.Tx,
	id, expectedVersion int64,
	status domain.OrderStatus,
) (*domain.Order, error) {
	var o domain.Order

	err := r.gate.Update(
		ctx,
		tx,
		ordersTable,
		id,
		expectedVersion,
		[]Assignment{{Column: "status", Value: string(status)}},
		orderDest(&o)...,
	)
	if err != nil {
		return nil, err
	}

	return &o, nil
}

func (r *orderRepo) GetItems(ctx context.Context, q db.Querier, orderID int64) ([]domain.OrderItem, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetItems")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
	)

	query := `
		SELECT id, order_id, product_id, quantity, unit_price
		FROM order_items
		WHERE order_id = $1
		ORDER BY id ASC
	`

	rows, err := q.Query(ctx, query, orderID)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to query order_items",
			zap.Error(err),
		)

		return nil, err
	}

	items, err := collectItems(rows)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return items, nil
}

func (r *orderRepo) FindByID(ctx context.Context, id int64) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.FindByID")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", id),
	)

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	var o domain.Order
	if err := r.pool.QueryRow(ctx, query, id).Scan(orderDest(&o)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}

		span.RecordError(err)
		return nil, fmt.Errorf("error getting order: %w", err)
	}

	items, err := r.GetItems(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}
	o.Items = items

	return &o, nil
}

func (r *orderRepo) ListByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.ListByUser")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user_id", userID),
	)

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error listing orders: %w", err)
	}

	orders := make([]domain.Order, 0)
	ids := make([]int64, 0)
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(orderDest(&o)...); err != nil {
			rows.Close()
			span.RecordError(err)
			return nil, fmt.Errorf("error scanning order: %w", err)
		}

		o.Items = make([]domain.OrderItem, 0)
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	rows.Close()

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	if len(orders) == 0 {
		return orders, nil
	}

	itemsQuery := `
		SELECT id, order_id, product_id, quantity, unit_price
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY id ASC
	`

	itemRows, err := r.pool.Query(ctx, itemsQuery, ids)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error listing order items: %w", err)
	}

	items, err := collectItems(itemRows)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		index[o.ID] = i
	}
	for _, item := range items {
		i := index[item.OrderID]
		orders[i].Items = append(orders[i].Items, item)
	}

	return orders, nil
}

func collectItems(rows pgx.Rows) ([]domain.OrderItem, error) {
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Quantity,
			&item.UnitPrice,
		); err != nil {
			return nil, fmt.Errorf("error scanning order item: %w", err)
		}

		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return items, nil
}
