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

type AnalyticsRepository interface {
	TopProductsByCategory(ctx context.Context, perCategory int) ([]domain.TopProduct, error)
	CustomerLTV(ctx context.Context) ([]domain.CustomerLTV, error)
}

type analyticsRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewAnalyticsRepository(pool *pgxpool.Pool, logger *zap.Logger) AnalyticsRepository {
	return &analyticsRepo{
		pool:   pool,
		tracer: otel.Tracer("repository/analytics_repo"),
		logger: logger,
	}
}

func (r *analyticsRepo) TopProductsByCategory(ctx context.Context, perCategory int) ([]domain.TopProduct, error) {
	ctx, span := r.tracer.Start(ctx, "AnalyticsRepository.TopProductsByCategory")
	defer span.End()

	query := `
		WITH product_sales AS (
			SELECT
				c.name AS category,
				p.id AS product_id,
				p.name AS product_name,
				SUM(oi.quantity * oi.unit_price) AS revenue,
				ROW_NUMBER() OVER (
					PARTITION BY c.id ORDER BY SUM(oi.quantity * oi.unit_price) DESC, p.id ASC
				) AS rank_in_category
			FROM orders o
			JOIN order_items oi ON oi.order_id = o.id
			JOIN products p ON p.id = oi.product_id
			JOIN categories c ON c.id = p.category_id
			WHERE o.status = 'COMPLETED'
			GROUP BY c.id, c.name, p.id, p.name
		)
		SELECT category, product_id, product_name, revenue, rank_in_category
		FROM product_sales
		WHERE rank_in_category <= $1
		ORDER BY category ASC, revenue DESC
	`

	rows, err := r.pool.Query(ctx, query, perCategory)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Error querying top products", zap.Error(err))

		return nil, fmt.Errorf("error querying top products: %w", err)
	}
	defer rows.Close()

	result := make([]domain.TopProduct, 0)
	for rows.Next() {
		var tp domain.TopProduct
		if err := rows.Scan(&tp.Category, &tp.ProductID, &tp.ProductName, &tp.Revenue, &tp.Rank); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("error scanning top product: %w", err)
		}

		result = append(result, tp)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}

// CustomerLTV sums totals of PAID, SHIPPED and COMPLETED orders per active user.
func (r *analyticsRepo) CustomerLTV(ctx context.Context) ([]domain.CustomerLTV, error) {
	ctx, span := r.tracer.Start(ctx, "AnalyticsRepository.CustomerLTV")
	defer span.End()

	query := `
		SELECT
			u.id,
			u.email,
			COUNT(o.id) AS orders_count,
			COALESCE(SUM(o.total), 0) AS lifetime_value
		FROM users u
		LEFT JOIN orders o
			ON o.user_id = u.id AND o.status IN ('PAID', 'SHIPPED', 'COMPLETED')
		WHERE u.deleted_at IS NULL
		GROUP BY u.id, u.email
		ORDER BY lifetime_value DESC, u.id ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Error querying customer ltv", zap.Error(err))

		return nil, fmt.Errorf("error querying customer ltv: %w", err)
	}
	defer rows.Close()

	result := make([]domain.CustomerLTV, 0)
	for rows.Next() {
		var c domain.CustomerLTV
		if err := rows.Scan(&c.UserID, &c.Email, &c.OrdersCount, &c.LifetimeValue); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("error scanning customer ltv: %w", err)
		}

		result = append(result, c)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}
