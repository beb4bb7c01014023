package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/order-ledger/internal/domain"
	"github.com/sakashimaa/order-ledger/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const userColumns = "id, email, name, is_active, deleted_at, created_at"

type UserRepository interface {
	Create(ctx context.Context, email, name string) (*domain.User, error)
	FindActiveByID(ctx context.Context, tx pgx.Tx, id int64) (*domain.User, error)
	List(ctx context.Context, limit, offset int64) ([]domain.User, error)
	SoftDelete(ctx context.Context, id int64) (*domain.User, error)
}

type userRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewUserRepository(pool *pgxpool.Pool, logger *zap.Logger) UserRepository {
	return &userRepo{
		pool:   pool,
		tracer: otel.Tracer("repository/user_repo"),
		logger: logger,
	}
}

func userDest(u *domain.User) []any {
	return []any{&u.ID, &u.Email, &u.Name, &u.IsActive, &u.DeletedAt, &u.CreatedAt}
}

func (r *userRepo) Create(ctx context.Context, email, name string) (*domain.User, error) {
	ctx, span := r.tracer.Start(ctx, "UserRepository.Create")
	defer span.End()

	query := `
		INSERT INTO users (email, name)
		VALUES ($1, $2)
		RETURNING ` + userColumns

	var u domain.User
	if err := r.pool.QueryRow(ctx, query, email, name).Scan(userDest(&u)...); err != nil {
		if pgErrorCode(err) == pgUniqueViolation {
			return nil, ErrUserAlreadyExists
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error creating user",
			zap.Error(err),
		)

		return nil, fmt.Errorf("error creating user: %w", err)
	}

	span.SetAttributes(attribute.Int64("user_id", u.ID))

	return &u, nil
}

func (r *userRepo) FindActiveByID(ctx context.Context, tx pgx.Tx, id int64) (*domain.User, error) {
	ctx, span := r.tracer.Start(ctx, "UserRepository.FindActiveByID")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user_id", id),
	)

	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1 AND deleted_at IS NULL AND is_active
	`

	var u domain.User
	if err := tx.QueryRow(ctx, query, id).Scan(userDest(&u)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			mylogger.Warn(ctx, r.logger, "User not found", zap.Int64("user_id", id))
			return nil, ErrUserNotFound
		}

		span.RecordError(err)

		return nil, fmt.Errorf("error getting user: %w", err)
	}

	return &u, nil
}

func (r *userRepo) List(ctx context.Context, limit, offset int64) ([]domain.User, error) {
	ctx, span := r.tracer.Start(ctx, "UserRepository.List")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("limit", limit),
		attribute.Int64("offset", offset),
	)

	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE deleted_at IS NULL
		ORDER BY id ASC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error listing users",
			zap.Error(err),
		)

		return nil, fmt.Errorf("error listing users: %w", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(userDest(&u)...); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("error scanning user: %w", err)
		}

		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return users, nil
}

func (r *userRepo) SoftDelete(ctx context.Context, id int64) (*domain.User, error) {
	ctx, span := r.tracer.Start(ctx, "UserRepository.SoftDelete")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user_id", id),
	)

	query := `
		UPDATE users
		SET deleted_at = NOW(), is_active = FALSE
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING ` + userColumns

	var u domain.User
	if err := r.pool.QueryRow(ctx, query, id).Scan(userDest(&u)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error deleting user",
			zap.Int64("user_id", id),
			zap.Error(err),
		)

		return nil, fmt.Errorf("error deleting user: %w", err)
	}

	return &u, nil
}
