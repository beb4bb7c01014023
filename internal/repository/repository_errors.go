package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrVersionConflict = errors.New("version conflict")

	ErrUserNotFound     = errors.New("user not found")
	ErrProductNotFound  = errors.New("product not found")
	ErrOrderNotFound    = errors.New("order not found")
	ErrCategoryNotFound = errors.New("category not found")

	ErrInsufficientStock = errors.New("insufficient stock")

	ErrUserAlreadyExists     = errors.New("user with this email already exists")
	ErrSKUAlreadyExists      = errors.New("product with this sku already exists")
	ErrCategoryAlreadyExists = errors.New("category with this name already exists")
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}

	return ""
}
