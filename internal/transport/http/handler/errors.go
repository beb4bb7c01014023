package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/order-ledger/internal/repository"
	"github.com/sakashimaa/order-ledger/internal/service"
	"github.com/sakashimaa/order-ledger/pkg/mylogger"
	"github.com/sakashimaa/order-ledger/pkg/utils"
	"go.uber.org/zap"
)

const (
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeInternal         = "INTERNAL_ERROR"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{repository.ErrVersionConflict, fiber.StatusConflict, "VERSION_CONFLICT"},
	{repository.ErrInsufficientStock, fiber.StatusConflict, "INSUFFICIENT_STOCK"},
	{repository.ErrSKUAlreadyExists, fiber.StatusConflict, "SKU_ALREADY_EXISTS"},
	{repository.ErrUserAlreadyExists, fiber.StatusConflict, "EMAIL_ALREADY_EXISTS"},
	{repository.ErrCategoryAlreadyExists, fiber.StatusConflict, "CATEGORY_ALREADY_EXISTS"},
	{repository.ErrUserNotFound, fiber.StatusNotFound, "USER_NOT_FOUND"},
	{repository.ErrProductNotFound, fiber.StatusNotFound, "PRODUCT_NOT_FOUND"},
	{repository.ErrOrderNotFound, fiber.StatusNotFound, "ORDER_NOT_FOUND"},
	{repository.ErrCategoryNotFound, fiber.StatusNotFound, "CATEGORY_NOT_FOUND"},
	{service.ErrProductDeleted, fiber.StatusGone, "PRODUCT_DELETED"},
	{service.ErrEmptyBasket, fiber.StatusBadRequest, "EMPTY_BASKET"},
	{service.ErrInvalidQuantity, fiber.StatusBadRequest, "INVALID_QUANTITY"},
	{service.ErrDuplicateProduct, fiber.StatusBadRequest, "DUPLICATE_PRODUCT"},
	{service.ErrInvalidStatus, fiber.StatusBadRequest, "INVALID_STATUS"},
	{service.ErrInvalidVersion, fiber.StatusBadRequest, "INVALID_VERSION"},
	{service.ErrInvalidPrice, fiber.StatusBadRequest, "INVALID_PRICE"},
	{service.ErrInvalidStock, fiber.StatusBadRequest, "INVALID_STOCK"},
	{service.ErrTotalTooLarge, fiber.StatusBadRequest, "ORDER_TOTAL_TOO_LARGE"},
}

func mapError(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}

	return fiber.StatusInternalServerError, CodeInternal
}

func writeError(c *fiber.Ctx, logger *zap.Logger, op string, err error) error {
	status, code := mapError(err)

	if status >= fiber.StatusInternalServerError {
		mylogger.Error(c.UserContext(), logger, op+" failed", zap.Error(err))
	} else {
		mylogger.Warn(
			c.UserContext(),
			logger,
			op+" rejected",
			zap.Int("http_code", status),
			zap.String("code", code),
		)
	}

	return c.Status(status).JSON(fiber.Map{
		"error": code,
	})
}

func badRequest(c *fiber.Ctx, details map[string]string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":   CodeValidationFailed,
		"details": details,
	})
}

func validationFailed(c *fiber.Ctx, err error) error {
	return badRequest(c, utils.FormatValidationError(err))
}
