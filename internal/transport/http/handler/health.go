package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/order-ledger/pkg/mylogger"
	"go.uber.org/zap"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db     Pinger
	logger *zap.Logger
}

func NewHealthHandler(db Pinger, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{db: db, logger: logger}
}

func (h *HealthHandler) Check(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		mylogger.Error(ctx, h.logger, "Health check failed", zap.Error(err))

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"ok":    false,
			"error": "DB_CONNECTION_FAILED",
		})
	}

	return c.JSON(fiber.Map{"ok": true})
}
