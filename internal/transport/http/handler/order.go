package handler

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/order-ledger/internal/domain"
	"github.com/sakashimaa/order-ledger/internal/service"
	"github.com/sakashimaa/order-ledger/pkg/mylogger"
	"go.uber.org/zap"
)

type OrderHandler struct {
	base
	service service.OrderService
	logger  *zap.Logger
}

func NewOrderHandler(svc service.OrderService, validate *validator.Validate, timeout time.Duration, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		base:    newBase(validate, timeout),
		service: svc,
		logger:  logger,
	}
}

type OrderItemInput struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0,lte=2147483647"`
}

// Items is not length-checked here so an empty basket surfaces as EMPTY_BASKET.
type CreateOrderInput struct {
	UserID int64            `json:"userId" validate:"required,gt=0"`
	Items  []OrderItemInput `json:"items" validate:"dive"`
}

type UpdateStatusInput struct {
	OrderID         int64  `json:"orderId" validate:"required,gt=0"`
	NewStatus       string `json:"newStatus" validate:"required"`
	ExpectedVersion *int64 `json:"expectedVersion" validate:"required,gte=0"`
}

func (h *OrderHandler) Create(c *fiber.Ctx) error {
	var input CreateOrderInput
	if ok, err := h.parseBody(c, &input); !ok {
		return err
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	lines := make([]domain.OrderLine, 0, len(input.Items))
	for _, item := range input.Items {
		lines = append(lines, domain.OrderLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	order, err := h.service.CreateOrder(ctx, input.UserID, lines)
	if err != nil {
		return writeError(c, h.logger, "create order", err)
	}

	mylogger.Info(
		ctx,
		h.logger,
		"create order succeeded",
		zap.Int64("created_id", order.ID),
	)

	return c.Status(fiber.StatusCreated).JSON(order)
}

func (h *OrderHandler) UpdateStatus(c *fiber.Ctx) error {
	var input UpdateStatusInput
	if ok, err := h.parseBody(c, &input); !ok {
		return err
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	order, err := h.service.UpdateStatus(ctx, input.OrderID, domain.OrderStatus(input.NewStatus), *input.ExpectedVersion)
	if err != nil {
		return writeError(c, h.logger, "update order status", err)
	}

	return c.JSON(order)
}

func (h *OrderHandler) FindByID(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return invalidParam(c, "id")
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	order, err := h.service.GetOrder(ctx, id)
	if err != nil {
		return writeError(c, h.logger, "get order", err)
	}

	return c.JSON(order)
}

func (h *OrderHandler) ListByUser(c *fiber.Ctx) error {
	userID, ok := paramID(c, "userId")
	if !ok {
		return invalidParam(c, "userId")
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	orders, err := h.service.ListOrdersByUser(ctx, userID)
	if err != nil {
		return writeError(c, h.logger, "list orders by user", err)
	}

	return c.JSON(orders)
}
