package handler

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/order-ledger/internal/service"
	"go.uber.org/zap"
)

type UserHandler struct {
	base
	users      service.UserService
	categories service.CategoryService
	analytics  service.AnalyticsService
	logger     *zap.Logger
}

func NewUserHandler(
	users service.UserService,
	categories service.CategoryService,
	analytics service.AnalyticsService,
	validate *validator.Validate,
	timeout time.Duration,
	logger *zap.Logger,
) *UserHandler {
	return &UserHandler{
		base:       newBase(validate, timeout),
		users:      users,
		categories: categories,
		analytics:  analytics,
		logger:     logger,
	}
}

type CreateUserInput struct {
	Email string `json:"email" validate:"required,email,max=255"`
	Name  string `json:"name" validate:"max=255"`
}

type CreateCategoryInput struct {
	Name string `json:"name" validate:"required,min=1,max=255"`
}

func (h *UserHandler) Create(c *fiber.Ctx) error {
	var input CreateUserInput
	if ok, err := h.parseBody(c, &input); !ok {
		return err
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	user, err := h.users.Create(ctx, input.Email, input.Name)
	if err != nil {
		return writeError(c, h.logger, "create user", err)
	}

	return c.Status(fiber.StatusCreated).JSON(user)
}

func (h *UserHandler) List(c *fiber.Ctx) error {
	limit := int64(c.QueryInt("limit", service.DefaultListLimit))
	offset := int64(c.QueryInt("offset", 0))

	ctx, cancel := h.ctx(c)
	defer cancel()

	users, err := h.users.List(ctx, limit, offset)
	if err != nil {
		return writeError(c, h.logger, "list users", err)
	}

	return c.JSON(users)
}

func (h *UserHandler) Delete(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return invalidParam(c, "id")
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	user, err := h.users.Delete(ctx, id)
	if err != nil {
		return writeError(c, h.logger, "delete user", err)
	}

	return c.JSON(user)
}

func (h *UserHandler) LTV(c *fiber.Ctx) error {
	ctx, cancel := h.ctx(c)
	defer cancel()

	ltv, err := h.analytics.CustomerLTV(ctx)
	if err != nil {
		return writeError(c, h.logger, "customer ltv", err)
	}

	return c.JSON(ltv)
}

func (h *UserHandler) CreateCategory(c *fiber.Ctx) error {
	var input CreateCategoryInput
	if ok, err := h.parseBody(c, &input); !ok {
		return err
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	category, err := h.categories.Create(ctx, input.Name)
	if err != nil {
		return writeError(c, h.logger, "create category", err)
	}

	return c.Status(fiber.StatusCreated).JSON(category)
}
