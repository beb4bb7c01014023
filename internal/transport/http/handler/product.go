package handler

import (
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/order-ledger/internal/domain"
	"github.com/sakashimaa/order-ledger/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ProductHandler struct {
	base
	service   service.ProductService
	analytics service.AnalyticsService
	logger    *zap.Logger
}

func NewProductHandler(
	svc service.ProductService,
	analytics service.AnalyticsService,
	validate *validator.Validate,
	timeout time.Duration,
	logger *zap.Logger,
) *ProductHandler {
	return &ProductHandler{
		base:      newBase(validate, timeout),
		service:   svc,
		analytics: analytics,
		logger:    logger,
	}
}

type CreateProductInput struct {
	Name       string          `json:"name" validate:"required,min=2,max=255"`
	SKU        string          `json:"sku" validate:"required,min=3,max=64"`
	Price      decimal.Decimal `json:"price"`
	Stock      *int64          `json:"stock" validate:"required,gte=0,lte=2147483647"`
	CategoryID int64           `json:"categoryId" validate:"required,gt=0"`
}

type UpdatePriceInput struct {
	ProductID       int64           `json:"productId" validate:"required,gt=0"`
	NewPrice        decimal.Decimal `json:"newPrice"`
	ExpectedVersion *int64          `json:"expectedVersion" validate:"required,gte=0"`
}

func (h *ProductHandler) Create(c *fiber.Ctx) error {
	var input CreateProductInput
	if ok, err := h.parseBody(c, &input); !ok {
		return err
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	product, err := h.service.Create(ctx, &domain.CreateProductInput{
		Name:       input.Name,
		SKU:        input.SKU,
		Price:      input.Price,
		Stock:      *input.Stock,
		CategoryID: input.CategoryID,
	})
	if err != nil {
		return writeError(c, h.logger, "create product", err)
	}

	return c.Status(fiber.StatusCreated).JSON(product)
}

func (h *ProductHandler) UpdatePrice(c *fiber.Ctx) error {
	var input UpdatePriceInput
	if ok, err := h.parseBody(c, &input); !ok {
		return err
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	product, err := h.service.UpdatePrice(ctx, input.ProductID, input.NewPrice, *input.ExpectedVersion)
	if err != nil {
		return writeError(c, h.logger, "update price", err)
	}

	return c.JSON(product)
}

func (h *ProductHandler) Delete(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return invalidParam(c, "id")
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	product, err := h.service.Delete(ctx, id)
	if err != nil {
		return writeError(c, h.logger, "delete product", err)
	}

	return c.JSON(product)
}

func (h *ProductHandler) FindByID(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return invalidParam(c, "id")
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	product, err := h.service.FindByID(ctx, id)
	if err != nil {
		return writeError(c, h.logger, "find product", err)
	}

	return c.JSON(product)
}

func (h *ProductHandler) List(c *fiber.Ctx) error {
	var categoryID *int64
	if raw := c.Query("categoryId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return invalidParam(c, "categoryId")
		}
		categoryID = &id
	}

	limit := int64(c.QueryInt("limit", service.DefaultListLimit))
	offset := int64(c.QueryInt("offset", 0))

	ctx, cancel := h.ctx(c)
	defer cancel()

	products, err := h.service.List(ctx, categoryID, limit, offset)
	if err != nil {
		return writeError(c, h.logger, "list products", err)
	}

	return c.JSON(products)
}

func (h *ProductHandler) Search(c *fiber.Ctx) error {
	ctx, cancel := h.ctx(c)
	defer cancel()

	products, err := h.service.Search(ctx, c.Query("q"))
	if err != nil {
		return writeError(c, h.logger, "search products", err)
	}

	return c.JSON(products)
}

func (h *ProductHandler) PriceHistory(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return invalidParam(c, "id")
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	history, err := h.service.PriceHistory(ctx, id)
	if err != nil {
		return writeError(c, h.logger, "price history", err)
	}

	return c.JSON(history)
}

func (h *ProductHandler) TopByCategory(c *fiber.Ctx) error {
	ctx, cancel := h.ctx(c)
	defer cancel()

	top, err := h.analytics.TopProductsByCategory(ctx)
	if err != nil {
		return writeError(c, h.logger, "top products", err)
	}

	return c.JSON(top)
}
