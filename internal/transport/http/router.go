package http

import (
	"strconv"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sakashimaa/order-ledger/internal/metrics"
	"github.com/sakashimaa/order-ledger/internal/transport/http/handler"
)

type Handlers struct {
	Order   *handler.OrderHandler
	Product *handler.ProductHandler
	User    *handler.UserHandler
	Health  *handler.HealthHandler
}

type AppConfig struct {
	ServiceName       string
	LimiterMax        int
	LimiterExpiration time.Duration
}

func NewApp(cfg AppConfig, h *Handlers, m *metrics.Metrics) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		AppName:               cfg.ServiceName,
	})

	app.Use(recover.New())
	app.Use(otelfiber.Middleware())
	app.Use(metricsMiddleware(m))

	if cfg.LimiterMax > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        cfg.LimiterMax,
			Expiration: cfg.LimiterExpiration,
			Next: func(c *fiber.Ctx) bool {
				return c.Path() == "/health"
			},
		}))
	}

	RegisterRoutes(app, h)

	return app
}

func RegisterRoutes(app fiber.Router, h *Handlers) {
	app.Get("/health", h.Health.Check)

	orders := app.Group("/orders")
	orders.Post("", h.Order.Create)
	orders.Patch("/status", h.Order.UpdateStatus)
	orders.Get("/by-user/:userId", h.Order.ListByUser)
	orders.Get("/:id", h.Order.FindByID)

	products := app.Group("/products")
	products.Post("", h.Product.Create)
	products.Patch("/price", h.Product.UpdatePrice)
	products.Get("", h.Product.List)
	products.Get("/search", h.Product.Search)
	products.Get("/analytics/top", h.Product.TopByCategory)
	products.Get("/:id/price-history", h.Product.PriceHistory)
	products.Get("/:id", h.Product.FindByID)
	products.Delete("/:id", h.Product.Delete)

	app.Post("/categories", h.User.CreateCategory)

	users := app.Group("/users")
	users.Post("", h.User.Create)
	users.Get("", h.User.List)
	users.Get("/analytics/ltv", h.User.LTV)
	users.Delete("/:id", h.User.Delete)
}

func metricsMiddleware(m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		route := c.Route().Path
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		m.HTTPRequests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		m.HTTPDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())

		return err
	}
}
