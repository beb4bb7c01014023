package service_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sakashimaa/order-ledger/internal/domain"
	"github.com/sakashimaa/order-ledger/internal/metrics"
	"github.com/sakashimaa/order-ledger/internal/repository"
	"github.com/sakashimaa/order-ledger/internal/service"
	"github.com/sakashimaa/order-ledger/pkg/kafka"
	outbox "github.com/sakashimaa/order-ledger/pkg/outbox/repository"
	"github.com/sakashimaa/order-ledger/pkg/outbox/worker"
	"github.com/sakashimaa/order-ledger/pkg/testsuite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type IntegrationTestSuite struct {
	testsuite.BaseSuite

	Metrics          *metrics.Metrics
	OrderService     service.OrderService
	ProductService   service.ProductService
	UserService      service.UserService
	CategoryService  service.CategoryService
	AnalyticsService service.AnalyticsService
	ProductCache     *service.ProductCache

	TestProducer    kafka.Producer
	OutboxProcessor *worker.OutboxProcessor
	workerCancel    context.CancelFunc

	seq atomic.Int64
}

func (s *IntegrationTestSuite) SetupSuite() {
	s.BaseSuite.SetupInfrastructure(testsuite.Options{
		MigrationsRelPath: "../../migrations",
		WithKafka:         true,
		WithRedis:         true,
	})
}

func (s *IntegrationTestSuite) TearDownSuite() {
	s.BaseSuite.TearDownInfrastructure()
}

func (s *IntegrationTestSuite) SetupTest() {
	s.BaseSuite.TruncateTables(
		"order_items",
		"orders",
		"product_price_history",
		"products",
		"categories",
		"users",
		"outbox",
		"processed_events",
	)
	s.Require().NoError(s.RedisClient.FlushDB(s.Ctx).Err())

	logger := zap.NewNop()
	s.Metrics = metrics.New(prometheus.NewRegistry())

	gate := repository.NewVersionGate(logger)
	userRepo := repository.NewUserRepository(s.DbPool, logger)
	productRepo := repository.NewProductRepository(s.DbPool, gate, logger)
	historyRepo := repository.NewPriceHistoryRepository(s.DbPool, logger)
	orderRepo := repository.NewOrderRepository(s.DbPool, gate, logger)
	outboxRepo := outbox.NewOutboxRepository(logger)

	s.OrderService = service.NewOrderService(service.OrderDeps{
		Pool:        s.DbPool,
		Logger:      logger,
		Metrics:     s.Metrics,
		UserRepo:    userRepo,
		ProductRepo: productRepo,
		OrderRepo:   orderRepo,
		OutboxRepo:  outboxRepo,
		Ledger:      service.NewInventoryLedger(productRepo, s.Metrics, logger),
	})

	s.ProductCache = service.NewProductCache(s.RedisClient, defaultCacheTTL, s.Metrics, logger)
	s.ProductService = service.NewCachedProductService(
		service.NewProductService(s.DbPool, productRepo, historyRepo, outboxRepo, s.Metrics, logger),
		s.ProductCache,
	)
	s.UserService = service.NewUserService(userRepo, logger)
	s.CategoryService = service.NewCategoryService(repository.NewCategoryRepository(s.DbPool, logger))
	s.AnalyticsService = service.NewAnalyticsService(repository.NewAnalyticsRepository(s.DbPool, logger))

	var err error
	s.TestProducer, err = kafka.NewProducer(s.KafkaBrokers, logger)
	s.Require().NoError(err, "failed to create kafka producer")

	s.OutboxProcessor = worker.NewOutboxProcessor(s.DbPool, outboxRepo, s.TestProducer, logger,
		worker.WithInterval(defaultOutboxInterval))

	workerCtx, cancel := context.WithCancel(s.Ctx)
	s.workerCancel = cancel

	go s.OutboxProcessor.Start(workerCtx)
}

func (s *IntegrationTestSuite) TearDownTest() {
	if s.workerCancel != nil {
		s.workerCancel()
	}
	if s.TestProducer != nil {
		_ = s.TestProducer.Close()
	}
}

func TestIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("integration suite needs docker")
	}

	suite.Run(t, new(IntegrationTestSuite))
}

func (s *IntegrationTestSuite) createUser() *domain.User {
	user, err := s.UserService.Create(s.Ctx, fmt.Sprintf("buyer-%d@example.com", s.seq.Add(1)), "Buyer")
	s.Require().NoError(err)

	return user
}

func (s *IntegrationTestSuite) createCategory() *domain.Category {
	category, err := s.CategoryService.Create(s.Ctx, fmt.Sprintf("category-%d", s.seq.Add(1)))
	s.Require().NoError(err)

	return category
}

func (s *IntegrationTestSuite) createProduct(categoryID int64, price string, stock int64) *domain.Product {
	product, err := s.ProductService.Create(s.Ctx, &domain.CreateProductInput{
		Name:       "Vinyl record",
		SKU:        fmt.Sprintf("SKU-%d", s.seq.Add(1)),
		Price:      decimal.RequireFromString(price),
		Stock:      stock,
		CategoryID: categoryID,
	})
	s.Require().NoError(err)

	return product
}

func (s *IntegrationTestSuite) productState(id int64) (decimal.Decimal, int64, int64) {
	var price decimal.Decimal
	var stock, version int64

	err := s.DbPool.QueryRow(s.Ctx, `SELECT price, stock, version FROM products WHERE id = $1`, id).
		Scan(&price, &stock, &version)
	s.Require().NoError(err)

	return price, stock, version
}

func (s *IntegrationTestSuite) count(query string, args ...any) int64 {
	var n int64
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx, query, args...).Scan(&n))

	return n
}

func (s *IntegrationTestSuite) requireMoney(expected string, actual decimal.Decimal) {
	s.Require().True(
		decimal.RequireFromString(expected).Equal(actual),
		"expected %s, got %s", expected, actual,
	)
}
