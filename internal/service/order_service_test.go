package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sakashimaa/order-ledger/internal/domain"
	"github.com/sakashimaa/order-ledger/internal/repository"
	"github.com/sakashimaa/order-ledger/internal/service"
	outbox "github.com/sakashimaa/order-ledger/pkg/outbox/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultCacheTTL       = time.Minute
	defaultOutboxInterval = 100 * time.Millisecond
)

func (s *IntegrationTestSuite) TestCreateOrder_Success() {
	user := s.createUser()
	category := s.createCategory()
	product := s.createProduct(category.ID, "100", 10)

	order, err := s.OrderService.CreateOrder(s.Ctx, user.ID, []domain.OrderLine{
		{ProductID: product.ID, Quantity: 2},
	})
	s.Require().NoError(err)
	s.Require().NotZero(order.ID)
	s.Require().Equal(domain.OrderStatusPending, order.Status)
	s.Require().Equal(int64(0), order.Version)
	s.requireMoney("200", order.Total)

	s.Require().Len(order.Items, 1)
	s.Require().Equal(product.ID, order.Items[0].ProductID)
	s.Require().Equal(int64(2), order.Items[0].Quantity)
	s.requireMoney("100", order.Items[0].UnitPrice)

	_, stock, version := s.productState(product.ID)
	s.Require().Equal(int64(8), stock)
	s.Require().Equal(int64(0), version)

	s.Require().Equal(int64(1), s.count(`SELECT COUNT(*) FROM order_items WHERE order_id = $1`, order.ID))
}

func (s *IntegrationTestSuite) TestCreateOrder_MultipleItemsTotal() {
	user := s.createUser()
	category := s.createCategory()
	first := s.createProduct(category.ID, "19.99", 5)
	second := s.createProduct(category.ID, "0.10", 100)

	order, err := s.OrderService.CreateOrder(s.Ctx, user.ID, []domain.OrderLine{
		{ProductID: first.ID, Quantity: 3},
		{ProductID: second.ID, Quantity: 7},
	})
	s.Require().NoError(err)
	s.requireMoney("60.67", order.Total)

	stored, err := s.OrderService.GetOrder(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.requireMoney("60.67", stored.Total)
	s.Require().Len(stored.Items, 2)
}

func (s *IntegrationTestSuite) TestCreateOrder_InsufficientStock() {
	user := s.createUser()
	category := s.createCategory()
	product := s.createProduct(category.ID, "100", 10)

	order, err := s.OrderService.CreateOrder(s.Ctx, user.ID, []domain.OrderLine{
		{ProductID: product.ID, Quantity: 11},
	})
	s.Require().ErrorIs(err, repository.ErrInsufficientStock)
	s.Require().Nil(order)

	_, stock, _ := s.productState(product.ID)
	s.Require().Equal(int64(10), stock)
	s.Require().Zero(s.count(`SELECT COUNT(*) FROM orders`))
	s.Require().Zero(s.count(`SELECT COUNT(*) FROM outbox WHERE event_type = $1`, domain.EventOrderCreated))
}

func (s *IntegrationTestSuite) TestCreateOrder_AtomicWhenLaterItemFails() {
	user := s.createUser()
	category := s.createCategory()
	plenty := s.createProduct(category.ID, "5", 50)
	scarce := s.createProduct(category.ID, "7", 1)

	_, err := s.OrderService.CreateOrder(s.Ctx, user.ID, []domain.OrderLine{
		{ProductID: plenty.ID, Quantity: 10},
		{ProductID: scarce.ID, Quantity: 2},
	})
	s.Require().ErrorIs(err, repository.ErrInsufficientStock)

	_, plentyStock, _ := s.productState(plenty.ID)
	_, scarceStock, _ := s.productState(scarce.ID)
	s.Require().Equal(int64(50), plentyStock)
	s.Require().Equal(int64(1), scarceStock)
	s.Require().Zero(s.count(`SELECT COUNT(*) FROM orders`))
	s.Require().Zero(s.count(`SELECT COUNT(*) FROM order_items`))
}

func (s *IntegrationTestSuite) TestCreateOrder_DeletedProduct() {
	user := s.createUser()
	category := s.createCategory()
	product := s.createProduct(category.ID, "100", 10)

	_, err := s.ProductService.Delete(s.Ctx, product.ID)
	s.Require().NoError(err)

	order, err := s.OrderService.CreateOrder(s.Ctx, user.ID, []domain.OrderLine{
		{ProductID: product.ID, Quantity: 1},
	})
	s.Require().ErrorIs(err, repository.ErrProductNotFound)
	s.Require().Nil(order)
	s.Require().Zero(s.count(`SELECT COUNT(*) FROM orders`))
}

func (s *IntegrationTestSuite) TestCreateOrder_UnknownProduct() {
	user := s.createUser()

	_, err := s.OrderService.CreateOrder(s.Ctx, user.ID, []domain.OrderLine{
		{ProductID: 999_999, Quantity: 1},
	})
	s.Require().ErrorIs(err, repository.ErrProductNotFound)
}

func (s *IntegrationTestSuite) TestCreateOrder_InactiveUser() {
	user := s.createUser()
	category := s.createCategory()
	product := s.createProduct(category.ID, "100", 10)

	_, err := s.UserService.Delete(s.Ctx, user.ID)
	s.Require().NoError(err)

	_, err = s.OrderService.CreateOrder(s.Ctx, user.ID, []domain.OrderLine{
		{ProductID: product.ID, Quantity: 1},
	})
	s.Require().ErrorIs(err, repository.ErrUserNotFound)

	_, err = s.OrderService.CreateOrder(s.Ctx, 424242, []domain.OrderLine{
		{ProductID: product.ID, Quantity: 1},
	})
	s.Require().ErrorIs(err, repository.ErrUserNotFound)

	_, stock, _ := s.productState(product.ID)
	s.Require().Equal(int64(10), stock)
}

func (s *IntegrationTestSuite) TestCreateOrder_InputErrors() {
	user := s.createUser()

	_, err := s.OrderService.CreateOrder(s.Ctx, user.ID, nil)
	s.Require().ErrorIs(err, service.ErrEmptyBasket)

	_, err = s.OrderService.CreateOrder(s.Ctx, user.ID, []domain.OrderLine{{ProductID: 1, Quantity: 0}})
	s.Require().ErrorIs(err, service.ErrInvalidQuantity)

	_, err = s.OrderService.CreateOrder(s.Ctx, user.ID, []domain.OrderLine{
		{ProductID: 1, Quantity: 1},
		{ProductID: 1, Quantity: 1},
	})
	s.Require().ErrorIs(err, service.ErrDuplicateProduct)
}

func (s *IntegrationTestSuite) TestCreateOrder_FrozenUnitPrice() {
	user := s.createUser()
	category := s.createCategory()
	product := s.createProduct(category.ID, "100", 10)

	order, err := s.OrderService.CreateOrder(s.Ctx, user.ID, []domain.OrderLine{
		{ProductID: product.ID, Quantity: 1},
	})
	s.Require().NoError(err)

	_, err = s.ProductService.UpdatePrice(s.Ctx, product.ID, decimal.RequireFromString("250"), 0)
	s.Require().NoError(err)

	stored, err := s.OrderService.GetOrder(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.requireMoney("100", stored.Items[0].UnitPrice)
	s.requireMoney("100", stored.Total)
}

func (s *IntegrationTestSuite) TestCreateOrder_ConcurrentBuyersNeverOversell() {
	category := s.createCategory()
	product := s.createProduct(category.ID, "10", 5)

	const buyers = 12
	users := make([]*domain.User, buyers)
	for i := range users {
		users[i] = s.createUser()
	}

	var wg sync.WaitGroup
	errs := make([]error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.OrderService.CreateOrder(context.Background(), users[i].ID, []domain.OrderLine{
				{ProductID: product.ID, Quantity: 1},
			})
		}(i)
	}
	wg.Wait()

	var ok, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, repository.ErrInsufficientStock):
			rejected++
		default:
			s.Failf("unexpected error", "%v", err)
		}
	}

	s.Require().Equal(5, ok)
	s.Require().Equal(buyers-5, rejected)

	_, stock, _ := s.productState(product.ID)
	s.Require().Zero(stock)
	s.Require().Equal(int64(5), s.count(`SELECT COALESCE(SUM(quantity), 0) FROM order_items WHERE product_id = $1`, product.ID))
	s.Require().Equal(int64(5), s.count(`SELECT COUNT(*) FROM orders`))
	s.Require().Equal(int64(5), s.count(`SELECT COUNT(*) FROM outbox WHERE event_type = $1`, domain.EventOrderCreated))
}

// failingLedger reserves through the real ledger and fails the call number failOn.
type failingLedger struct {
	next   service.InventoryLedger
	failOn int
	calls  int
}

var errLedgerUnavailable = errors.New("ledger unavailable")

func (l *failingLedger) ReserveStock(ctx context.Context, tx pgx.Tx, productID, quantity int64) error {
	l.calls++
	if l.calls == l.failOn {
		return errLedgerUnavailable
	}

	return l.next.ReserveStock(ctx, tx, productID, quantity)
}

func (s *IntegrationTestSuite) TestCreateOrder_RollsBackInsertedRowsWhenReservationFails() {
	user := s.createUser()
	category := s.createCategory()
	first := s.createProduct(category.ID, "5", 50)
	second := s.createProduct(category.ID, "7", 20)

	logger := zap.NewNop()
	gate := repository.NewVersionGate(logger)
	productRepo := repository.NewProductRepository(s.DbPool, gate, logger)
	ledger := &failingLedger{
		next:   service.NewInventoryLedger(productRepo, s.Metrics, logger),
		failOn: 2,
	}

	orders := service.NewOrderService(service.OrderDeps{
		Pool:        s.DbPool,
		Logger:      logger,
		Metrics:     s.Metrics,
		UserRepo:    repository.NewUserRepository(s.DbPool, logger),
		ProductRepo: productRepo,
		OrderRepo:   repository.NewOrderRepository(s.DbPool, gate, logger),
		OutboxRepo:  outbox.NewOutboxRepository(logger),
		Ledger:      ledger,
	})

	order, err := orders.CreateOrder(s.Ctx, user.ID, []domain.OrderLine{
		{ProductID: first.ID, Quantity: 10},
		{ProductID: second.ID, Quantity: 3},
	})
	s.Require().ErrorIs(err, errLedgerUnavailable)
	s.Require().Nil(order)
	s.Require().Equal(2, ledger.calls)

	_, firstStock, _ := s.productState(first.ID)
	_, secondStock, _ := s.productState(second.ID)
	s.Require().Equal(int64(50), firstStock)
	s.Require().Equal(int64(20), secondStock)

	s.Require().Zero(s.count(`SELECT COUNT(*) FROM orders`))
	s.Require().Zero(s.count(`SELECT COUNT(*) FROM order_items`))
	s.Require().Zero(s.count(`SELECT COUNT(*) FROM outbox WHERE event_type = $1`, domain.EventOrderCreated))
}

func (s *IntegrationTestSuite) TestCreateOrder_TotalAboveColumnRange() {
	user := s.createUser()
	category := s.createCategory()
	product := s.createProduct(category.ID, domain.MaxPrice.String(), 200)

	_, err := s.OrderService.CreateOrder(s.Ctx, user.ID, []domain.OrderLine{
		{ProductID: product.ID, Quantity: 101},
	})
	s.Require().ErrorIs(err, service.ErrTotalTooLarge)

	_, stock, _ := s.productState(product.ID)
	s.Require().Equal(int64(200), stock)
	s.Require().Zero(s.count(`SELECT COUNT(*) FROM orders`))
}

func (s *IntegrationTestSuite) TestUpdateStatus_Success() {
	order := s.placeOrder()

	updated, err := s.OrderService.UpdateStatus(s.Ctx, order.ID, domain.OrderStatusPaid, 0)
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusPaid, updated.Status)
	s.Require().Equal(int64(1), updated.Version)
	s.Require().Len(updated.Items, 1)
	s.requireMoney(order.Total.String(), updated.Total)

	updated, err = s.OrderService.UpdateStatus(s.Ctx, order.ID, domain.OrderStatusShipped, 1)
	s.Require().NoError(err)
	s.Require().Equal(int64(2), updated.Version)
}

func (s *IntegrationTestSuite) TestUpdateStatus_AnyTransitionAllowed() {
	order := s.placeOrder()

	_, err := s.OrderService.UpdateStatus(s.Ctx, order.ID, domain.OrderStatusCompleted, 0)
	s.Require().NoError(err)

	back, err := s.OrderService.UpdateStatus(s.Ctx, order.ID, domain.OrderStatusPending, 1)
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusPending, back.Status)
}

func (s *IntegrationTestSuite) TestUpdateStatus_StaleVersion() {
	order := s.placeOrder()

	_, err := s.OrderService.UpdateStatus(s.Ctx, order.ID, domain.OrderStatusPaid, 0)
	s.Require().NoError(err)

	_, err = s.OrderService.UpdateStatus(s.Ctx, order.ID, domain.OrderStatusCanceled, 0)
	s.Require().ErrorIs(err, repository.ErrVersionConflict)

	stored, err := s.OrderService.GetOrder(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusPaid, stored.Status)
	s.Require().Equal(int64(1), stored.Version)
}

func (s *IntegrationTestSuite) TestUpdateStatus_UnknownOrderIsConflict() {
	_, err := s.OrderService.UpdateStatus(s.Ctx, 777_777, domain.OrderStatusPaid, 0)
	s.Require().ErrorIs(err, repository.ErrVersionConflict)
}

func (s *IntegrationTestSuite) TestUpdateStatus_InputErrors() {
	_, err := s.OrderService.UpdateStatus(s.Ctx, 1, domain.OrderStatus("REFUNDED"), 0)
	s.Require().ErrorIs(err, service.ErrInvalidStatus)

	_, err = s.OrderService.UpdateStatus(s.Ctx, 1, domain.OrderStatusPaid, -1)
	s.Require().ErrorIs(err, service.ErrInvalidVersion)
}

func (s *IntegrationTestSuite) TestUpdateStatus_ConcurrentRace() {
	order := s.placeOrder()

	targets := []domain.OrderStatus{domain.OrderStatusPaid, domain.OrderStatusCanceled}
	results := make([]*domain.Order, len(targets))
	errs := make([]error, len(targets))

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i, status := range targets {
		wg.Add(1)
		go func(i int, status domain.OrderStatus) {
			defer wg.Done()
			<-start
			results[i], errs[i] = s.OrderService.UpdateStatus(context.Background(), order.ID, status, 0)
		}(i, status)
	}
	close(start)
	wg.Wait()

	var winner *domain.Order
	var conflicts int
	for i := range targets {
		if errs[i] == nil {
			winner = results[i]
			continue
		}

		s.Require().ErrorIs(errs[i], repository.ErrVersionConflict)
		conflicts++
	}

	s.Require().NotNil(winner)
	s.Require().Equal(1, conflicts)

	stored, err := s.OrderService.GetOrder(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Equal(int64(1), stored.Version)
	s.Require().Equal(winner.Status, stored.Status)
}

func (s *IntegrationTestSuite) TestListOrdersByUser() {
	user := s.createUser()
	category := s.createCategory()
	product := s.createProduct(category.ID, "3.50", 10)

	for i := 0; i < 3; i++ {
		_, err := s.OrderService.CreateOrder(s.Ctx, user.ID, []domain.OrderLine{
			{ProductID: product.ID, Quantity: int64(i + 1)},
		})
		s.Require().NoError(err)
	}

	orders, err := s.OrderService.ListOrdersByUser(s.Ctx, user.ID)
	s.Require().NoError(err)
	s.Require().Len(orders, 3)
	s.Require().Greater(orders[0].ID, orders[2].ID)

	for _, o := range orders {
		s.Require().Len(o.Items, 1)
		s.requireMoney(o.Items[0].Subtotal().String(), o.Total)
	}

	empty, err := s.OrderService.ListOrdersByUser(s.Ctx, 123456)
	s.Require().NoError(err)
	s.Require().Empty(empty)
}

func (s *IntegrationTestSuite) TestCreateOrder_OutboxPublished() {
	order := s.placeOrder()

	query := `
		SELECT published_at IS NOT NULL
		FROM outbox
		WHERE aggregate_id = $1 AND event_type = $2
	`

	s.Require().Eventually(func() bool {
		var published bool
		err := s.DbPool.QueryRow(s.Ctx, query, fmt.Sprintf("%d", order.ID), domain.EventOrderCreated).
			Scan(&published)

		return err == nil && published
	}, 10*time.Second, 100*time.Millisecond)
}

func (s *IntegrationTestSuite) placeOrder() *domain.Order {
	user := s.createUser()
	category := s.createCategory()
	product := s.createProduct(category.ID, "100", 10)

	order, err := s.OrderService.CreateOrder(s.Ctx, user.ID, []domain.OrderLine{
		{ProductID: product.ID, Quantity: 1},
	})
	s.Require().NoError(err)

	return order
}
