package service_test

import (
	"context"
	"sync"

	"github.com/sakashimaa/order-ledger/internal/domain"
	"github.com/sakashimaa/order-ledger/internal/repository"
	"github.com/sakashimaa/order-ledger/internal/service"
	"github.com/shopspring/decimal"
)

func (s *IntegrationTestSuite) TestCreateProduct_RecordsInitialHistory() {
	category := s.createCategory()
	product := s.createProduct(category.ID, "12.345", 3)

	s.requireMoney("12.35", product.Price)
	s.Require().Equal(int64(0), product.Version)

	history, err := s.ProductService.PriceHistory(s.Ctx, product.ID)
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.requireMoney("12.35", history[0].OldPrice)
	s.requireMoney("12.35", history[0].NewPrice)
}

func (s *IntegrationTestSuite) TestCreateProduct_Rejections() {
	category := s.createCategory()
	existing := s.createProduct(category.ID, "10", 1)

	_, err := s.ProductService.Create(s.Ctx, &domain.CreateProductInput{
		Name:       "Duplicate",
		SKU:        existing.SKU,
		Price:      decimal.RequireFromString("10"),
		CategoryID: category.ID,
	})
	s.Require().ErrorIs(err, repository.ErrSKUAlreadyExists)

	_, err = s.ProductService.Create(s.Ctx, &domain.CreateProductInput{
		Name:       "Orphan",
		SKU:        "SKU-ORPHAN",
		Price:      decimal.RequireFromString("10"),
		CategoryID: 987_654,
	})
	s.Require().ErrorIs(err, repository.ErrCategoryNotFound)

	_, err = s.ProductService.Create(s.Ctx, &domain.CreateProductInput{
		Name:       "Free",
		SKU:        "SKU-FREE",
		Price:      decimal.RequireFromString("0.004"),
		CategoryID: category.ID,
	})
	s.Require().ErrorIs(err, service.ErrInvalidPrice)

	_, err = s.ProductService.Create(s.Ctx, &domain.CreateProductInput{
		Name:       "Negative",
		SKU:        "SKU-NEG",
		Price:      decimal.RequireFromString("1"),
		Stock:      -1,
		CategoryID: category.ID,
	})
	s.Require().ErrorIs(err, service.ErrInvalidStock)

	s.Require().Equal(int64(1), s.count(`SELECT COUNT(*) FROM products`))
}

func (s *IntegrationTestSuite) TestUpdatePrice_Success() {
	category := s.createCategory()
	product := s.createProduct(category.ID, "100", 5)

	updated, err := s.ProductService.UpdatePrice(s.Ctx, product.ID, decimal.RequireFromString("120"), 0)
	s.Require().NoError(err)
	s.requireMoney("120", updated.Price)
	s.Require().Equal(int64(1), updated.Version)

	history, err := s.ProductService.PriceHistory(s.Ctx, product.ID)
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.requireMoney("100", history[1].OldPrice)
	s.requireMoney("120", history[1].NewPrice)

	s.Require().Equal(int64(1), s.count(
		`SELECT COUNT(*) FROM outbox WHERE event_type = $1`, domain.EventProductPriceChanged))
}

func (s *IntegrationTestSuite) TestUpdatePrice_StaleVersion() {
	category := s.createCategory()
	product := s.createProduct(category.ID, "100", 5)

	_, err := s.ProductService.UpdatePrice(s.Ctx, product.ID, decimal.RequireFromString("120"), 0)
	s.Require().NoError(err)

	_, err = s.ProductService.UpdatePrice(s.Ctx, product.ID, decimal.RequireFromString("130"), 0)
	s.Require().ErrorIs(err, repository.ErrVersionConflict)

	price, _, version := s.productState(product.ID)
	s.requireMoney("120", price)
	s.Require().Equal(int64(1), version)
	s.Require().Equal(int64(2), s.count(
		`SELECT COUNT(*) FROM product_price_history WHERE product_id = $1`, product.ID))
}

func (s *IntegrationTestSuite) TestUpdatePrice_ConcurrentWritersOneWins() {
	category := s.createCategory()
	product := s.createProduct(category.ID, "100", 5)

	prices := []string{"110", "90", "150", "75"}
	errs := make([]error, len(prices))

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i, p := range prices {
		wg.Add(1)
		go func(i int, p string) {
			defer wg.Done()
			<-start
			_, errs[i] = s.ProductService.UpdatePrice(context.Background(), product.ID, decimal.RequireFromString(p), 0)
		}(i, p)
	}
	close(start)
	wg.Wait()

	winner := -1
	for i, err := range errs {
		if err == nil {
			s.Require().Equal(-1, winner, "more than one writer succeeded")
			winner = i
			continue
		}

		s.Require().ErrorIs(err, repository.ErrVersionConflict)
	}
	s.Require().NotEqual(-1, winner)

	price, _, version := s.productState(product.ID)
	s.requireMoney(prices[winner], price)
	s.Require().Equal(int64(1), version)

	history, err := s.ProductService.PriceHistory(s.Ctx, product.ID)
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.requireMoney("100", history[1].OldPrice)
	s.requireMoney(prices[winner], history[1].NewPrice)
}

func (s *IntegrationTestSuite) TestUpdatePrice_StockChangesDoNotBumpVersion() {
	user := s.createUser()
	category := s.createCategory()
	product := s.createProduct(category.ID, "100", 5)

	_, err := s.OrderService.CreateOrder(s.Ctx, user.ID, []domain.OrderLine{
		{ProductID: product.ID, Quantity: 2},
	})
	s.Require().NoError(err)

	updated, err := s.ProductService.UpdatePrice(s.Ctx, product.ID, decimal.RequireFromString("80"), 0)
	s.Require().NoError(err)
	s.Require().Equal(int64(3), updated.Stock)
}

func (s *IntegrationTestSuite) TestUpdatePrice_Rejections() {
	category := s.createCategory()
	product := s.createProduct(category.ID, "100", 5)

	_, err := s.ProductService.UpdatePrice(s.Ctx, product.ID, decimal.Zero, 0)
	s.Require().ErrorIs(err, service.ErrInvalidPrice)

	_, err = s.ProductService.UpdatePrice(s.Ctx, product.ID, decimal.RequireFromString("1"), -1)
	s.Require().ErrorIs(err, service.ErrInvalidVersion)

	_, err = s.ProductService.UpdatePrice(s.Ctx, 555_555, decimal.RequireFromString("1"), 0)
	s.Require().ErrorIs(err, repository.ErrProductNotFound)

	deleted, err := s.ProductService.Delete(s.Ctx, product.ID)
	s.Require().NoError(err)

	_, err = s.ProductService.UpdatePrice(s.Ctx, product.ID, decimal.RequireFromString("1"), deleted.Version)
	s.Require().ErrorIs(err, service.ErrProductDeleted)

	s.Require().Equal(int64(1), s.count(
		`SELECT COUNT(*) FROM product_price_history WHERE product_id = $1`, product.ID))
}

func (s *IntegrationTestSuite) TestDeleteProduct() {
	category := s.createCategory()
	product := s.createProduct(category.ID, "100", 5)

	deleted, err := s.ProductService.Delete(s.Ctx, product.ID)
	s.Require().NoError(err)
	s.Require().True(deleted.IsDeleted())
	s.Require().Equal(product.Version+1, deleted.Version)

	_, err = s.ProductService.Delete(s.Ctx, product.ID)
	s.Require().ErrorIs(err, service.ErrProductDeleted)

	_, err = s.ProductService.FindByID(s.Ctx, product.ID)
	s.Require().ErrorIs(err, repository.ErrProductNotFound)

	list, err := s.ProductService.List(s.Ctx, nil, 0, 0)
	s.Require().NoError(err)
	s.Require().Empty(list)
}

func (s *IntegrationTestSuite) TestFindByID_CachedAndInvalidatedOnPriceChange() {
	category := s.createCategory()
	product := s.createProduct(category.ID, "100", 5)

	_, ok := s.ProductCache.Get(s.Ctx, product.ID)
	s.Require().False(ok)

	found, err := s.ProductService.FindByID(s.Ctx, product.ID)
	s.Require().NoError(err)
	s.requireMoney("100", found.Price)

	cached, ok := s.ProductCache.Get(s.Ctx, product.ID)
	s.Require().True(ok)
	s.requireMoney("100", cached.Price)

	_, err = s.ProductService.UpdatePrice(s.Ctx, product.ID, decimal.RequireFromString("140"), 0)
	s.Require().NoError(err)

	_, ok = s.ProductCache.Get(s.Ctx, product.ID)
	s.Require().False(ok)

	found, err = s.ProductService.FindByID(s.Ctx, product.ID)
	s.Require().NoError(err)
	s.requireMoney("140", found.Price)
	s.Require().Equal(int64(1), found.Version)
}

func (s *IntegrationTestSuite) TestProductCache_LateWriteOfOlderReadIsDropped() {
	category := s.createCategory()
	product := s.createProduct(category.ID, "100", 5)

	// a reader missed the cache and loaded version 0 before the price change
	staleRead := *product

	updated, err := s.ProductService.UpdatePrice(s.Ctx, product.ID, decimal.RequireFromString("140"), 0)
	s.Require().NoError(err)

	s.ProductCache.Set(s.Ctx, &staleRead)

	_, ok := s.ProductCache.Get(s.Ctx, product.ID)
	s.Require().False(ok)

	found, err := s.ProductService.FindByID(s.Ctx, product.ID)
	s.Require().NoError(err)
	s.Require().Equal(updated.Version, found.Version)

	s.ProductCache.Set(s.Ctx, &staleRead)

	cached, ok := s.ProductCache.Get(s.Ctx, product.ID)
	s.Require().True(ok)
	s.Require().Equal(updated.Version, cached.Version)
	s.requireMoney("140", cached.Price)
}

func (s *IntegrationTestSuite) TestListAndSearchProducts() {
	first := s.createCategory()
	second := s.createCategory()

	cheap := s.createProduct(first.ID, "5", 1)
	pricey := s.createProduct(first.ID, "50", 1)
	other := s.createProduct(second.ID, "25", 1)

	all, err := s.ProductService.List(s.Ctx, nil, 0, 0)
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Require().Equal([]int64{pricey.ID, other.ID, cheap.ID}, []int64{all[0].ID, all[1].ID, all[2].ID})

	filtered, err := s.ProductService.List(s.Ctx, &first.ID, 1, 1)
	s.Require().NoError(err)
	s.Require().Len(filtered, 1)
	s.Require().Equal(cheap.ID, filtered[0].ID)

	found, err := s.ProductService.Search(s.Ctx, "  "+other.SKU+" ")
	s.Require().NoError(err)
	s.Require().Len(found, 1)
	s.Require().Equal(other.ID, found[0].ID)

	none, err := s.ProductService.Search(s.Ctx, "100%_")
	s.Require().NoError(err)
	s.Require().Empty(none)
}

func (s *IntegrationTestSuite) TestAnalytics() {
	category := s.createCategory()
	buyer := s.createUser()
	idle := s.createUser()

	best := s.createProduct(category.ID, "30", 10)
	runnerUp := s.createProduct(category.ID, "10", 10)

	completed, err := s.OrderService.CreateOrder(s.Ctx, buyer.ID, []domain.OrderLine{
		{ProductID: best.ID, Quantity: 2},
		{ProductID: runnerUp.ID, Quantity: 1},
	})
	s.Require().NoError(err)
	_, err = s.OrderService.UpdateStatus(s.Ctx, completed.ID, domain.OrderStatusCompleted, 0)
	s.Require().NoError(err)

	pending, err := s.OrderService.CreateOrder(s.Ctx, buyer.ID, []domain.OrderLine{
		{ProductID: runnerUp.ID, Quantity: 5},
	})
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusPending, pending.Status)

	top, err := s.AnalyticsService.TopProductsByCategory(s.Ctx)
	s.Require().NoError(err)
	s.Require().Len(top, 2)
	s.Require().Equal(best.ID, top[0].ProductID)
	s.Require().Equal(int64(1), top[0].Rank)
	s.requireMoney("60", top[0].Revenue)
	s.Require().Equal(runnerUp.ID, top[1].ProductID)
	s.requireMoney("10", top[1].Revenue)

	ltv, err := s.AnalyticsService.CustomerLTV(s.Ctx)
	s.Require().NoError(err)
	s.Require().Len(ltv, 2)
	s.Require().Equal(buyer.ID, ltv[0].UserID)
	s.Require().Equal(int64(1), ltv[0].OrdersCount)
	s.requireMoney("70", ltv[0].LifetimeValue)
	s.Require().Equal(idle.ID, ltv[1].UserID)
	s.requireMoney("0", ltv[1].LifetimeValue)
}
