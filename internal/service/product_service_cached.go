package service

import (
	"context"

	"github.com/sakashimaa/order-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

type cachedProductService struct {
	next  ProductService
	cache *ProductCache
}

func NewCachedProductService(next ProductService, cache *ProductCache) ProductService {
	return &cachedProductService{
		next:  next,
		cache: cache,
	}
}

func (s *cachedProductService) Create(ctx context.Context, input *domain.CreateProductInput) (*domain.Product, error) {
	return s.next.Create(ctx, input)
}

func (s *cachedProductService) UpdatePrice(
	ctx context.Context,
	productID int64,
	newPrice decimal.Decimal,
	expectedVersion int64,
) (*domain.Product, error) {
	product, err := s.next.UpdatePrice(ctx, productID, newPrice, expectedVersion)
	if err != nil {
		return nil, err
	}

	s.cache.Evict(ctx, productID, product.Version)
	return product, nil
}

func (s *cachedProductService) Delete(ctx context.Context, productID int64) (*domain.Product, error) {
	product, err := s.next.Delete(ctx, productID)
	if err != nil {
		return nil, err
	}

	s.cache.Evict(ctx, productID, product.Version)
	return product, nil
}

func (s *cachedProductService) FindByID(ctx context.Context, productID int64) (*domain.Product, error) {
	if product, ok := s.cache.Get(ctx, productID); ok {
		return product, nil
	}

	product, err := s.next.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	s.cache.Set(ctx, product)
	return product, nil
}

func (s *cachedProductService) List(ctx context.Context, categoryID *int64, limit, offset int64) ([]domain.Product, error) {
	return s.next.List(ctx, categoryID, limit, offset)
}

func (s *cachedProductService) Search(ctx context.Context, q string) ([]domain.Product, error) {
	return s.next.Search(ctx, q)
}

func (s *cachedProductService) PriceHistory(ctx context.Context, productID int64) ([]domain.PriceHistory, error) {
	return s.next.PriceHistory(ctx, productID)
}
