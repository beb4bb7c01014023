package service

import (
	"context"
	"strings"

	"github.com/sakashimaa/order-ledger/internal/domain"
	"github.com/sakashimaa/order-ledger/internal/repository"
)

const TopProductsPerCategory = 3

type CategoryService interface {
	Create(ctx context.Context, name string) (*domain.Category, error)
}

type categoryService struct {
	categoryRepo repository.CategoryRepository
}

func NewCategoryService(categoryRepo repository.CategoryRepository) CategoryService {
	return &categoryService{categoryRepo: categoryRepo}
}

func (s *categoryService) Create(ctx context.Context, name string) (*domain.Category, error) {
	return s.categoryRepo.Create(ctx, strings.TrimSpace(name))
}

// AnalyticsService serves read-only reports over committed data.
type AnalyticsService interface {
	TopProductsByCategory(ctx context.Context) ([]domain.TopProduct, error)
	CustomerLTV(ctx context.Context) ([]domain.CustomerLTV, error)
}

type analyticsService struct {
	analyticsRepo repository.AnalyticsRepository
}

func NewAnalyticsService(analyticsRepo repository.AnalyticsRepository) AnalyticsService {
	return &analyticsService{analyticsRepo: analyticsRepo}
}

func (s *analyticsService) TopProductsByCategory(ctx context.Context) ([]domain.TopProduct, error) {
	return s.analyticsRepo.TopProductsByCategory(ctx, TopProductsPerCategory)
}

func (s *analyticsService) CustomerLTV(ctx context.Context) ([]domain.CustomerLTV, error) {
	return s.analyticsRepo.CustomerLTV(ctx)
}
