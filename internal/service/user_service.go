package service

import (
	"context"
	"strings"

	"github.com/sakashimaa/order-ledger/internal/domain"
	"github.com/sakashimaa/order-ledger/internal/repository"
	"github.com/sakashimaa/order-ledger/pkg/mylogger"
	"go.uber.org/zap"
)

type UserService interface {
	Create(ctx context.Context, email, name string) (*domain.User, error)
	List(ctx context.Context, limit, offset int64) ([]domain.User, error)
	Delete(ctx context.Context, id int64) (*domain.User, error)
}

type userService struct {
	userRepo repository.UserRepository
	logger   *zap.Logger
}

func NewUserService(userRepo repository.UserRepository, logger *zap.Logger) UserService {
	return &userService{
		userRepo: userRepo,
		logger:   logger,
	}
}

func (s *userService) Create(ctx context.Context, email, name string) (*domain.User, error) {
	user, err := s.userRepo.Create(ctx, strings.ToLower(strings.TrimSpace(email)), strings.TrimSpace(name))
	if err != nil {
		return nil, err
	}

	mylogger.Info(ctx, s.logger, "User created", zap.Int64("user_id", user.ID))

	return user, nil
}

func (s *userService) List(ctx context.Context, limit, offset int64) ([]domain.User, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	return s.userRepo.List(ctx, limit, offset)
}

func (s *userService) Delete(ctx context.Context, id int64) (*domain.User, error) {
	return s.userRepo.SoftDelete(ctx, id)
}
