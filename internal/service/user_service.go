package service

import (
	"context"

	"rtchat/internal/domain"
)

// UserService provides user directory and block-list operations.
type UserService struct {
	users domain.UserRepository
}

func NewUserService(users domain.UserRepository) *UserService {
	return &UserService{users: users}
}

func (s *UserService) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *UserService) ListActive(ctx context.Context, offset, limit int) ([]*domain.User, error) {
	return s.users.ListActive(ctx, offset, limit)
}

func (s *UserService) ListOnline(ctx context.Context) ([]*domain.User, error) {
	return s.users.ListOnline(ctx)
}

func (s *UserService) Block(ctx context.Context, userID, blockedID string) error {
	if userID == blockedID {
		return domain.ErrInvalidRequest
	}
	target, err := s.users.GetByID(ctx, blockedID)
	if err != nil {
		return err
	}
	if target == nil {
		return domain.ErrNotFound
	}
	return s.users.Block(ctx, userID, blockedID)
}

func (s *UserService) Unblock(ctx context.Context, userID, blockedID string) error {
	return s.users.Unblock(ctx, userID, blockedID)
}
