package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"rtchat/internal/domain"
	"rtchat/internal/security"
)

// AuthService handles registration, login, and logout.
type AuthService struct {
	users  domain.UserRepository
	tokens *security.TokenService
	hash   *security.PasswordHasher
}

func NewAuthService(users domain.UserRepository, tokens *security.TokenService, hash *security.PasswordHasher) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		hash:   hash,
	}
}

type RegisterInput struct {
	Username string
	Nickname string
	Password string
}

type LoginInput struct {
	Username string
	Password string
}

type TokenResponse struct {
	AccessToken string
	TokenType   string
	User        *domain.User
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" || in.Password == "" {
		return nil, domain.ErrInvalidRequest
	}
	if in.Nickname == "" {
		in.Nickname = in.Username
	}

	existing, err := s.users.GetByUsername(ctx, in.Username)
	if err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrConflict
	}

	hashed, err := s.hash.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		ID:             uuid.NewString(),
		Username:       in.Username,
		Nickname:       in.Nickname,
		HashedPassword: hashed,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, in LoginInput) (*TokenResponse, error) {
	user, err := s.users.GetByUsername(ctx, in.Username)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrInvalidCredential
	}
	if user.Suspended {
		return nil, domain.ErrAccountSuspended
	}
	if err := s.hash.Verify(in.Password, user.HashedPassword); err != nil {
		return nil, domain.ErrInvalidCredential
	}

	token, err := s.tokens.CreateForUser(user.ID)
	if err != nil {
		return nil, fmt.Errorf("create token: %w", err)
	}

	return &TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        user,
	}, nil
}

func (s *AuthService) Logout(ctx context.Context, userID string) error {
	return s.users.SetOnlineStatus(ctx, userID, false)
}
