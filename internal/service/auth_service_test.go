package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"rtchat/internal/domain"
	"rtchat/internal/security"
	"rtchat/internal/service"
)

type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) Create(ctx context.Context, u *domain.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *MockUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) ListActive(ctx context.Context, offset, limit int) ([]*domain.User, error) {
	return nil, nil // not used in auth tests
}

func (m *MockUserRepo) ListOnline(ctx context.Context) ([]*domain.User, error) {
	return nil, nil
}

func (m *MockUserRepo) SetOnlineStatus(ctx context.Context, userID string, isOnline bool) error {
	args := m.Called(ctx, userID, isOnline)
	return args.Error(0)
}

func (m *MockUserRepo) Block(ctx context.Context, userID, blockedID string) error {
	args := m.Called(ctx, userID, blockedID)
	return args.Error(0)
}

func (m *MockUserRepo) Unblock(ctx context.Context, userID, blockedID string) error {
	args := m.Called(ctx, userID, blockedID)
	return args.Error(0)
}

func newAuthService(repo *MockUserRepo) *service.AuthService {
	tokenSvc := security.NewTokenService("secret", time.Hour)
	hasher := security.NewPasswordHasher(4) // low cost for tests
	return service.NewAuthService(repo, tokenSvc, hasher)
}

func TestRegister(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockRepo := new(MockUserRepo)
		svc := newAuthService(mockRepo)

		mockRepo.On("GetByUsername", mock.Anything, "newuser").Return(nil, nil)
		mockRepo.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
			return u.Username == "newuser" && u.ID != "" && u.HashedPassword != ""
		})).Return(nil)

		user, err := svc.Register(context.Background(), service.RegisterInput{
			Username: "newuser",
			Password: "Password1!",
		})
		assert.NoError(t, err)
		assert.NotNil(t, user)
		assert.Equal(t, "newuser", user.Username)
		assert.Equal(t, "newuser", user.Nickname) // defaults to username
		mockRepo.AssertExpectations(t)
	})

	t.Run("UsernameTaken", func(t *testing.T) {
		mockRepo := new(MockUserRepo)
		svc := newAuthService(mockRepo)

		existing := &domain.User{ID: "u1", Username: "existing"}
		mockRepo.On("GetByUsername", mock.Anything, "existing").Return(existing, nil)

		user, err := svc.Register(context.Background(), service.RegisterInput{
			Username: "existing",
			Password: "Password1!",
		})
		assert.Nil(t, user)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("MissingFields", func(t *testing.T) {
		mockRepo := new(MockUserRepo)
		svc := newAuthService(mockRepo)

		user, err := svc.Register(context.Background(), service.RegisterInput{Username: "nopassword"})
		assert.Nil(t, user)
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	})
}

func TestLogin(t *testing.T) {
	hasher := security.NewPasswordHasher(4)
	hashed, _ := hasher.Hash("Password1!")

	t.Run("Success", func(t *testing.T) {
		mockRepo := new(MockUserRepo)
		svc := newAuthService(mockRepo)

		user := &domain.User{ID: "u1", Username: "alice", HashedPassword: hashed}
		mockRepo.On("GetByUsername", mock.Anything, "alice").Return(user, nil)

		resp, err := svc.Login(context.Background(), service.LoginInput{
			Username: "alice",
			Password: "Password1!",
		})
		assert.NoError(t, err)
		assert.NotEmpty(t, resp.AccessToken)
		assert.Equal(t, "bearer", resp.TokenType)
		assert.Equal(t, user, resp.User)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		mockRepo := new(MockUserRepo)
		svc := newAuthService(mockRepo)

		user := &domain.User{ID: "u1", Username: "alice", HashedPassword: hashed}
		mockRepo.On("GetByUsername", mock.Anything, "alice").Return(user, nil)

		resp, err := svc.Login(context.Background(), service.LoginInput{
			Username: "alice",
			Password: "wrong",
		})
		assert.Nil(t, resp)
		assert.ErrorIs(t, err, domain.ErrInvalidCredential)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		mockRepo := new(MockUserRepo)
		svc := newAuthService(mockRepo)

		mockRepo.On("GetByUsername", mock.Anything, "ghost").Return(nil, nil)

		resp, err := svc.Login(context.Background(), service.LoginInput{
			Username: "ghost",
			Password: "whatever",
		})
		assert.Nil(t, resp)
		assert.ErrorIs(t, err, domain.ErrInvalidCredential)
	})

	t.Run("Suspended", func(t *testing.T) {
		mockRepo := new(MockUserRepo)
		svc := newAuthService(mockRepo)

		user := &domain.User{ID: "u1", Username: "alice", HashedPassword: hashed, Suspended: true}
		mockRepo.On("GetByUsername", mock.Anything, "alice").Return(user, nil)

		resp, err := svc.Login(context.Background(), service.LoginInput{
			Username: "alice",
			Password: "Password1!",
		})
		assert.Nil(t, resp)
		assert.ErrorIs(t, err, domain.ErrAccountSuspended)
	})
}
