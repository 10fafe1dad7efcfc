package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"matchchat/internal/domain"
	"matchchat/internal/security"
	"matchchat/internal/service"
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

func (m *MockUserRepo) SetOnlineStatus(ctx context.Context, id string, isOnline bool, lastSeen time.Time) error {
	args := m.Called(ctx, id, isOnline, lastSeen)
	return args.Error(0)
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	tokens := security.NewTokenService("test_secret", time.Minute, time.Hour)

	t.Run("Success", func(t *testing.T) {
		repo := new(MockUserRepo)
		svc := service.NewAuthService(repo, tokens)
		repo.On("GetByID", ctx, "u1").Return(&domain.User{ID: "u1", Name: "Alice"}, nil)

		tok, err := tokens.CreateAccess("u1")
		require.NoError(t, err)
		user, err := svc.Authenticate(ctx, tok)
		require.NoError(t, err)
		assert.Equal(t, "u1", user.ID)
		repo.AssertExpectations(t)
	})

	t.Run("RefreshTokenRejected", func(t *testing.T) {
		repo := new(MockUserRepo)
		svc := service.NewAuthService(repo, tokens)

		tok, err := tokens.CreateRefresh("u1")
		require.NoError(t, err)
		_, err = svc.Authenticate(ctx, tok)
		assert.ErrorIs(t, err, domain.ErrAuthenticationFailed)
		assert.ErrorIs(t, err, security.ErrWrongPurpose)
		repo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		repo := new(MockUserRepo)
		svc := service.NewAuthService(repo, tokens)
		repo.On("GetByID", ctx, "ghost").Return(nil, domain.ErrNotFound)

		tok, err := tokens.CreateAccess("ghost")
		require.NoError(t, err)
		_, err = svc.Authenticate(ctx, tok)
		assert.ErrorIs(t, err, domain.ErrAuthenticationFailed)
	})

	t.Run("StoreErrorIsNotAuthFailure", func(t *testing.T) {
		repo := new(MockUserRepo)
		svc := service.NewAuthService(repo, tokens)
		repo.On("GetByID", ctx, "u1").Return(nil, errors.New("db down"))

		tok, err := tokens.CreateAccess("u1")
		require.NoError(t, err)
		_, err = svc.Authenticate(ctx, tok)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrAuthenticationFailed)
	})

	t.Run("MissingToken", func(t *testing.T) {
		svc := service.NewAuthService(new(MockUserRepo), tokens)
		_, err := svc.Authenticate(ctx, "")
		assert.ErrorIs(t, err, domain.ErrAuthenticationFailed)
	})
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	tokens := security.NewTokenService("test_secret", time.Minute, time.Hour)
	repo := new(MockUserRepo)
	svc := service.NewAuthService(repo, tokens)
	repo.On("GetByID", ctx, "u1").Return(&domain.User{ID: "u1"}, nil)

	pair, err := svc.Issue("u1")
	require.NoError(t, err)

	next, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "bearer", next.TokenType)
	sub, err := tokens.ParseAccess(next.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", sub)

	_, err = svc.Refresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, domain.ErrAuthenticationFailed)
}
