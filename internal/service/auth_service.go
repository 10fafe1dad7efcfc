package service

import (
	"context"
	"errors"
	"fmt"

	"matchchat/internal/domain"
	"matchchat/internal/security"
)

// AuthService resolves bearer tokens to users and rotates token pairs.
// Registration and password login live in the account service.
type AuthService struct {
	users  domain.UserRepository
	tokens *security.TokenService
}

func NewAuthService(users domain.UserRepository, tokens *security.TokenService) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
	}
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
}

// Authenticate accepts only a valid, unexpired access token whose subject is
// an existing user. Every refusal wraps ErrAuthenticationFailed.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, fmt.Errorf("missing token: %w", domain.ErrAuthenticationFailed)
	}
	userID, err := s.tokens.ParseAccess(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrAuthenticationFailed, err)
	}
	return s.resolve(ctx, userID)
}

// Refresh exchanges a refresh token for a new access/refresh pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	userID, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrAuthenticationFailed, err)
	}
	if _, err := s.resolve(ctx, userID); err != nil {
		return nil, err
	}
	return s.Issue(userID)
}

// Issue creates a fresh token pair for userID.
func (s *AuthService) Issue(userID string) (*TokenPair, error) {
	access, err := s.tokens.CreateAccess(userID)
	if err != nil {
		return nil, fmt.Errorf("create access token: %w", err)
	}
	refresh, err := s.tokens.CreateRefresh(userID)
	if err != nil {
		return nil, fmt.Errorf("create refresh token: %w", err)
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
	}, nil
}

func (s *AuthService) resolve(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("unknown user %s: %w", userID, domain.ErrAuthenticationFailed)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}
