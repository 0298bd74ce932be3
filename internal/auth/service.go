package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/campuslms/chatcore/internal/store"
)

var (
	// ErrInvalidToken is returned when a token cannot be verified.
	ErrInvalidToken = errors.New("invalid token")
	// ErrUnknownUser is returned when a valid token names a user the store does not know.
	ErrUnknownUser = errors.New("unknown user")
)

// Service resolves identity tokens to user profiles.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
	}
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	claims, err := ValidateToken(s.jwtConfig, tokenString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// Authenticate validates the token and loads the current profile of its user.
// The stored profile wins over the claims so role changes apply on the next connect.
func (s *Service) Authenticate(ctx context.Context, tokenString string) (*store.User, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, fmt.Errorf("load user %d: %w", claims.UserID, err)
	}
	return user, nil
}

// IssueToken mints a token for an existing user.
func (s *Service) IssueToken(ctx context.Context, userID int64) (string, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrUnknownUser
		}
		return "", fmt.Errorf("load user %d: %w", userID, err)
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.Name, string(user.Role))
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}
