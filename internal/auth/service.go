package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"payout-ledger/internal/database"
)

// Service handles staff login and account bootstrap.
type Service struct {
	repo   *database.Repository
	jwt    *JWTManager
	logger zerolog.Logger
}

// NewService creates an auth service.
func NewService(repo *database.Repository, jwt *JWTManager, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		jwt:    jwt,
		logger: logger.With().Str("component", "auth").Logger(),
	}
}

// Login verifies credentials and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (string, *database.StaffUser, error) {
	user, err := s.repo.GetStaffUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, database.ErrStaffUserNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if !VerifyPassword(password, user.PasswordHash) {
		s.logger.Warn().Str("email", email).Msg("failed login attempt")
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.jwt.GenerateAccessToken(UserClaims{
		UserID:  user.ID,
		Email:   user.Email,
		Role:    user.Role,
		IsAdmin: user.IsAdmin,
	})
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// SeedAdmin creates an admin account when no staff users exist yet, so a
// fresh deployment is reachable. It is a no-op otherwise.
func (s *Service) SeedAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	count, err := s.repo.CountStaffUsers(ctx)
	if err != nil {
		return fmt.Errorf("counting staff users: %w", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	user := &database.StaffUser{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		Role:         "admin",
		IsAdmin:      true,
	}
	if err := s.repo.CreateStaffUser(ctx, user); err != nil {
		return fmt.Errorf("seeding admin user: %w", err)
	}
	s.logger.Info().Str("email", email).Msg("seeded initial admin user")
	return nil
}
