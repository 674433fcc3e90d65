package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/empowerfin/auth-service/internal/domain"
	"github.com/empowerfin/auth-service/internal/repository"
	apperrors "github.com/empowerfin/auth-service/pkg/util/errorutil"
)

const maxNameLength = 100

// UserService manages account records outside the credential flows.
type UserService struct {
	users  repository.UserRepository
	logger *zap.Logger
}

// NewUserService creates the service.
func NewUserService(users repository.UserRepository, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{users: users, logger: logger}
}

// Profile returns the account for id.
func (s *UserService) Profile(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, mapUserErr(err)
	}
	return user, nil
}

// UpdateProfile changes the display name.
func (s *UserService) UpdateProfile(ctx context.Context, id, name string) (*domain.User, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength {
		return nil, apperrors.NewValidationError("name must be between 1 and 100 characters", nil)
	}
	user, err := s.users.UpdateProfile(ctx, id, name)
	if err != nil {
		return nil, mapUserErr(err)
	}
	return user, nil
}

// DeleteAccount removes targetID. Admin accounts cannot be deleted.
func (s *UserService) DeleteAccount(ctx context.Context, actor *domain.User, targetID string) error {
	if actor == nil || actor.Role != domain.RoleAdmin {
		return apperrors.NewForbidden("access denied: insufficient role")
	}
	if _, err := uuid.Parse(targetID); err != nil {
		return apperrors.NewValidationError("invalid user id", nil)
	}

	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		return mapUserErr(err)
	}
	if target.Role == domain.RoleAdmin {
		return apperrors.NewValidationError("cannot delete admin accounts", nil)
	}

	if err := s.users.Delete(ctx, target.ID); err != nil {
		return mapUserErr(err)
	}
	s.logger.Info("user deleted", zap.String("user_id", target.ID), zap.String("actor_id", actor.ID))
	return nil
}

// Stats returns account counts.
func (s *UserService) Stats(ctx context.Context) (*domain.UserStats, error) {
	stats, err := s.users.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("user stats: %w", err)
	}
	return stats, nil
}

// Roles lists the roles accepted at registration.
func (s *UserService) Roles() []domain.Role {
	return domain.AllowedRoles()
}

func mapUserErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound("user", nil)
	}
	return err
}
