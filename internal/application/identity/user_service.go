package identity

import (
	"context"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// UserService handles admin operations on registered users
type UserService struct {
	users  principal.UserRepository
	logger *zap.Logger
}

// NewUserService creates a new user service
func NewUserService(users principal.UserRepository, logger *zap.Logger) *UserService {
	return &UserService{users: users, logger: logger.Named("users")}
}

// GetByID returns a user
func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*UserInfo, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, s.wrap(err, "Failed to load user")
	}
	info := ToUserInfo(user)
	return &info, nil
}

// List returns a page of users
func (s *UserService) List(ctx context.Context, filter shared.Filter) (*UserListResult, error) {
	filter = filter.Normalize()
	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, s.wrap(err, "Failed to list users")
	}
	page := shared.NewPaginated(users, total, filter.Page, filter.PageSize)
	out := &UserListResult{
		Users:      make([]UserInfo, len(users)),
		Total:      page.Total,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: page.TotalPages,
	}
	for i := range users {
		out.Users[i] = ToUserInfo(&users[i])
	}
	return out, nil
}

// Update changes role, tier or status
func (s *UserService) Update(ctx context.Context, id uuid.UUID, input UpdateUserInput) (*UserInfo, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, s.wrap(err, "Failed to load user")
	}

	if input.Role != nil {
		if err := user.SetRole(*input.Role); err != nil {
			return nil, err
		}
	}
	if input.Tier != nil {
		if err := user.SetTier(*input.Tier); err != nil {
			return nil, err
		}
	}
	if input.Active != nil {
		if *input.Active {
			user.Activate()
		} else {
			user.Deactivate()
		}
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, s.wrap(err, "Failed to update user")
	}
	s.logger.Info("User updated",
		zap.String("user_id", user.ID.String()),
		zap.String("role", string(user.Role)),
		zap.String("tier", string(user.Tier)),
		zap.String("status", string(user.Status)))

	info := ToUserInfo(user)
	return &info, nil
}

// ChangePassword verifies the old password before setting a new one
func (s *UserService) ChangePassword(ctx context.Context, id uuid.UUID, oldPassword, newPassword string) error {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return s.wrap(err, "Failed to load user")
	}
	if !user.VerifyPassword(oldPassword) {
		return shared.NewDomainError(shared.CodeInvalidInput, "Current password is incorrect")
	}
	if err := user.SetPassword(newPassword); err != nil {
		return err
	}
	if err := s.users.Update(ctx, user); err != nil {
		return s.wrap(err, "Failed to update password")
	}
	return nil
}

func (s *UserService) wrap(err error, message string) error {
	if shared.IsDomainError(err) {
		return err
	}
	s.logger.Error(message, zap.Error(err))
	return shared.NewDomainError(shared.CodeInternal, message)
}
