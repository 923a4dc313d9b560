package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/domain/shared"
	"github.com/meterly/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormUserRepository implements principal.UserRepository using GORM
type GormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a new GormUserRepository
func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

// Create creates a new user
func (r *GormUserRepository) Create(ctx context.Context, user *principal.User) error {
	return conn(ctx, r.db).Create(models.UserModelFromDomain(user)).Error
}

// Update saves profile columns. The balance column is owned by the credit
// engine and is never written here.
func (r *GormUserRepository) Update(ctx context.Context, user *principal.User) error {
	model := models.UserModelFromDomain(user)
	result := conn(ctx, r.db).Model(&models.UserModel{}).
		Where("id = ?", user.ID).
		Select("username", "email", "password_hash", "role", "tier", "status",
			"last_reset_at", "last_login_at", "last_seen_ip", "last_activity_at", "updated_at").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds a user by ID
func (r *GormUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*principal.User, error) {
	var model models.UserModel
	if err := conn(ctx, r.db).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByUsername finds a user by username, case-insensitively
func (r *GormUserRepository) FindByUsername(ctx context.Context, username string) (*principal.User, error) {
	var model models.UserModel
	if err := conn(ctx, r.db).
		Where("LOWER(username) = ?", strings.ToLower(username)).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ExistsByUsername checks if a username is taken
func (r *GormUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.UserModel{}).
		Where("LOWER(username) = ?", strings.ToLower(username)).
		Count(&count).Error
	return count > 0, err
}

// ExistsByEmail checks if an email is taken
func (r *GormUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.UserModel{}).
		Where("LOWER(email) = ?", strings.ToLower(email)).
		Count(&count).Error
	return count > 0, err
}

// TouchActivity records the last request time and client IP
func (r *GormUserRepository) TouchActivity(ctx context.Context, id uuid.UUID, ip string, at time.Time) error {
	return conn(ctx, r.db).Model(&models.UserModel{}).
		Where("id = ?", id).
		Updates(map[string]any{"last_activity_at": at, "last_seen_ip": ip}).Error
}

// MarkReset stamps the periodic reset time
func (r *GormUserRepository) MarkReset(ctx context.Context, id uuid.UUID, at time.Time) error {
	return conn(ctx, r.db).Model(&models.UserModel{}).
		Where("id = ?", id).
		Updates(map[string]any{"last_reset_at": at, "updated_at": at}).Error
}

// FindDueForReset returns active users whose last reset is older than cutoff
func (r *GormUserRepository) FindDueForReset(ctx context.Context, cutoff time.Time, limit int) ([]principal.User, error) {
	var rows []models.UserModel
	err := conn(ctx, r.db).
		Where("status = ? AND (last_reset_at IS NULL OR last_reset_at <= ?)", principal.UserStatusActive, cutoff).
		Order("id").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	users := make([]principal.User, len(rows))
	for i := range rows {
		users[i] = *rows[i].ToDomain()
	}
	return users, nil
}

// List returns a page of users, oldest first unless the filter sorts otherwise
func (r *GormUserRepository) List(ctx context.Context, filter shared.Filter) ([]principal.User, int64, error) {
	filter = filter.Normalize()
	query := conn(ctx, r.db).Model(&models.UserModel{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.UserModel
	if err := query.Order(orderClause(filter, UserSortFields, "created_at", "ASC")).
		Offset(filter.Offset()).Limit(filter.PageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	users := make([]principal.User, len(rows))
	for i := range rows {
		users[i] = *rows[i].ToDomain()
	}
	return users, total, nil
}
