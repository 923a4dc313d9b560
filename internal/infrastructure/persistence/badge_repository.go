package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/gamification"
	"github.com/meterly/backend/internal/domain/shared"
	"github.com/meterly/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormBadgeRepository implements gamification.BadgeRepository
type GormBadgeRepository struct {
	db *gorm.DB
}

// NewGormBadgeRepository creates a new GormBadgeRepository
func NewGormBadgeRepository(db *gorm.DB) *GormBadgeRepository {
	return &GormBadgeRepository{db: db}
}

// FindByID finds a badge by ID
func (r *GormBadgeRepository) FindByID(ctx context.Context, id uuid.UUID) (*gamification.Badge, error) {
	var model models.BadgeModel
	if err := conn(ctx, r.db).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListByEventType returns the ladder of one event type, lowest threshold first
func (r *GormBadgeRepository) ListByEventType(ctx context.Context, eventTypeID uuid.UUID) ([]gamification.Badge, error) {
	return r.find(conn(ctx, r.db).Where("event_type_id = ?", eventTypeID))
}

// List returns every badge
func (r *GormBadgeRepository) List(ctx context.Context) ([]gamification.Badge, error) {
	return r.find(conn(ctx, r.db))
}

func (r *GormBadgeRepository) find(query *gorm.DB) ([]gamification.Badge, error) {
	var rows []models.BadgeModel
	if err := query.Order("required_points ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]gamification.Badge, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// Create inserts a badge
func (r *GormBadgeRepository) Create(ctx context.Context, badge *gamification.Badge) error {
	return conn(ctx, r.db).Create(models.BadgeModelFromDomain(badge)).Error
}

// Update saves a badge
func (r *GormBadgeRepository) Update(ctx context.Context, badge *gamification.Badge) error {
	return saveExisting(ctx, r.db, models.BadgeModelFromDomain(badge))
}

// Delete removes a badge
func (r *GormBadgeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return deleteByID(ctx, r.db, &models.BadgeModel{}, id)
}

// DeleteByEventType removes the whole ladder of an event type
func (r *GormBadgeRepository) DeleteByEventType(ctx context.Context, eventTypeID uuid.UUID) error {
	return conn(ctx, r.db).Where("event_type_id = ?", eventTypeID).Delete(&models.BadgeModel{}).Error
}
