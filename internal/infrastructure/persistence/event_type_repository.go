package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/gamification"
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/domain/shared"
	"github.com/meterly/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormEventTypeRepository implements gamification.EventTypeRepository
type GormEventTypeRepository struct {
	db *gorm.DB
}

// NewGormEventTypeRepository creates a new GormEventTypeRepository
func NewGormEventTypeRepository(db *gorm.DB) *GormEventTypeRepository {
	return &GormEventTypeRepository{db: db}
}

// FindByID finds an event type by ID
func (r *GormEventTypeRepository) FindByID(ctx context.Context, id uuid.UUID) (*gamification.EventType, error) {
	var model models.EventTypeModel
	if err := conn(ctx, r.db).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByName finds an event type by its unique name
func (r *GormEventTypeRepository) FindByName(ctx context.Context, name string) (*gamification.EventType, error) {
	var model models.EventTypeModel
	if err := conn(ctx, r.db).Where("name = ?", gamification.NormalizeEventTypeName(name)).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ExistsByName checks for a name clash, optionally ignoring one row
func (r *GormEventTypeRepository) ExistsByName(ctx context.Context, name string, excludeID *uuid.UUID) (bool, error) {
	query := conn(ctx, r.db).Model(&models.EventTypeModel{}).
		Where("name = ?", gamification.NormalizeEventTypeName(name))
	if excludeID != nil {
		query = query.Where("id <> ?", *excludeID)
	}
	var count int64
	err := query.Count(&count).Error
	return count > 0, err
}

// List returns all event types ordered by name
func (r *GormEventTypeRepository) List(ctx context.Context) ([]gamification.EventType, error) {
	var rows []models.EventTypeModel
	if err := conn(ctx, r.db).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]gamification.EventType, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// Create inserts an event type
func (r *GormEventTypeRepository) Create(ctx context.Context, et *gamification.EventType) error {
	return conn(ctx, r.db).Create(models.EventTypeModelFromDomain(et)).Error
}

// Update saves an event type
func (r *GormEventTypeRepository) Update(ctx context.Context, et *gamification.EventType) error {
	return saveExisting(ctx, r.db, models.EventTypeModelFromDomain(et))
}

// Delete removes an event type
func (r *GormEventTypeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return deleteByID(ctx, r.db, &models.EventTypeModel{}, id)
}

// GormGamificationEventRepository implements gamification.EventRepository
type GormGamificationEventRepository struct {
	db *gorm.DB
}

// NewGormGamificationEventRepository creates a new GormGamificationEventRepository
func NewGormGamificationEventRepository(db *gorm.DB) *GormGamificationEventRepository {
	return &GormGamificationEventRepository{db: db}
}

// Create appends an event
func (r *GormGamificationEventRepository) Create(ctx context.Context, event *gamification.Event) error {
	return conn(ctx, r.db).Create(models.GamificationEventModelFromDomain(event)).Error
}

// Count returns how many events of a type the principal recorded
func (r *GormGamificationEventRepository) Count(ctx context.Context, ref principal.Ref, eventTypeID uuid.UUID) (int64, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.GamificationEventModel{}).
		Where("principal_kind = ? AND principal_id = ? AND event_type_id = ?", ref.Kind, ref.ID, eventTypeID).
		Count(&count).Error
	return count, err
}

// ExistsForEventType reports whether any event references the type
func (r *GormGamificationEventRepository) ExistsForEventType(ctx context.Context, eventTypeID uuid.UUID) (bool, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.GamificationEventModel{}).
		Where("event_type_id = ?", eventTypeID).
		Count(&count).Error
	return count > 0, err
}
