package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/integration"
	"github.com/meterly/backend/internal/domain/shared"
	"github.com/meterly/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormIntegrationRepository implements integration.Repository
type GormIntegrationRepository struct {
	db *gorm.DB
}

// NewGormIntegrationRepository creates a new GormIntegrationRepository
func NewGormIntegrationRepository(db *gorm.DB) *GormIntegrationRepository {
	return &GormIntegrationRepository{db: db}
}

// FindByID finds an integration by ID
func (r *GormIntegrationRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.Integration, error) {
	var model models.IntegrationModel
	if err := conn(ctx, r.db).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// List returns every integration
func (r *GormIntegrationRepository) List(ctx context.Context) ([]integration.Integration, error) {
	return r.find(conn(ctx, r.db))
}

// ListActive returns the active integrations
func (r *GormIntegrationRepository) ListActive(ctx context.Context) ([]integration.Integration, error) {
	return r.find(conn(ctx, r.db).Where("active = ?", true))
}

func (r *GormIntegrationRepository) find(query *gorm.DB) ([]integration.Integration, error) {
	var rows []models.IntegrationModel
	if err := query.Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]integration.Integration, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// Create inserts an integration
func (r *GormIntegrationRepository) Create(ctx context.Context, in *integration.Integration) error {
	return conn(ctx, r.db).Create(models.IntegrationModelFromDomain(in)).Error
}

// Update saves an integration
func (r *GormIntegrationRepository) Update(ctx context.Context, in *integration.Integration) error {
	return saveExisting(ctx, r.db, models.IntegrationModelFromDomain(in))
}

// Delete removes an integration
func (r *GormIntegrationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return deleteByID(ctx, r.db, &models.IntegrationModel{}, id)
}

// MarkTriggered stamps the last successful delivery
func (r *GormIntegrationRepository) MarkTriggered(ctx context.Context, id uuid.UUID, at time.Time) error {
	return conn(ctx, r.db).Model(&models.IntegrationModel{}).
		Where("id = ?", id).
		UpdateColumn("last_triggered_at", at).Error
}
