package persistence

import (
	"context"
	"time"

	"github.com/meterly/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormSettingsRepository implements settings.Repository on a key/value table
type GormSettingsRepository struct {
	db *gorm.DB
}

// NewGormSettingsRepository creates a new GormSettingsRepository
func NewGormSettingsRepository(db *gorm.DB) *GormSettingsRepository {
	return &GormSettingsRepository{db: db}
}

// All returns every stored key
func (r *GormSettingsRepository) All(ctx context.Context) (map[string]string, error) {
	var rows []models.SettingModel
	if err := conn(ctx, r.db).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Value
	}
	return out, nil
}

// Upsert writes the given keys in one statement
func (r *GormSettingsRepository) Upsert(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	now := time.Now()
	rows := make([]models.SettingModel, 0, len(values))
	for k, v := range values {
		rows = append(rows, models.SettingModel{Key: k, Value: v, UpdatedAt: now})
	}
	return conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rows).Error
}

// SeedMissing inserts values for keys that are not stored yet
func (r *GormSettingsRepository) SeedMissing(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	now := time.Now()
	rows := make([]models.SettingModel, 0, len(values))
	for k, v := range values {
		rows = append(rows, models.SettingModel{Key: k, Value: v, UpdatedAt: now})
	}
	return conn(ctx, r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}
