package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/domain/shared"
	"github.com/meterly/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormSessionRepository implements principal.SessionRepository using GORM
type GormSessionRepository struct {
	db *gorm.DB
}

// NewGormSessionRepository creates a new GormSessionRepository
func NewGormSessionRepository(db *gorm.DB) *GormSessionRepository {
	return &GormSessionRepository{db: db}
}

// FindByID finds a session by ID
func (r *GormSessionRepository) FindByID(ctx context.Context, id uuid.UUID) (*principal.Session, error) {
	var model models.SessionModel
	if err := conn(ctx, r.db).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Create inserts a session
func (r *GormSessionRepository) Create(ctx context.Context, session *principal.Session) error {
	return conn(ctx, r.db).Create(models.SessionModelFromDomain(session)).Error
}

// Update saves status columns. Balance is left to the credit engine.
func (r *GormSessionRepository) Update(ctx context.Context, session *principal.Session) error {
	result := conn(ctx, r.db).Model(&models.SessionModel{}).
		Where("id = ?", session.ID).
		Updates(map[string]any{
			"status":           session.Status,
			"merged_into":      session.MergedInto,
			"last_activity_at": session.LastActivityAt,
			"updated_at":       session.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// TouchActivity records the last request time and client IP
func (r *GormSessionRepository) TouchActivity(ctx context.Context, id uuid.UUID, ip string, at time.Time) error {
	return conn(ctx, r.db).Model(&models.SessionModel{}).
		Where("id = ?", id).
		Updates(map[string]any{"last_activity_at": at, "ip_address": ip}).Error
}

// DeleteStale removes sessions idle since before cutoff together with their
// ledger rows, events and aggregates. Merged sessions are removed too since
// nothing can act as them anymore.
//
// The stale sessions are locked first and everything is deleted by that id
// list. A request touching or charging one of them waits for the sweep, and
// a session touched before the lock is no longer stale and is kept whole.
func (r *GormSessionRepository) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		var ids []uuid.UUID
		if err := tx.Model(&models.SessionModel{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("last_activity_at < ?", cutoff).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		if err := tx.Where("session_id IN ?", ids).Delete(&models.CreditTransactionModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("principal_kind = ? AND principal_id IN ?", principal.KindAnonymous, ids).
			Delete(&models.GamificationEventModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("principal_kind = ? AND principal_id IN ?", principal.KindAnonymous, ids).
			Delete(&models.UserGamificationModel{}).Error; err != nil {
			return err
		}
		result := tx.Where("id IN ?", ids).Delete(&models.SessionModel{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected
		return nil
	})
	return deleted, err
}
